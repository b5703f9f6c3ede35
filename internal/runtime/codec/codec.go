// Package codec serializes envelopes and state values for the isolation
// boundary. It uses CBOR (RFC 8949) because boundary values are schema-less
// dynamic graphs that must round-trip byte slices and timestamps losslessly,
// which JSON cannot represent natively.
//
// Crossing the codec is what isolates the two execution contexts: a decoded
// value never aliases the encoded one, so proxy and worker cannot share an
// object graph even inside one process.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/exclave-io/exclave/internal/runtime/envelope"
)

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	opts := cbor.EncOptions{
		// Canonical map ordering keeps encoded frames deterministic.
		Sort:    cbor.SortCanonical,
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("exclave: cbor encode mode: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	opts := cbor.DecOptions{
		// Dynamic values decode to map[string]any / []any / int64 so
		// both sides of the boundary see one normalized representation.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSignedOrFail,
		TimeTagToAny:   cbor.TimeTagToTime,
	}
	dm, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("exclave: cbor decode mode: %v", err))
	}
	return dm
}

// Encode serializes v into a CBOR frame.
func Encode(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Decode deserializes a CBOR frame into v.
func Decode(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeEnvelope validates env and serializes it into a boundary frame.
func EncodeEnvelope(env envelope.Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return Encode(env)
}

// DecodeEnvelope deserializes one boundary frame and validates the result.
func DecodeEnvelope(data []byte) (envelope.Envelope, error) {
	var env envelope.Envelope
	if err := Decode(data, &env); err != nil {
		return envelope.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return envelope.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Normalize round-trips v through the codec and returns the form values take
// after crossing the boundary: integers widen to int64, floats to float64,
// maps decode as map[string]any, sequences as []any, while []byte and
// time.Time survive unchanged. The result never aliases v, so Normalize also
// serves as the forced copy that keeps execution contexts from sharing a
// value graph.
func Normalize(v any) (any, error) {
	data, err := Encode(v)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	var out any
	if err := Decode(data, &out); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return out, nil
}

// NormalizeState applies Normalize to a whole state mapping.
func NormalizeState(state map[string]any) (map[string]any, error) {
	if state == nil {
		return nil, nil
	}
	data, err := Encode(state)
	if err != nil {
		return nil, fmt.Errorf("normalize state: %w", err)
	}
	out := make(map[string]any, len(state))
	if err := Decode(data, &out); err != nil {
		return nil, fmt.Errorf("normalize state: %w", err)
	}
	return out, nil
}

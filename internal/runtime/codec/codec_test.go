package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exclave-io/exclave/internal/runtime/envelope"
)

func TestRoundTripPrimitives(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int widens to int64", 7, int64(7)},
		{"negative int", -42, int64(-42)},
		{"int64", int64(1 << 40), int64(1 << 40)},
		{"float64", 3.25, 3.25},
		{"float32 widens to float64", float32(1.5), float64(1.5)},
		{"string", "hello", "hello"},
		{"unicode string", "héllo wörld — 日本語 🚀", "héllo wörld — 日本語 🚀"},
		{"bytes", []byte{0x00, 0x01, 0xfe, 0xff}, []byte{0x00, 0x01, 0xfe, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.in)
			require.NoError(t, err)

			var out any
			require.NoError(t, Decode(data, &out))
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRoundTripTime(t *testing.T) {
	want := time.Date(2024, 11, 3, 17, 4, 5, 123456789, time.UTC)

	data, err := Encode(want)
	require.NoError(t, err)

	var out any
	require.NoError(t, Decode(data, &out))

	got, ok := out.(time.Time)
	require.True(t, ok, "expected time.Time, got %T", out)
	assert.True(t, got.Equal(want), "expected %v, got %v", want, got)
	assert.Equal(t, want.Nanosecond(), got.Nanosecond())
}

func TestRoundTripNestedStructures(t *testing.T) {
	in := map[string]any{
		"name":  "todo",
		"count": 3,
		"items": []any{
			map[string]any{"text": "milk", "done": false},
			map[string]any{"text": "bread", "done": true},
		},
		"blob":    []byte("raw"),
		"updated": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := Encode(in)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, Decode(data, &out))

	assert.Equal(t, "todo", out["name"])
	assert.Equal(t, int64(3), out["count"])
	assert.Equal(t, []byte("raw"), out["blob"])

	items, ok := out["items"].([]any)
	require.True(t, ok, "expected []any items, got %T", out["items"])
	require.Len(t, items, 2)
	first, ok := items[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "milk", first["text"])
	assert.Equal(t, false, first["done"])

	updated, ok := out["updated"].(time.Time)
	require.True(t, ok, "expected time.Time, got %T", out["updated"])
	assert.True(t, updated.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestEncodeDeterministic(t *testing.T) {
	in := map[string]any{"b": 1, "a": 2, "c": []any{"x", "y"}}

	first, err := Encode(in)
	require.NoError(t, err)
	second, err := Encode(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := envelope.NewServiceMessage("addItem", []any{"milk", 2, []byte{0xca, 0xfe}})

	frame, err := EncodeEnvelope(env)
	require.NoError(t, err)

	got, err := DecodeEnvelope(frame)
	require.NoError(t, err)

	assert.Equal(t, envelope.TypeServiceMessage, got.Type)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, "addItem", got.Action)
	require.Len(t, got.Args, 3)
	assert.Equal(t, "milk", got.Args[0])
	assert.Equal(t, int64(2), got.Args[1])
	assert.Equal(t, []byte{0xca, 0xfe}, got.Args[2])
	assert.True(t, got.Timestamp.Equal(env.Timestamp))
}

func TestEncodeEnvelopeRejectsInvalid(t *testing.T) {
	_, err := EncodeEnvelope(envelope.Envelope{Type: "BOGUS"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown envelope type")
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte{0xff, 0x00, 0x13})
	require.Error(t, err)
}

func TestDecodeEnvelopeRejectsInvalidEnvelope(t *testing.T) {
	// A structurally valid frame whose envelope fails validation.
	frame, err := Encode(map[string]any{"type": "SERVICE_MESSAGE", "id": "x"})
	require.NoError(t, err)

	_, err = DecodeEnvelope(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action is required")
}

func TestNormalize(t *testing.T) {
	got, err := Normalize(map[string]any{"n": 1, "f": float32(0.5)})
	require.NoError(t, err)

	m, ok := got.(map[string]any)
	require.True(t, ok, "expected map[string]any, got %T", got)
	assert.Equal(t, int64(1), m["n"])
	assert.Equal(t, float64(0.5), m["f"])
}

func TestNormalizeNeverAliases(t *testing.T) {
	in := map[string]any{"items": []any{"a"}, "blob": []byte{1, 2, 3}}

	got, err := Normalize(in)
	require.NoError(t, err)

	in["items"].([]any)[0] = "mutated"
	in["blob"].([]byte)[0] = 9

	m := got.(map[string]any)
	assert.Equal(t, "a", m["items"].([]any)[0])
	assert.Equal(t, byte(1), m["blob"].([]byte)[0])
}

func TestNormalizeState(t *testing.T) {
	state, err := NormalizeState(map[string]any{"count": 0, "label": "ready"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), state["count"])
	assert.Equal(t, "ready", state["label"])

	empty, err := NormalizeState(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

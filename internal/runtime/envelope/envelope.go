// Package envelope defines the wire shape of every message that crosses the
// isolation boundary between a service proxy and its worker runtime. One flat
// struct covers all six message types; Type selects which optional fields are
// meaningful.
package envelope

import (
	"fmt"
	"time"

	idspkg "github.com/exclave-io/exclave/internal/runtime/ids"
)

// MessageType discriminates the envelopes exchanged between a proxy and a
// worker runtime.
type MessageType string

const (
	// TypeInitService asks the worker runtime to construct the real
	// service. The runtime answers with the same type, carrying Success
	// or Error and the request's ID as CorrelationID.
	TypeInitService MessageType = "INIT_SERVICE"

	// TypeServiceMessage carries one method invocation: Action names the
	// method, Args is the positional argument list.
	TypeServiceMessage MessageType = "SERVICE_MESSAGE"

	// TypeStateChange replicates one state mutation from the
	// authoritative instance to the caller-side mirror.
	TypeStateChange MessageType = "STATE_CHANGE"

	// TypeMessageResponse answers one TypeServiceMessage, matched by
	// CorrelationID.
	TypeMessageResponse MessageType = "MESSAGE_RESPONSE"

	// TypeServiceEvent replicates one event emitted by the authoritative
	// instance.
	TypeServiceEvent MessageType = "SERVICE_EVENT"

	// TypeWorkerError reports an error caught at the top level of the
	// worker runtime.
	TypeWorkerError MessageType = "WORKER_ERROR"
)

func (t MessageType) String() string { return string(t) }

// Known reports whether t is one of the six wire types.
func (t MessageType) Known() bool {
	switch t {
	case TypeInitService, TypeServiceMessage, TypeStateChange,
		TypeMessageResponse, TypeServiceEvent, TypeWorkerError:
		return true
	}
	return false
}

// Envelope is the single message shape used on the boundary.
type Envelope struct {
	Type          MessageType `cbor:"type" json:"type"`
	ID            string      `cbor:"id,omitempty" json:"id,omitempty"`
	CorrelationID string      `cbor:"correlation_id,omitempty" json:"correlation_id,omitempty"`
	Timestamp     time.Time   `cbor:"timestamp" json:"timestamp"`

	// TypeInitService
	Service      string         `cbor:"service,omitempty" json:"service,omitempty"`
	InitialState map[string]any `cbor:"initial_state,omitempty" json:"initial_state,omitempty"`

	// TypeServiceMessage
	Action string `cbor:"action,omitempty" json:"action,omitempty"`
	Args   []any  `cbor:"args,omitempty" json:"args,omitempty"`

	// TypeStateChange
	Key   string `cbor:"key,omitempty" json:"key,omitempty"`
	Value any    `cbor:"value,omitempty" json:"value,omitempty"`

	// TypeServiceEvent
	Event   string `cbor:"event,omitempty" json:"event,omitempty"`
	Payload any    `cbor:"payload,omitempty" json:"payload,omitempty"`

	// TypeMessageResponse and replies to TypeInitService
	Success bool   `cbor:"success,omitempty" json:"success,omitempty"`
	Result  any    `cbor:"result,omitempty" json:"result,omitempty"`
	Error   string `cbor:"error,omitempty" json:"error,omitempty"`
}

func newEnvelope(t MessageType) Envelope {
	return Envelope{
		Type:      t,
		ID:        idspkg.New(),
		Timestamp: time.Now().UTC(),
	}
}

// NewInitService builds the construction request for a relocated service.
func NewInitService(service string, initialState map[string]any) Envelope {
	e := newEnvelope(TypeInitService)
	e.Service = service
	e.InitialState = initialState
	return e
}

// NewInitReply answers an init request. A nil err marks success.
func NewInitReply(requestID string, err error) Envelope {
	e := newEnvelope(TypeInitService)
	e.CorrelationID = requestID
	if err != nil {
		e.Error = err.Error()
	} else {
		e.Success = true
	}
	return e
}

// NewServiceMessage builds one correlated method invocation.
func NewServiceMessage(action string, args []any) Envelope {
	e := newEnvelope(TypeServiceMessage)
	e.Action = action
	e.Args = args
	return e
}

// NewStateChange replicates one state mutation outward.
func NewStateChange(key string, value any) Envelope {
	e := newEnvelope(TypeStateChange)
	e.Key = key
	e.Value = value
	return e
}

// NewServiceEvent replicates one emitted event outward.
func NewServiceEvent(event string, payload any) Envelope {
	e := newEnvelope(TypeServiceEvent)
	e.Event = event
	e.Payload = payload
	return e
}

// NewResponse answers the service message requestID with its result.
func NewResponse(requestID string, result any) Envelope {
	e := newEnvelope(TypeMessageResponse)
	e.CorrelationID = requestID
	e.Success = true
	e.Result = result
	return e
}

// NewErrorResponse answers the service message requestID with a failure.
func NewErrorResponse(requestID string, err error) Envelope {
	e := newEnvelope(TypeMessageResponse)
	e.CorrelationID = requestID
	e.Error = err.Error()
	return e
}

// NewWorkerError reports a failure caught at the top level of the worker.
func NewWorkerError(err error) Envelope {
	e := newEnvelope(TypeWorkerError)
	e.Error = err.Error()
	return e
}

// ExpectsReply reports whether the envelope is a request that must be
// answered: construction requests and method invocations.
func (e Envelope) ExpectsReply() bool {
	switch e.Type {
	case TypeInitService:
		return e.CorrelationID == ""
	case TypeServiceMessage:
		return true
	}
	return false
}

// IsReply reports whether the envelope answers an earlier request.
func (e Envelope) IsReply() bool {
	if e.CorrelationID == "" {
		return false
	}
	return e.Type == TypeMessageResponse || e.Type == TypeInitService
}

// Failed reports whether a reply carries a failure.
func (e Envelope) Failed() bool { return e.Error != "" }

// Validate checks that the envelope is well formed for its type.
func (e Envelope) Validate() error {
	if !e.Type.Known() {
		return fmt.Errorf("unknown envelope type %q", e.Type)
	}
	switch e.Type {
	case TypeInitService:
		if e.IsReply() {
			break
		}
		if e.ID == "" {
			return fmt.Errorf("%s: id is required", e.Type)
		}
		if e.Service == "" {
			return fmt.Errorf("%s: service is required", e.Type)
		}
	case TypeServiceMessage:
		if e.ID == "" {
			return fmt.Errorf("%s: id is required", e.Type)
		}
		if e.Action == "" {
			return fmt.Errorf("%s: action is required", e.Type)
		}
	case TypeStateChange:
		if e.Key == "" {
			return fmt.Errorf("%s: key is required", e.Type)
		}
	case TypeMessageResponse:
		if e.CorrelationID == "" {
			return fmt.Errorf("%s: correlation_id is required", e.Type)
		}
	case TypeServiceEvent:
		if e.Event == "" {
			return fmt.Errorf("%s: event is required", e.Type)
		}
	case TypeWorkerError:
		if e.Error == "" {
			return fmt.Errorf("%s: error is required", e.Type)
		}
	}
	return nil
}

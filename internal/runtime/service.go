package runtime

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/exclave-io/exclave/internal/runtime/bus"
	"github.com/exclave-io/exclave/internal/runtime/config"
	errs "github.com/exclave-io/exclave/internal/runtime/errors"
	"github.com/exclave-io/exclave/internal/runtime/ids"
	loggingpkg "github.com/exclave-io/exclave/internal/runtime/logging"
)

// Handle is the caller-facing surface shared by a Service running in the
// calling context and a Proxy fronting a relocated one. Application code
// that works against Handle cannot tell where the service executes.
//
// Event handlers passed to On and Once run synchronously on the
// goroutine that emitted the change. A handler must not block on a Call
// to the same handle; the call could not be serviced until the handler
// returns.
type Handle interface {
	// Name returns the service's registered name.
	Name() string

	// State returns a read-only view of the current state mapping.
	State() StateView

	// Get returns the last value emitted for key, or false if key has
	// never been emitted.
	Get(key string) (any, bool)

	// Call dispatches an action and waits for its result.
	Call(ctx context.Context, action string, args ...any) (any, error)

	// Post dispatches an action without waiting for a result. Errors
	// are logged, not returned.
	Post(action string, args ...any)

	// On subscribes handler to a state key or event name.
	On(key string, handler bus.Handler) *bus.Subscription

	// Once subscribes handler for exactly one delivery.
	Once(key string, handler bus.Handler) *bus.Subscription

	// Off removes a subscription. Unknown subscriptions are a no-op.
	Off(sub *bus.Subscription)

	// Close releases the handle. Idempotent.
	Close() error
}

// Service owns the authoritative state for one unit of business logic.
// Embed a *Service in the implementing struct and call Bind with the
// outer value so the action router can reach its exported methods:
//
//	type Counter struct {
//		*runtime.Service
//	}
//
//	func NewCounter() *Counter {
//		c := &Counter{Service: runtime.NewService("counter", map[string]any{"count": int64(0)})}
//		c.Bind(c)
//		return c
//	}
//
// Every state mutation goes through SetState or SetStates, which emit
// the new value unconditionally. Concurrent mutations of the same key
// from different goroutines carry no emission-order guarantee; mutations
// from one goroutine are always observed in program order.
type Service struct {
	name    string
	bus     *bus.Bus
	pending *pendingTable
	history *history

	mu      sync.Mutex
	state   *orderedState
	router  *router
	impl    any
	onState func(key string, value any)
	onEvent func(event string, payload any)

	logger atomic.Pointer[loggerBox]
	closed atomic.Bool
}

// loggerBox wraps the interface so it can live in an atomic.Pointer.
type loggerBox struct {
	log loggingpkg.ServiceLogger
}

var _ Handle = (*Service)(nil)

// NewService constructs a service base named name and seeds it with the
// initial state mapping, emitting every seeded key once in sorted key
// order. For full control over key order, pass nil and call SetState in
// sequence instead; insertion order follows call order.
//
// Panics when name is empty; a service without a name can never be
// registered or relocated.
func NewService(name string, initial map[string]any) *Service {
	if name == "" {
		panic(errs.ErrNameRequired)
	}

	s := &Service{
		name:    name,
		bus:     bus.New(nil),
		pending: newPendingTable(),
		history: newHistory(config.DefaultHistoryLimit),
		state:   newOrderedState(),
	}
	s.logger.Store(&loggerBox{log: loggingpkg.Nop()})

	keys := make([]string, 0, len(initial))
	for k := range initial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.SetState(k, initial[k])
	}

	return s
}

// base lets the runtime reach the embedded Service of an implementing
// struct through an interface assertion.
func (s *Service) base() *Service { return s }

// serviceBased matches any value that embeds *Service.
type serviceBased interface {
	base() *Service
}

// baseOf extracts the embedded Service base from a constructed value.
func baseOf(v any) (*Service, bool) {
	sb, ok := v.(serviceBased)
	if !ok {
		return nil, false
	}
	return sb.base(), true
}

// Bind exposes impl's exported methods as addressable actions. Call it
// once, immediately after constructing the outer value. Panics when impl
// is nil; binding nothing is a programmer error.
func (s *Service) Bind(impl any) {
	if impl == nil {
		panic("exclave: Bind requires the implementing value")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.impl = impl
	s.router = newRouter(impl)
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Logger returns the service's logger. Never nil.
func (s *Service) Logger() loggingpkg.ServiceLogger {
	return s.logger.Load().log
}

// SetLogger replaces the service's logger and the one used for listener
// panic reports.
func (s *Service) SetLogger(log loggingpkg.ServiceLogger) {
	s.logger.Store(&loggerBox{log: loggingpkg.OrNop(log)})
	s.bus.SetLogger(loggingpkg.OrNop(log))
}

// SetHistoryLimit resizes the dispatch history ring. Zero or negative
// disables recording. Recorded entries are dropped.
func (s *Service) SetHistoryLimit(limit int) {
	s.history.Resize(limit)
}

// State returns a read-only view of the authoritative state.
func (s *Service) State() StateView {
	return &serviceView{s: s}
}

// Get returns the last emitted value for a state key or event name.
func (s *Service) Get(key string) (any, bool) {
	return s.bus.Get(key)
}

// SetState stores value under key and emits it, whether or not the value
// changed. Subscribers relying on every write seeing an emission depend
// on there being no equality check here.
func (s *Service) SetState(key string, value any) {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	s.state.set(key, value)
	tap := s.onState
	s.mu.Unlock()

	if tap != nil {
		tap(key, value)
	}
	s.bus.Emit(key, value)
}

// SetStates applies a partial state mapping key by key in sorted key
// order, emitting each one.
func (s *Service) SetStates(partial map[string]any) {
	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.SetState(k, partial[k])
	}
}

// Emit publishes a custom event through the service's notifier. Events
// share the key space with state keys; a relocated service's events are
// replicated to the proxy side just like state changes.
func (s *Service) Emit(event string, payload any) {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	tap := s.onEvent
	s.mu.Unlock()

	if tap != nil {
		tap(event, payload)
	}
	s.bus.Emit(event, payload)
}

// On subscribes handler to a state key or event name.
func (s *Service) On(key string, handler bus.Handler) *bus.Subscription {
	return s.bus.On(key, handler)
}

// Once subscribes handler for exactly one delivery.
func (s *Service) Once(key string, handler bus.Handler) *bus.Subscription {
	return s.bus.Once(key, handler)
}

// Off removes a subscription.
func (s *Service) Off(sub *bus.Subscription) {
	s.bus.Off(sub)
}

// setTaps installs the forwarding hooks a worker runtime or local
// fallback uses to observe every mutation and event. Taps run before the
// local emission, on the mutating goroutine, with no service lock held.
func (s *Service) setTaps(onState func(key string, value any), onEvent func(event string, payload any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = onState
	s.onEvent = onEvent
}

// dispatch routes an action to the bound implementation and records it
// in the history ring.
func (s *Service) dispatch(ctx context.Context, action string, args []any, correlationID string) (any, error) {
	s.mu.Lock()
	r := s.router
	s.mu.Unlock()

	if r == nil {
		return nil, errs.ErrNotBound
	}

	s.history.Record(HistoryEntry{
		Action:        action,
		Args:          args,
		CorrelationID: correlationID,
		Time:          time.Now().UTC(),
	})

	return r.Dispatch(ctx, action, args)
}

// Call dispatches an action to the bound implementation and returns its
// result.
func (s *Service) Call(ctx context.Context, action string, args ...any) (any, error) {
	if s.closed.Load() {
		return nil, errs.ErrDisposed
	}
	return s.dispatch(ctx, action, args, "")
}

// Post dispatches an action and discards the result. A missing method or
// failing dispatch is logged, not surfaced, so message relaying stays
// robust.
func (s *Service) Post(action string, args ...any) {
	if s.closed.Load() {
		return
	}
	if _, err := s.dispatch(context.Background(), action, args, ""); err != nil {
		s.Logger().Error("post dropped", err, loggingpkg.LogFields{
			"service": s.name,
			"action":  action,
		})
	}
}

// Request dispatches an action and waits until the implementation
// answers through ResolveRequest with a matching response type and the
// correlation ID carried in the dispatch context, or until the timeout
// elapses. A timeout of zero or less uses the default call timeout.
//
// This is the bridge for conversational patterns where the reply is
// produced by a later, separate step rather than the method's return
// value.
func (s *Service) Request(ctx context.Context, responseType string, timeout time.Duration, action string, args ...any) (any, error) {
	if s.closed.Load() {
		return nil, errs.ErrDisposed
	}
	if timeout <= 0 {
		timeout = config.DefaultCallTimeout
	}

	id := ids.New()
	ch := s.pending.Add(id, responseType, timeout, nil)

	if _, err := s.dispatch(WithCorrelation(ctx, id), action, args, id); err != nil {
		s.pending.Reject(id, err)
		<-ch
		return nil, err
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		s.pending.Reject(id, ctx.Err())
		return nil, ctx.Err()
	}
}

// ResolveRequest answers a pending Request. The correlation ID comes
// from the dispatch context via CorrelationFromContext; responseType
// must match the one the requester waits for. Returns false when
// nothing matching is pending.
func (s *Service) ResolveRequest(responseType, correlationID string, result any) bool {
	return s.pending.ResolveMatching(correlationID, responseType, result)
}

// Actions returns the action names routable on the bound
// implementation. Nil before Bind.
func (s *Service) Actions() []string {
	s.mu.Lock()
	r := s.router
	s.mu.Unlock()

	if r == nil {
		return nil
	}
	return r.Actions()
}

// History returns the recorded dispatches, oldest first.
func (s *Service) History() []HistoryEntry {
	return s.history.Snapshot()
}

// DumpHistory renders the dispatch history as indented JSON.
func (s *Service) DumpHistory() ([]byte, error) {
	return s.history.DumpJSON()
}

// Close disposes the service: pending requests reject with ErrDisposed,
// all listeners and cached values drop, history clears. Idempotent;
// mutations and dispatches after Close are ignored.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	s.onState = nil
	s.onEvent = nil
	s.mu.Unlock()

	s.pending.RejectAll(errs.ErrDisposed)
	s.bus.Clear()
	s.history.Clear()
	return nil
}

// serviceView is the service-side StateView implementation.
type serviceView struct {
	s *Service
}

func (v *serviceView) Get(key string) (any, bool) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.state.get(key)
}

func (v *serviceView) Keys() []string {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.state.keyList()
}

func (v *serviceView) Len() int {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.state.len()
}

func (v *serviceView) Snapshot() map[string]any {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.state.snapshot()
}

func (v *serviceView) Set(key string, value any) error {
	return readOnlyErr(key)
}

// Package bus implements the in-context notifier shared by services and
// proxies: a last-value cache with synchronous fan-out. Emitting stores the
// value for late readers, then delivers it to the listeners registered at
// that key, in registration order.
package bus

import (
	"fmt"
	"sync"

	"github.com/exclave-io/exclave/internal/runtime/logging"
)

// Handler receives emitted values. Handlers run synchronously on the
// emitting goroutine.
type Handler func(value any)

// Subscription identifies one registered handler. Unsubscribe is idempotent.
type Subscription struct {
	bus  *Bus
	key  string
	id   uint64
	once bool
	fn   Handler
}

// Unsubscribe removes the subscription from its bus. Calling it on a nil or
// already-removed subscription is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Off(s)
}

// Bus is safe for concurrent use. Listeners may emit, subscribe and
// unsubscribe re-entrantly from inside a handler.
type Bus struct {
	mu        sync.Mutex
	values    map[string]any
	listeners map[string][]*Subscription
	nextID    uint64
	logger    logging.ServiceLogger
}

// New returns an empty bus. A nil logger silences listener panic reports.
func New(logger logging.ServiceLogger) *Bus {
	return &Bus{
		values:    make(map[string]any),
		listeners: make(map[string][]*Subscription),
		logger:    logging.OrNop(logger),
	}
}

// SetLogger replaces the logger used for listener panic reports.
func (b *Bus) SetLogger(logger logging.ServiceLogger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logging.OrNop(logger)
}

// Emit stores value as the current value for key, then synchronously invokes
// every listener registered at key, in registration order. A panicking
// listener is recovered and logged; the remaining listeners still run.
func (b *Bus) Emit(key string, value any) {
	b.mu.Lock()
	b.values[key] = value
	logger := b.logger

	subs := b.listeners[key]
	snapshot := make([]*Subscription, len(subs))
	copy(snapshot, subs)

	// Once-subscriptions are unregistered before their handler runs, so a
	// re-entrant emit cannot deliver to them twice.
	for _, sub := range snapshot {
		if sub.once {
			b.removeLocked(sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range snapshot {
		b.invoke(sub, logger, key, value)
	}
}

func (b *Bus) invoke(sub *Subscription, logger logging.ServiceLogger, key string, value any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event listener panicked", fmt.Errorf("%v", r), logging.LogFields{
				"key": key,
			})
		}
	}()
	sub.fn(value)
}

// On registers handler for key and returns its subscription.
func (b *Bus) On(key string, handler Handler) *Subscription {
	return b.subscribe(key, handler, false)
}

// Once registers handler for key for exactly one delivery. However many
// emissions follow, the handler fires only on the first.
func (b *Bus) Once(key string, handler Handler) *Subscription {
	return b.subscribe(key, handler, true)
}

func (b *Bus) subscribe(key string, handler Handler, once bool) *Subscription {
	if handler == nil {
		return &Subscription{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{bus: b, key: key, id: b.nextID, once: once, fn: handler}
	b.listeners[key] = append(b.listeners[key], sub)
	return sub
}

// Off removes the subscription. A nil or unknown subscription is a no-op.
func (b *Bus) Off(sub *Subscription) {
	if sub == nil || sub.bus != b {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Bus) removeLocked(sub *Subscription) {
	subs := b.listeners[sub.key]
	for i, candidate := range subs {
		if candidate.id == sub.id {
			b.listeners[sub.key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.listeners[sub.key]) == 0 {
		delete(b.listeners, sub.key)
	}
}

// Get returns the last value emitted at key, or false if key never emitted.
func (b *Bus) Get(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return v, ok
}

// Keys returns every key that currently holds a cached value.
func (b *Bus) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	return keys
}

// RemoveAllListeners drops the listeners at the given keys, or every
// listener when called with no keys. Cached values are kept.
func (b *Bus) RemoveAllListeners(keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(keys) == 0 {
		b.listeners = make(map[string][]*Subscription)
		return
	}
	for _, key := range keys {
		delete(b.listeners, key)
	}
}

// ListenerCount reports how many listeners are registered at key.
func (b *Bus) ListenerCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[key])
}

// Clear drops all stored values and all listeners. Nothing registered
// before Clear is delivered to afterwards.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = make(map[string]any)
	b.listeners = make(map[string][]*Subscription)
}

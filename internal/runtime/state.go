package runtime

import (
	"fmt"
	"sort"
	"sync"

	errs "github.com/exclave-io/exclave/internal/runtime/errors"
)

// StateView is a read-only window onto a service's state mapping. Reads
// see the current authoritative values; Set always fails because state
// changes only through the owning service's own methods.
//
// A Service hands out a view over its authoritative state, a Proxy hands
// out a view over its mirror. Callers cannot tell the two apart.
type StateView interface {
	// Get returns the current value for key, if the key exists.
	Get(key string) (any, bool)

	// Keys returns the state keys in insertion order.
	Keys() []string

	// Len returns the number of state keys.
	Len() int

	// Snapshot returns a copy of the state as a plain map.
	Snapshot() map[string]any

	// Set refuses the write with ErrReadOnlyState.
	Set(key string, value any) error
}

// orderedState is an insertion-ordered string-keyed mapping. Not safe for
// concurrent use; owners guard it with their own lock.
type orderedState struct {
	keys   []string
	values map[string]any
}

func newOrderedState() *orderedState {
	return &orderedState{values: make(map[string]any)}
}

func (o *orderedState) set(key string, value any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *orderedState) get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *orderedState) len() int {
	return len(o.keys)
}

func (o *orderedState) keyList() []string {
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

func (o *orderedState) snapshot() map[string]any {
	m := make(map[string]any, len(o.values))
	for k, v := range o.values {
		m[k] = v
	}
	return m
}

// readOnlyErr is the shared Set implementation for every state view.
func readOnlyErr(key string) error {
	return fmt.Errorf("%w (key %q)", errs.ErrReadOnlyState, key)
}

// mirror is the proxy-side replica of a worker's state, written only by
// the proxy's own inbound frame handler.
type mirror struct {
	mu    sync.RWMutex
	state *orderedState
}

func newMirror() *mirror {
	return &mirror{state: newOrderedState()}
}

func (m *mirror) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.get(key)
}

func (m *mirror) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.keyList()
}

func (m *mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.len()
}

func (m *mirror) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.snapshot()
}

func (m *mirror) Set(key string, value any) error {
	return readOnlyErr(key)
}

// apply records a replicated state change.
func (m *mirror) apply(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.set(key, value)
}

// seed loads an initial snapshot in sorted key order, so a fresh mirror
// always presents the same key sequence for the same mapping.
func (m *mirror) seed(initial map[string]any) {
	keys := make([]string, 0, len(initial))
	for k := range initial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.state.set(k, initial[k])
	}
}

// Package registry records which service types must run in an isolated
// execution context. Marking is an explicit registration call made at
// program start (typically from an init function or early in main); the
// registry is read-only in steady state and is consulted by the container
// at resolve time and by the worker runtime at construction time.
package registry

import (
	"sync"

	errs "github.com/exclave-io/exclave/internal/runtime/errors"
)

// Constructor builds a fresh instance of the marked service. The returned
// value must carry an embedded service base so the runtime can seed state
// and route actions to it.
type Constructor func() any

// Options configure how a marked service executes.
type Options struct {
	// Name is the logical execution name the service is registered
	// under. Required.
	Name string

	// Transferable opts argument and frame buffers into hand-over
	// rather than defensive copying on in-process links. The sender
	// must not retain what it posts.
	Transferable bool

	// Link selects the boundary transport for this service ("channel",
	// "nats", or a custom registered link). Empty falls back to the
	// runtime configuration.
	Link string

	// LinkConfig carries per-service link overrides, for example
	// "nats_url" or "channel_buffer".
	LinkConfig map[string]string
}

// Entry is one immutable registration: created once, read many times.
type Entry struct {
	Name        string
	Constructor Constructor
	Options     Options
}

// Registry maps execution names to relocatable service registrations.
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// DefaultRegistry is the process-wide registry used by the package-level
// functions. Tests that need isolation should construct their own registry
// with NewRegistry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register marks ctor as relocatable under opts.Name. Registering an
// already-used name overwrites the previous entry; marking is idempotent.
// A missing name or nil constructor is a programmer error and panics.
func (r *Registry) Register(ctor Constructor, opts Options) {
	if opts.Name == "" {
		panic(errs.ErrNameRequired)
	}
	if ctor == nil {
		panic(errs.ErrConstructorRequired)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[opts.Name] = Entry{Name: opts.Name, Constructor: ctor, Options: opts}
}

// RegisterName is the bare-name form of Register.
func (r *Registry) RegisterName(name string, ctor Constructor) {
	r.Register(ctor, Options{Name: name})
}

// Lookup returns the entry registered under name. Lookups never fail loudly;
// a miss returns false.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// Names returns the registered execution names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Has returns true if an entry is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Reset drops every registration. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry)
}

// Register marks ctor as relocatable in the default registry.
func Register(ctor Constructor, opts Options) {
	DefaultRegistry.Register(ctor, opts)
}

// RegisterName is the bare-name form of Register on the default registry.
func RegisterName(name string, ctor Constructor) {
	DefaultRegistry.RegisterName(name, ctor)
}

// Lookup consults the default registry.
func Lookup(name string) (Entry, bool) {
	return DefaultRegistry.Lookup(name)
}

// Has consults the default registry.
func Has(name string) bool {
	return DefaultRegistry.Has(name)
}

package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/exclave-io/exclave/internal/runtime/codec"
	"github.com/exclave-io/exclave/internal/runtime/config"
	errs "github.com/exclave-io/exclave/internal/runtime/errors"
	"github.com/exclave-io/exclave/internal/runtime/link"
	loggingpkg "github.com/exclave-io/exclave/internal/runtime/logging"
	"github.com/exclave-io/exclave/internal/runtime/registry"
)

// ContainerDependencies carries the optional collaborators of a
// container. The zero value works.
type ContainerDependencies struct {
	// LinkFactory is handed to every proxy the container builds. Nil
	// uses the default registry-backed factory.
	LinkFactory link.Factory

	// Metrics receives relocation metrics from the container's proxies.
	// Nil disables collection.
	Metrics *Metrics
}

// Container resolves string tokens to memoized service handles. A token
// registered with a constructor resolves to a singleton: the first
// Resolve constructs it, later ones return the same handle.
//
// Whether the caller gets the service itself or a proxy fronting a
// relocated one depends on the marking registry: a constructor whose
// service name is marked gets a proxy; an unmarked one runs in the
// calling context. The handle is the same either way.
type Container struct {
	registry *registry.Registry
	conf     *config.Config
	logger   loggingpkg.ServiceLogger
	deps     ContainerDependencies
	servers  *httpServerSet

	mu        sync.Mutex
	ctors     map[string]registry.Constructor
	instances map[string]Handle
}

// NewContainer builds a container over the given marking registry. A
// nil registry uses the process-wide default. When the config enables
// metrics and deps carries a collector, the container registers it and
// serves the Prometheus endpoint.
func NewContainer(reg *registry.Registry, conf *config.Config, logger loggingpkg.ServiceLogger, deps ContainerDependencies) *Container {
	if reg == nil {
		reg = registry.DefaultRegistry
	}
	if conf == nil {
		conf = &config.Config{}
	}

	c := &Container{
		registry:  reg,
		conf:      conf,
		logger:    loggingpkg.OrNop(logger),
		deps:      deps,
		servers:   newHTTPServerSet(loggingpkg.OrNop(logger)),
		ctors:     make(map[string]registry.Constructor),
		instances: make(map[string]Handle),
	}

	if conf.MetricsEnabled && deps.Metrics != nil {
		if err := deps.Metrics.Register(nil); err != nil {
			c.logger.Error("register metrics", err, nil)
		} else if conf.MetricsPort > 0 {
			c.RegisterHTTPHandler(conf.MetricsPort, "/metrics", promhttp.Handler())
		}
	}

	return c
}

// Register stores a constructor under token without instantiating
// anything. Re-registering a token replaces the constructor; cached
// instances from the old one survive until Dispose.
//
// Panics on an empty token or nil constructor.
func (c *Container) Register(token string, ctor registry.Constructor) {
	if token == "" {
		panic("exclave: resolution token is required")
	}
	if ctor == nil {
		panic(errs.ErrConstructorRequired)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctors[token] = ctor
}

// Resolve returns the handle for token, constructing it on first use.
// For a marked service the handle is a proxy whose isolated context
// initializes in the background; Resolve does not wait for it.
//
// An unregistered token is an error, never a nil handle.
func (c *Container) Resolve(ctx context.Context, token string) (Handle, error) {
	c.mu.Lock()
	if h, ok := c.instances[token]; ok {
		c.mu.Unlock()
		return h, nil
	}
	ctor, ok := c.ctors[token]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnregisteredToken, token)
	}

	// Constructed outside the lock so a constructor may resolve its own
	// dependencies through the container.
	h, err := c.build(ctx, token, ctor)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.instances[token]; ok {
		c.mu.Unlock()
		_ = h.Close()
		return existing, nil
	}
	c.instances[token] = h
	c.mu.Unlock()
	return h, nil
}

// MustResolve is Resolve for wiring code: it panics on error.
func (c *Container) MustResolve(ctx context.Context, token string) Handle {
	h, err := c.Resolve(ctx, token)
	if err != nil {
		panic(err)
	}
	return h
}

func (c *Container) build(ctx context.Context, token string, ctor registry.Constructor) (Handle, error) {
	impl := ctor()
	if impl == nil {
		return nil, fmt.Errorf("constructor for %q returned nil", token)
	}

	base, ok := baseOf(impl)
	if !ok {
		return nil, fmt.Errorf("constructor for %q returned %T, which does not embed a service base", token, impl)
	}

	entry, marked := c.registry.Lookup(base.Name())
	if !marked {
		h, ok := impl.(Handle)
		if !ok {
			return nil, fmt.Errorf("constructor for %q returned %T, which hides part of the handle surface", token, impl)
		}
		return h, nil
	}

	// Marked for relocation: this instance only donates its declared
	// initial state. The real one is constructed wherever the proxy
	// ends up executing.
	snapshot, err := codec.NormalizeState(base.State().Snapshot())
	if err != nil {
		return nil, fmt.Errorf("snapshot initial state for %q: %w", token, err)
	}
	if err := closeInstance(impl); err != nil {
		c.logger.Error("close snapshot instance", err, loggingpkg.LogFields{"token": token})
	}

	proxy := NewProxy(entry, snapshot, c.conf, c.logger, ProxyDependencies{
		LinkFactory: c.deps.LinkFactory,
		Registry:    c.registry,
		Metrics:     c.deps.Metrics,
	})
	go proxy.Initialize(context.WithoutCancel(ctx))
	return proxy, nil
}

// Has reports whether token is registered.
func (c *Container) Has(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ctors[token]
	return ok
}

// Tokens returns the registered resolution tokens.
func (c *Container) Tokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokens := make([]string, 0, len(c.ctors))
	for token := range c.ctors {
		tokens = append(tokens, token)
	}
	return tokens
}

// Dispose closes every cached instance and empties the cache.
// Registrations survive, so every token resolves to a fresh instance
// afterward. Idempotent.
func (c *Container) Dispose() error {
	c.mu.Lock()
	instances := c.instances
	c.instances = make(map[string]Handle)
	c.mu.Unlock()

	var closeErrs []error
	for token, h := range instances {
		if err := h.Close(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("close %q: %w", token, err))
		}
	}
	return errors.Join(closeErrs...)
}

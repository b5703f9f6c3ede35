/*
Package runtime implements the core service relocation machinery for exclave.

# Architecture Overview

The runtime moves a service's execution out of the calling context and
behind a message link, without changing how callers talk to it. A caller
holds a Handle; whether the methods behind it run in-process or inside an
isolated worker context is decided at resolve time and can silently
change to local execution when isolation fails.

# Package Structure

The runtime package is organized into the following components:

## Service Base (service.go)

Service is the embeddable base every relocatable service carries. It owns:
  - Deterministically ordered key/value state (first-set order)
  - An event bus with last-value replay for late subscribers
  - A reflection router mapping action names to implementation methods
  - A bounded invocation history ring
  - The request/response bridge for event-shaped replies

## Worker Runtime (worker.go)

Worker drives the remote half of a relocated service: it constructs the
real instance on an init frame, dispatches action frames through the
service base, and forwards every state change and event back over the
link before the corresponding response. HostWorker is the entry point
for external worker processes.

## Proxy (proxy.go)

Proxy is the caller-side Handle for a relocated service. It keeps a
read-only state mirror fed by replication frames, matches responses to
pending calls by correlation ID, and demotes itself to a locally
constructed instance when the isolated context cannot be reached. The
demotion is one-way.

## Container (container.go)

Container resolves string tokens to memoized singleton handles. Marked
services come back as proxies; unmarked ones run in the calling context.

## Metrics (metrics.go, metrics_http.go)

Prometheus counters and latency histograms for calls, demotions, worker
errors, and state replication, plus the lazily started HTTP servers the
container mounts the /metrics endpoint on.

# Sub-packages

  - bus/: synchronous event bus with last-value cache
  - codec/: CBOR envelope encoding and state normalization
  - config/: runtime configuration with validation
  - envelope/: the six-frame wire vocabulary
  - errors/: sentinel errors and error types
  - ids/: ULID generation for frame and pair IDs
  - jsoncodec/: JSON rendering for history dumps and debug output
  - link/: link construction over the transport registry
  - logging/: logger interface and adapters
  - registry/: marking registry for relocatable services

# Usage Example

	registry.Register(newCartService, registry.Options{Name: "cart"})

	c := runtime.NewContainer(nil, conf, logger, runtime.ContainerDependencies{})
	c.Register("cart", newCartService)

	cart := c.MustResolve(ctx, "cart")
	if _, err := cart.Call(ctx, "addItem", "sku-123", 2); err != nil {
		// The call failed in whichever context executed it.
	}
*/
package runtime

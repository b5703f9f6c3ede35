// Package exclave relocates service execution into isolated worker contexts
// behind Watermill message links, while callers keep using plain method calls
// and state reads. A service marks itself relocatable in the registry; the
// container then resolves its token to a proxy that ships each call over the
// link as a CBOR envelope, mirrors every state change back to the caller, and
// replays events to local subscribers. Nothing in the calling code changes
// when a service moves.
//
// Isolation is best effort. If the worker context never comes up, a call
// times out, or the link drops a publish, the proxy constructs the service
// locally, seeds it from the last mirrored state, and keeps serving.
// The switch is silent and one-way; UsingIsolatedContext reports which side
// of it a handle is on.
//
// # Links
//
// Two link transports ship out of the box:
//   - channel: in-process Go channels, for same-process isolation and tests
//   - nats: core NATS, for workers hosted in other processes or hosts
//
// Links resolve through the transport registry, so custom backends register
// the same way the built-in ones do. Per-service overrides go in the
// registration's LinkConfig; "pair_id" pins the topic pair and "spawn" set
// to "external" tells the proxy another process hosts the worker (see
// HostWorker).
//
// # Ordering
//
// Frames between a proxy and its worker form a single FIFO conversation per
// direction. State changes caused by a call are applied to the mirror before
// the call's response resolves, so a caller that awaits a method and then
// reads state sees that method's writes.
//
// # Observability
//
// With MetricsEnabled the container serves Prometheus counters and latency
// histograms for calls, demotions, worker errors, and state replication on
// MetricsPort. Dispatches and proxied calls carry OpenTelemetry spans. See
// README.md for a copy/paste quick start snippet.
package exclave

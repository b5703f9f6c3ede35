package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/exclave-io/exclave/internal/runtime/bus"
	"github.com/exclave-io/exclave/internal/runtime/codec"
	"github.com/exclave-io/exclave/internal/runtime/config"
	"github.com/exclave-io/exclave/internal/runtime/envelope"
	errs "github.com/exclave-io/exclave/internal/runtime/errors"
	"github.com/exclave-io/exclave/internal/runtime/ids"
	"github.com/exclave-io/exclave/internal/runtime/link"
	loggingpkg "github.com/exclave-io/exclave/internal/runtime/logging"
	"github.com/exclave-io/exclave/internal/runtime/registry"
)

// Mode is the proxy lifecycle state. Transitions are monotonic: a proxy
// never returns to an earlier mode, and ModeIsolated to
// ModeLocalFallback is the only runtime switch.
type Mode int32

const (
	// ModeUninitialized is the state before Initialize completes. Calls
	// block on the initialization outcome.
	ModeUninitialized Mode = iota

	// ModeIsolated routes calls to the worker runtime over the link.
	ModeIsolated

	// ModeLocalFallback routes calls to an instance constructed in the
	// calling context. Entered when isolation never came up, or for
	// good after a demotion. There is no way back.
	ModeLocalFallback

	// ModeDisposed is terminal from any state.
	ModeDisposed
)

func (m Mode) String() string {
	switch m {
	case ModeUninitialized:
		return "uninitialized"
	case ModeIsolated:
		return "isolated"
	case ModeLocalFallback:
		return "local_fallback"
	case ModeDisposed:
		return "disposed"
	}
	return fmt.Sprintf("mode(%d)", int32(m))
}

// Waiting this long between subscribing and the first publish lets a
// broker link's subscriptions reach the server; frames published before
// they land would be dropped.
const crossProcessSettleDelay = 100 * time.Millisecond

// ProxyDependencies carries the collaborators a proxy needs beyond its
// registration entry and config. The zero value works: every field has
// a default.
type ProxyDependencies struct {
	// LinkFactory builds the boundary link. Nil uses the default
	// registry-backed factory.
	LinkFactory link.Factory

	// Registry is handed to the in-process worker runtime so it can
	// resolve the construction request. Nil uses the process-wide
	// default.
	Registry *registry.Registry

	// Metrics receives relocation metrics. Nil disables collection.
	Metrics *Metrics

	// PairID pins the topic pair suffix, overriding the generated one
	// and any pinned in the registration's link config.
	PairID string
}

// Proxy fronts one relocated service. To its callers it is
// indistinguishable from the service itself: the same call surface, the
// same subscription surface, and a live read-only view of the state,
// kept current by the replication frames the worker publishes.
//
// A fresh proxy is inert. Initialize brings it up: it builds the link,
// spawns the worker runtime, and performs the construction handshake.
// If any of that fails the proxy constructs the service in the calling
// context instead and nobody downstream is the wiser. After a
// successful handshake, a call that times out or a publish that fails
// demotes the proxy the same way, once and for good: in-flight calls
// are rejected, the link is torn down, and every later call runs
// locally against an instance seeded from the mirror at the moment of
// the switch.
type Proxy struct {
	entry   registry.Entry
	conf    *config.Config
	logger  loggingpkg.ServiceLogger
	metrics *Metrics

	linkFactory link.Factory
	workerReg   *registry.Registry
	pairID      string
	spawnWorker bool

	commandTopic string
	replyTopic   string

	bus     *bus.Bus
	mirror  *mirror
	pending *pendingTable

	mode      atomic.Int32
	ready     chan struct{}
	initOnce  sync.Once
	demoting  atomic.Bool
	closeOnce sync.Once

	runCtx    context.Context
	runCancel context.CancelFunc

	// initID is the pending construction request, set before the
	// dispatch loop starts and never written again.
	initID string

	mu           sync.Mutex
	lnk          link.Link
	linkUp       bool
	worker       *Worker
	local        *Service
	localErr     error
	localImpl    any
	dispatchDone chan struct{}
}

var _ Handle = (*Proxy)(nil)

// NewProxy builds a proxy for the registered entry, seeded with an
// initial state snapshot. Nothing starts until Initialize.
//
// Panics when the entry has no name; an anonymous proxy could never
// address its worker pair.
func NewProxy(entry registry.Entry, initial map[string]any, conf *config.Config, logger loggingpkg.ServiceLogger, deps ProxyDependencies) *Proxy {
	if entry.Name == "" {
		panic(errs.ErrNameRequired)
	}
	if conf == nil {
		conf = &config.Config{}
	}

	factory := deps.LinkFactory
	if factory == nil {
		factory = link.DefaultFactory()
	}
	workerReg := deps.Registry
	if workerReg == nil {
		workerReg = registry.DefaultRegistry
	}

	pairID := deps.PairID
	if pairID == "" {
		pairID = entry.Options.LinkConfig[link.KeyPairID]
	}
	if pairID == "" {
		pairID = ids.NewTopicSuffix()
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	p := &Proxy{
		entry:        entry,
		conf:         conf,
		logger:       loggingpkg.OrNop(logger),
		metrics:      deps.Metrics,
		linkFactory:  factory,
		workerReg:    workerReg,
		pairID:       pairID,
		spawnWorker:  entry.Options.LinkConfig[link.KeySpawn] != link.SpawnExternal,
		commandTopic: link.CommandTopic(entry.Name, pairID),
		replyTopic:   link.ReplyTopic(entry.Name, pairID),
		bus:          bus.New(logger),
		mirror:       newMirror(),
		pending:      newPendingTable(),
		ready:        make(chan struct{}),
		runCtx:       runCtx,
		runCancel:    runCancel,
	}

	p.mirror.seed(initial)
	for _, key := range p.mirror.Keys() {
		value, _ := p.mirror.Get(key)
		p.bus.Emit(key, value)
	}

	return p
}

// Initialize brings the proxy up, falling back to local construction on
// any failure, and unblocks Call and Post whichever way it went. Only
// the first invocation does anything. It blocks until the proxy is
// usable; run it on a separate goroutine when the caller should not
// wait.
func (p *Proxy) Initialize(ctx context.Context) {
	p.initOnce.Do(func() {
		defer close(p.ready)
		p.initialize(ctx)
	})
}

func (p *Proxy) initialize(ctx context.Context) {
	if p.Mode() == ModeDisposed {
		return
	}

	effConf, err := link.EffectiveConfig(p.conf, p.entry.Options)
	if err != nil {
		p.fallbackFromInit("link_config", err)
		return
	}

	// A registration may opt out of isolation entirely.
	if effConf.GetLinkSystem() == "local" {
		p.logger.Info("running locally by registration", loggingpkg.LogFields{
			"service": p.entry.Name,
		})
		p.becomeLocal(ModeUninitialized)
		return
	}

	lnk, err := p.linkFactory.Build(ctx, effConf, loggingpkg.NewWatermillAdapter(p.logger))
	if err != nil {
		p.fallbackFromInit("link_build", err)
		return
	}

	p.mu.Lock()
	p.lnk, p.linkUp = lnk, true
	p.mu.Unlock()

	if p.Mode() == ModeDisposed {
		p.teardown()
		return
	}

	inbound, err := lnk.Subscriber.Subscribe(p.runCtx, p.replyTopic)
	if err != nil {
		p.teardown()
		p.fallbackFromInit("subscribe", err)
		return
	}

	if p.spawnWorker {
		worker := NewWorker(lnk.Publisher, p.replyTopic, WorkerDependencies{
			Registry: p.workerReg,
			Logger:   p.logger.With(loggingpkg.LogFields{"context": "worker"}),
		})
		commands, err := lnk.Subscriber.Subscribe(p.runCtx, p.commandTopic)
		if err != nil {
			p.teardown()
			p.fallbackFromInit("subscribe", err)
			return
		}

		p.mu.Lock()
		p.worker = worker
		p.mu.Unlock()

		go worker.Run(p.runCtx, commands) //nolint:errcheck // exits on teardown
	}

	initEnv := envelope.NewInitService(p.entry.Name, p.mirror.Snapshot())
	p.initID = initEnv.ID
	initCh := p.pending.Add(initEnv.ID, "", 0, nil)

	done := make(chan struct{})
	p.mu.Lock()
	p.dispatchDone = done
	p.mu.Unlock()
	go p.dispatchLoop(inbound, done)

	if !lnk.Capabilities.SameProcessOnly() {
		time.Sleep(crossProcessSettleDelay)
	}

	if err := publishEnvelope(lnk.Publisher, p.commandTopic, initEnv); err != nil {
		p.pending.Reject(initEnv.ID, err)
		p.teardown()
		p.fallbackFromInit("publish", err)
		return
	}

	initTimeout := effConf.EffectiveInitTimeout()
	initTimer := time.NewTimer(initTimeout)
	defer initTimer.Stop()

	select {
	case out := <-initCh:
		if out.err != nil {
			p.teardown()
			p.fallbackFromInit("init_failed", out.err)
			return
		}
	case <-initTimer.C:
		p.pending.Reject(initEnv.ID, fmt.Errorf("%w after %s", errs.ErrInitTimeout, initTimeout))
		p.teardown()
		p.fallbackFromInit("init_timeout", fmt.Errorf("%w after %s", errs.ErrInitTimeout, initTimeout))
		return
	case <-ctx.Done():
		p.pending.Reject(initEnv.ID, ctx.Err())
		p.teardown()
		p.fallbackFromInit("init_cancelled", ctx.Err())
		return
	}

	if !p.mode.CompareAndSwap(int32(ModeUninitialized), int32(ModeIsolated)) {
		// Disposed during the handshake.
		p.teardown()
		return
	}

	p.logger.Info("service relocated", loggingpkg.LogFields{
		"service": p.entry.Name,
		"link":    lnk.Capabilities.Name,
		"pair":    p.pairID,
	})
}

// fallbackFromInit is the recovery path for every initialization
// failure: callers never see the error, they get a local instance.
func (p *Proxy) fallbackFromInit(reason string, cause error) {
	p.logger.Error("falling back to local execution", cause, loggingpkg.LogFields{
		"service": p.entry.Name,
		"reason":  reason,
	})
	p.metrics.recordDemotion(p.entry.Name, reason)
	p.becomeLocal(ModeUninitialized)
}

// becomeLocal constructs the service in the calling context, seeded with
// the current mirror snapshot so state carries over from whatever was
// replicated before the switch. from names the mode this transition
// leaves; when disposal won the race instead, the fresh instance is
// discarded.
func (p *Proxy) becomeLocal(from Mode) {
	snapshot := p.mirror.Snapshot()

	impl, base, err := constructService(p.entry.Constructor)
	if err != nil {
		p.logger.Error("local fallback construction failed", err, loggingpkg.LogFields{
			"service": p.entry.Name,
		})
		p.mu.Lock()
		if p.mode.CompareAndSwap(int32(from), int32(ModeLocalFallback)) {
			p.localErr = fmt.Errorf("local fallback unavailable: %w", err)
		}
		p.mu.Unlock()
		return
	}

	base.SetLogger(p.logger.With(loggingpkg.LogFields{
		"service": p.entry.Name,
		"mode":    "local",
	}))
	if len(snapshot) > 0 {
		// Seeded before the taps go in: continuity must not replay the
		// whole state to subscribers.
		base.SetStates(snapshot)
	}
	base.setTaps(p.applyLocalState, p.applyLocalEvent)

	p.mu.Lock()
	if !p.mode.CompareAndSwap(int32(from), int32(ModeLocalFallback)) {
		p.mu.Unlock()
		_ = closeInstance(impl)
		return
	}
	p.local, p.localImpl = base, impl
	p.mu.Unlock()
}

// applyLocalState keeps the mirror and the notifier in sync with the
// local fallback instance, exactly as inbound state_change frames do for
// a worker-hosted one.
func (p *Proxy) applyLocalState(key string, value any) {
	p.mirror.apply(key, value)
	p.bus.Emit(key, value)
}

func (p *Proxy) applyLocalEvent(event string, payload any) {
	p.bus.Emit(event, payload)
}

// dispatchLoop serializes every inbound frame from the worker. Frames
// are acked on receipt; ordering is the subscription's.
func (p *Proxy) dispatchLoop(frames <-chan *message.Message, done chan struct{}) {
	defer close(done)
	for msg := range frames {
		msg.Ack()
		p.handleFrame(msg)
	}
}

func (p *Proxy) handleFrame(msg *message.Message) {
	env, err := codec.DecodeEnvelope(msg.Payload)
	if err != nil {
		p.logger.Error("dropping undecodable frame", err, loggingpkg.LogFields{
			"service": p.entry.Name,
			"uuid":    msg.UUID,
		})
		return
	}

	switch env.Type {
	case envelope.TypeStateChange:
		p.metrics.recordStateReplication(p.entry.Name)
		p.mirror.apply(env.Key, env.Value)
		p.bus.Emit(env.Key, env.Value)

	case envelope.TypeServiceEvent:
		p.bus.Emit(env.Event, env.Payload)

	case envelope.TypeMessageResponse:
		p.settleResponse(env)

	case envelope.TypeInitService:
		if !env.IsReply() {
			p.logger.Debug("ignoring frame", loggingpkg.LogFields{"type": env.Type.String()})
			return
		}
		if env.Failed() {
			p.pending.Reject(env.CorrelationID, fmt.Errorf("worker init failed: %s", env.Error))
			return
		}
		p.pending.Resolve(env.CorrelationID, nil)

	case envelope.TypeWorkerError:
		p.metrics.recordWorkerError(p.entry.Name)
		p.logger.Error("worker reported error", errors.New(env.Error), loggingpkg.LogFields{
			"service": p.entry.Name,
		})
		// Fail the construction handshake if it is still pending;
		// errors after that are informational.
		p.pending.Reject(p.initID, fmt.Errorf("worker error: %s", env.Error))

	default:
		p.logger.Debug("ignoring frame", loggingpkg.LogFields{"type": env.Type.String()})
	}
}

func (p *Proxy) settleResponse(env envelope.Envelope) {
	var settled bool
	if env.Failed() {
		settled = p.pending.Reject(env.CorrelationID, &errs.RemoteError{Msg: env.Error})
	} else {
		settled = p.pending.Resolve(env.CorrelationID, env.Result)
	}
	if !settled {
		p.logger.Debug("dropping unmatched response", loggingpkg.LogFields{
			"service":        p.entry.Name,
			"correlation_id": env.CorrelationID,
		})
	}
}

// Name returns the registered service name.
func (p *Proxy) Name() string { return p.entry.Name }

// Mode returns the proxy's current lifecycle state.
func (p *Proxy) Mode() Mode { return Mode(p.mode.Load()) }

// UsingIsolatedContext reports whether calls currently execute in the
// isolated context rather than the calling one.
func (p *Proxy) UsingIsolatedContext() bool { return p.Mode() == ModeIsolated }

// State returns a read-only view over the proxy's mirror of the service
// state. The mirror tracks the authoritative instance in either mode.
func (p *Proxy) State() StateView { return p.mirror }

// Get returns the last value emitted for a state key or event name.
func (p *Proxy) Get(key string) (any, bool) { return p.bus.Get(key) }

// On subscribes handler to a state key or event name.
func (p *Proxy) On(key string, handler bus.Handler) *bus.Subscription {
	return p.bus.On(key, handler)
}

// Once subscribes handler for exactly one delivery.
func (p *Proxy) Once(key string, handler bus.Handler) *bus.Subscription {
	return p.bus.Once(key, handler)
}

// Off removes a subscription.
func (p *Proxy) Off(sub *bus.Subscription) { p.bus.Off(sub) }

// Call dispatches an action on the service, wherever it executes, and
// waits for the result. Blocks until initialization settles. Context
// cancellation rejects this call only; it is the per-call timeout that
// signals a dead link and demotes the proxy.
func (p *Proxy) Call(ctx context.Context, action string, args ...any) (any, error) {
	if p.Mode() == ModeDisposed {
		return nil, errs.ErrDisposed
	}

	select {
	case <-p.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch p.Mode() {
	case ModeDisposed:
		return nil, errs.ErrDisposed
	case ModeIsolated:
		return p.callIsolated(ctx, action, args)
	default:
		return p.callLocal(ctx, action, args)
	}
}

func (p *Proxy) callIsolated(ctx context.Context, action string, args []any) (any, error) {
	start := time.Now()

	pub, up := p.publisher()
	if !up {
		return nil, fmt.Errorf("%w: link is down", errs.ErrProxyDemoted)
	}

	env := envelope.NewServiceMessage(action, args)

	ctx, span := tracer.Start(ctx, "exclave.proxy.call", trace.WithAttributes(
		attribute.String("exclave.service", p.entry.Name),
		attribute.String("exclave.action", action),
		attribute.String("exclave.mode", labelModeIsolated),
		attribute.String("exclave.correlation_id", env.ID),
	))
	defer span.End()

	ch := p.pending.Add(env.ID, "", p.conf.EffectiveCallTimeout(), p.onCallTimeout)

	if err := publishEnvelope(pub, p.commandTopic, env); err != nil {
		wrapped := fmt.Errorf("publish call: %w", err)
		p.pending.Reject(env.ID, wrapped)
		<-ch
		p.metrics.recordCall(p.entry.Name, labelModeIsolated, labelOutcomeError, time.Since(start))
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		p.demote("publish", wrapped)
		return nil, wrapped
	}

	select {
	case out := <-ch:
		p.metrics.recordCall(p.entry.Name, labelModeIsolated, callOutcome(out.err), time.Since(start))
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, out.err.Error())
		}
		return out.result, out.err
	case <-ctx.Done():
		p.pending.Reject(env.ID, ctx.Err())
		p.metrics.recordCall(p.entry.Name, labelModeIsolated, labelOutcomeError, time.Since(start))
		span.SetStatus(codes.Error, ctx.Err().Error())
		return nil, ctx.Err()
	}
}

func (p *Proxy) callLocal(ctx context.Context, action string, args []any) (any, error) {
	start := time.Now()

	base, err := p.localService()
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "exclave.proxy.call", trace.WithAttributes(
		attribute.String("exclave.service", p.entry.Name),
		attribute.String("exclave.action", action),
		attribute.String("exclave.mode", labelModeLocal),
	))
	defer span.End()

	result, err := base.dispatch(ctx, action, args, "")
	outcome := labelOutcomeOK
	if err != nil {
		outcome = labelOutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.metrics.recordCall(p.entry.Name, labelModeLocal, outcome, time.Since(start))
	return result, err
}

// Post dispatches an action without waiting for its result. Failures
// are logged, not returned. In isolated mode the worker's response
// frame, when it arrives, finds no pending entry and is dropped.
func (p *Proxy) Post(action string, args ...any) {
	if p.Mode() == ModeDisposed {
		return
	}

	<-p.ready

	switch p.Mode() {
	case ModeDisposed:
		return
	case ModeIsolated:
		p.postIsolated(action, args)
	default:
		p.postLocal(action, args)
	}
}

func (p *Proxy) postIsolated(action string, args []any) {
	pub, up := p.publisher()
	if !up {
		p.logger.Debug("post dropped, link is down", loggingpkg.LogFields{
			"service": p.entry.Name,
			"action":  action,
		})
		return
	}

	env := envelope.NewServiceMessage(action, args)
	if err := publishEnvelope(pub, p.commandTopic, env); err != nil {
		p.logger.Error("post dropped", err, loggingpkg.LogFields{
			"service": p.entry.Name,
			"action":  action,
		})
		p.metrics.recordCall(p.entry.Name, labelModeIsolated, labelOutcomeError, 0)
		p.demote("publish", err)
		return
	}
	p.metrics.recordCall(p.entry.Name, labelModeIsolated, labelOutcomePosted, 0)
}

func (p *Proxy) postLocal(action string, args []any) {
	base, err := p.localService()
	if err != nil {
		p.logger.Error("post dropped", err, loggingpkg.LogFields{
			"service": p.entry.Name,
			"action":  action,
		})
		return
	}

	if _, err := base.dispatch(context.Background(), action, args, ""); err != nil {
		p.logger.Error("post dropped", err, loggingpkg.LogFields{
			"service": p.entry.Name,
			"action":  action,
		})
		p.metrics.recordCall(p.entry.Name, labelModeLocal, labelOutcomeError, 0)
		return
	}
	p.metrics.recordCall(p.entry.Name, labelModeLocal, labelOutcomePosted, 0)
}

// onCallTimeout runs after a per-call timer won the race against
// resolution. A round-trip that blew its deadline means the worker or
// the link is gone; the proxy switches to local execution for good.
func (p *Proxy) onCallTimeout(id string) {
	p.demote("call_timeout", fmt.Errorf("call %s exceeded %s", id, p.conf.EffectiveCallTimeout()))
}

// demote is the one-way switch from isolated to local execution, run at
// most once. The link is torn down synchronously, so no later call
// touches it; the rest runs detached: the dispatch loop is drained so
// the mirror holds everything the worker managed to replicate, the
// local instance is constructed from that snapshot, and the remaining
// in-flight calls are rejected. Calls arriving while the switch is in
// progress are rejected with ErrProxyDemoted too. Never reversed, never
// reconnected.
//
// demote may be reached from inside a bus handler, which runs on the
// dispatch loop. Waiting for the drain on that goroutine would deadlock,
// hence the detachment.
func (p *Proxy) demote(reason string, cause error) {
	if p.Mode() != ModeIsolated {
		return
	}
	if !p.demoting.CompareAndSwap(false, true) {
		return
	}

	p.logger.Error("demoting to local execution", cause, loggingpkg.LogFields{
		"service": p.entry.Name,
		"reason":  reason,
	})
	p.metrics.recordDemotion(p.entry.Name, reason)

	done := p.teardown()

	go func() {
		if done != nil {
			<-done
		}
		p.becomeLocal(ModeIsolated)
		p.pending.RejectAll(fmt.Errorf("%w (%s)", errs.ErrProxyDemoted, reason))
	}()
}

// teardown stops the worker and closes the link. Idempotent. Returns
// the dispatch loop's done channel, nil if the loop never started.
func (p *Proxy) teardown() <-chan struct{} {
	p.mu.Lock()
	worker := p.worker
	lnk, up := p.lnk, p.linkUp
	done := p.dispatchDone
	p.worker = nil
	p.linkUp = false
	p.mu.Unlock()

	p.runCancel()
	if worker != nil {
		_ = worker.Close()
	}
	if up {
		if err := lnk.Close(); err != nil {
			p.logger.Error("close link", err, loggingpkg.LogFields{
				"service": p.entry.Name,
			})
		}
	}
	return done
}

// Close disposes the proxy: the worker and link are torn down, the
// local fallback instance is closed, every pending call is rejected,
// and all listeners are dropped. Idempotent. The dispatch loop is not
// waited for, so Close is safe from inside a bus handler; stragglers it
// delivers after Close find no listeners and no pending entries.
func (p *Proxy) Close() error {
	p.closeOnce.Do(func() {
		p.mode.Store(int32(ModeDisposed))

		p.teardown()

		p.mu.Lock()
		localImpl := p.localImpl
		p.local, p.localImpl = nil, nil
		p.mu.Unlock()

		if localImpl != nil {
			if err := closeInstance(localImpl); err != nil {
				p.logger.Error("close local fallback", err, loggingpkg.LogFields{
					"service": p.entry.Name,
				})
			}
		}

		p.pending.RejectAll(errs.ErrDisposed)
		p.bus.Clear()
	})
	return nil
}

func (p *Proxy) publisher() (message.Publisher, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.linkUp {
		return nil, false
	}
	return p.lnk.Publisher, true
}

func (p *Proxy) localService() (*Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.local != nil {
		return p.local, nil
	}
	if p.localErr != nil {
		return nil, p.localErr
	}
	return nil, errs.ErrDisposed
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return labelOutcomeOK
	case errors.Is(err, errs.ErrCallTimeout):
		return labelOutcomeTimeout
	case errors.Is(err, errs.ErrProxyDemoted):
		return labelOutcomeDemoted
	}
	return labelOutcomeError
}

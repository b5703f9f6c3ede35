package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/exclave-io/exclave/internal/runtime/codec"
	"github.com/exclave-io/exclave/internal/runtime/config"
	"github.com/exclave-io/exclave/internal/runtime/envelope"
	errs "github.com/exclave-io/exclave/internal/runtime/errors"
	"github.com/exclave-io/exclave/internal/runtime/link"
	loggingpkg "github.com/exclave-io/exclave/internal/runtime/logging"
	"github.com/exclave-io/exclave/internal/runtime/registry"
)

var tracer = otel.Tracer("github.com/exclave-io/exclave")

// Frame metadata keys mirrored from the envelope, so frames are
// identifiable in link tooling without decoding the payload.
const (
	metaType          = "exclave_type"
	metaCorrelationID = "exclave_correlation_id"
)

// publishEnvelope encodes env and publishes it on topic. The message
// UUID is the envelope ID.
func publishEnvelope(pub message.Publisher, topic string, env envelope.Envelope) error {
	raw, err := codec.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", env.Type, err)
	}

	msg := message.NewMessage(env.ID, raw)
	msg.Metadata.Set(metaType, env.Type.String())
	if env.CorrelationID != "" {
		msg.Metadata.Set(metaCorrelationID, env.CorrelationID)
	}
	return pub.Publish(topic, msg)
}

// WorkerDependencies carries the collaborators a worker runtime needs.
type WorkerDependencies struct {
	// Registry resolves construction requests to constructors. Nil uses
	// the process-wide default registry.
	Registry *registry.Registry

	// Logger for runtime-level events. Nil is silent.
	Logger loggingpkg.ServiceLogger
}

// Worker is the runtime half living inside the isolated context. It
// consumes command frames fed to Run, hosts exactly one service
// instance, and publishes state changes, events, and replies on the
// reply topic.
//
// The loop is a serial actor: one frame at a time, in arrival order.
// Frames are acked on receipt, so the sending side's publish returns as
// soon as the frame is queued here, not when it is handled.
type Worker struct {
	registry   *registry.Registry
	logger     loggingpkg.ServiceLogger
	publisher  message.Publisher
	replyTopic string

	base *Service
	impl any

	quit     chan struct{}
	quitOnce sync.Once
}

// NewWorker builds a worker runtime that publishes its outbound frames
// on replyTopic. It does not subscribe to anything; the caller feeds
// inbound frames to Run. The worker never closes the link it talks
// over; whoever built the link does.
func NewWorker(publisher message.Publisher, replyTopic string, deps WorkerDependencies) *Worker {
	reg := deps.Registry
	if reg == nil {
		reg = registry.DefaultRegistry
	}
	return &Worker{
		registry:   reg,
		logger:     loggingpkg.OrNop(deps.Logger),
		publisher:  publisher,
		replyTopic: replyTopic,
		quit:       make(chan struct{}),
	}
}

// Run consumes frames until ctx is cancelled, Close is called, or
// frames closes. On exit the hosted service instance, if any, is
// closed.
func (w *Worker) Run(ctx context.Context, frames <-chan *message.Message) error {
	defer w.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.quit:
			return nil
		case msg, ok := <-frames:
			if !ok {
				return nil
			}
			msg.Ack()
			w.handle(ctx, msg)
		}
	}
}

// Close stops the loop. Idempotent, safe from any goroutine.
func (w *Worker) Close() error {
	w.quitOnce.Do(func() { close(w.quit) })
	return nil
}

func (w *Worker) handle(ctx context.Context, msg *message.Message) {
	defer func() {
		if r := recover(); r != nil {
			w.report(fmt.Errorf("frame handling panicked: %v", r))
		}
	}()

	env, err := codec.DecodeEnvelope(msg.Payload)
	if err != nil {
		w.report(fmt.Errorf("undecodable frame %s: %w", msg.UUID, err))
		return
	}

	switch env.Type {
	case envelope.TypeInitService:
		w.handleInit(env)
	case envelope.TypeServiceMessage:
		w.handleAction(ctx, env)
	default:
		w.logger.Debug("ignoring frame", loggingpkg.LogFields{
			"type": env.Type.String(),
			"id":   env.ID,
		})
	}
}

func (w *Worker) handleInit(env envelope.Envelope) {
	if w.base != nil {
		w.reply(envelope.NewInitReply(env.ID, fmt.Errorf("already hosting %q", w.base.Name())))
		return
	}

	entry, ok := w.registry.Lookup(env.Service)
	if !ok {
		w.reply(envelope.NewInitReply(env.ID, fmt.Errorf("%w: %q", errs.ErrUnregisteredService, env.Service)))
		return
	}

	impl, base, err := constructService(entry.Constructor)
	if err != nil {
		w.reply(envelope.NewInitReply(env.ID, fmt.Errorf("construct %q: %w", env.Service, err)))
		return
	}

	base.SetLogger(w.logger.With(loggingpkg.LogFields{"service": env.Service}))

	// The caller-side snapshot wins over constructor defaults. It is
	// applied before the taps go in, so seeding does not echo values the
	// caller-side mirror already holds.
	if len(env.InitialState) > 0 {
		base.SetStates(env.InitialState)
	}
	base.setTaps(w.forwardState, w.forwardEvent)

	w.base = base
	w.impl = impl

	w.logger.Info("service hosted", loggingpkg.LogFields{
		"service": env.Service,
		"actions": len(base.Actions()),
	})
	w.reply(envelope.NewInitReply(env.ID, nil))
}

func (w *Worker) handleAction(ctx context.Context, env envelope.Envelope) {
	if w.base == nil {
		w.reply(envelope.NewErrorResponse(env.ID, fmt.Errorf("service message before construction")))
		return
	}

	ctx, span := tracer.Start(ctx, "exclave.worker.dispatch", trace.WithAttributes(
		attribute.String("exclave.service", w.base.Name()),
		attribute.String("exclave.action", env.Action),
		attribute.String("exclave.correlation_id", env.ID),
	))
	defer span.End()

	result, err := w.base.dispatch(WithCorrelation(ctx, env.ID), env.Action, env.Args, env.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.reply(envelope.NewErrorResponse(env.ID, err))
		return
	}
	w.reply(envelope.NewResponse(env.ID, result))
}

// forwardState replicates one mutation outward. It runs synchronously on
// the mutating goroutine, so changes made inside a handler always hit
// the wire before that handler's response does.
func (w *Worker) forwardState(key string, value any) {
	if err := publishEnvelope(w.publisher, w.replyTopic, envelope.NewStateChange(key, value)); err != nil {
		w.logger.Error("publish state change", err, loggingpkg.LogFields{"key": key})
	}
}

func (w *Worker) forwardEvent(event string, payload any) {
	if err := publishEnvelope(w.publisher, w.replyTopic, envelope.NewServiceEvent(event, payload)); err != nil {
		w.logger.Error("publish event", err, loggingpkg.LogFields{"event": event})
	}
}

func (w *Worker) reply(env envelope.Envelope) {
	if err := publishEnvelope(w.publisher, w.replyTopic, env); err != nil {
		w.logger.Error("publish reply", err, loggingpkg.LogFields{
			"type":           env.Type.String(),
			"correlation_id": env.CorrelationID,
		})
	}
}

// report publishes a worker_error frame for a failure caught at the top
// of the loop, where no correlated reply is possible.
func (w *Worker) report(err error) {
	w.logger.Error("worker error", err, nil)
	if perr := publishEnvelope(w.publisher, w.replyTopic, envelope.NewWorkerError(err)); perr != nil {
		w.logger.Error("publish worker error", perr, nil)
	}
}

func (w *Worker) shutdown() {
	if w.impl == nil {
		return
	}
	if err := closeInstance(w.impl); err != nil {
		w.logger.Error("close hosted service", err, nil)
	}
	w.base, w.impl = nil, nil
}

// closeInstance closes a constructed service value through its outermost
// Close, honoring any shutdown logic layered over the embedded base.
func closeInstance(impl any) error {
	if closer, ok := impl.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// HostWorker runs a worker for one service and pair inside the calling
// process, building its own link from conf. It is the entry point for
// external worker processes that pair with a proxy configured not to
// spawn its own worker. Blocks until ctx is cancelled or the link
// fails.
//
// The hosting process must register the service constructor before
// calling; the proxy side only sends the service name across.
func HostWorker(ctx context.Context, conf *config.Config, service, pairID string, deps WorkerDependencies) error {
	if service == "" {
		return fmt.Errorf("exclave: service name is required")
	}
	if pairID == "" {
		return fmt.Errorf("exclave: pair id is required")
	}
	if conf == nil {
		conf = &config.Config{}
	}
	logger := loggingpkg.OrNop(deps.Logger)

	lnk, err := link.DefaultFactory().Build(ctx, conf, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return fmt.Errorf("build link: %w", err)
	}
	defer lnk.Close()

	frames, err := lnk.Subscriber.Subscribe(ctx, link.CommandTopic(service, pairID))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", link.CommandTopic(service, pairID), err)
	}

	logger.Info("hosting worker", loggingpkg.LogFields{
		"service": service,
		"link":    lnk.Capabilities.Name,
		"pair":    pairID,
	})

	w := NewWorker(lnk.Publisher, link.ReplyTopic(service, pairID), deps)
	defer w.Close()
	return w.Run(ctx, frames)
}

// constructService runs a registered constructor, converting panics to
// errors, and extracts the embedded service base from the result.
func constructService(ctor registry.Constructor) (impl any, base *Service, err error) {
	defer func() {
		if r := recover(); r != nil {
			impl, base, err = nil, nil, fmt.Errorf("constructor panicked: %v", r)
		}
	}()

	impl = ctor()
	if impl == nil {
		return nil, nil, fmt.Errorf("constructor returned nil")
	}
	b, ok := baseOf(impl)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not embed a service base", impl)
	}
	return impl, b, nil
}

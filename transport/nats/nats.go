// Package nats provides a NATS Core link for exclave. It carries frames
// over a NATS server, so a worker can live in a different process from
// its proxy. Frames are serialized to the wire; nothing is shared.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/exclave-io/exclave/transport"
)

// TransportName is the name used to register this link.
const TransportName = "nats"

// connectTimeout bounds the initial dial. A server that cannot be
// reached within it fails the link build, and the proxy falls back to
// local execution instead of hanging its initialization.
const connectTimeout = 5 * time.Second

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the NATS link with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS Core link. JetStream is disabled: worker pair
// topics are ephemeral and die with the pair, so durable streams would
// only leak state between runs. A single subscriber goroutine per topic
// keeps frames in publish order.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	jetStream := nats.JetStreamConfig{Disabled: true}
	// Reconnects are capped: a pair whose server stays gone demotes the
	// proxy through call timeouts anyway, so endless retries have no one
	// left to serve.
	options := []nc.Option{
		nc.Name("exclave-link"),
		nc.Timeout(connectTimeout),
		nc.MaxReconnects(5),
	}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   jetStream,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:              url,
			NatsOptions:      options,
			Unmarshaler:      marshaler,
			JetStream:        jetStream,
			SubscribersCount: 1,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this link.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

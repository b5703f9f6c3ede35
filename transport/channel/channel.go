// Package channel provides an in-memory Go channel link for exclave.
// This link hosts workers inside the calling process and is the default
// for tests, local development, and single-process deployments.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/exclave-io/exclave/transport"
)

// TransportName is the name used to register this link.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register registers the channel link with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new in-memory channel link. Because frames stay in
// process, a published frame would alias the sender's buffer; unless the
// config opts into transferable frames, the publisher half copies every
// payload so that neither side can observe the other's mutations.
//
// Publishes block until the receiving side acks. The go channel pubsub
// delivers each publish on its own goroutine, so without the ack barrier
// two frames published back to back could arrive reordered.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{
		OutputChannelBuffer:            int64(cfg.GetChannelBuffer()),
		BlockPublishUntilSubscriberAck: true,
	}, logger)

	if !cfg.GetTransferable() {
		pub = &copyingPublisher{inner: pub}
	}

	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this link.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

// copyingPublisher clones each frame before handing it to the in-memory
// pubsub, so the receiver never shares a payload backing array with the
// sender. Transferable configs skip this wrapper and move frames as-is.
type copyingPublisher struct {
	inner message.Publisher
}

func (p *copyingPublisher) Publish(topic string, messages ...*message.Message) error {
	copies := make([]*message.Message, len(messages))
	for i, msg := range messages {
		payload := make([]byte, len(msg.Payload))
		copy(payload, msg.Payload)

		clone := message.NewMessage(msg.UUID, payload)
		clone.Metadata = make(message.Metadata, len(msg.Metadata))
		for k, v := range msg.Metadata {
			clone.Metadata[k] = v
		}
		copies[i] = clone
	}
	return p.inner.Publish(topic, copies...)
}

func (p *copyingPublisher) Close() error {
	return p.inner.Close()
}

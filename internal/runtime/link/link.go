// Package link builds the message link between a service proxy and its
// worker runtime, and names the topics the pair talks over.
//
// Every proxy/worker pair owns two topics: the c2w topic carries proxy
// commands to the worker, the w2c topic carries worker state changes,
// events, and replies back. Both sides publish on one topic and
// subscribe on the other.
package link

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/exclave-io/exclave/internal/runtime/config"
	"github.com/exclave-io/exclave/internal/runtime/registry"
	newtransport "github.com/exclave-io/exclave/transport"

	// Import all link packages to register them.
	_ "github.com/exclave-io/exclave/transport/channel"
	_ "github.com/exclave-io/exclave/transport/nats"
)

// Link config keys read by the proxy rather than the link builder.
// KeyPairID pins the topic pair suffix, so an externally hosted worker
// can subscribe to a known pair. KeySpawn set to SpawnExternal tells the
// proxy not to start an in-process worker.
const (
	KeyPairID = "pair_id"
	KeySpawn  = "spawn"

	SpawnExternal = "external"
)

// Link combines the publisher and subscriber halves of a built link with
// the capabilities its backend reported at registration.
type Link struct {
	Publisher    message.Publisher
	Subscriber   message.Subscriber
	Capabilities newtransport.Capabilities
}

// Close closes both halves of the link. The first error wins; the second
// half is closed regardless.
func (l Link) Close() error {
	var firstErr error
	if l.Publisher != nil {
		firstErr = l.Publisher.Close()
	}
	if l.Subscriber != nil {
		if err := l.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Factory abstracts how exclave initialises links.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Link, error)
}

// DefaultFactory returns the built-in link factory that uses the modular
// link registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Link, error) {
	if conf == nil {
		return Link{}, fmt.Errorf("config is required")
	}

	t, err := newtransport.Build(ctx, conf, logger)
	if err != nil {
		return Link{}, err
	}

	return Link{
		Publisher:    t.Publisher,
		Subscriber:   t.Subscriber,
		Capabilities: newtransport.GetCapabilities(conf.GetLinkSystem()),
	}, nil
}

// EffectiveConfig returns a copy of conf with a service registration's
// link overrides applied. Registration options win over the global
// config so individual services can pick their own link backend.
func EffectiveConfig(conf *config.Config, opts registry.Options) (*config.Config, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is required")
	}

	merged := *conf

	if opts.Link != "" {
		merged.LinkSystem = opts.Link
	}
	if opts.Transferable {
		merged.Transferable = true
	}

	for key, value := range opts.LinkConfig {
		switch key {
		case "nats_url":
			merged.NATSURL = value
		case "channel_buffer":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid channel_buffer %q: %w", value, err)
			}
			merged.ChannelBuffer = n
		case KeyPairID, KeySpawn:
			// Consumed by the proxy, not the link.
		default:
			return nil, fmt.Errorf("unknown link config key %q", key)
		}
	}

	return &merged, nil
}

// CommandTopic returns the topic the proxy publishes commands on for a
// worker pair.
func CommandTopic(service, pairID string) string {
	return fmt.Sprintf("exclave.%s.%s.c2w", topicToken(service), topicToken(pairID))
}

// ReplyTopic returns the topic the worker publishes state changes,
// events, and replies on for a worker pair.
func ReplyTopic(service, pairID string) string {
	return fmt.Sprintf("exclave.%s.%s.w2c", topicToken(service), topicToken(pairID))
}

// topicToken lowercases a name and replaces every rune a topic segment
// cannot carry, so registered service names and configured pair IDs
// never produce malformed NATS subjects.
func topicToken(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// Package transport defines the core interfaces and types for exclave links.
// A link carries envelope frames between a service proxy and the worker
// runtime that executes on its behalf. Each link implementation (channel,
// nats) lives in its own sub-package and registers itself with the link
// registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines the publisher and subscriber halves of a link.
// Both sides of a worker pair hold one; the proxy publishes commands and
// subscribes to worker traffic, the worker runtime does the reverse.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both halves of the link. The first error wins; the second
// half is closed regardless.
func (t Transport) Close() error {
	var firstErr error
	if t.Publisher != nil {
		firstErr = t.Publisher.Close()
	}
	if t.Subscriber != nil {
		if err := t.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Builder is the function signature for creating a link from config.
// Each link package should provide a Builder function that can be registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by links.
// This interface allows link packages to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetLinkSystem returns the link type name.
	GetLinkSystem() string

	// GetNATSURL returns the NATS server URL for cross-process links.
	GetNATSURL() string

	// GetChannelBuffer returns the frame buffer size for in-memory links.
	GetChannelBuffer() int

	// GetTransferable reports whether published frames may be moved
	// rather than copied. See Capabilities.Transferable.
	GetTransferable() bool
}

// CapabilitiesProvider is implemented by links that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

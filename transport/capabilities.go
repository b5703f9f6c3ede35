package transport

// Capabilities describes the guarantees a link backend makes to the proxy
// and worker runtime that communicate over it. Use this to introspect what
// a configured link can and cannot do at runtime.
type Capabilities struct {
	// CrossProcess indicates frames can reach a worker outside the
	// calling process. In-memory links can only host same-process workers.
	CrossProcess bool

	// Transferable indicates the link can move published frames instead
	// of copying them. A sender on such a link must not touch a frame's
	// payload after publish. Links that serialize to a wire never alias
	// and report false.
	Transferable bool

	// Ordered indicates frames published to a single topic arrive in
	// publish order. Worker state changes are published before the call
	// response on the same topic, so ordered links observe the change
	// first.
	Ordered bool

	// MaxFrameSize is the maximum frame size in bytes (0 = unlimited/unknown).
	MaxFrameSize int64

	// Name is the human-readable name of the link backend.
	Name string
}

// RequiresCopyOnPublish returns true if callers must defensively copy
// frames before publish because the link cannot take ownership of them.
func (c Capabilities) RequiresCopyOnPublish() bool {
	return !c.Transferable
}

// SameProcessOnly returns true if workers on this link must share the
// caller's process.
func (c Capabilities) SameProcessOnly() bool {
	return !c.CrossProcess
}

// Predefined capability sets for the built-in links.
var (
	// ChannelCapabilities for the in-memory Go channel link.
	ChannelCapabilities = Capabilities{
		Name:         "channel",
		CrossProcess: false,
		Transferable: true,
		Ordered:      true,
	}

	// NATSCapabilities for the NATS Core link.
	NATSCapabilities = Capabilities{
		Name:         "nats",
		CrossProcess: true,
		Transferable: false,
		Ordered:      true,
		MaxFrameSize: 1048576, // Default 1MB
	}
)

// GetCapabilities returns the capabilities for a link by name.
// Uses the registry to look up capabilities registered by each link package.
// Returns a zero Capabilities struct if the link is unknown.
func GetCapabilities(linkName string) Capabilities {
	return DefaultRegistry.GetCapabilities(linkName)
}

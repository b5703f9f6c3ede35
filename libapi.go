package exclave

import (
	runtimepkg "github.com/exclave-io/exclave/internal/runtime"
	buspkg "github.com/exclave-io/exclave/internal/runtime/bus"
	configpkg "github.com/exclave-io/exclave/internal/runtime/config"
	envelopepkg "github.com/exclave-io/exclave/internal/runtime/envelope"
	errspkg "github.com/exclave-io/exclave/internal/runtime/errors"
	idspkg "github.com/exclave-io/exclave/internal/runtime/ids"
	linkpkg "github.com/exclave-io/exclave/internal/runtime/link"
	loggingpkg "github.com/exclave-io/exclave/internal/runtime/logging"
	registrypkg "github.com/exclave-io/exclave/internal/runtime/registry"
	newtransport "github.com/exclave-io/exclave/transport"
)

type (
	Config = configpkg.Config

	Service      = runtimepkg.Service
	Handle       = runtimepkg.Handle
	StateView    = runtimepkg.StateView
	HistoryEntry = runtimepkg.HistoryEntry

	Container             = runtimepkg.Container
	ContainerDependencies = runtimepkg.ContainerDependencies

	Proxy             = runtimepkg.Proxy
	ProxyDependencies = runtimepkg.ProxyDependencies
	Mode              = runtimepkg.Mode

	Worker             = runtimepkg.Worker
	WorkerDependencies = runtimepkg.WorkerDependencies

	Metrics = runtimepkg.Metrics

	// Marking registry
	Registry       = registrypkg.Registry
	RegistryEntry  = registrypkg.Entry
	ServiceOptions = registrypkg.Options
	Constructor    = registrypkg.Constructor

	// Event subscriptions
	Subscription = buspkg.Subscription
	EventHandler = buspkg.Handler

	// Wire format, for link tooling
	Envelope    = envelopepkg.Envelope
	MessageType = envelopepkg.MessageType

	// Links
	Link        = linkpkg.Link
	LinkFactory = linkpkg.Factory

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	RemoteError           = errspkg.RemoteError
	ConfigValidationError = errspkg.ConfigValidationError

	// Modular transport types (for custom link backends)
	Transport             = newtransport.Transport
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewService   = runtimepkg.NewService
	NewContainer = runtimepkg.NewContainer
	NewProxy     = runtimepkg.NewProxy
	NewWorker    = runtimepkg.NewWorker
	NewMetrics   = runtimepkg.NewMetrics

	// HostWorker runs the worker half of a relocation pair in the calling
	// process, for registrations whose "spawn" link option is "external".
	HostWorker = runtimepkg.HostWorker

	ValidateConfig = configpkg.ValidateConfig

	// Marking registry
	DefaultRegistry = registrypkg.DefaultRegistry
	NewRegistry     = registrypkg.NewRegistry
	Register        = registrypkg.Register
	RegisterName    = registrypkg.RegisterName

	// Correlation IDs travel in the context during dispatch.
	WithCorrelation        = runtimepkg.WithCorrelation
	CorrelationFromContext = runtimepkg.CorrelationFromContext

	// Link topics, for external worker hosts and broker tooling
	CommandTopic       = linkpkg.CommandTopic
	ReplyTopic         = linkpkg.ReplyTopic
	DefaultLinkFactory = linkpkg.DefaultFactory

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.Nop

	NewFrameID = idspkg.New
	NewPairID  = idspkg.NewTopicSuffix

	ErrUnregisteredToken   = errspkg.ErrUnregisteredToken
	ErrUnregisteredService = errspkg.ErrUnregisteredService
	ErrReadOnlyState       = errspkg.ErrReadOnlyState
	ErrDisposed            = errspkg.ErrDisposed
	ErrCallTimeout         = errspkg.ErrCallTimeout
	ErrInitTimeout         = errspkg.ErrInitTimeout
	ErrProxyDemoted        = errspkg.ErrProxyDemoted
	ErrMethodNotFound      = errspkg.ErrMethodNotFound
	ErrLinkUnavailable     = errspkg.ErrLinkUnavailable
	ErrNotBound            = errspkg.ErrNotBound

	// Modular transport registry (custom link backends register here).
	// Import built-in links via: _ "github.com/exclave-io/exclave/transport/nats"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	TransportCaps            = newtransport.GetCapabilities
)

// Proxy execution modes.
const (
	ModeUninitialized = runtimepkg.ModeUninitialized
	ModeIsolated      = runtimepkg.ModeIsolated
	ModeLocalFallback = runtimepkg.ModeLocalFallback
	ModeDisposed      = runtimepkg.ModeDisposed
)

// Frame types on the link.
const (
	TypeInitService     = envelopepkg.TypeInitService
	TypeServiceMessage  = envelopepkg.TypeServiceMessage
	TypeStateChange     = envelopepkg.TypeStateChange
	TypeMessageResponse = envelopepkg.TypeMessageResponse
	TypeServiceEvent    = envelopepkg.TypeServiceEvent
	TypeWorkerError     = envelopepkg.TypeWorkerError
)

// Link config keys understood by the proxy rather than the link builder.
const (
	KeyPairID = linkpkg.KeyPairID
	KeySpawn  = linkpkg.KeySpawn

	SpawnExternal = linkpkg.SpawnExternal
)

package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Proxy mode and call outcome label values.
const (
	labelModeIsolated = "isolated"
	labelModeLocal    = "local"

	labelOutcomeOK      = "ok"
	labelOutcomeError   = "error"
	labelOutcomeTimeout = "timeout"
	labelOutcomeDemoted = "demoted"
	labelOutcomePosted  = "posted"
)

// Metrics collects relocation activity for Prometheus. Every recording
// method is safe on a nil receiver, so a nil *Metrics disables
// collection without any call-site branching.
type Metrics struct {
	mu         sync.Mutex
	registered bool

	callsTotal        *prometheus.CounterVec
	demotionsTotal    *prometheus.CounterVec
	workerErrorsTotal *prometheus.CounterVec
	replicationsTotal *prometheus.CounterVec
	callSeconds       *prometheus.HistogramVec
}

// newRelocationCounterVec creates a counter vec in the exclave/relocation
// namespace.
func newRelocationCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exclave",
			Subsystem: "relocation",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the relocation metrics collectors, unregistered.
func NewMetrics() *Metrics {
	return &Metrics{
		callsTotal:        newRelocationCounterVec("calls_total", "Calls dispatched through a proxy, by execution mode and outcome", []string{"service", "mode", "outcome"}),
		demotionsTotal:    newRelocationCounterVec("demotions_total", "Proxies demoted to local fallback, by reason", []string{"service", "reason"}),
		workerErrorsTotal: newRelocationCounterVec("worker_errors_total", "Top-level errors reported by worker runtimes", []string{"service"}),
		replicationsTotal: newRelocationCounterVec("state_replications_total", "State changes replicated from workers into proxy mirrors", []string{"service"}),
		callSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "exclave",
				Subsystem: "relocation",
				Name:      "call_duration_seconds",
				Help:      "Round-trip time of isolated proxy calls",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"service"},
		),
	}
}

// Register registers the collectors with reg, or with the default
// registerer when reg is nil. Safe to call multiple times; collectors
// already registered elsewhere are tolerated.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.callsTotal,
		m.demotionsTotal,
		m.workerErrorsTotal,
		m.replicationsTotal,
		m.callSeconds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// recordCall records one proxy call by mode and outcome. Completed
// isolated calls also feed the round-trip histogram; fire-and-forget
// posts pass a zero elapsed and are counted only.
func (m *Metrics) recordCall(service, mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(service, mode, outcome).Inc()
	if mode == labelModeIsolated && elapsed > 0 {
		m.callSeconds.WithLabelValues(service).Observe(elapsed.Seconds())
	}
}

// recordDemotion records a proxy falling back to local execution.
func (m *Metrics) recordDemotion(service, reason string) {
	if m == nil {
		return
	}
	m.demotionsTotal.WithLabelValues(service, reason).Inc()
}

// recordWorkerError records a worker_error frame received by a proxy.
func (m *Metrics) recordWorkerError(service string) {
	if m == nil {
		return
	}
	m.workerErrorsTotal.WithLabelValues(service).Inc()
}

// recordStateReplication records a state_change frame applied to a
// proxy mirror.
func (m *Metrics) recordStateReplication(service string) {
	if m == nil {
		return
	}
	m.replicationsTotal.WithLabelValues(service).Inc()
}

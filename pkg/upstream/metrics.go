package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Upstream Manager's Prometheus registration, built the
// way the teacher's pkg/observability.Metrics is: one *CounterVec/
// *HistogramVec/*GaugeVec group per concern, each built by its own
// init*Metrics method and registered against a private registry handed
// in by the embedding process.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry

	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec

	health *prometheus.GaugeVec

	discoveryRuns   *prometheus.CounterVec
	discoveryErrors *prometheus.CounterVec
	discoveredTools *prometheus.GaugeVec
}

// NewMetrics builds a Metrics instance registered against reg. Passing a
// nil registry disables metrics entirely; callers then get a *Metrics
// whose methods are safe no-ops.
func NewMetrics(reg *prometheus.Registry, namespace string) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{namespace: namespace, registry: reg}
	m.initCallMetrics()
	m.initHealthMetrics()
	m.initDiscoveryMetrics()
	return m
}

func (m *Metrics) initCallMetrics() {
	m.callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Total number of tool calls forwarded to an upstream",
		},
		[]string{"upstream", "tool"},
	)
	m.callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Upstream tool call duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"upstream", "tool"},
	)
	m.callErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "upstream",
			Name:      "call_errors_total",
			Help:      "Total number of failed upstream tool calls, by error kind",
		},
		[]string{"upstream", "tool", "error_kind"},
	)
	m.registry.MustRegister(m.callsTotal, m.callDuration, m.callErrors)
}

func (m *Metrics) initHealthMetrics() {
	m.health = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: "upstream",
			Name:      "health",
			Help:      "Upstream health as of the last check: 3=healthy 2=degraded 1=unhealthy 0=down",
		},
		[]string{"upstream"},
	)
	m.registry.MustRegister(m.health)
}

func (m *Metrics) initDiscoveryMetrics() {
	m.discoveryRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "upstream",
			Name:      "discovery_runs_total",
			Help:      "Total number of capability discovery cycles run per upstream",
		},
		[]string{"upstream"},
	)
	m.discoveryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "upstream",
			Name:      "discovery_errors_total",
			Help:      "Total number of capability discovery cycles that failed",
		},
		[]string{"upstream"},
	)
	m.discoveredTools = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: "upstream",
			Name:      "discovered_tools",
			Help:      "Number of tools observed on the last successful discovery cycle",
		},
		[]string{"upstream"},
	)
	m.registry.MustRegister(m.discoveryRuns, m.discoveryErrors, m.discoveredTools)
}

func (m *Metrics) observeCall(upstream, tool string, duration float64, errKind string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(upstream, tool).Inc()
	m.callDuration.WithLabelValues(upstream, tool).Observe(duration)
	if errKind != "" {
		m.callErrors.WithLabelValues(upstream, tool, errKind).Inc()
	}
}

func healthValue(h Health) float64 {
	switch h {
	case HealthHealthy:
		return 3
	case HealthDegraded:
		return 2
	case HealthUnhealthy:
		return 1
	default:
		return 0
	}
}

func (m *Metrics) observeHealth(upstream string, h Health) {
	if m == nil {
		return
	}
	m.health.WithLabelValues(upstream).Set(healthValue(h))
}

func (m *Metrics) observeDiscovery(upstream string, toolCount int, err error) {
	if m == nil {
		return
	}
	m.discoveryRuns.WithLabelValues(upstream).Inc()
	if err != nil {
		m.discoveryErrors.WithLabelValues(upstream).Inc()
		return
	}
	m.discoveredTools.WithLabelValues(upstream).Set(float64(toolCount))
}

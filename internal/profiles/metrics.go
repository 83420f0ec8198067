package profiles

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes resolution counters. A nil *Metrics records nothing.
type Metrics struct {
	resolutions   *prometheus.CounterVec
	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	candidates    prometheus.Histogram
	filterErrors  prometheus.Counter
}

// NewMetrics registers the resolution metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snmp_profiles_resolutions_total",
				Help: "Total number of profile resolutions by entry point and result",
			},
			[]string{"method", "result"}, // probing, label, default; found, empty
		),
		probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snmp_profiles_probes_total",
				Help: "Total number of candidate probes by outcome",
			},
			[]string{"outcome"},
		),
		probeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snmp_profiles_probe_duration_seconds",
				Help:    "Duration of candidate probes",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		candidates: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "snmp_profiles_candidates",
				Help:    "Number of candidates probed per resolution",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
			},
		),
		filterErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "snmp_profiles_filter_errors_total",
				Help: "Total number of profile filters that failed to evaluate",
			},
		),
	}
}

func (m *Metrics) recordResolution(method string, found bool) {
	if m == nil {
		return
	}
	result := "empty"
	if found {
		result = "found"
	}
	m.resolutions.WithLabelValues(method, result).Inc()
}

func (m *Metrics) recordProbe(status OutcomeStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(status.String()).Inc()
	m.probeDuration.WithLabelValues(status.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) recordCandidates(n int) {
	if m == nil {
		return
	}
	m.candidates.Observe(float64(n))
}

func (m *Metrics) recordFilterError() {
	if m == nil {
		return
	}
	m.filterErrors.Inc()
}

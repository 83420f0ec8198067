package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// knownRoutes keeps the route label cardinality bounded.
var knownRoutes = map[string]struct{}{
	routeProfiles:  {},
	routeFit:       {},
	routeFitStream: {},
	routeNodes:     {},
	routeHealth:    {},
}

// httpMetrics instruments the API. A nil *httpMetrics records nothing.
type httpMetrics struct {
	duration    *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	errors      *prometheus.CounterVec
	openStreams prometheus.Gauge
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	factory := promauto.With(reg)
	return &httpMetrics{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "snmp_profiles",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration observed at the API layer.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snmp_profiles",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snmp_profiles",
			Subsystem: "http",
			Name:      "request_errors_total",
			Help:      "HTTP errors surfaced to clients.",
		}, []string{"method", "route", "status_class"}),
		openStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "snmp_profiles",
			Subsystem: "http",
			Name:      "fit_streams_open",
			Help:      "Fit stream websockets currently open.",
		}),
	}
}

func (m *httpMetrics) recordRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.duration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	m.requests.WithLabelValues(method, route, code).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, route, classifyStatus(status)).Inc()
	}
}

func (m *httpMetrics) streamOpened() {
	if m != nil {
		m.openStreams.Inc()
	}
}

func (m *httpMetrics) streamClosed() {
	if m != nil {
		m.openStreams.Dec()
	}
}

func classifyStatus(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return "none"
	}
}

func normalizeRoute(path string) string {
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return "/"
	}
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the engine.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	SessionEvents  *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	TurnsPerCall   prometheus.Histogram
	CallDuration   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live test conversations.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		TurnsPerCall: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turns_per_call",
			Help:      "Transcript turns per completed test conversation.",
			Buckets:   []float64{1, 2, 4, 6, 8, 12, 16, 24, 32},
		}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Wall-clock duration of completed test conversations.",
			Buckets:   []float64{5, 10, 20, 40, 60, 90, 120, 180, 240},
		}),
	}
}

func (m *Metrics) ObserveCallDuration(d time.Duration) {
	m.CallDuration.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

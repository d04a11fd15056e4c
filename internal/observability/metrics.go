package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the gateway.
type Metrics struct {
	ActiveStreams     prometheus.Gauge
	StreamEvents      *prometheus.CounterVec
	StreamOutcomes    *prometheus.CounterVec
	FallbackAttempts  *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	Heartbeats        *prometheus.CounterVec
	RateLimitRejected prometheus.Counter
	RecorderErrors    prometheus.Counter
	CollabClients     prometheus.Gauge
	CollabMessages    *prometheus.CounterVec
	FirstItemLatency  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of open SSE streams.",
		}),
		StreamEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Frames emitted by endpoint and event type.",
		}, []string{"endpoint", "type"}),
		StreamOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_outcomes_total",
			Help:      "Terminal stream outcomes by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FallbackAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_attempts_total",
			Help:      "Fallback invocations by endpoint.",
		}, []string{"endpoint"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Upstream provider errors by provider and class.",
		}, []string{"provider", "class"}),
		Heartbeats: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeat ping frames sent by endpoint.",
		}, []string{"endpoint"}),
		RateLimitRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejected_total",
			Help:      "Requests rejected with HTTP 429.",
		}),
		RecorderErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_errors_total",
			Help:      "Best-effort recorder failures (swallowed).",
		}),
		CollabClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collab_clients",
			Help:      "Connected collaboration websocket clients.",
		}),
		CollabMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collab_messages_total",
			Help:      "Collaboration messages by direction and type.",
		}, []string{"direction", "type"}),
		FirstItemLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_item_latency_ms",
			Help:      "Latency to first streamed item in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 700, 1200, 2000, 5000, 10000},
		}),
	}
}

func (m *Metrics) ObserveFirstItemLatency(d time.Duration) {
	m.FirstItemLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Package metrics exposes the Prometheus instruments the gateway and
// orchestrator report through, scraped from the gateway's /metrics
// endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every Prometheus instrument used across the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	WSMessages       *prometheus.CounterVec
	BusEvents        *prometheus.CounterVec
	BusOverflows     prometheus.Counter
	EngineErrors     *prometheus.CounterVec
	EnginesSwitched  *prometheus.CounterVec
	ResponseLatency  prometheus.Histogram
}

// New registers and returns a Metrics instance under namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of connected gateway websocket sessions.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		BusEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_total",
			Help:      "Event bus publishes by event type.",
		}, []string{"type"}),
		BusOverflows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_subscriber_overflows_total",
			Help:      "Event bus subscriber queue overflows (dropped events).",
		}),
		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Engine errors by engine kind.",
		}, []string{"engine"}),
		EnginesSwitched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_fallback_switches_total",
			Help:      "Enhanced-to-basic engine fallback switches by engine kind.",
		}, []string{"engine"}),
		ResponseLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_latency_ms",
			Help:      "Latency from user utterance to ready assistant response, in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 3500, 5000, 8000, 15000},
		}),
	}
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

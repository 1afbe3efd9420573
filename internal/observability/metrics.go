package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every instrument the backend exports. One instance is
// created at startup and shared by the orchestrator, gateway, and cache.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsEnded    prometheus.Counter
	StateTransitions *prometheus.CounterVec
	Interruptions    prometheus.Counter
	GentlePrompts    prometheus.Counter

	WSMessages     *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec

	CacheOps     *prometheus.CounterVec
	CacheLatency prometheus.Histogram

	TurnStageLatency *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in the registry.",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions created since process start.",
		}),
		SessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions that reached the ended state.",
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions.",
		}, []string{"from", "to"}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "User barge-ins that cut agent speech short.",
		}),
		GentlePrompts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gentle_prompts_total",
			Help:      "Gentle re-engagement prompts sent after user silence.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and kind.",
		}, []string{"direction", "kind"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed calls to external speech and language services.",
		}, []string{"service"}),
		CacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_cache_ops_total",
			Help:      "Speech cache lookups by result.",
		}, []string{"result"}),
		CacheLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speech_cache_latency_seconds",
			Help:      "Speech cache lookup latency.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		TurnStageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_seconds",
			Help:      "Latency of each stage of a conversation turn.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
	}
}

// Handler serves the /metrics scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

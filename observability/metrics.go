package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the gateway collectors. They are registered on the given
// registerer so tests can use an isolated prometheus.Registry.
type Metrics struct {
	opens          *prometheus.CounterVec
	denied         *prometheus.CounterVec
	stateLost      prometheus.Counter
	submitFailures prometheus.Counter
	persisted      prometheus.Counter
	deadLetters    prometheus.Counter
	queueDepth     prometheus.Gauge
	ProcessRSS     prometheus.Gauge
	ProcessCPU     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_open_total",
			Help: "Connection open attempts by outcome.",
		}, []string{"outcome"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_frames_denied_total",
			Help: "Frames dropped by the authorization policy.",
		}, []string{"command"}),
		stateLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_session_state_lost_total",
			Help: "Authenticated sessions whose identity binding went missing.",
		}),
		submitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_persistence_submit_failed_total",
			Help: "Messages that could not be handed to the persistence pipeline.",
		}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_messages_persisted_total",
			Help: "Messages written to the store.",
		}),
		deadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_dead_letters_total",
			Help: "Persistence tasks moved to the dead-letter record.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_persist_queue_depth",
			Help: "Tasks waiting in the message_persist queue.",
		}),
		ProcessRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_process_rss_bytes",
			Help: "Resident set size of the gateway process.",
		}),
		ProcessCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_process_cpu_percent",
			Help: "CPU usage of the gateway process.",
		}),
	}
	reg.MustRegister(m.opens, m.denied, m.stateLost, m.submitFailures,
		m.persisted, m.deadLetters, m.queueDepth, m.ProcessRSS, m.ProcessCPU)
	return m
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the monitor's Prometheus metrics
type Metrics struct {
	Events        *prometheus.CounterVec
	Verdicts      *prometheus.CounterVec
	Overflows     prometheus.Counter
	DecodeErrors  prometheus.Counter
	DroppedEvents prometheus.Counter
	Watches       prometheus.Gauge

	registry *prometheus.Registry
}

// New registers the metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanguard_events_total",
				Help: "Total number of fanotify events handled",
			},
			[]string{"kind"},
		),
		Verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanguard_verdicts_total",
				Help: "Total number of permission responses written",
			},
			[]string{"verdict"},
		),
		Overflows: f.NewCounter(prometheus.CounterOpts{
			Name: "fanguard_overflows_total",
			Help: "Total number of queue overflow events",
		}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "fanguard_decode_errors_total",
			Help: "Total number of corrupt reads from the fanotify descriptor",
		}),
		DroppedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "fanguard_dropped_events_total",
			Help: "Events not published because the consumer queue was full",
		}),
		Watches: f.NewGauge(prometheus.GaugeOpts{
			Name: "fanguard_watches",
			Help: "Number of active marks",
		}),
		registry: reg,
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

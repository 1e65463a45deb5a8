// Package metrics exposes Prometheus instruments for enrollment runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "enroller"

// Attempt results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

type Metrics struct {
	Attempts       *prometheus.CounterVec
	GoalsConfirmed prometheus.Counter
	GoalsDropped   prometheus.Counter
	Passes         prometheus.Counter
	WindowWait     prometheus.Histogram
	Runs           *prometheus.CounterVec
	ActiveRun      prometheus.Gauge
	OfferingLoads  *prometheus.CounterVec
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Registration attempts by result.",
		}, []string{"result"}),
		GoalsConfirmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goals_confirmed_total",
			Help:      "Registration goals confirmed by the portal.",
		}),
		GoalsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goals_dropped_total",
			Help:      "Goals dropped because no shift was chosen.",
		}),
		Passes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Round-robin passes over pending goals.",
		}),
		WindowWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "window_wait_seconds",
			Help:      "Time spent waiting for the registration window to open.",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 6 * 3600, 24 * 3600},
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished enrollment runs by outcome.",
		}, []string{"outcome"}),
		ActiveRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_run",
			Help:      "1 while an enrollment run is in progress.",
		}),
		OfferingLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offering_loads_total",
			Help:      "Offering list loads by source (cache or portal).",
		}, []string{"source"}),
	}
}

// Discard returns instruments registered on a private registry.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

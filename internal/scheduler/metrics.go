package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds scheduler counters and timings.
type Metrics struct {
	RunsFired     prometheus.Counter
	RunsSucceeded prometheus.Counter
	RunsFailed    prometheus.Counter
	RunsMissed    prometheus.Counter
	TickDuration  prometheus.Histogram
}

// NewMetrics registers scheduler metrics on reg. Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		RunsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtafiti",
			Subsystem: "scheduler",
			Name:      "runs_fired_total",
			Help:      "Total scheduled report runs fired.",
		}),
		RunsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtafiti",
			Subsystem: "scheduler",
			Name:      "runs_succeeded_total",
			Help:      "Total scheduled report runs that completed.",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtafiti",
			Subsystem: "scheduler",
			Name:      "runs_failed_total",
			Help:      "Total scheduled report runs that failed.",
		}),
		RunsMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtafiti",
			Subsystem: "scheduler",
			Name:      "runs_missed_total",
			Help:      "Total scheduled runs skipped after downtime.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mtafiti",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Poll tick duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.RunsFired, m.RunsSucceeded, m.RunsFailed, m.RunsMissed, m.TickDuration)
	return m
}

package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the report pipeline.
// All metrics use the mtafiti_pipeline_ namespace.
type Metrics struct {
	ReportsTotal      *prometheus.CounterVec
	ReportDuration    *prometheus.HistogramVec
	StagesTotal       *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	TokensTotal       *prometheus.CounterVec
	ActiveGenerations prometheus.Gauge
}

// NewMetrics creates and registers pipeline metrics on the given registry.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtafiti",
			Subsystem: "pipeline",
			Name:      "reports_total",
			Help:      "Total reports by final status.",
		}, []string{"status"}),

		ReportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mtafiti",
			Subsystem: "pipeline",
			Name:      "report_duration_seconds",
			Help:      "Full report generation duration in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"status"}),

		StagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtafiti",
			Subsystem: "pipeline",
			Name:      "stages_total",
			Help:      "Total stage executions by stage name and status.",
		}, []string{"stage", "status"}),

		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mtafiti",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage duration in seconds by stage name.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),

		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtafiti",
			Subsystem: "pipeline",
			Name:      "tokens_total",
			Help:      "Total LLM tokens consumed by stage and direction.",
		}, []string{"stage", "direction"}),

		ActiveGenerations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mtafiti",
			Subsystem: "pipeline",
			Name:      "active_generations",
			Help:      "Number of currently running report generations.",
		}),
	}

	reg.MustRegister(
		m.ReportsTotal,
		m.ReportDuration,
		m.StagesTotal,
		m.StageDuration,
		m.TokensTotal,
		m.ActiveGenerations,
	)

	return m
}

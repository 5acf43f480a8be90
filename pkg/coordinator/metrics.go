package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the coordinator's prometheus collectors.
type Metrics struct {
	Cycles       *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	CycleSeconds prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zkmint",
			Subsystem: "coordinator",
			Name:      "cycles_total",
			Help:      "Coordinator cycles by outcome.",
		}, []string{"outcome"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zkmint",
			Subsystem: "coordinator",
			Name:      "failures_total",
			Help:      "Failed cycles by stage and error class.",
		}, []string{"stage", "class"}),
		CycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zkmint",
			Subsystem: "coordinator",
			Name:      "cycle_seconds",
			Help:      "Duration of a coordinator cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.Failures, m.CycleSeconds)
	}
	return m
}

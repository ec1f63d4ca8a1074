package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	deltas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smartlock",
			Subsystem: "shadow",
			Name:      "deltas_total",
			Help:      "Update/delta documents by reconciliation result.",
		},
		[]string{"result"},
	)
	shadowVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "smartlock",
			Subsystem: "shadow",
			Name:      "version",
			Help:      "Highest shadow version accepted.",
		},
	)
	actuations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smartlock",
			Subsystem: "actuator",
			Name:      "cycles_total",
			Help:      "Actuation cycles by requested state and result.",
		},
		[]string{"state", "result"},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smartlock",
			Subsystem: "shadow",
			Name:      "publishes_total",
			Help:      "Shadow update documents by kind and acknowledgement result.",
		},
		[]string{"document", "result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(deltas, shadowVersion, actuations, publishes)
	})
}

func RecordDelta(result string) {
	RegisterMetrics()
	deltas.WithLabelValues(result).Inc()
}

func SetShadowVersion(v uint64) {
	RegisterMetrics()
	shadowVersion.Set(float64(v))
}

func RecordActuation(state, result string) {
	RegisterMetrics()
	actuations.WithLabelValues(state, result).Inc()
}

func RecordPublish(document, result string) {
	RegisterMetrics()
	publishes.WithLabelValues(document, result).Inc()
}

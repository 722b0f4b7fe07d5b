package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamd",
			Subsystem: "engine",
			Name:      "tasks_total",
			Help:      "Tasks that reached a terminal state, by outcome",
		},
		[]string{"outcome"},
	)

	chunksAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "streamd",
			Subsystem: "engine",
			Name:      "chunks_appended_total",
			Help:      "Chunks durably appended to ledgers",
		},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamd",
			Subsystem: "engine",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"result"},
	)

	generationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "streamd",
			Subsystem: "engine",
			Name:      "generation_retries_total",
			Help:      "Provider attempts retried before streaming began",
		},
	)

	generationsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "streamd",
			Subsystem: "engine",
			Name:      "generations_inflight",
			Help:      "Generation loops currently running",
		},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal, chunksAppended, cacheLookups, generationRetries, generationsInflight)
}

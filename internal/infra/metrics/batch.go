package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		batchJobsTotal,
		batchProviderCallLatencyMs,
		batchResultItemsTotal,
	)
}

var (
	batchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_total",
			Help: "Batch jobs by provider and terminal status.",
		},
		[]string{"provider", "status"},
	)

	batchProviderCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_provider_call_latency_ms",
			Help:    "Provider call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"provider", "op", "success"},
	)

	batchResultItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_result_items_total",
			Help: "Parsed batch result items by provider and outcome (ok/error/expired).",
		},
		[]string{"provider", "outcome"},
	)
)

func IncBatchJob(provider, status string) {
	batchJobsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func ObserveProviderCall(provider, op string, latencyMs int, success bool) {
	batchProviderCallLatencyMs.
		WithLabelValues(norm(provider), norm(op), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncResultItem(provider, outcome string) {
	batchResultItemsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

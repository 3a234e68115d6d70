package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal counts applied batches.
	BatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketcore_scheduler_batches_total",
		Help: "Total number of batches applied",
	})

	// BatchDurationSeconds tracks engine batch latency.
	BatchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketcore_scheduler_batch_duration_seconds",
		Help:    "Duration of one apply-orders batch",
		Buckets: prometheus.DefBuckets,
	})

	// OrdersQueuedGauge tracks the order inbox depth.
	OrdersQueuedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketcore_scheduler_orders_queued",
		Help: "Orders waiting for the next batch",
	})
)

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ordersAppliedTotal counts orders processed by ApplyOrders.
	ordersAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketcore_engine_orders_applied_total",
		Help: "Total number of orders processed by the engine",
	})

	// ordersRejectedTotal counts rejected orders by reason code.
	ordersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketcore_engine_orders_rejected_total",
			Help: "Total number of orders rejected by the engine",
		},
		[]string{"reason"},
	)

	// fillsTotal counts fills by venue type.
	fillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketcore_engine_fills_total",
			Help: "Total number of fills produced by the engine",
		},
		[]string{"type"},
	)

	// resolutionRoundsTotal counts completed resolution rounds.
	resolutionRoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketcore_engine_resolution_rounds_total",
		Help: "Total number of resolution rounds applied",
	})
)

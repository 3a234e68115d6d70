package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubscribersGauge tracks connected websocket subscribers.
	SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketcore_stream_subscribers",
		Help: "Number of connected websocket subscribers",
	})

	// EventsBroadcastTotal counts events delivered to subscribers.
	EventsBroadcastTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketcore_stream_events_broadcast_total",
		Help: "Total number of events broadcast to subscribers",
	})
)

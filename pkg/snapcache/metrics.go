package snapcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HitsTotal counts snapshot cache hits.
	HitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketcore_snapcache_hits_total",
		Help: "Total number of snapshot cache hits",
	})

	// MissesTotal counts snapshot cache misses.
	MissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketcore_snapcache_misses_total",
		Help: "Total number of snapshot cache misses",
	})

	// SetsTotal counts snapshot cache writes.
	SetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketcore_snapcache_sets_total",
		Help: "Total number of snapshot cache writes",
	})
)

package coursesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coursesync",
			Name:      "cache_hits_total",
			Help:      "Reads answered from the local cache.",
		},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coursesync",
			Name:      "cache_misses_total",
			Help:      "Reads with no local copy (explicit download required).",
		},
	)

	updatesCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coursesync",
			Name:      "updates_completed_total",
			Help:      "Background updates that finished successfully.",
		},
	)

	updatesFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coursesync",
			Name:      "updates_failed_total",
			Help:      "Background updates that failed terminally.",
		},
	)
)

package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursesync",
			Subsystem: "syncer",
			Name:      "updates_total",
			Help:      "Background content updates by outcome.",
		},
		[]string{"outcome"}, // complete | failed | superseded
	)

	reapedLocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coursesync",
			Subsystem: "syncer",
			Name:      "reaped_locks_total",
			Help:      "Stuck update locks cleared by the reaper.",
		},
	)
)

// Package metrics holds the prometheus collectors for restoration and capture.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RestoreOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lastview_restore_outcomes_total",
		Help: "Restorations that reached Completed, by outcome",
	}, []string{"outcome"})

	RestoreScanned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lastview_restore_scanned_items",
		Help:    "Items scanned per restoration search",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 750, 1000},
	})

	RestoreConfirmSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lastview_restore_confirm_seconds",
		Help:    "Time from restore scroll to layout confirmation",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
	})

	Captures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lastview_captures_total",
		Help: "Position captures, by result",
	}, []string{"result"})

	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lastview_store_errors_total",
		Help: "Position store failures, by operation",
	}, []string{"op"})

	CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lastview_cache_requests_total",
		Help: "Position cache lookups, by result",
	}, []string{"result"})

	PageLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lastview_page_loads_total",
		Help: "Feed page loads, by direction and status",
	}, []string{"direction", "status"})

	IndicatorShown = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lastview_newposts_shown_total",
		Help: "Times the new-posts indicator became visible, by cause",
	}, []string{"cause"})
)

// Capture results.
const (
	CaptureWritten = "written"
	CaptureSkipped = "skipped"
	CaptureError   = "error"
)

// MustRegister registers every collector with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RestoreOutcomes,
		RestoreScanned,
		RestoreConfirmSeconds,
		Captures,
		StoreErrors,
		CacheRequests,
		PageLoads,
		IndicatorShown,
	)
}

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClicksRecorded counts click persistence outcomes (status: ok, failed).
	ClicksRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkpulse_clicks_recorded_total",
			Help: "Click events by persistence outcome",
		},
		[]string{"status"},
	)

	// VisitorsMinted counts visitor tokens issued to browsers without one.
	VisitorsMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkpulse_visitors_minted_total",
			Help: "Visitor tokens minted for first-time browsers",
		},
	)

	// GeoLookups counts geo resolutions by the source that answered.
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkpulse_geo_lookups_total",
			Help: "Geo resolutions by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// SlugAllocations counts slug allocation attempts.
	SlugAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkpulse_slug_allocations_total",
			Help: "Slug allocations by kind (custom, generated) and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// SummaryDuration tracks aggregation latency per rollup shape.
	SummaryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkpulse_summary_duration_seconds",
			Help:    "Time spent computing a rollup",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"shape"},
	)
)

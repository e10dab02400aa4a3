package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wettermonitor_upstream_calls_total",
			Help: "Total measurement API calls",
		},
		[]string{"station", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wettermonitor_upstream_latency_seconds",
			Help:    "Measurement API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"station"},
	)

	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wettermonitor_observations_ingested_total",
			Help: "Total observations successfully ingested",
		},
		[]string{"station", "source"},
	)

	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wettermonitor_sync_runs_total",
			Help: "Sync runs by result",
		},
		[]string{"result"},
	)

	StoreUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wettermonitor_store_unavailable_total",
			Help: "Observation store queries that failed to reach the database",
		},
	)

	AnalogSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wettermonitor_analog_search_duration_seconds",
			Help:    "Time spent searching for the best historical analog",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	AnalogEligibleCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wettermonitor_analog_eligible_candidates",
			Help: "Candidates with overlapping data in the last analog search",
		},
	)

	ForecastRecomputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wettermonitor_forecast_recomputations_total",
			Help: "Forecast recomputations by result",
		},
		[]string{"result"},
	)
)

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed pipeline runs.
	OutcomeSuccess = "success"
	// OutcomeCancelled labels runs stopped by cooperative cancellation.
	OutcomeCancelled = "cancelled"
	// OutcomeError labels runs that failed outright.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "respstats",
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "respstats",
			Name:      "stage_seconds",
			Help:      "Pipeline stage latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	recordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "respstats",
			Name:      "records_reconciled_total",
			Help:      "Total source records processed by reconciliation.",
		},
	)

	loadErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "respstats",
			Name:      "load_errors_total",
			Help:      "Load errors recorded, partitioned by kind.",
		},
		[]string{"kind"},
	)

	incidentsEnrichedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "respstats",
			Name:      "incidents_enriched_total",
			Help:      "Incidents that received geographic attributes.",
		},
	)
)

// Register attaches respstats collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		stageDurationSeconds,
		recordsTotal,
		loadErrorsTotal,
		incidentsEnrichedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a completed pipeline run.
func ObserveRun(outcome string) {
	switch outcome {
	case OutcomeError, OutcomeCancelled:
	default:
		outcome = OutcomeSuccess
	}
	runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records a stage duration.
func ObserveStage(stage string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// AddRecords counts reconciled source records.
func AddRecords(n int) {
	if n > 0 {
		recordsTotal.Add(float64(n))
	}
}

// AddLoadErrors counts load errors of one kind.
func AddLoadErrors(kind string, n int) {
	if n > 0 {
		loadErrorsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// AddEnriched counts geo-enriched incidents.
func AddEnriched(n int) {
	if n > 0 {
		incidentsEnrichedTotal.Add(float64(n))
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStartedTotal counts measurement runs opened in the store.
	RunsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "benchd_runs_started_total",
		Help: "Total measurement runs started",
	})

	// RunsCompletedTotal counts runs that reached a terminal state.
	RunsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_runs_completed_total",
		Help: "Total measurement runs finished by status",
	}, []string{"status"})

	// RunRowsWrittenTotal counts result rows persisted across all runs.
	RunRowsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "benchd_run_rows_written_total",
		Help: "Total result rows written to the dataset store",
	})

	// RunInsertDuration tracks the latency of result batch inserts.
	RunInsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "benchd_run_insert_duration_seconds",
		Help:    "Latency of result batch inserts",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	// ExportsTotal counts dataset exports by format and outcome.
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_dataset_exports_total",
		Help: "Total dataset exports by format and result",
	}, []string{"format", "result"})
)

// IncRunStarted records a newly opened run.
func IncRunStarted() {
	RunsStartedTotal.Inc()
}

// IncRunCompleted records a run reaching the given terminal status.
func IncRunCompleted(status string) {
	RunsCompletedTotal.WithLabelValues(status).Inc()
}

// ObserveInsert records a persisted result batch.
func ObserveInsert(rows int, duration time.Duration) {
	RunRowsWrittenTotal.Add(float64(rows))
	RunInsertDuration.Observe(duration.Seconds())
}

// IncExport records a dataset export outcome.
func IncExport(format string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	ExportsTotal.WithLabelValues(format, result).Inc()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MonitorSnapshotsTotal counts periodic station snapshots by outcome.
	MonitorSnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_monitor_snapshots_total",
		Help: "Total station monitor snapshots by result",
	}, []string{"result"})

	// MonitorSnapshotDuration tracks how long a full station snapshot takes.
	MonitorSnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "benchd_monitor_snapshot_duration_seconds",
		Help:    "Duration of full station snapshots",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// CacheHitsTotal counts snapshot cache hits.
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "benchd_cache_hits_total",
		Help: "Total snapshot cache hits",
	})

	// CacheMissesTotal counts snapshot cache misses.
	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "benchd_cache_misses_total",
		Help: "Total snapshot cache misses",
	})

	// StationReloadsTotal counts station configuration reloads by trigger
	// and outcome.
	StationReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_station_reloads_total",
		Help: "Total station configuration reloads by trigger and result",
	}, []string{"trigger", "result"})
)

// ObserveMonitorSnapshot records one snapshot pass.
func ObserveMonitorSnapshot(err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	MonitorSnapshotsTotal.WithLabelValues(result).Inc()
	MonitorSnapshotDuration.Observe(duration.Seconds())
}

// IncCacheHit records a snapshot served from cache.
func IncCacheHit() {
	CacheHitsTotal.Inc()
}

// IncCacheMiss records a snapshot that had to be rebuilt.
func IncCacheMiss() {
	CacheMissesTotal.Inc()
}

// IncStationReload records a station reload outcome.
func IncStationReload(trigger string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	StationReloadsTotal.WithLabelValues(trigger, result).Inc()
}

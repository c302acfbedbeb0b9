// Package blockmetrics exposes Prometheus metrics for the block/blob store.
package blockmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache metrics
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockfs_cache_hits_total",
			Help: "Total number of CachingStore load hits",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockfs_cache_misses_total",
			Help: "Total number of CachingStore load misses",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockfs_cache_evictions_total",
			Help: "Total number of CachingStore LRU evictions",
		},
	)

	CacheEntriesCurrent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockfs_cache_entries_current",
			Help: "Current number of entries held in the block cache",
		},
	)

	CacheFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockfs_cache_flush_duration_seconds",
			Help:    "Time taken to write back a dirty cache entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Integrity metrics
	IntegrityViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockfs_integrity_violations_total",
			Help: "Total number of integrity violations detected, by kind",
		},
		[]string{"kind"},
	)

	// Parallel access metrics
	ParallelAccessInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockfs_parallelaccess_in_flight",
			Help: "Current number of distinct block ids with a live in-memory handle",
		},
	)

	ParallelAccessWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockfs_parallelaccess_wait_duration_seconds",
			Help:    "Time a caller waited to acquire a block's per-entry lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Blob/tree metrics
	BlobReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockfs_blob_read_duration_seconds",
			Help:    "Time taken to service a Blob.Read call",
			Buckets: prometheus.DefBuckets,
		},
	)

	BlobWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockfs_blob_write_duration_seconds",
			Help:    "Time taken to service a Blob.Write call",
			Buckets: prometheus.DefBuckets,
		},
	)

	BlobResizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockfs_blob_resize_duration_seconds",
			Help:    "Time taken to service a Blob.Resize call",
			Buckets: prometheus.DefBuckets,
		},
	)

	BlocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockfs_blocks_total",
			Help: "Total number of blocks currently stored at the base store",
		},
	)
)

func init() {
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(CacheEntriesCurrent)
	prometheus.MustRegister(CacheFlushDuration)
	prometheus.MustRegister(IntegrityViolationsTotal)
	prometheus.MustRegister(ParallelAccessInFlight)
	prometheus.MustRegister(ParallelAccessWaitDuration)
	prometheus.MustRegister(BlobReadDuration)
	prometheus.MustRegister(BlobWriteDuration)
	prometheus.MustRegister(BlobResizeDuration)
	prometheus.MustRegister(BlocksTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

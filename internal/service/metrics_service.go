package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
// It doubles as the enrollment core's metrics sink and the broadcast hub's observer.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	enrollmentOutcomes *prometheus.CounterVec
	persistDuration    *prometheus.HistogramVec
	subscribers        prometheus.Gauge
	droppedUpdates     prometheus.Counter
	exportJobs         *prometheus.CounterVec

	liveOnce sync.Once

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	enrolledCount        uint64
	rejectedCount        uint64
	persistFailures      uint64
	subscriberCount      int64
	droppedCount         uint64
}

// MetricsSnapshot is the JSON summary served to administrators.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	EnrollmentsGranted       uint64    `json:"enrollments_granted"`
	EnrollmentsRejected      uint64    `json:"enrollments_rejected"`
	PersistFailures          uint64    `json:"persist_failures"`
	Subscribers              int64     `json:"subscribers"`
	DroppedUpdates           uint64    `json:"dropped_updates"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	enrollmentOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_submissions_total",
		Help: "Enrollment submissions by outcome",
	}, []string{"outcome"})

	persistDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrollment_persist_duration_seconds",
		Help:    "Duration of enrollment commits to the database",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"result"})

	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seat_feed_subscribers",
		Help: "Active seat feed subscriptions",
	})

	droppedUpdates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seat_feed_dropped_updates_total",
		Help: "Updates skipped for slow subscribers, each followed by a fresh snapshot",
	})

	exportJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_total",
		Help: "Enrollment export jobs by terminal status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		enrollmentOutcomes, persistDuration, subscribers, droppedUpdates, exportJobs, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		enrollmentOutcomes: enrollmentOutcomes,
		persistDuration:    persistDuration,
		subscribers:        subscribers,
		droppedUpdates:     droppedUpdates,
		exportJobs:         exportJobs,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// TrackLiveSessions exports the number of sessions with a live coordinator.
// Only the first call registers the gauge.
func (m *MetricsService) TrackLiveSessions(count func() int) {
	if m == nil || count == nil {
		return
	}
	m.liveOnce.Do(func() {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "enrollment_live_sessions",
			Help: "Open sessions with a live coordinator in this process",
		}, func() float64 { return float64(count()) }))
	})
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordOutcome counts one submit decision.
func (m *MetricsService) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.enrollmentOutcomes.WithLabelValues(outcome).Inc()
	if outcome == "enrolled" {
		atomic.AddUint64(&m.enrolledCount, 1)
	} else {
		atomic.AddUint64(&m.rejectedCount, 1)
	}
}

// ObservePersist records how long an enrollment commit took.
func (m *MetricsService) ObservePersist(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		atomic.AddUint64(&m.persistFailures, 1)
	}
	m.persistDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SubscribersChanged tracks seat feed subscriptions.
func (m *MetricsService) SubscribersChanged(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
	atomic.AddInt64(&m.subscriberCount, int64(delta))
}

// UpdateDropped counts deltas skipped for a slow subscriber.
func (m *MetricsService) UpdateDropped() {
	if m == nil {
		return
	}
	m.droppedUpdates.Inc()
	atomic.AddUint64(&m.droppedCount, 1)
}

// RecordExportJob counts an export job reaching a terminal status.
func (m *MetricsService) RecordExportJob(status string) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(status).Inc()
}

// Snapshot returns aggregated metrics suitable for the admin summary endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		EnrollmentsGranted:       atomic.LoadUint64(&m.enrolledCount),
		EnrollmentsRejected:      atomic.LoadUint64(&m.rejectedCount),
		PersistFailures:          atomic.LoadUint64(&m.persistFailures),
		Subscribers:              atomic.LoadInt64(&m.subscriberCount),
		DroppedUpdates:           atomic.LoadUint64(&m.droppedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

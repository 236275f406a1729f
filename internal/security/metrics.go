package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency can be used by store implementations to record operation latency.
	StoreLatency *prometheus.HistogramVec

	// MergeRecordsTotal counts batch merge candidates by outcome (accepted, rejected, skipped).
	MergeRecordsTotal *prometheus.CounterVec

	// RealtimeEventsTotal counts realtime message events by outcome: accepted and
	// rejected (stale) from the merger, malformed and failed from the NATS subscriber.
	RealtimeEventsTotal *prometheus.CounterVec

	// QueryDuration records end-to-end query engine latency.
	QueryDuration prometheus.Histogram

	// CursorMissesTotal counts resume cursors that were no longer in the sorted result.
	CursorMissesTotal prometheus.Counter

	// SyncWatermark exposes the last persisted snapshot watermark (epoch millis).
	SyncWatermark prometheus.Gauge

	// SnapshotFailuresTotal counts snapshot fetch/decode failures.
	SnapshotFailuresTotal prometheus.Counter

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Must be called before starting the HTTP server or any store/cache initialization
// that records metrics. Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_cache_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_cache_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_cache_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	MergeRecordsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_cache_merge_records_total",
			Help: "Batch merge candidates by outcome",
		},
		[]string{"outcome"},
	)

	RealtimeEventsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_cache_realtime_events_total",
			Help: "Realtime message events by outcome",
		},
		[]string{"outcome"},
	)

	QueryDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "conversation_cache_query_duration_seconds",
		Help:    "Query engine latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	CursorMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "conversation_cache_cursor_misses_total",
		Help: "Resume cursors not found in the current sorted result",
	})

	SyncWatermark = f.NewGauge(prometheus.GaugeOpts{
		Name: "conversation_cache_sync_watermark_millis",
		Help: "Last persisted snapshot sync watermark",
	})

	SnapshotFailuresTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "conversation_cache_snapshot_failures_total",
		Help: "Snapshot fetch or decode failures",
	})

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "conversation_cache_scan_cache_hits_total",
		Help: "Total scan cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "conversation_cache_scan_cache_misses_total",
		Help: "Total scan cache misses",
	})
}

// CountMerge adds n to the merge outcome counter. No-op before InitMetrics.
func CountMerge(outcome string, n int) {
	if MergeRecordsTotal == nil || n <= 0 {
		return
	}
	MergeRecordsTotal.WithLabelValues(outcome).Add(float64(n))
}

// CountRealtimeEvent increments the realtime outcome counter. No-op before InitMetrics.
func CountRealtimeEvent(outcome string) {
	if RealtimeEventsTotal == nil {
		return
	}
	RealtimeEventsTotal.WithLabelValues(outcome).Inc()
}

// Inc increments c when metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// ObserveSince records the elapsed time on h when metrics are initialized.
func ObserveSince(h prometheus.Observer, start time.Time) {
	if h != nil {
		h.Observe(time.Since(start).Seconds())
	}
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}

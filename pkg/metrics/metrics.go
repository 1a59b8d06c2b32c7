package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsOpenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3block_sessions_opened_total",
			Help: "Total number of NBD sessions opened",
		},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "s3block_sessions_active",
			Help: "Number of currently open NBD sessions",
		},
	)

	// Block operation metrics
	BlockOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3block_block_ops_total",
			Help: "Total number of block operations by op and status",
		},
		[]string{"op", "status"},
	)

	BlockOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "s3block_block_op_duration_seconds",
			Help:    "Block operation duration in seconds by op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	BytesTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3block_bytes_transferred_total",
			Help: "Total bytes transferred by direction (read, write)",
		},
		[]string{"direction"},
	)

	// Object store metrics
	ObjectStoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3block_objectstore_ops_total",
			Help: "Total number of object store calls by verb and status",
		},
		[]string{"verb", "status"},
	)

	ObjectStoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "s3block_objectstore_op_duration_seconds",
			Help:    "Object store call duration in seconds by verb",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	ObjectsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3block_objects_deleted_total",
			Help: "Total number of objects deleted via trim/batched delete",
		},
	)

	// Key-lock metrics
	LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "s3block_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a per-key lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	LocksHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "s3block_locks_held",
			Help: "Number of object keys currently locked",
		},
	)
)

func init() {
	prometheus.MustRegister(SessionsOpenTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(BlockOpsTotal)
	prometheus.MustRegister(BlockOpDuration)
	prometheus.MustRegister(BytesTransferred)
	prometheus.MustRegister(ObjectStoreOpsTotal)
	prometheus.MustRegister(ObjectStoreOpDuration)
	prometheus.MustRegister(ObjectsDeletedTotal)
	prometheus.MustRegister(LockWaitDuration)
	prometheus.MustRegister(LocksHeld)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

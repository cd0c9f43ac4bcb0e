package pebblestore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics is a MetricsHook backed by Prometheus collectors.
type PrometheusMetrics struct {
	writes  prometheus.Histogram
	reads   prometheus.Histogram
	commits prometheus.Histogram
	ops     prometheus.Counter
	bytes   *prometheus.CounterVec
}

// NewPrometheusMetrics registers the store collectors with reg under
// flolog_store_*.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)
	buckets := prometheus.ExponentialBuckets(0.00005, 2, 16)
	return &PrometheusMetrics{
		writes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flolog", Subsystem: "store", Name: "write_seconds",
			Help: "Latency of single-key writes.", Buckets: buckets,
		}),
		reads: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flolog", Subsystem: "store", Name: "read_seconds",
			Help: "Latency of point reads.", Buckets: buckets,
		}),
		commits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flolog", Subsystem: "store", Name: "batch_commit_seconds",
			Help: "Latency of batch commits.", Buckets: buckets,
		}),
		ops: f.NewCounter(prometheus.CounterOpts{
			Namespace: "flolog", Subsystem: "store", Name: "batch_ops_total",
			Help: "Operations committed in batches.",
		}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flolog", Subsystem: "store", Name: "bytes_total",
			Help: "Bytes read and written.",
		}, []string{"op"}),
	}
}

func (m *PrometheusMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.writes.Observe(elapsed.Seconds())
	m.bytes.WithLabelValues("write").Add(float64(bytes))
}

func (m *PrometheusMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.reads.Observe(elapsed.Seconds())
	m.bytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *PrometheusMetrics) ObserveBatchCommit(elapsed time.Duration, numOps int, _ int) {
	m.commits.Observe(elapsed.Seconds())
	m.ops.Add(float64(numOps))
}

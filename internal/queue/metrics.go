package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics receives engine events. Implementations must be safe for use from
// the writer goroutine and from tailers concurrently.
type Metrics interface {
	ObserveAppend(messages, bytes int)
	ObserveFlush(elapsed time.Duration)
	ObserveRoll(sealed SegmentInfo)
	ObserveCorruption()
	ObserveRecovery(truncatedBytes int64)
	SetNextSequence(seq uint64)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) ObserveAppend(int, int)     {}
func (NoopMetrics) ObserveFlush(time.Duration) {}
func (NoopMetrics) ObserveRoll(SegmentInfo)    {}
func (NoopMetrics) ObserveCorruption()         {}
func (NoopMetrics) ObserveRecovery(int64)      {}
func (NoopMetrics) SetNextSequence(uint64)     {}

// PrometheusMetrics exports engine events as Prometheus collectors.
type PrometheusMetrics struct {
	messages     prometheus.Counter
	bytes        prometheus.Counter
	flushes      prometheus.Histogram
	rolls        prometheus.Counter
	sealedBytes  prometheus.Histogram
	corruptions  prometheus.Counter
	truncated    prometheus.Counter
	nextSequence prometheus.Gauge
}

// NewPrometheusMetrics registers the queue collectors with reg. Registering
// twice on the same registry panics, as with promauto.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)
	return &PrometheusMetrics{
		messages: f.NewCounter(prometheus.CounterOpts{
			Namespace: "flolog", Subsystem: "queue", Name: "appended_messages_total",
			Help: "Messages written by the writer loop.",
		}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "flolog", Subsystem: "queue", Name: "appended_bytes_total",
			Help: "Frame bytes written to segment files.",
		}),
		flushes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flolog", Subsystem: "queue", Name: "flush_seconds",
			Help:    "Latency of durability barriers.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		rolls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "flolog", Subsystem: "queue", Name: "segment_rolls_total",
			Help: "Segments sealed.",
		}),
		sealedBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flolog", Subsystem: "queue", Name: "sealed_segment_bytes",
			Help:    "Size of segments at the time they were sealed.",
			Buckets: prometheus.ExponentialBuckets(1<<16, 4, 10),
		}),
		corruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "flolog", Subsystem: "queue", Name: "corrupted_frames_total",
			Help: "Frames that failed checksum verification on read.",
		}),
		truncated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "flolog", Subsystem: "queue", Name: "recovery_truncated_bytes_total",
			Help: "Bytes discarded from the active segment by startup recovery.",
		}),
		nextSequence: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "flolog", Subsystem: "queue", Name: "next_sequence",
			Help: "Next sequence the writer will assign.",
		}),
	}
}

func (m *PrometheusMetrics) ObserveAppend(messages, bytes int) {
	m.messages.Add(float64(messages))
	m.bytes.Add(float64(bytes))
}

func (m *PrometheusMetrics) ObserveFlush(elapsed time.Duration) {
	m.flushes.Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) ObserveRoll(sealed SegmentInfo) {
	m.rolls.Inc()
	m.sealedBytes.Observe(float64(sealed.SizeBytes))
}

func (m *PrometheusMetrics) ObserveCorruption() { m.corruptions.Inc() }

func (m *PrometheusMetrics) ObserveRecovery(truncatedBytes int64) {
	m.truncated.Add(float64(truncatedBytes))
}

func (m *PrometheusMetrics) SetNextSequence(seq uint64) { m.nextSequence.Set(float64(seq)) }

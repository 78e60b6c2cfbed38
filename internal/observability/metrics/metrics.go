// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "live_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionsEnded   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Transcript metrics
	EventsReceived  *prometheus.CounterVec
	EventsDiscarded *prometheus.CounterVec
	DisplayUpdates  prometheus.Counter
	DrainBatchSize  prometheus.Histogram

	// Recording metrics
	RecordingsSaved     *prometheus.CounterVec
	AudioBytesCaptured  prometheus.Counter
	AudioBuffersDropped prometheus.Counter
	UploadsReceived     *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	STTErrors             *prometheus.CounterVec
	STTFirstResultLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of recognition sessions started",
		}, []string{"source"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently streaming sessions",
		}),
		SessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions ended, by stop reason",
		}, []string{"reason"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of recognition sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of recognition events drained from session queues",
		}, []string{"kind"}),
		EventsDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_discarded_total",
			Help:      "Total number of events discarded for blank text",
		}, []string{"kind"}),
		DisplayUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_updates_total",
			Help:      "Total number of display strings rendered",
		}),
		DrainBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_batch_size",
			Help:      "Number of events drained per non-empty poll tick",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),

		RecordingsSaved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_saved_total",
			Help:      "Total number of recording save attempts, by result",
		}, []string{"result"}),
		AudioBytesCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_captured_total",
			Help:      "Total PCM bytes captured from the input device",
		}),
		AudioBuffersDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_buffers_dropped_total",
			Help:      "Captured buffers dropped because a live tap was full",
		}),
		UploadsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_received_total",
			Help:      "Total number of uploaded audio files, by result",
		}, []string{"result"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		STTErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
		STTFirstResultLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_first_result_latency_seconds",
			Help:      "Time from session start to the first recognition result",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart(source string) {
	m.SessionsTotal.WithLabelValues(source).Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(reason string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordDrain records one non-empty drain of a session queue.
func (m *Metrics) RecordDrain(n int) {
	if n > 0 {
		m.DrainBatchSize.Observe(float64(n))
	}
}

// RecordEvent records an event taken from a queue and whether it was applied.
func (m *Metrics) RecordEvent(kind string, applied bool) {
	m.EventsReceived.WithLabelValues(kind).Inc()
	if !applied {
		m.EventsDiscarded.WithLabelValues(kind).Inc()
	}
}

// RecordDisplayUpdate records a display string pushed to the sink.
func (m *Metrics) RecordDisplayUpdate() {
	m.DisplayUpdates.Inc()
}

// RecordRecordingSaved records a save attempt: saved, empty or error.
func (m *Metrics) RecordRecordingSaved(result string) {
	m.RecordingsSaved.WithLabelValues(result).Inc()
}

// RecordAudioCaptured records PCM bytes delivered by the capture device.
func (m *Metrics) RecordAudioCaptured(bytes int) {
	m.AudioBytesCaptured.Add(float64(bytes))
}

// RecordBufferDropped records a captured buffer a live tap could not take.
func (m *Metrics) RecordBufferDropped() {
	m.AudioBuffersDropped.Inc()
}

// RecordUpload records an uploaded file: accepted or rejected.
func (m *Metrics) RecordUpload(result string) {
	m.UploadsReceived.WithLabelValues(result).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordFirstResult records the initial response time of a recognizer.
func (m *Metrics) RecordFirstResult(provider string, latencySeconds float64) {
	m.STTFirstResultLatency.WithLabelValues(provider).Observe(latencySeconds)
}

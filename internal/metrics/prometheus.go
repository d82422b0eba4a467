package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors of the recorder service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	RecordingsStarted prometheus.Counter
	ActiveRecordings  prometheus.Gauge
	AudioBytes        prometheus.Histogram
	AudioDuration     prometheus.Histogram

	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	ModelReady            prometheus.Gauge

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "recorder_recordings_started_total",
			Help: "Total number of recording sessions started",
		}),
		ActiveRecordings: f.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_active_recordings",
			Help: "Current number of recording sessions capturing audio",
		}),
		AudioBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_audio_bytes",
			Help:    "Size of captured recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		AudioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_audio_duration_seconds",
			Help:    "Duration of decoded recordings",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_transcriptions_total",
			Help: "Transcription attempts by outcome",
		}, []string{"outcome"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_transcription_duration_seconds",
			Help:    "Time spent decoding and transcribing a recording",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ModelReady: f.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_model_ready",
			Help: "1 once the speech recognition engine is loaded",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recorder_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
	m.ActiveRecordings.Inc()
}

func (m *Metrics) RecordingStopped(bytes int) {
	if m == nil {
		return
	}
	m.ActiveRecordings.Dec()
	m.AudioBytes.Observe(float64(bytes))
}

// RecordTranscription records one processed recording. outcome is "success",
// "empty" or "error".
func (m *Metrics) RecordTranscription(outcome string, audio, took time.Duration) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(outcome).Inc()
	m.TranscriptionDuration.Observe(took.Seconds())
	if audio > 0 {
		m.AudioDuration.Observe(audio.Seconds())
	}
}

func (m *Metrics) SetModelReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.ModelReady.Set(1)
	} else {
		m.ModelReady.Set(0)
	}
}

func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(took.Seconds())
}

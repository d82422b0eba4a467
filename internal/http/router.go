package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obiente/translate/recorder/internal/audio"
	"github.com/obiente/translate/recorder/internal/capture"
	"github.com/obiente/translate/recorder/internal/metrics"
	"github.com/obiente/translate/recorder/internal/recorder"
	"github.com/obiente/translate/recorder/internal/telemetry"
	"github.com/obiente/translate/recorder/internal/whisper"
)

// ModelState reports engine loading. *whisper.Loader implements it.
type ModelState interface {
	recorder.EngineSource
	Status() whisper.Progress
}

// Health is an optional dependency reported by /healthz.
type Health interface {
	Healthy() bool
}

// prober is implemented by engines backed by a remote service.
type prober interface {
	Available(ctx context.Context) bool
}

const healthProbeTimeout = 2 * time.Second

type Deps struct {
	Model     ModelState
	Bus       Health
	Processor *recorder.Processor
	WS        http.HandlerFunc
	Metrics   *metrics.Metrics
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer     prometheus.Gatherer
	MaxBodyBytes int64
}

func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", d.instrument("/healthz", http.HandlerFunc(d.healthz)))

	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	if d.WS != nil {
		mux.Handle("/ws/record", d.instrument("/ws/record", d.WS))
	}
	mux.Handle("/api/transcribe", d.instrument("/api/transcribe", http.HandlerFunc(d.transcribe)))
	return mux
}

func (d Deps) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ok": true}
	if d.Model != nil {
		body["model"] = d.Model.Status()
		body["ready"] = d.Model.Ready()
		if eng, err := d.Model.Engine(); err == nil {
			if p, ok := eng.(prober); ok {
				ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
				body["engine_available"] = p.Available(ctx)
				cancel()
			}
		}
	}
	if d.Bus != nil {
		body["bus"] = d.Bus.Healthy()
	}
	writeJSON(w, http.StatusOK, body)
}

type segmentJSON struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcribeResponse struct {
	Text     string        `json:"text"`
	Language string        `json:"language,omitempty"`
	Segments []segmentJSON `json:"segments,omitempty"`
}

// transcribe runs one uploaded recording through the pipeline. The
// Content-Type header selects the decoder.
func (d Deps) transcribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Model == nil || d.Processor == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription unavailable")
		return
	}
	eng, err := d.Model.Engine()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	body := io.Reader(r.Body)
	if d.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, d.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio too large")
			return
		}
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	rec := capture.Recording{
		SessionID: uuid.NewString(),
		MimeType:  r.Header.Get("Content-Type"),
		Data:      data,
	}
	start := time.Now()
	res, dur, err := d.Processor.Process(r.Context(), eng, rec, nil)
	took := time.Since(start)
	switch {
	case errors.Is(err, recorder.ErrNoAudio):
		d.Metrics.RecordTranscription("empty", dur, took)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, audio.ErrUnsupportedFormat):
		d.Metrics.RecordTranscription("error", dur, took)
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case errors.Is(err, audio.ErrInvalidAudio):
		d.Metrics.RecordTranscription("error", dur, took)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		d.Metrics.RecordTranscription("error", dur, took)
		log.Error().Err(err).Str("session", rec.SessionID).Msg("http transcribe failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	d.Metrics.RecordTranscription("success", dur, took)

	out := transcribeResponse{Text: res.Text, Language: res.Language}
	for _, s := range res.Segments {
		out.Segments = append(out.Segments, segmentJSON{Start: s.Start.Seconds(), End: s.End.Seconds(), Text: s.Text})
	}
	log.Info().Str("session", rec.SessionID).Int("bytes", len(data)).Dur("took", took).Msg("http transcribe done")
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"error": detail})
}

// instrument traces the request and records its count and latency under a
// fixed endpoint label.
func (d Deps) instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(r.Context(), r.Method+" "+endpoint)
		defer span.End()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", endpoint),
			attribute.Int("http.status_code", sw.status),
		)
		d.Metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(sw.status), time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack lets the WebSocket upgrader take over the connection.
func (s *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

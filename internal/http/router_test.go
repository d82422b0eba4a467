package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/obiente/translate/recorder/internal/audio"
	"github.com/obiente/translate/recorder/internal/metrics"
	"github.com/obiente/translate/recorder/internal/recorder"
	"github.com/obiente/translate/recorder/internal/whisper"
)

type segmentEngine struct{}

func (segmentEngine) Name() string { return "segments" }

func (segmentEngine) Transcribe(_ context.Context, samples []float32, _ whisper.Options) (whisper.Result, error) {
	return whisper.Result{
		Text:     "one two",
		Language: "en",
		Segments: []whisper.Segment{
			{Start: 0, End: 1500 * time.Millisecond, Text: "one"},
			{Start: 1500 * time.Millisecond, End: 3 * time.Second, Text: "two"},
		},
	}, nil
}

func (segmentEngine) Close() error { return nil }

func newTestRouter(t *testing.T, ready bool) (http.Handler, *metrics.Metrics, *prometheus.Registry) {
	t.Helper()
	loader := whisper.NewLoader(func(context.Context, func(whisper.Progress)) (whisper.Engine, error) {
		return segmentEngine{}, nil
	})
	if ready {
		if err := loader.Load(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(func() { _ = loader.Close() })
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := NewRouter(Deps{
		Model: loader,
		Processor: &recorder.Processor{
			Decoder:    &audio.FormatDecoder{PCMSampleRate: 16000, PCMChannels: 1},
			SampleRate: 16000,
			Options:    whisper.DefaultOptions(),
		},
		Metrics:      m,
		Gatherer:     reg,
		MaxBodyBytes: 1 << 16,
	})
	return h, m, reg
}

func wavBody(t *testing.T) []byte {
	t.Helper()
	b, err := audio.EncodeWAV(make([]float32, 8000), 8000)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestRouter(t, true)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["ok"] != true || body["ready"] != true {
		t.Errorf("unexpected body %v", body)
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	h, m, _ := newTestRouter(t, true)
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", bytes.NewReader(wavBody(t)))
	req.Header.Set("Content-Type", "audio/wav")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var out transcribeResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Text != "one two" || len(out.Segments) != 2 || out.Segments[1].Start != 1.5 {
		t.Errorf("unexpected response %+v", out)
	}
	if got := testutil.ToFloat64(m.Transcriptions.WithLabelValues("success")); got != 1 {
		t.Errorf("success count = %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/transcribe", "200")); got != 1 {
		t.Errorf("http request count = %v", got)
	}
}

func TestTranscribeErrors(t *testing.T) {
	cases := []struct {
		name   string
		ready  bool
		method string
		mime   string
		body   []byte
		want   int
	}{
		{"wrong method", true, http.MethodGet, "audio/wav", nil, http.StatusMethodNotAllowed},
		{"model loading", false, http.MethodPost, "audio/wav", []byte{1}, http.StatusServiceUnavailable},
		{"empty body", true, http.MethodPost, "audio/wav", nil, http.StatusBadRequest},
		{"unsupported", true, http.MethodPost, "audio/ogg", []byte{1, 2}, http.StatusUnsupportedMediaType},
		{"too large", true, http.MethodPost, "audio/wav", make([]byte, 1<<17), http.StatusRequestEntityTooLarge},
		{"malformed wav", true, http.MethodPost, "audio/wav", []byte("definitely not a riff header"), http.StatusUnprocessableEntity},
		{"odd pcm", true, http.MethodPost, "audio/pcm", []byte{1, 2, 3}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _, _ := newTestRouter(t, tc.ready)
			req := httptest.NewRequest(tc.method, "/api/transcribe", bytes.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.mime)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, m, _ := newTestRouter(t, true)
	m.RecordingStarted()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "recorder_recordings_started_total") {
		t.Errorf("metrics output missing recorder counters:\n%s", rec.Body.String())
	}
}

func TestHealthzReportsSidecar(t *testing.T) {
	var up atomic.Bool
	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer sidecar.Close()

	loader := whisper.NewLoader(func(context.Context, func(whisper.Progress)) (whisper.Engine, error) {
		return whisper.NewSidecarEngine(whisper.SidecarConfig{URL: sidecar.URL}), nil
	})
	if err := loader.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer loader.Close()
	h := NewRouter(Deps{Model: loader, Metrics: metrics.New(prometheus.NewRegistry()), Gatherer: prometheus.NewRegistry()})

	for _, want := range []bool{true, false} {
		up.Store(want)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var body map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["engine_available"] != want {
			t.Errorf("engine_available = %v, want %v", body["engine_available"], want)
		}
	}
}

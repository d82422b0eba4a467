package whisper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/obiente/translate/recorder/internal/config"
)

func TestSidecarEngine(t *testing.T) {
	var gotFields map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/transcribe":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if _, _, err := r.FormFile("audio"); err != nil {
				http.Error(w, "missing audio", http.StatusBadRequest)
				return
			}
			gotFields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				gotFields[k] = v[0]
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"text":     " hello world ",
				"language": "en",
				"segments": []map[string]any{{"start": 0.0, "end": 1.5, "text": "hello world"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewSidecarEngine(SidecarConfig{URL: srv.URL, Timeout: 5 * time.Second})
	if !e.Available(context.Background()) {
		t.Fatal("expected sidecar to be available")
	}
	res, err := e.Transcribe(context.Background(), make([]float32, 1600), DefaultOptions())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != " hello world " || res.Language != "en" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Segments) != 1 || res.Segments[0].End != 1500*time.Millisecond {
		t.Errorf("unexpected segments %+v", res.Segments)
	}
	want := map[string]string{"language": "en", "task": "transcribe", "chunk_length": "30", "stride_length": "5"}
	for k, v := range want {
		if gotFields[k] != v {
			t.Errorf("field %s = %q, want %q", k, gotFields[k], v)
		}
	}
}

func TestSidecarEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewSidecarEngine(SidecarConfig{URL: srv.URL})
	_, err := e.Transcribe(context.Background(), make([]float32, 10), DefaultOptions())
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected status error, got %v", err)
	}
	if res, err := e.Transcribe(context.Background(), nil, DefaultOptions()); err != nil || res.Text != "" {
		t.Errorf("empty input should be a no-op, got %+v %v", res, err)
	}
}

func TestOpenAIEngine(t *testing.T) {
	var gotPath, gotLang, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotLang = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "english",
			"duration": 2.0,
			"text":     "testing one two",
			"segments": []map[string]any{{"id": 0, "start": 0.0, "end": 2.0, "text": "testing one two"}},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEngine(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	res, err := e.Transcribe(context.Background(), make([]float32, 3200), DefaultOptions())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "testing one two" || len(res.Segments) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if gotPath != "/v1/audio/transcriptions" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotLang != "en" || gotFormat != "verbose_json" {
		t.Errorf("unexpected form language=%q format=%q", gotLang, gotFormat)
	}

	opts := DefaultOptions()
	opts.Task = TaskTranslate
	if _, err := e.Transcribe(context.Background(), make([]float32, 3200), opts); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if gotPath != "/v1/audio/translations" {
		t.Errorf("unexpected translate path %q", gotPath)
	}
}

func TestExecEngine(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	// $0 receives "--audio"; $1 is the wav path
	e, err := NewExecEngine(`sh -c 'test -s "$1" && echo "{\"text\":\"from exec\",\"language\":\"en\"}"'`, 16000)
	if err != nil {
		t.Fatalf("NewExecEngine: %v", err)
	}
	res, err := e.Transcribe(context.Background(), make([]float32, 160), DefaultOptions())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "from exec" || res.Language != "en" {
		t.Errorf("unexpected result %+v", res)
	}

	bad, err := NewExecEngine(`sh -c 'echo not-json'`, 16000)
	if err != nil {
		t.Fatalf("NewExecEngine: %v", err)
	}
	if _, err := bad.Transcribe(context.Background(), make([]float32, 160), DefaultOptions()); err == nil {
		t.Error("expected decode error")
	}
	if _, err := NewExecEngine("", 16000); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestOpenFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ASR.Backend = config.BackendSidecar
	open, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	eng, err := open(context.Background(), func(Progress) {})
	if err != nil || eng.Name() != "sidecar" {
		t.Fatalf("expected sidecar engine, got %v %v", eng, err)
	}

	cfg.ASR.Backend = "nope"
	if _, err := Open(cfg, nil); err == nil {
		t.Error("expected error for unknown backend")
	}

	opts := OptionsFromConfig(config.Default().ASR)
	if opts != DefaultOptions() {
		t.Errorf("default config options %+v differ from DefaultOptions %+v", opts, DefaultOptions())
	}
}

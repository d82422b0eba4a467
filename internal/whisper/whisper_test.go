package whisper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestLanguageCode(t *testing.T) {
	tests := map[string]string{
		"english": "en",
		"English": "en",
		"":        "auto",
		"auto":    "auto",
		"de":      "de",
		"klingon": "klingon",
	}
	for in, want := range tests {
		if got := (Options{Language: in}).LanguageCode(); got != want {
			t.Errorf("LanguageCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if o.Language != "english" || o.Task != TaskTranscribe || o.ChunkLength != 30*time.Second || o.StrideLength != 5*time.Second {
		t.Errorf("unexpected defaults: %+v", o)
	}
}

func TestPlanWindowsShort(t *testing.T) {
	ws := PlanWindows(16000*10, 16000, 30*time.Second, 5*time.Second)
	if len(ws) != 1 {
		t.Fatalf("expected a single window, got %d", len(ws))
	}
	if ws[0].Start != 0 || ws[0].End != 160000 || !ws[0].Last {
		t.Errorf("unexpected window: %+v", ws[0])
	}
	if PlanWindows(0, 16000, 30*time.Second, 5*time.Second) != nil {
		t.Error("expected no windows for empty audio")
	}
}

func TestPlanWindowsCoverage(t *testing.T) {
	ws := PlanWindows(70, 1, 30*time.Second, 5*time.Second)
	want := []Window{
		{Start: 0, End: 30, KeepFrom: 0, KeepTo: 25},
		{Start: 20, End: 50, KeepFrom: 25, KeepTo: 45},
		{Start: 40, End: 70, KeepFrom: 45, KeepTo: 70, Last: true},
	}
	if len(ws) != len(want) {
		t.Fatalf("expected %d windows, got %d: %+v", len(want), len(ws), ws)
	}
	for i := range want {
		if ws[i] != want[i] {
			t.Errorf("window %d = %+v, want %+v", i, ws[i], want[i])
		}
	}

	for _, total := range []int{31, 55, 61, 100, 1234} {
		ws := PlanWindows(total, 1, 30*time.Second, 5*time.Second)
		next := 0
		for _, w := range ws {
			if w.KeepFrom != next {
				t.Fatalf("total=%d: gap before %+v (expected keep from %d)", total, w, next)
			}
			if w.End-w.Start > 30 {
				t.Fatalf("total=%d: window too long %+v", total, w)
			}
			next = w.KeepTo
		}
		if next != total || !ws[len(ws)-1].Last {
			t.Fatalf("total=%d: coverage ends at %d", total, next)
		}
	}
}

func TestPlanWindowsStrideTooLarge(t *testing.T) {
	ws := PlanWindows(100, 1, 30*time.Second, 20*time.Second)
	if len(ws) != 4 {
		t.Fatalf("expected back-to-back windows, got %+v", ws)
	}
	if ws[1].Start != 30 || ws[1].KeepFrom != 30 {
		t.Errorf("unexpected second window %+v", ws[1])
	}
}

// blockSegments reports one segment per 5 second block of the window. The
// window's samples carry their absolute offsets so the text names the block.
func blockSegments(_ context.Context, samples []float32) ([]Segment, string, error) {
	var segs []Segment
	base := int(samples[0])
	for rel := 0; rel+5 <= len(samples); rel += 5 {
		segs = append(segs, Segment{
			Start: time.Duration(rel) * time.Second,
			End:   time.Duration(rel+5) * time.Second,
			Text:  fmt.Sprintf("b%d", (base+rel)/5),
		})
	}
	return segs, "en", nil
}

func TestTranscribeWindowsStitches(t *testing.T) {
	samples := make([]float32, 70)
	for i := range samples {
		samples[i] = float32(i)
	}
	res, err := transcribeWindows(context.Background(), samples, 1, DefaultOptions(), blockSegments)
	if err != nil {
		t.Fatalf("transcribeWindows: %v", err)
	}
	var want []string
	for i := 0; i < 14; i++ {
		want = append(want, fmt.Sprintf("b%d", i))
	}
	if res.Text != strings.Join(want, " ") {
		t.Errorf("got %q, want %q", res.Text, strings.Join(want, " "))
	}
	if res.Language != "en" {
		t.Errorf("expected language en, got %q", res.Language)
	}
	last := res.Segments[len(res.Segments)-1]
	if last.Start != 65*time.Second || last.End != 70*time.Second {
		t.Errorf("segment times not shifted: %+v", last)
	}
}

func TestTranscribeWindowsError(t *testing.T) {
	boom := errors.New("boom")
	_, err := transcribeWindows(context.Background(), make([]float32, 10), 1, DefaultOptions(),
		func(context.Context, []float32) ([]Segment, string, error) { return nil, "", boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

type fakeEngine struct {
	closed bool
}

func (f *fakeEngine) Name() string { return "fake" }
func (f *fakeEngine) Close() error { f.closed = true; return nil }
func (f *fakeEngine) Transcribe(context.Context, []float32, Options) (Result, error) {
	return Result{Text: "hi"}, nil
}

func TestLoaderProgress(t *testing.T) {
	eng := &fakeEngine{}
	l := NewLoader(func(ctx context.Context, report func(Progress)) (Engine, error) {
		report(Downloading("ggml-small.en.bin", 50, 200))
		return eng, nil
	})
	ch, cancel := l.Subscribe()
	defer cancel()

	if _, err := l.Engine(); !errors.Is(err, ErrModelLoading) {
		t.Fatalf("expected ErrModelLoading, got %v", err)
	}
	if l.Ready() {
		t.Fatal("loader should not be ready before Load")
	}
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	var statuses []string
	for i := 0; i < 4; i++ {
		p := <-ch
		statuses = append(statuses, p.Status)
		if p.Status == StatusDownloading && (p.Percent != 25 || p.File != "ggml-small.en.bin") {
			t.Errorf("unexpected download progress %+v", p)
		}
	}
	want := []string{StatusPending, StatusLoading, StatusDownloading, StatusReady}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Errorf("statuses = %v, want %v", statuses, want)
	}

	got, err := l.Engine()
	if err != nil || got != eng {
		t.Fatalf("expected loaded engine, got %v %v", got, err)
	}
	if l.Status().Status != StatusReady {
		t.Errorf("expected ready status, got %+v", l.Status())
	}
	if err := l.Load(context.Background()); err == nil {
		t.Error("second Load should fail")
	}

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !eng.closed {
		t.Error("Close should close the engine")
	}
	if _, ok := <-ch; ok {
		t.Error("subscription should be closed after Close")
	}
	cancel()
}

func TestLoaderFailure(t *testing.T) {
	l := NewLoader(func(context.Context, func(Progress)) (Engine, error) {
		return nil, errors.New("no such file")
	})
	if err := l.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if _, err := l.Engine(); !errors.Is(err, ErrModelFailed) {
		t.Errorf("expected ErrModelFailed, got %v", err)
	}
	if st := l.Status(); st.Status != StatusError || !strings.Contains(st.Message, "no such file") {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestDownloadingPercent(t *testing.T) {
	if p := Downloading("f", 1, 3); p.Percent != 33 {
		t.Errorf("expected 33%%, got %d", p.Percent)
	}
	if p := Downloading("f", 10, 0); p.Percent != 0 {
		t.Errorf("unknown total should report 0%%, got %d", p.Percent)
	}
}

func TestStubEngineReportsMissingSupport(t *testing.T) {
	if cppCompiled {
		t.Skip("built with whisper.cpp support")
	}
	fetched := false
	fetch := func(context.Context, func(Progress)) error { fetched = true; return nil }
	l := NewLoader(OpenCPP(CPPConfig{ModelPath: "missing.bin"}, fetch))

	if err := l.Load(context.Background()); !errors.Is(err, ErrNotCompiled) {
		t.Fatalf("expected ErrNotCompiled, got %v", err)
	}
	if fetched {
		t.Error("model should not be fetched without whisper.cpp support")
	}
	if l.Ready() {
		t.Error("loader should not report ready")
	}
	if st := l.Status(); st.Status != StatusError {
		t.Errorf("status = %q, want %q", st.Status, StatusError)
	}
	if _, err := l.Engine(); !errors.Is(err, ErrModelFailed) {
		t.Errorf("expected ErrModelFailed, got %v", err)
	}
}

package whisper

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrModelLoading = errors.New("model is still loading")
	ErrModelFailed  = errors.New("model failed to load")
	ErrNotCompiled  = errors.New("whisper.cpp support not compiled in (build with -tags whisper_cpp)")
)

type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// Options are the fixed parameters a transcription runs with.
type Options struct {
	Language     string
	Task         Task
	ChunkLength  time.Duration
	StrideLength time.Duration
}

// DefaultOptions transcribes English in 30 second windows overlapping by 5
// seconds on each side.
func DefaultOptions() Options {
	return Options{
		Language:     "english",
		Task:         TaskTranscribe,
		ChunkLength:  30 * time.Second,
		StrideLength: 5 * time.Second,
	}
}

var languageCodes = map[string]string{
	"english":    "en",
	"german":     "de",
	"french":     "fr",
	"spanish":    "es",
	"italian":    "it",
	"portuguese": "pt",
	"dutch":      "nl",
	"russian":    "ru",
	"chinese":    "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"ukrainian":  "uk",
	"polish":     "pl",
	"turkish":    "tr",
	"arabic":     "ar",
	"hindi":      "hi",
}

// LanguageCode returns the ISO-639-1 code for Options.Language, "auto" when
// the language is unset.
func (o Options) LanguageCode() string {
	lang := strings.ToLower(strings.TrimSpace(o.Language))
	if lang == "" || lang == "auto" {
		return "auto"
	}
	if code, ok := languageCodes[lang]; ok {
		return code
	}
	return lang
}

type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Engine is the speech recognition pipeline: mono PCM32F samples in, text out.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, samples []float32, opts Options) (Result, error)
	Close() error
}

func joinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

//go:build whisper_cpp

package whisper

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

const cppCompiled = true

// EngineCPP is the whisper.cpp-backed implementation of Engine.
type EngineCPP struct {
	model   whisperpkg.Model
	threads uint
	mu      sync.Mutex // whisper.cpp contexts share the model; process serially
}

func NewCPPEngine(cfg CPPConfig) (Engine, error) {
	threads := uint(runtime.NumCPU())
	if cfg.Threads > 0 {
		threads = uint(cfg.Threads)
		log.Info().Int("threads", cfg.Threads).Msg("whisper: using configured thread count")
	} else {
		log.Info().Uint("threads", threads).Msg("whisper: using default thread count (CPU cores)")
	}

	m, err := whisperpkg.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	log.Info().Str("model", cfg.ModelPath).Bool("multilingual", m.IsMultilingual()).Msg("whisper: model loaded successfully")
	return &EngineCPP{model: m, threads: threads}, nil
}

func (e *EngineCPP) Name() string { return "whispercpp" }

func (e *EngineCPP) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe runs the model over 16 kHz mono samples. Recordings longer than
// one chunk are processed window by window.
func (e *EngineCPP) Transcribe(ctx context.Context, samples []float32, opts Options) (Result, error) {
	if len(samples) == 0 {
		return Result{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := transcribeWindows(ctx, samples, whisperpkg.SampleRate, opts, func(ctx context.Context, window []float32) ([]Segment, string, error) {
		return e.processWindow(window, opts)
	})
	if err != nil {
		return Result{}, err
	}
	log.Debug().
		Int("samples", len(samples)).
		Int("segments", len(res.Segments)).
		Str("lang", res.Language).
		Msg("whisper: transcription complete")
	return res, nil
}

func (e *EngineCPP) processWindow(samples []float32, opts Options) ([]Segment, string, error) {
	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, "", fmt.Errorf("create context: %w", err)
	}
	wctx.SetThreads(e.threads)
	if err := wctx.SetLanguage(opts.LanguageCode()); err != nil {
		return nil, "", fmt.Errorf("set language %q: %w", opts.Language, err)
	}
	wctx.SetTranslate(opts.Task == TaskTranslate)
	wctx.SetSplitOnWord(true)
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		log.Error().Err(err).Int("samples", len(samples)).Msg("whisper: process failed")
		return nil, "", fmt.Errorf("process audio: %w", err)
	}

	var segs []Segment
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if err == io.EOF {
				break
			}
			log.Warn().Err(err).Msg("whisper: error reading segment")
			break
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segs = append(segs, Segment{Start: seg.Start, End: seg.End, Text: text})
	}

	lang := wctx.Language()
	if lang == "" || lang == "auto" {
		lang = wctx.DetectedLanguage()
	}
	return segs, lang, nil
}

package whisper

import (
	"context"
	"fmt"
	"time"

	"github.com/obiente/translate/recorder/internal/config"
)

// FetchFunc makes a model file available locally.
type FetchFunc func(ctx context.Context, report func(Progress)) error

// OptionsFromConfig returns the transcription parameters from the asr section.
func OptionsFromConfig(c config.ASRConfig) Options {
	return Options{
		Language:     c.Language,
		Task:         Task(c.Task),
		ChunkLength:  c.ChunkDuration(),
		StrideLength: c.StrideDuration(),
	}
}

// Open picks the engine for cfg.ASR.Backend. fetch is only used by the
// whispercpp backend and may be nil.
func Open(cfg config.Config, fetch FetchFunc) (OpenFunc, error) {
	rate := cfg.ASR.SampleRate
	switch cfg.ASR.Backend {
	case config.BackendWhisperCPP:
		return OpenCPP(CPPConfig{ModelPath: cfg.Whisper.ModelPath, Threads: cfg.Whisper.Threads}, fetch), nil
	case config.BackendOpenAI:
		e := NewOpenAIEngine(OpenAIConfig{APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL, Model: cfg.OpenAI.Model, SampleRate: rate})
		return ready(e), nil
	case config.BackendSidecar:
		e := NewSidecarEngine(SidecarConfig{URL: cfg.Sidecar.URL, Timeout: time.Duration(cfg.Sidecar.Timeout) * time.Second, SampleRate: rate})
		return ready(e), nil
	case config.BackendExec:
		e, err := NewExecEngine(cfg.Exec.Command, rate)
		if err != nil {
			return nil, err
		}
		return ready(e), nil
	}
	return nil, fmt.Errorf("unknown asr backend %q", cfg.ASR.Backend)
}

func ready(e Engine) OpenFunc {
	return func(context.Context, func(Progress)) (Engine, error) { return e, nil }
}

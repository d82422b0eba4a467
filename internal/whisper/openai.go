package whisper

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/obiente/translate/recorder/internal/audio"
)

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	SampleRate int
}

// OpenAIEngine sends the recording to an OpenAI compatible audio endpoint.
// Long audio is chunked server side, so ChunkLength and StrideLength are not
// applied here.
type OpenAIEngine struct {
	client     *openai.Client
	model      string
	sampleRate int
}

func NewOpenAIEngine(cfg OpenAIConfig) *OpenAIEngine {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	return &OpenAIEngine{client: openai.NewClientWithConfig(oc), model: model, sampleRate: rate}
}

func (e *OpenAIEngine) Name() string { return "openai" }
func (e *OpenAIEngine) Close() error { return nil }

func (e *OpenAIEngine) Transcribe(ctx context.Context, samples []float32, opts Options) (Result, error) {
	if len(samples) == 0 {
		return Result{}, nil
	}
	wav, err := audio.EncodeWAV(samples, e.sampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("encode wav: %w", err)
	}
	req := openai.AudioRequest{
		Model:    e.model,
		Reader:   bytes.NewReader(wav),
		FilePath: "recording.wav",
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if lang := opts.LanguageCode(); lang != "auto" {
		req.Language = lang
	}

	var resp openai.AudioResponse
	if opts.Task == TaskTranslate {
		resp, err = e.client.CreateTranslation(ctx, req)
	} else {
		resp, err = e.client.CreateTranscription(ctx, req)
	}
	if err != nil {
		return Result{}, fmt.Errorf("openai %s: %w", opts.Task, err)
	}

	res := Result{Text: resp.Text, Language: resp.Language}
	for _, s := range resp.Segments {
		res.Segments = append(res.Segments, Segment{
			Start: secondsToDuration(s.Start),
			End:   secondsToDuration(s.End),
			Text:  s.Text,
		})
	}
	log.Debug().Str("model", e.model).Int("segments", len(res.Segments)).Float64("duration", resp.Duration).Msg("openai: transcription complete")
	return res, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

package recorder

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/recorder/internal/audio"
	"github.com/obiente/translate/recorder/internal/config"
	"github.com/obiente/translate/recorder/internal/metrics"
	"github.com/obiente/translate/recorder/internal/translation"
	"github.com/obiente/translate/recorder/internal/whisper"
)

// NewDecoder builds the decoder described by the decoder section. Without a
// command only WAV and raw PCM16 are accepted.
func NewDecoder(cfg config.Config) (audio.Decoder, error) {
	d := &audio.FormatDecoder{
		PCMSampleRate: cfg.ASR.SampleRate,
		PCMChannels:   1,
	}
	if cfg.Decoder.Command != "" {
		fb, err := audio.NewExecDecoder(cfg.Decoder.Command, cfg.ASR.SampleRate, cfg.Decoder.Channels)
		if err != nil {
			return nil, err
		}
		d.Fallback = fb
	}
	return d, nil
}

// ConfigFrom assembles a controller config. Each controller built from it
// shares dec, engines and m but keeps its own transcript.
func ConfigFrom(cfg config.Config, dec audio.Decoder, engines EngineSource, m *metrics.Metrics) Config {
	c := Config{
		Processor: &Processor{
			Decoder:    dec,
			SampleRate: cfg.ASR.SampleRate,
			Options:    whisper.OptionsFromConfig(cfg.ASR),
		},
		Engines:       engines,
		Metrics:       m,
		MaxAudioBytes: cfg.Capture.MaxAudioBytes,
	}
	if cfg.Translation.Enabled && cfg.Translation.BaseURL != "" && len(cfg.Translation.Targets) > 0 {
		c.Translator = translation.New(cfg.Translation.BaseURL, cfg.Translation.Timeout)
		c.TranslationTargets = cfg.Translation.Targets
		c.TranslationTimeout = time.Duration(cfg.Translation.Timeout) * time.Second
		log.Info().Strs("targets", cfg.Translation.Targets).Msg("recorder: translation enabled")
	}
	return c
}

package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/obiente/translate/recorder/internal/audio"
	"github.com/obiente/translate/recorder/internal/capture"
	"github.com/obiente/translate/recorder/internal/telemetry"
	"github.com/obiente/translate/recorder/internal/whisper"
)

var ErrNoAudio = errors.New("no audio captured")

// Processor turns a finished recording into text: decode, downmix to mono,
// resample to SampleRate, transcribe with Options.
type Processor struct {
	Decoder    audio.Decoder
	SampleRate int
	Options    whisper.Options
}

// Process runs the pipeline for rec. stage, when set, is told when inference
// begins. The returned duration is the decoded audio length.
func (p *Processor) Process(ctx context.Context, eng whisper.Engine, rec capture.Recording, stage func(status string)) (res whisper.Result, dur time.Duration, err error) {
	ctx, span := telemetry.StartSpan(ctx, "recorder.process")
	span.SetAttributes(
		attribute.String("session.id", rec.SessionID),
		attribute.String("audio.mime_type", rec.MimeType),
		attribute.Int("audio.bytes", len(rec.Data)),
	)
	defer func() {
		if err != nil && !errors.Is(err, ErrNoAudio) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(rec.Data) == 0 {
		return whisper.Result{}, 0, ErrNoAudio
	}
	buf, err := p.Decoder.Decode(ctx, rec.Data, rec.MimeType)
	if err != nil {
		if errors.Is(err, audio.ErrEmptyAudio) {
			return whisper.Result{}, 0, ErrNoAudio
		}
		return whisper.Result{}, 0, fmt.Errorf("decode audio: %w", err)
	}
	dur = buf.Duration()
	span.SetAttributes(attribute.Float64("audio.duration_seconds", dur.Seconds()))

	mono := audio.Downmix(buf)
	if len(mono) == 0 {
		return whisper.Result{}, dur, ErrNoAudio
	}
	if buf.SampleRate != p.SampleRate {
		mono = audio.ResampleLinear(mono, buf.SampleRate, p.SampleRate)
	}
	log.Debug().
		Str("session", rec.SessionID).
		Int("channels", len(buf.Channels)).
		Int("source_rate", buf.SampleRate).
		Int("samples", len(mono)).
		Dur("duration", dur).
		Msg("recorder: audio decoded")

	if stage != nil {
		stage(StatusTranscribing)
	}
	tctx, tspan := telemetry.StartSpan(ctx, "whisper.transcribe")
	tspan.SetAttributes(attribute.String("engine", eng.Name()), attribute.Int("samples", len(mono)))
	res, err = eng.Transcribe(tctx, mono, p.Options)
	tspan.End()
	if err != nil {
		return whisper.Result{}, dur, fmt.Errorf("transcribe: %w", err)
	}
	return res, dur, nil
}

package audio

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog/log"
)

// Decoder turns an encoded recording into PCM channels.
type Decoder interface {
	Decode(ctx context.Context, data []byte, mimeType string) (*Buffer, error)
}

// FormatDecoder decodes WAV and raw PCM16 itself and hands every other
// container to Fallback, when one is set.
type FormatDecoder struct {
	// PCMSampleRate and PCMChannels describe raw audio/pcm payloads that
	// carry no header.
	PCMSampleRate int
	PCMChannels   int
	Fallback      Decoder
}

func (d *FormatDecoder) Decode(ctx context.Context, data []byte, mimeType string) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	mt, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch mt {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return DecodeWAV(data)
	case "audio/pcm", "audio/l16", "audio/pcm16":
		rate := d.PCMSampleRate
		if n, err := strconv.Atoi(params["rate"]); err == nil && n > 0 {
			rate = n
		}
		channels := d.PCMChannels
		if n, err := strconv.Atoi(params["channels"]); err == nil && n > 0 {
			channels = n
		}
		return DecodePCM16LE(data, rate, channels)
	}
	if d.Fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	return d.Fallback.Decode(ctx, data, mimeType)
}

// ExecDecoder pipes the recording through an external converter that writes
// interleaved signed 16-bit little-endian PCM to stdout, e.g. ffmpeg.
type ExecDecoder struct {
	args       []string
	sampleRate int
	channels   int
}

// NewExecDecoder parses command with shell quoting rules. sampleRate and
// channels must match what the command emits.
func NewExecDecoder(command string, sampleRate, channels int) (*ExecDecoder, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse decoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("decoder command is empty")
	}
	return &ExecDecoder{args: args, sampleRate: sampleRate, channels: channels}, nil
}

func (d *ExecDecoder) Decode(ctx context.Context, data []byte, mimeType string) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	cmd := exec.CommandContext(ctx, d.args[0], d.args[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %s", mimeType, err, strings.TrimSpace(stderr.String()))
	}
	pcm := stdout.Bytes()
	// converters may stop mid-frame on truncated input
	if rem := len(pcm) % (2 * d.channels); rem != 0 {
		pcm = pcm[:len(pcm)-rem]
	}
	log.Debug().Str("mime", mimeType).Int("in_bytes", len(data)).Int("pcm_bytes", len(pcm)).Msg("audio: external decode complete")
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}
	return DecodePCM16LE(pcm, d.sampleRate, d.channels)
}

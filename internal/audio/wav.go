package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrEmptyAudio        = errors.New("empty audio")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidAudio      = errors.New("invalid audio data")
)

// DecodeWAV decodes a WAV blob into per-channel 32-bit float samples in [-1,1].
func DecodeWAV(b []byte) (*Buffer, error) {
	if len(b) == 0 {
		return nil, ErrEmptyAudio
	}
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a wav file", ErrInvalidAudio)
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		if err != io.EOF {
			return nil, fmt.Errorf("%w: read wav pcm: %v", ErrInvalidAudio, err)
		}
	}
	if ib == nil {
		return nil, fmt.Errorf("%w: empty wav buffer", ErrInvalidAudio)
	}
	bitDepth := ib.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	channels := int(dec.NumChans)
	if channels == 0 && ib.Format != nil {
		channels = ib.Format.NumChannels
	}
	if channels <= 0 {
		channels = 1
	}
	sr := int(dec.SampleRate)
	if sr == 0 && ib.Format != nil {
		sr = ib.Format.SampleRate
	}
	if sr == 0 {
		sr = 16000
	}

	frames := len(ib.Data) / channels
	out := newBuffer(channels, frames, sr)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out.Channels[ch][i] = float32(ib.Data[i*channels+ch]) / scale
		}
	}
	return out, nil
}

// DecodePCM16LE converts interleaved little-endian PCM16 bytes into a Buffer.
func DecodePCM16LE(b []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	frameSize := 2 * channels
	if len(b)%frameSize != 0 {
		return nil, fmt.Errorf("%w: pcm16 length %d is not a multiple of frame size %d", ErrInvalidAudio, len(b), frameSize)
	}
	frames := len(b) / frameSize
	out := newBuffer(channels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := i*frameSize + ch*2
			v := int16(uint16(b[off]) | uint16(b[off+1])<<8)
			out.Channels[ch][i] = float32(v) / 32768.0
		}
	}
	return out, nil
}

// EncodeWAV writes mono float samples as a 16-bit PCM WAV file.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	var ws seekBuffer
	enc := wav.NewEncoder(&ws, sampleRate, 16, 1, 1)
	if err := enc.Write(ib); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return ws.buf, nil
}

// seekBuffer is an in-memory io.WriteSeeker for the wav encoder, which
// rewrites the header sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("seek: negative position")
	}
	s.pos = int(abs)
	return abs, nil
}

// ResampleLinear resamples PCM32F from inRate to outRate using linear interpolation.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		return append([]float32(nil), samples...)
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen <= 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		s0 := samples[i0]
		s1 := samples[i0+1]
		out[i] = s0 + (s1-s0)*frac
	}
	return out
}

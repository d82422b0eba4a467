package audio

import "time"

// Buffer holds decoded audio as one float32 slice per channel.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

func newBuffer(channels, frames, sampleRate int) *Buffer {
	b := &Buffer{Channels: make([][]float32, channels), SampleRate: sampleRate}
	for i := range b.Channels {
		b.Channels[i] = make([]float32, frames)
	}
	return b
}

// Len returns the number of frames (samples per channel).
func (b *Buffer) Len() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.SampleRate)
}

// Downmix folds all channels into one by averaging them sample-wise. The
// result has the same length as each input channel.
func Downmix(b *Buffer) []float32 {
	n := b.Len()
	if n == 0 {
		return nil
	}
	if len(b.Channels) == 1 {
		return append([]float32(nil), b.Channels[0]...)
	}
	out := make([]float32, n)
	div := float32(len(b.Channels))
	for i := 0; i < n; i++ {
		var sum float32
		for _, ch := range b.Channels {
			sum += ch[i]
		}
		out[i] = sum / div
	}
	return out
}

package whisper

import (
	"context"
	"time"
)

// Window is one slice of a long recording handed to the model. Neighbouring
// windows overlap by the stride on each side; a window only owns segments
// whose midpoint lies in [KeepFrom, KeepTo).
type Window struct {
	Start, End       int
	KeepFrom, KeepTo int
	Last             bool
}

// Owns reports whether the absolute sample offset belongs to this window.
func (w Window) Owns(sample int) bool {
	if sample < w.KeepFrom {
		return false
	}
	return sample < w.KeepTo || w.Last
}

// PlanWindows splits total samples into chunk-sized windows advancing by
// chunk-2*stride.
func PlanWindows(total, sampleRate int, chunk, stride time.Duration) []Window {
	if total <= 0 {
		return nil
	}
	chunkN := int(chunk.Seconds() * float64(sampleRate))
	strideN := int(stride.Seconds() * float64(sampleRate))
	if chunkN <= 0 || total <= chunkN {
		return []Window{{Start: 0, End: total, KeepFrom: 0, KeepTo: total, Last: true}}
	}
	step := chunkN - 2*strideN
	if step <= 0 {
		step, strideN = chunkN, 0
	}

	var out []Window
	for start := 0; ; start += step {
		end := start + chunkN
		w := Window{Start: start, KeepFrom: start + strideN}
		if start == 0 {
			w.KeepFrom = 0
		}
		if end >= total {
			w.End, w.KeepTo, w.Last = total, total, true
			out = append(out, w)
			return out
		}
		w.End, w.KeepTo = end, end-strideN
		out = append(out, w)
	}
}

type windowFunc func(ctx context.Context, samples []float32) ([]Segment, string, error)

// transcribeWindows runs fn over every planned window and stitches the owned
// segments into one result. Segment times are shifted to the full recording.
func transcribeWindows(ctx context.Context, samples []float32, sampleRate int, opts Options, fn windowFunc) (Result, error) {
	var (
		res  Result
		segs []Segment
	)
	for _, w := range PlanWindows(len(samples), sampleRate, opts.ChunkLength, opts.StrideLength) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		windowSegs, lang, err := fn(ctx, samples[w.Start:w.End])
		if err != nil {
			return Result{}, err
		}
		if res.Language == "" {
			res.Language = lang
		}
		offset := time.Duration(w.Start) * time.Second / time.Duration(sampleRate)
		for _, s := range windowSegs {
			mid := offset + (s.Start+s.End)/2
			if !w.Owns(int(mid * time.Duration(sampleRate) / time.Second)) {
				continue
			}
			segs = append(segs, Segment{Start: offset + s.Start, End: offset + s.End, Text: s.Text})
		}
	}
	res.Segments = segs
	res.Text = joinSegments(segs)
	return res, nil
}

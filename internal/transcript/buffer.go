package transcript

import (
	"context"
	"strings"
	"sync"
)

// Separator goes between consecutive transcriptions.
const Separator = "\n\n"

// Clipboard receives copied transcript text.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Buffer is the accumulated transcript shown to the user.
type Buffer struct {
	mu   sync.RWMutex
	text string
}

// Append adds a transcription result and returns the full text. Surrounding
// whitespace is trimmed; blank results leave the buffer untouched.
func (b *Buffer) Append(text string) string {
	text = strings.TrimSpace(text)
	b.mu.Lock()
	defer b.mu.Unlock()
	if text == "" {
		return b.text
	}
	if b.text == "" {
		b.text = text
	} else {
		b.text = b.text + Separator + text
	}
	return b.text
}

func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

func (b *Buffer) Empty() bool {
	return b.Text() == ""
}

// Copy hands the current text to the clipboard.
func (b *Buffer) Copy(ctx context.Context, cb Clipboard) error {
	return cb.WriteText(ctx, b.Text())
}

// Clear empties the buffer if confirmed is set and reports whether it did.
func (b *Buffer) Clear(confirmed bool) bool {
	if !confirmed {
		return false
	}
	b.mu.Lock()
	b.text = ""
	b.mu.Unlock()
	return true
}

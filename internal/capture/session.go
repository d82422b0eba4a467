// Package capture holds the state of a single recording: the device stream it
// was started from and the encoded chunks received until it is stopped.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrInactive         = errors.New("recording is not active")
	ErrTooLarge         = errors.New("recording exceeds size limit")
)

// Device grants access to an audio input.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is a held audio input. Release must free the underlying device.
type Stream interface {
	Release() error
}

// Recording is what a stopped session hands over for processing.
type Recording struct {
	SessionID string
	MimeType  string
	Data      []byte
	Chunks    int
	Duration  time.Duration
}

type Session struct {
	ID        string
	MimeType  string
	StartedAt time.Time

	mu       sync.Mutex
	stream   Stream
	chunks   [][]byte
	size     int
	maxBytes int
	active   bool
}

// NewSession starts a session on an already opened stream. maxBytes <= 0
// disables the size limit.
func NewSession(stream Stream, mimeType string, startedAt time.Time, maxBytes int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		MimeType:  mimeType,
		StartedAt: startedAt,
		stream:    stream,
		maxBytes:  maxBytes,
		active:    true,
	}
}

// Active reports whether the session still accepts chunks.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Size returns the number of buffered bytes.
func (s *Session) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Append buffers a chunk. Empty chunks are dropped.
func (s *Session) Append(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrInactive
	}
	if len(chunk) == 0 {
		return nil
	}
	if s.maxBytes > 0 && s.size+len(chunk) > s.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, s.maxBytes)
	}
	s.chunks = append(s.chunks, append([]byte(nil), chunk...))
	s.size += len(chunk)
	return nil
}

// Stop releases the stream and returns the concatenated chunks. The release
// error, if any, is returned alongside a valid recording.
func (s *Session) Stop(now time.Time) (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return Recording{}, ErrInactive
	}
	s.active = false

	var releaseErr error
	if s.stream != nil {
		releaseErr = s.stream.Release()
		s.stream = nil
	}

	data := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		data = append(data, c...)
	}
	rec := Recording{
		SessionID: s.ID,
		MimeType:  s.MimeType,
		Data:      data,
		Chunks:    len(s.chunks),
		Duration:  now.Sub(s.StartedAt),
	}
	s.chunks = nil
	s.size = 0
	if releaseErr != nil {
		return rec, fmt.Errorf("release stream: %w", releaseErr)
	}
	return rec, nil
}

// Elapsed returns the time recorded so far.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if d := now.Sub(s.StartedAt); d > 0 {
		return d
	}
	return 0
}

// FormatElapsed renders d as m:ss, truncating to whole seconds.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

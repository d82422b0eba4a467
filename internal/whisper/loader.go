package whisper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusLoading     = "loading"
	StatusReady       = "ready"
	StatusError       = "error"
)

// Progress is one model loading step.
type Progress struct {
	Status  string `json:"status"`
	File    string `json:"file,omitempty"`
	Loaded  int64  `json:"loaded,omitempty"`
	Total   int64  `json:"total,omitempty"`
	Percent int    `json:"percent,omitempty"`
	Message string `json:"message,omitempty"`
}

// Downloading builds a download step with Percent rounded from loaded/total.
func Downloading(file string, loaded, total int64) Progress {
	p := Progress{Status: StatusDownloading, File: file, Loaded: loaded, Total: total}
	if total > 0 {
		p.Percent = int(math.Round(float64(loaded) / float64(total) * 100))
	}
	return p
}

// OpenFunc builds an engine, reporting progress along the way.
type OpenFunc func(ctx context.Context, report func(Progress)) (Engine, error)

// Loader opens an engine once in the background and fans its progress out to
// subscribers. Slow subscribers miss intermediate steps, never the latest
// status, which Subscribe replays.
type Loader struct {
	open OpenFunc

	mu      sync.Mutex
	started bool
	engine  Engine
	err     error
	status  Progress
	subs    map[int]chan Progress
	nextID  int
}

func NewLoader(open OpenFunc) *Loader {
	return &Loader{
		open:   open,
		status: Progress{Status: StatusPending},
		subs:   make(map[int]chan Progress),
	}
}

// Load opens the engine. Only the first call does any work.
func (l *Loader) Load(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("loader already started")
	}
	l.started = true
	l.mu.Unlock()

	l.publish(Progress{Status: StatusLoading})
	eng, err := l.open(ctx, l.publish)

	l.mu.Lock()
	l.engine, l.err = eng, err
	l.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("whisper: engine load failed")
		l.publish(Progress{Status: StatusError, Message: err.Error()})
		return err
	}
	log.Info().Str("engine", eng.Name()).Msg("whisper: engine ready")
	l.publish(Progress{Status: StatusReady})
	return nil
}

func (l *Loader) publish(p Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = p
	for _, ch := range l.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Subscribe returns a channel that first yields the current status and then
// every later step. cancel unregisters and closes the channel.
func (l *Loader) Subscribe() (<-chan Progress, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan Progress, 16)
	ch <- l.status
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if _, ok := l.subs[id]; ok {
				delete(l.subs, id)
				close(ch)
			}
		})
	}
}

// Engine returns the loaded engine, ErrModelLoading before it is ready or an
// ErrModelFailed wrapped error when loading failed.
func (l *Loader) Engine() (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != nil {
		return l.engine, nil
	}
	if l.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelFailed, l.err)
	}
	return nil, ErrModelLoading
}

func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}

func (l *Loader) Status() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Close releases the engine and closes every subscription.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
	if l.engine == nil {
		return nil
	}
	err := l.engine.Close()
	l.engine = nil
	l.err = errors.New("loader closed")
	return err
}

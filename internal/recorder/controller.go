// Package recorder drives one user's record, transcribe and display loop.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/recorder/internal/bus"
	"github.com/obiente/translate/recorder/internal/capture"
	"github.com/obiente/translate/recorder/internal/metrics"
	"github.com/obiente/translate/recorder/internal/transcript"
	"github.com/obiente/translate/recorder/internal/translation"
	"github.com/obiente/translate/recorder/internal/whisper"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("not recording")
	ErrBusy             = errors.New("previous recording is still processing")
	ErrModelNotReady    = errors.New("model not loaded yet")
	ErrClosed           = errors.New("controller closed")
)

// EngineSource hands out the loaded engine. *whisper.Loader implements it.
type EngineSource interface {
	Engine() (whisper.Engine, error)
	Ready() bool
}

type Translator interface {
	Translate(ctx context.Context, text, source string, targets []string) (map[string]translation.Result, error)
}

// Publisher forwards finished transcripts. *bus.Publisher implements it.
type Publisher interface {
	PublishTranscript(ctx context.Context, ev bus.TranscriptEvent) error
}

type Config struct {
	Processor *Processor
	Engines   EngineSource
	Metrics   *metrics.Metrics

	// MaxAudioBytes caps a single recording; <= 0 means unlimited.
	MaxAudioBytes int

	Translator         Translator
	TranslationTargets []string
	TranslationTimeout time.Duration

	Publisher Publisher

	TickInterval time.Duration
	EventBuffer  int
	Now          func() time.Time
}

// Controller owns the recording session, the elapsed-time ticker and the
// transcript buffer of one client. At most one session is active at a time.
type Controller struct {
	cfg        Config
	transcript transcript.Buffer

	mu       sync.Mutex
	state    State
	session  *capture.Session
	stopTick chan struct{}
	closed   bool
	wg       sync.WaitGroup

	evMu     sync.RWMutex
	evClosed bool
	events   chan Event
}

func NewController(cfg Config) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 128
	}
	if cfg.TranslationTimeout <= 0 {
		cfg.TranslationTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		cfg:    cfg,
		state:  StateIdle,
		events: make(chan Event, cfg.EventBuffer),
	}
}

// Events is closed by Close once pending work has finished.
func (c *Controller) Events() <-chan Event { return c.events }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Transcript() string { return c.transcript.Text() }

func (c *Controller) Controls() Controls {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlsLocked()
}

func (c *Controller) controlsLocked() Controls {
	hasText := !c.transcript.Empty()
	return Controls{
		Record: c.state == StateIdle && !c.closed && c.cfg.Engines != nil && c.cfg.Engines.Ready(),
		Stop:   c.state == StateRecording,
		Copy:   hasText,
		Clear:  hasText,
	}
}

func (c *Controller) emitControlsLocked() {
	ctl := c.controlsLocked()
	c.emit(Event{Type: EventControls, State: c.state, Controls: &ctl})
}

// ObserveModel turns a model loading step into user facing events.
func (c *Controller) ObserveModel(p whisper.Progress) {
	prog := p
	c.emit(Event{Type: EventProgress, Progress: &prog})
	switch p.Status {
	case whisper.StatusDownloading:
		c.status(fmt.Sprintf("Downloading model... %s %d%%", p.File, p.Percent))
	case whisper.StatusLoading:
		if p.File != "" {
			c.status(StatusLoadingModel + " " + p.File)
		} else {
			c.status(StatusLoadingModel)
		}
	case whisper.StatusReady:
		c.status(StatusModelReady)
		c.mu.Lock()
		c.emitControlsLocked()
		c.mu.Unlock()
	case whisper.StatusError:
		c.status("Error loading model: " + p.Message)
	}
}

// Start opens dev and begins a session. A denied device leaves the
// controller idle with the record control enabled.
func (c *Controller) Start(ctx context.Context, dev capture.Device, mimeType string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return "", ErrClosed
	case c.state == StateRecording:
		return "", ErrAlreadyRecording
	case c.state == StateProcessing:
		return "", ErrBusy
	case c.cfg.Engines == nil || !c.cfg.Engines.Ready():
		return "", ErrModelNotReady
	}

	stream, err := dev.Open(ctx)
	if err != nil {
		log.Error().Err(err).Msg("recorder: open device")
		c.emit(Event{Type: EventError, Status: StatusMicDenied, Detail: err.Error()})
		c.status(StatusMicDenied)
		c.emitControlsLocked()
		return "", fmt.Errorf("open device: %w", err)
	}

	now := c.cfg.Now()
	sess := capture.NewSession(stream, mimeType, now, c.cfg.MaxAudioBytes)
	c.session = sess
	c.state = StateRecording
	c.stopTick = make(chan struct{})
	c.cfg.Metrics.RecordingStarted()

	log.Info().Str("session", sess.ID).Str("mime", mimeType).Msg("recorder: recording started")
	c.emit(Event{Type: EventTick, SessionID: sess.ID, Elapsed: capture.FormatElapsed(0)})
	c.status(StatusRecording)
	c.emitControlsLocked()
	go c.tick(sess, c.stopTick)
	return sess.ID, nil
}

func (c *Controller) tick(sess *capture.Session, stop <-chan struct{}) {
	t := time.NewTicker(c.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.emit(Event{
				Type:      EventTick,
				SessionID: sess.ID,
				Elapsed:   capture.FormatElapsed(sess.Elapsed(c.cfg.Now())),
			})
		}
	}
}

// Write buffers one encoded chunk of the active session. A capture failure
// ends the session and returns the controller to idle.
func (c *Controller) Write(chunk []byte) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return ErrNotRecording
	}
	if err := sess.Append(chunk); err != nil {
		if errors.Is(err, capture.ErrInactive) {
			return ErrNotRecording
		}
		c.abort(sess, err)
		return err
	}
	return nil
}

// detachLocked clears the active session and stops its ticker. The caller
// releases the returned session outside c.mu.
func (c *Controller) detachLocked() *capture.Session {
	sess := c.session
	if sess == nil {
		return nil
	}
	close(c.stopTick)
	c.stopTick = nil
	c.session = nil
	return sess
}

// abort drops sess after a capture failure.
func (c *Controller) abort(sess *capture.Session, cause error) {
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	c.state = StateIdle
	c.mu.Unlock()

	rec, err := sess.Stop(c.cfg.Now())
	if err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("recorder: release stream")
	}
	c.cfg.Metrics.RecordingStopped(len(rec.Data))
	log.Error().Err(cause).Str("session", sess.ID).Msg("recorder: capture failed")

	msg := "Error: " + cause.Error()
	c.emit(Event{Type: EventError, SessionID: sess.ID, Status: msg, Detail: cause.Error()})
	c.status(msg)
	c.mu.Lock()
	c.emitControlsLocked()
	c.mu.Unlock()
}

// Stop ends the session, releases its stream and processes the audio in the
// background. Processing is not tied to ctx's cancellation.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording || c.session == nil {
		c.mu.Unlock()
		return ErrNotRecording
	}
	sess := c.detachLocked()
	c.state = StateProcessing
	c.wg.Add(1)
	c.mu.Unlock()

	rec, err := sess.Stop(c.cfg.Now())
	if err != nil {
		log.Warn().Err(err).Str("session", rec.SessionID).Msg("recorder: release stream")
	}
	c.cfg.Metrics.RecordingStopped(len(rec.Data))

	log.Info().
		Str("session", rec.SessionID).
		Int("chunks", rec.Chunks).
		Int("bytes", len(rec.Data)).
		Dur("elapsed", rec.Duration).
		Msg("recorder: recording stopped")
	c.status(StatusProcessing)
	c.mu.Lock()
	c.emitControlsLocked()
	c.mu.Unlock()

	go c.process(context.WithoutCancel(ctx), rec)
	return nil
}

// Wait blocks until background processing has finished.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) process(ctx context.Context, rec capture.Recording) {
	defer c.wg.Done()
	start := c.cfg.Now()

	eng, err := c.cfg.Engines.Engine()
	if err != nil {
		c.fail(rec.SessionID, err)
		return
	}

	res, dur, err := c.cfg.Processor.Process(ctx, eng, rec, c.status)
	took := c.cfg.Now().Sub(start)
	switch {
	case errors.Is(err, ErrNoAudio):
		c.cfg.Metrics.RecordTranscription("empty", dur, took)
		log.Info().Str("session", rec.SessionID).Msg("recorder: no audio captured")
		c.status(StatusNoAudio)
		c.idle()
		return
	case err != nil:
		c.cfg.Metrics.RecordTranscription("error", dur, took)
		c.fail(rec.SessionID, err)
		return
	}
	c.cfg.Metrics.RecordTranscription("success", dur, took)

	text := strings.TrimSpace(res.Text)
	full := c.transcript.Append(text)
	log.Info().
		Str("session", rec.SessionID).
		Str("engine", eng.Name()).
		Int("chars", len(text)).
		Dur("took", took).
		Msg("recorder: transcription complete")

	translations := c.translate(ctx, text, res.Language)
	c.emit(Event{
		Type:         EventTranscript,
		SessionID:    rec.SessionID,
		Text:         text,
		FullText:     full,
		Language:     res.Language,
		Translations: translations,
	})
	c.publish(ctx, rec.SessionID, text, res.Language, translations)
	c.status(StatusComplete)
	c.idle()
}

func (c *Controller) translate(ctx context.Context, text, lang string) map[string]translation.Result {
	if c.cfg.Translator == nil || len(c.cfg.TranslationTargets) == 0 || text == "" {
		return nil
	}
	tctx, cancel := context.WithTimeout(ctx, c.cfg.TranslationTimeout)
	defer cancel()
	out, err := c.cfg.Translator.Translate(tctx, text, lang, c.cfg.TranslationTargets)
	if err != nil {
		log.Warn().Err(err).Msg("recorder: translation failed")
		return nil
	}
	return out
}

func (c *Controller) publish(ctx context.Context, sessionID, text, lang string, translations map[string]translation.Result) {
	if c.cfg.Publisher == nil || text == "" {
		return
	}
	ev := bus.TranscriptEvent{SessionID: sessionID, Text: text, Language: lang}
	if len(translations) > 0 {
		ev.Translations = make(map[string]string, len(translations))
		for target, tr := range translations {
			ev.Translations[target] = tr.Primary
		}
	}
	if err := c.cfg.Publisher.PublishTranscript(ctx, ev); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("recorder: publish transcript")
	}
}

func (c *Controller) fail(sessionID string, err error) {
	log.Error().Err(err).Str("session", sessionID).Msg("recorder: processing failed")
	msg := "Error: " + err.Error()
	c.emit(Event{Type: EventError, SessionID: sessionID, Status: msg, Detail: err.Error()})
	c.status(msg)
	c.idle()
}

func (c *Controller) idle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.emitControlsLocked()
}

// Copy hands the transcript to cb. The transcript is never modified.
func (c *Controller) Copy(ctx context.Context, cb transcript.Clipboard) error {
	if err := c.transcript.Copy(ctx, cb); err != nil {
		log.Error().Err(err).Msg("recorder: copy to clipboard")
		c.emit(Event{Type: EventError, Status: StatusCopyFailed, Detail: err.Error()})
		c.status(StatusCopyFailed)
		return fmt.Errorf("copy: %w", err)
	}
	c.emit(Event{Type: EventCopied, Status: StatusCopied})
	return nil
}

// Clear empties the transcript when confirmed. Without confirmation it asks
// the client to confirm and reports false.
func (c *Controller) Clear(confirmed bool) bool {
	if !c.transcript.Clear(confirmed) {
		c.emit(Event{Type: EventConfirmClear, Status: StatusConfirmClear})
		return false
	}
	c.emit(Event{Type: EventCleared, Status: StatusCleared})
	c.mu.Lock()
	c.emitControlsLocked()
	c.mu.Unlock()
	return true
}

// Close drops an active session, waits for processing and closes Events.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sess := c.detachLocked()
	if sess != nil {
		c.state = StateIdle
	}
	c.mu.Unlock()

	if sess != nil {
		if _, err := sess.Stop(c.cfg.Now()); err != nil {
			log.Warn().Err(err).Msg("recorder: release stream on close")
		}
		c.cfg.Metrics.RecordingStopped(0)
	}

	c.wg.Wait()

	c.evMu.Lock()
	c.evClosed = true
	close(c.events)
	c.evMu.Unlock()
}

func (c *Controller) status(s string) {
	c.emit(Event{Type: EventStatus, Status: s})
}

// emit never blocks; events are dropped when the consumer falls behind.
func (c *Controller) emit(ev Event) {
	c.evMu.RLock()
	defer c.evMu.RUnlock()
	if c.evClosed {
		return
	}
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("type", string(ev.Type)).Msg("recorder: event dropped, consumer too slow")
	}
}

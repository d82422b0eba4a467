// Package bus publishes finished transcripts to NATS for downstream consumers.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/recorder/internal/config"
)

const flushTimeout = 2 * time.Second

// TranscriptEvent is the message body published for every transcription.
type TranscriptEvent struct {
	SessionID    string            `json:"session_id"`
	Text         string            `json:"text"`
	Language     string            `json:"language,omitempty"`
	Translations map[string]string `json:"translations,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect dials the configured servers.
func Connect(cfg config.BusConfig) (*Publisher, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	opts := []nats.Option{
		nats.Name("recorder"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("bus: disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("bus: reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info().Str("servers", url).Str("subject", cfg.Subject).Msg("bus: connected")
	return &Publisher{conn: conn, subject: cfg.Subject}, nil
}

// PublishTranscript sends ev and flushes so delivery failures surface here.
func (p *Publisher) PublishTranscript(ctx context.Context, ev TranscriptEvent) error {
	if p == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode transcript event: %w", err)
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		return fmt.Errorf("publish transcript: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		return p.conn.FlushTimeout(flushTimeout)
	}
	return p.conn.FlushWithContext(ctx)
}

func (p *Publisher) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("bus: drain")
	}
}

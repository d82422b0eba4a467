// Package ws serves one recorder session per WebSocket connection.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/recorder/internal/capture"
	"github.com/obiente/translate/recorder/internal/recorder"
	"github.com/obiente/translate/recorder/internal/whisper"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second

	defaultMimeType = "audio/webm"
)

// ProgressSource streams model loading steps. *whisper.Loader implements it.
type ProgressSource interface {
	Subscribe() (<-chan whisper.Progress, func())
}

type Server struct {
	upgrader websocket.Upgrader
	newCtrl  func() *recorder.Controller
	progress ProgressSource
}

// NewServer serves controllers built by newCtrl. progress may be nil.
func NewServer(newCtrl func() *recorder.Controller, progress ProgressSource) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		newCtrl:  newCtrl,
		progress: progress,
	}
}

// clientMessage is any message a client sends. Only the fields relevant to
// Type are read.
type clientMessage struct {
	Type       string `json:"type"`
	Ts         any    `json:"ts,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	Permission *bool  `json:"permission,omitempty"`
	Data       string `json:"data,omitempty"`
	Confirm    bool   `json:"confirm,omitempty"`
}

// peer serialises writes to one connection.
type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(v)
}

func (p *peer) ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (p *peer) sendError(detail string) {
	_ = p.send(map[string]any{"type": "error", "detail": detail})
}

// clipboard asks the client to put text on its clipboard.
type clipboard struct{ p *peer }

func (c clipboard) WriteText(_ context.Context, text string) error {
	return c.p.send(map[string]any{"type": "clipboard", "text": text})
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(readTimeout)); return nil })

	p := &peer{conn: conn}
	ctrl := s.newCtrl()

	// controller events to the client
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for ev := range ctrl.Events() {
			if err := p.send(ev); err != nil {
				log.Debug().Err(err).Str("type", string(ev.Type)).Msg("ws write failed")
			}
		}
	}()

	ctl := ctrl.Controls()
	_ = p.send(recorder.Event{Type: recorder.EventControls, State: ctrl.State(), Controls: &ctl})

	var unsubscribe func()
	if s.progress != nil {
		var ch <-chan whisper.Progress
		ch, unsubscribe = s.progress.Subscribe()
		go func() {
			for pr := range ch {
				ctrl.ObserveModel(pr)
			}
		}()
	}

	stopPing := make(chan struct{})
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-t.C:
				if err := p.ping(); err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		close(stopPing)
		if unsubscribe != nil {
			unsubscribe()
		}
		ctrl.Close()
		<-pumpDone
		log.Info().Msg("ws session closed")
	}()

	log.Info().Str("remote", r.RemoteAddr).Msg("ws session opened")
	ctx := r.Context()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if mt == websocket.BinaryMessage {
			writeChunk(p, ctrl, data)
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.sendError("invalid json")
			continue
		}
		s.dispatch(ctx, p, ctrl, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, p *peer, ctrl *recorder.Controller, msg clientMessage) {
	switch msg.Type {
	case "ping":
		_ = p.send(map[string]any{"type": "pong", "ts": msg.Ts})
	case "start":
		mime := msg.MimeType
		if mime == "" {
			mime = defaultMimeType
		}
		dev := capture.ClientDevice{
			Granted: msg.Permission == nil || *msg.Permission,
			OnRelease: func() error {
				return p.send(map[string]any{"type": "released"})
			},
		}
		id, err := ctrl.Start(ctx, dev, mime)
		if err != nil {
			// device failures are already reported by the controller
			if !errors.Is(err, capture.ErrPermissionDenied) {
				p.sendError(err.Error())
			}
			return
		}
		_ = p.send(map[string]any{"type": "started", "session_id": id})
	case "chunk":
		if msg.Data == "" {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			p.sendError("invalid base64 audio")
			return
		}
		writeChunk(p, ctrl, raw)
	case "stop":
		if err := ctrl.Stop(ctx); err != nil {
			p.sendError(err.Error())
		}
	case "copy":
		_ = ctrl.Copy(ctx, clipboard{p: p})
	case "clear":
		ctrl.Clear(msg.Confirm)
	default:
		p.sendError("unknown message type")
	}
}

func writeChunk(p *peer, ctrl *recorder.Controller, chunk []byte) {
	err := ctrl.Write(chunk)
	// capture failures are reported by the controller
	if err != nil && !errors.Is(err, capture.ErrTooLarge) {
		p.sendError(err.Error())
	}
}

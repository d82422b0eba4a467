package ws

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obiente/translate/recorder/internal/audio"
	"github.com/obiente/translate/recorder/internal/recorder"
	"github.com/obiente/translate/recorder/internal/whisper"
)

type echoEngine struct{}

func (echoEngine) Name() string { return "echo" }

func (echoEngine) Transcribe(context.Context, []float32, whisper.Options) (whisper.Result, error) {
	return whisper.Result{Text: "heard audio", Language: "en"}, nil
}

func (echoEngine) Close() error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *whisper.Loader) {
	t.Helper()
	loader := whisper.NewLoader(func(context.Context, func(whisper.Progress)) (whisper.Engine, error) {
		return echoEngine{}, nil
	})
	if err := loader.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	newCtrl := func() *recorder.Controller {
		return recorder.NewController(recorder.Config{
			Processor: &recorder.Processor{
				Decoder:    &audio.FormatDecoder{PCMSampleRate: 16000, PCMChannels: 1},
				SampleRate: 16000,
				Options:    whisper.DefaultOptions(),
			},
			Engines:      loader,
			TickInterval: time.Hour,
		})
	}
	srv := httptest.NewServer(http.HandlerFunc(NewServer(newCtrl, loader).Handle))
	return srv, loader
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// waitFor reads messages until match returns true.
func waitFor(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func ofType(typ string) func(map[string]any) bool {
	return func(m map[string]any) bool { return m["type"] == typ }
}

func TestRecordingRoundTrip(t *testing.T) {
	srv, loader := newTestServer(t)
	defer srv.Close()
	defer loader.Close()
	conn := dial(t, srv)
	defer conn.Close()

	waitFor(t, conn, func(m map[string]any) bool {
		if m["type"] != "controls" {
			return false
		}
		ctl, _ := m["controls"].(map[string]any)
		return ctl["record"] == true
	})

	_ = conn.WriteJSON(map[string]any{"type": "ping", "ts": 42})
	pong := waitFor(t, conn, ofType("pong"))
	if pong["ts"] != float64(42) {
		t.Errorf("pong ts = %v", pong["ts"])
	}

	_ = conn.WriteJSON(map[string]any{"type": "start", "mime_type": "audio/pcm;rate=16000", "permission": true})
	started := waitFor(t, conn, ofType("started"))
	if started["session_id"] == "" {
		t.Error("missing session id")
	}
	pcm := make([]byte, 3200)
	_ = conn.WriteJSON(map[string]any{"type": "chunk", "data": base64.StdEncoding.EncodeToString(pcm)})
	_ = conn.WriteJSON(map[string]any{"type": "stop"})

	waitFor(t, conn, ofType("released"))
	tr := waitFor(t, conn, ofType("transcript"))
	if tr["text"] != "heard audio" || tr["fullText"] != "heard audio" {
		t.Errorf("unexpected transcript %v", tr)
	}
	waitFor(t, conn, func(m map[string]any) bool {
		return m["type"] == "status" && m["status"] == recorder.StatusComplete
	})

	_ = conn.WriteJSON(map[string]any{"type": "copy"})
	cb := waitFor(t, conn, ofType("clipboard"))
	if cb["text"] != "heard audio" {
		t.Errorf("clipboard text = %v", cb["text"])
	}
	waitFor(t, conn, ofType("copied"))

	_ = conn.WriteJSON(map[string]any{"type": "clear"})
	waitFor(t, conn, ofType("confirm_clear"))
	_ = conn.WriteJSON(map[string]any{"type": "clear", "confirm": true})
	waitFor(t, conn, ofType("cleared"))
}

func TestPermissionDenied(t *testing.T) {
	srv, loader := newTestServer(t)
	defer srv.Close()
	defer loader.Close()
	conn := dial(t, srv)
	defer conn.Close()

	_ = conn.WriteJSON(map[string]any{"type": "start", "permission": false})
	waitFor(t, conn, func(m map[string]any) bool {
		return m["type"] == "status" && m["status"] == recorder.StatusMicDenied
	})
	ctl := waitFor(t, conn, ofType("controls"))
	if c, _ := ctl["controls"].(map[string]any); c["record"] != true {
		t.Errorf("record should stay enabled, got %v", ctl)
	}
}

func TestProtocolErrors(t *testing.T) {
	srv, loader := newTestServer(t)
	defer srv.Close()
	defer loader.Close()
	conn := dial(t, srv)
	defer conn.Close()

	cases := []struct {
		name string
		send string
	}{
		{"invalid json", "{"},
		{"unknown type", `{"type":"dance"}`},
		{"stop while idle", `{"type":"stop"}`},
		{"bad base64", `{"type":"chunk","data":"***"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(tc.send))
			msg := waitFor(t, conn, ofType("error"))
			if msg["detail"] == "" {
				t.Error("missing error detail")
			}
		})
	}
}

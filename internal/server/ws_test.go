package server_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mutsucloud/otogi/internal/session"
	"github.com/mutsucloud/otogi/pkg/provider/chat"
	"github.com/mutsucloud/otogi/pkg/types"
)

type wsEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   string `json:"error"`
	Level   string `json:"level"`
	Text    string `json:"text"`
}

// dial upgrades a connection against the env's handler for the given session.
func dial(t *testing.T, ctx context.Context, e *env, sessionID string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(e.srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) wsEvent {
	t.Helper()
	var ev wsEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("wsjson.Read: %v", err)
	}
	return ev
}

func TestStream_SendStreamsUpdates(t *testing.T) {
	t.Parallel()
	e := newEnv(t, []chat.Chunk{{Text: "Hel"}, {Text: "lo."}, {FinishReason: "stop"}})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dial(t, ctx, e, e.sessID)

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "send", "text": "hi"}); err != nil {
		t.Fatalf("write command: %v", err)
	}

	var last wsEvent
	for {
		ev := readEvent(t, ctx, conn)
		if ev.Type == "error" {
			t.Fatalf("unexpected error event: %s", ev.Error)
		}
		if ev.Type != "update" {
			continue
		}
		last = ev
		if ev.Done {
			break
		}
	}
	if last.Content != "Hello." {
		t.Errorf("final content = %q", last.Content)
	}

	s, _ := e.store.Get(e.sessID)
	if len(s.Messages) != 2 || s.Messages[1].Content != "Hello." {
		t.Errorf("session transcript = %+v", s.Messages)
	}
}

func TestStream_UnknownSessionRejectsHandshake(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	ts := httptest.NewServer(e.srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/nope/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		conn.Close(websocket.StatusNormalClosure, "")
		t.Fatal("handshake for unknown session succeeded")
	}
}

func TestStream_UnknownCommand(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dial(t, ctx, e, e.sessID)

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "warp"}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	ev := readEvent(t, ctx, conn)
	if ev.Type != "error" || !strings.Contains(ev.Error, "warp") {
		t.Errorf("event = %+v, want error naming the command", ev)
	}
}

func TestStream_VisualCommandError(t *testing.T) {
	t.Parallel()
	// Image generation is off in the default test config, so a bare visual
	// prompt is rejected.
	e := newEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dial(t, ctx, e, e.sessID)

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "visual", "text": "her by the window"}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	if ev := readEvent(t, ctx, conn); ev.Type != "error" {
		t.Errorf("event = %+v, want error", ev)
	}
}

func TestStream_RegenerateOverWire(t *testing.T) {
	t.Parallel()
	e := newEnv(t, []chat.Chunk{{Text: "Take two."}, {FinishReason: "stop"}})
	e.store.Apply(e.sessID, func(s session.Session) session.Session {
		s = session.AppendMessage(s, types.Message{ID: "u1", Role: types.RoleUser, Content: "tell me"})
		return session.AppendMessage(s, types.Message{ID: "a1", Role: types.RoleAssistant, Content: "Take one."})
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dial(t, ctx, e, e.sessID)

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "regenerate", "index": 1}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	for {
		ev := readEvent(t, ctx, conn)
		if ev.Type == "error" {
			t.Fatalf("unexpected error event: %s", ev.Error)
		}
		if ev.Type == "update" && ev.Done {
			if ev.Content != "Take two." {
				t.Errorf("final content = %q", ev.Content)
			}
			break
		}
	}

	s, _ := e.store.Get(e.sessID)
	if s.Messages[1].Content != "Take two." {
		t.Errorf("assistant message = %q", s.Messages[1].Content)
	}
}

func TestStream_NotificationRelay(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dial(t, ctx, e, e.sessID)

	// Round-trip an unknown command first so the handler is known to be
	// subscribed before anything is published.
	if err := wsjson.Write(ctx, conn, map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	readEvent(t, ctx, conn)

	e.hub.Info("other-session", "not for you")
	e.hub.Success(e.sessID, "portrait ready")

	ev := readEvent(t, ctx, conn)
	if ev.Type != "notification" || ev.Text != "portrait ready" {
		t.Errorf("event = %+v, want the session-scoped notification only", ev)
	}
}

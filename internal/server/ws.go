package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mutsucloud/otogi/internal/turn"
)

// command is a client-to-server WebSocket message.
type command struct {
	// Type is one of "send", "regenerate", "visual", "cancel".
	Type string `json:"type"`

	// Text is the user message for "send", or the raw prompt for "visual".
	Text string `json:"text,omitempty"`
	// Model overrides the configured chat model for this turn.
	Model string `json:"model,omitempty"`
	// Attachment accompanies a "send".
	Attachment *wsAttachment `json:"attachment,omitempty"`

	// Index is the assistant message index for "regenerate".
	Index int `json:"index,omitempty"`
}

type wsAttachment struct {
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// event is a server-to-client WebSocket message.
type event struct {
	// Type is one of "update", "error", "notification".
	Type string `json:"type"`

	// Content is the full accumulated reply so far for "update".
	Content string `json:"content,omitempty"`
	// Done marks the final update of a turn.
	Done bool `json:"done,omitempty"`

	// Error carries the failure text for "error".
	Error string `json:"error,omitempty"`

	// Level and Text carry a relayed notification.
	Level string `json:"level,omitempty"`
	Text  string `json:"text,omitempty"`
}

// handleStream upgrades to a WebSocket scoped to one session. The client
// drives turns with commands; the server streams updates and relays
// session-scoped notifications. One turn runs at a time per connection; a
// "cancel" command aborts the in-flight turn and keeps the partial reply.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, ok := s.cfg.Store.Get(sessionID); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	client := &wsClient{
		server:    s,
		sessionID: sessionID,
		conn:      conn,
		events:    make(chan event, 16),
	}
	client.run(ctx)
	conn.Close(websocket.StatusNormalClosure, "")
}

// wsClient is the per-connection state. All writes to the socket go through
// the events channel so the writer goroutine is the only writer.
type wsClient struct {
	server    *Server
	sessionID string
	conn      *websocket.Conn
	events    chan event

	mu     sync.Mutex
	cancel context.CancelFunc // in-flight turn, nil when idle
	turnWG sync.WaitGroup
}

func (c *wsClient) run(ctx context.Context) {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		c.writeLoop(ctx)
	}()

	if hub := c.server.cfg.Notifier; hub != nil {
		notifications, unsubscribe := hub.Subscribe()
		defer unsubscribe()
		writerWG.Add(1)
		go func() {
			defer writerWG.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-notifications:
					if !ok {
						return
					}
					if n.SessionID != "" && n.SessionID != c.sessionID {
						continue
					}
					c.emit(ctx, event{Type: "notification", Level: string(n.Level), Text: n.Text})
				}
			}
		}()
	}

	c.readLoop(ctx)

	// The socket is gone; abort any in-flight turn and let the goroutines
	// wind down before the connection closes.
	c.abortTurn()
	c.turnWG.Wait()
	stop()
	writerWG.Wait()
}

func (c *wsClient) readLoop(ctx context.Context) {
	for {
		var cmd command
		if err := wsjson.Read(ctx, c.conn, &cmd); err != nil {
			return
		}
		switch cmd.Type {
		case "send":
			in := turn.Input{
				SessionID: c.sessionID,
				Text:      cmd.Text,
				Model:     cmd.Model,
			}
			if cmd.Attachment != nil {
				in.Attachment = &turn.Attachment{
					Name: cmd.Attachment.Name,
					Text: cmd.Attachment.Text,
					URL:  cmd.Attachment.URL,
				}
			}
			c.startTurn(ctx, func(turnCtx context.Context) (<-chan turn.Update, error) {
				return c.server.cfg.Turns.Send(turnCtx, in)
			})

		case "regenerate":
			idx := cmd.Index
			c.startTurn(ctx, func(turnCtx context.Context) (<-chan turn.Update, error) {
				return c.server.cfg.Turns.Regenerate(turnCtx, c.sessionID, idx)
			})

		case "visual":
			if err := c.server.cfg.Turns.VisualCommand(c.sessionID, cmd.Text); err != nil {
				c.emit(ctx, event{Type: "error", Error: err.Error()})
			}

		case "cancel":
			c.abortTurn()

		default:
			c.emit(ctx, event{Type: "error", Error: "unknown command type " + cmd.Type})
		}
	}
}

// startTurn launches a turn unless one is already streaming on this
// connection, then forwards its updates as events.
func (c *wsClient) startTurn(ctx context.Context, begin func(context.Context) (<-chan turn.Update, error)) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		c.emit(ctx, event{Type: "error", Error: "a turn is already in progress"})
		return
	}
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	updates, err := begin(turnCtx)
	if err != nil {
		c.clearTurn()
		c.emit(ctx, event{Type: "error", Error: err.Error()})
		return
	}

	c.turnWG.Add(1)
	go func() {
		defer c.turnWG.Done()
		defer c.clearTurn()
		for u := range updates {
			if u.Err != nil {
				c.emit(ctx, event{Type: "error", Error: u.Err.Error()})
				continue
			}
			c.emit(ctx, event{Type: "update", Content: u.Content, Done: u.Done})
			if u.Done {
				c.server.persist(context.Background(), c.sessionID)
			}
		}
	}()
}

func (c *wsClient) abortTurn() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
}

func (c *wsClient) clearTurn() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

// emit queues an event for the writer. Events are dropped once ctx is done.
func (c *wsClient) emit(ctx context.Context, ev event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *wsClient) writeLoop(ctx context.Context) {
	// After a write failure the loop keeps draining events so emitters never
	// block on a dead socket; run tears everything down once the turn ends.
	failed := false
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			if failed {
				continue
			}
			if err := wsjson.Write(ctx, c.conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					c.server.log.Debug("websocket write failed",
						"session_id", c.sessionID, "error", err)
				}
				failed = true
			}
		}
	}
}

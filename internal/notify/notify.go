// Package notify fans transient user-facing notifications out to connected
// clients. Media job progress, failures, and timeouts surface here rather
// than in the transcript, so a failed generation never corrupts session
// state.
package notify

import (
	"sync"
	"time"
)

// Level classifies a notification for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	// LevelTimeout is distinct from LevelError so clients can offer a retry
	// hint for expired media jobs.
	LevelTimeout Level = "timeout"
)

// Notification is one transient message. SessionID scopes it to a
// conversation; empty means global.
type Notification struct {
	Level     Level     `json:"level"`
	Text      string    `json:"text"`
	SessionID string    `json:"sessionId,omitempty"`
	At        time.Time `json:"at"`
}

// Hub is an in-process notification fan-out. Subscribers receive on buffered
// channels; a subscriber that falls behind loses notifications rather than
// blocking publishers. The zero Hub is not usable, call NewHub.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	closed bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Notification)}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. The channel is closed on cancel or when the Hub shuts down.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Notification, 16)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers n to all current subscribers without blocking.
func (h *Hub) Publish(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Info publishes an info-level notification for the session.
func (h *Hub) Info(sessionID, text string) {
	h.Publish(Notification{Level: LevelInfo, Text: text, SessionID: sessionID})
}

// Success publishes a success-level notification for the session.
func (h *Hub) Success(sessionID, text string) {
	h.Publish(Notification{Level: LevelSuccess, Text: text, SessionID: sessionID})
}

// Error publishes an error-level notification for the session.
func (h *Hub) Error(sessionID, text string) {
	h.Publish(Notification{Level: LevelError, Text: text, SessionID: sessionID})
}

// Timeout publishes a timeout-level notification for the session.
func (h *Hub) Timeout(sessionID, text string) {
	h.Publish(Notification{Level: LevelTimeout, Text: text, SessionID: sessionID})
}

// Close shuts the Hub down and closes all subscriber channels. Publish after
// Close is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

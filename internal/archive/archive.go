// Package archive defines durable storage for chat sessions. The in-process
// session store is authoritative while the process runs; an Archive persists
// snapshots so sessions survive restarts and can be listed, reloaded, and
// searched across the full transcript history.
//
// Two implementations ship with the engine: a PostgreSQL archive with
// full-text search over messages (subpackage postgres) and a SQLite save-slot
// store for local snapshots (subpackage sqlite).
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/mutsucloud/otogi/internal/session"
)

// ErrNotFound is returned when the requested session does not exist in the
// archive.
var ErrNotFound = errors.New("archive: session not found")

// Summary is a lightweight listing entry for an archived session. It carries
// enough to render a session picker without loading full transcripts.
type Summary struct {
	ID                string
	Title             string
	ActiveCharacterID string
	MessageCount      int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SearchOpts filters a full-text search over archived messages.
type SearchOpts struct {
	// SessionID restricts results to one session when non-empty.
	SessionID string
	// Role restricts results to messages with this role when non-empty.
	Role string
	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// Hit is a single full-text search result.
type Hit struct {
	SessionID string
	MessageID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Archive persists session snapshots.
//
// Implementations must be safe for concurrent use.
type Archive interface {
	// SaveSession writes a full snapshot of s, replacing any previous
	// snapshot with the same session ID.
	SaveSession(ctx context.Context, s session.Session) error

	// LoadSession returns the archived snapshot for id, or ErrNotFound.
	LoadSession(ctx context.Context, id string) (session.Session, error)

	// ListSessions returns summaries for all archived sessions, most
	// recently updated first.
	ListSessions(ctx context.Context) ([]Summary, error)

	// DeleteSession removes the archived snapshot for id. Deleting a
	// session that does not exist is not an error.
	DeleteSession(ctx context.Context, id string) error

	// SearchMessages performs a full-text search over archived message
	// content.
	SearchMessages(ctx context.Context, query string, opts SearchOpts) ([]Hit, error)
}

package archive

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/mutsucloud/otogi/internal/session"
)

// Guard wraps an [Archive] and makes write and read-list operations
// non-fatal. If the underlying archive fails, writes are logged and
// swallowed and listings return empty results, so the in-process session
// store keeps serving turns while the database is unavailable (restart,
// network partition). The IsDegraded method reports whether the archive is
// currently experiencing failures.
//
// LoadSession is the exception: it propagates errors, because silently
// handing back an empty session would overwrite real state on the next save.
//
// Guard implements [Archive]. All methods are safe for concurrent use.
type Guard struct {
	archive  Archive
	degraded atomic.Bool
}

// NewGuard creates a new [Guard] wrapping the given archive.
func NewGuard(archive Archive) *Guard {
	return &Guard{archive: archive}
}

// SaveSession attempts to persist the snapshot. On failure the error is
// logged and swallowed; the archive is marked as degraded. On success the
// degraded flag is cleared.
func (g *Guard) SaveSession(ctx context.Context, s session.Session) error {
	err := g.archive.SaveSession(ctx, s)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("archive guard: SaveSession failed, swallowing error",
			"session_id", s.ID,
			"error", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// LoadSession delegates to the underlying archive. Errors propagate.
func (g *Guard) LoadSession(ctx context.Context, id string) (session.Session, error) {
	s, err := g.archive.LoadSession(ctx, id)
	if err != nil {
		g.degraded.Store(true)
		return session.Session{}, err
	}
	g.degraded.Store(false)
	return s, nil
}

// ListSessions attempts to list archived sessions. On failure an empty slice
// is returned and the archive is marked as degraded.
func (g *Guard) ListSessions(ctx context.Context) ([]Summary, error) {
	summaries, err := g.archive.ListSessions(ctx)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("archive guard: ListSessions failed, returning empty", "error", err)
		return []Summary{}, nil
	}
	g.degraded.Store(false)
	return summaries, nil
}

// DeleteSession attempts the delete. On failure the error is logged and
// swallowed; the archive is marked as degraded.
func (g *Guard) DeleteSession(ctx context.Context, id string) error {
	err := g.archive.DeleteSession(ctx, id)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("archive guard: DeleteSession failed, swallowing error",
			"session_id", id,
			"error", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// SearchMessages attempts the search. On failure an empty slice is returned
// and the archive is marked as degraded.
func (g *Guard) SearchMessages(ctx context.Context, query string, opts SearchOpts) ([]Hit, error) {
	hits, err := g.archive.SearchMessages(ctx, query, opts)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("archive guard: SearchMessages failed, returning empty",
			"query", query,
			"error", err,
		)
		return []Hit{}, nil
	}
	g.degraded.Store(false)
	return hits, nil
}

// IsDegraded reports whether the archive is currently operating in degraded
// mode (i.e., the most recent operation on the underlying archive failed).
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}

// Compile-time check that Guard satisfies Archive.
var _ Archive = (*Guard)(nil)

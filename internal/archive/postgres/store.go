package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mutsucloud/otogi/internal/archive"
	"github.com/mutsucloud/otogi/internal/session"
	"github.com/mutsucloud/otogi/pkg/types"
)

// Store is a PostgreSQL-backed [archive.Archive] holding a single
// [pgxpool.Pool]. All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ archive.Archive = (*Store)(nil)

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and runs [Migrate] to ensure all required
// tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres archive: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (st *Store) Close() {
	st.pool.Close()
}

// Ping verifies database connectivity, for health checks.
func (st *Store) Ping(ctx context.Context) error {
	if err := st.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres archive: ping: %w", err)
	}
	return nil
}

// SaveSession implements [archive.Archive]. The whole snapshot is replaced
// atomically: session state is written as one JSONB value and the message
// rows are rebuilt, so truncations from a regenerate are reflected exactly.
func (st *Store) SaveSession(ctx context.Context, s session.Session) error {
	state := s
	state.Messages = nil
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("postgres archive: marshal state: %w", err)
	}

	tx, err := st.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres archive: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsert = `
		INSERT INTO sessions (id, title, character_id, state, message_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    title         = EXCLUDED.title,
		    character_id  = EXCLUDED.character_id,
		    state         = EXCLUDED.state,
		    message_count = EXCLUDED.message_count,
		    updated_at    = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, upsert,
		s.ID, s.Title, s.ActiveCharacterID, stateJSON, len(s.Messages), s.CreatedAt, s.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres archive: upsert session: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE session_id = $1`, s.ID); err != nil {
		return fmt.Errorf("postgres archive: clear messages: %w", err)
	}

	const insert = `
		INSERT INTO messages (session_id, id, position, role, content, parts, model_name, character_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for i, m := range s.Messages {
		var partsJSON []byte
		if len(m.Parts) > 0 {
			partsJSON, err = json.Marshal(m.Parts)
			if err != nil {
				return fmt.Errorf("postgres archive: marshal parts: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, insert,
			s.ID, m.ID, i, string(m.Role), m.Content, partsJSON, m.ModelName, m.CharacterID, m.CreatedAt,
		); err != nil {
			return fmt.Errorf("postgres archive: insert message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres archive: commit: %w", err)
	}
	return nil
}

// LoadSession implements [archive.Archive].
func (st *Store) LoadSession(ctx context.Context, id string) (session.Session, error) {
	var stateJSON []byte
	err := st.pool.QueryRow(ctx, `SELECT state FROM sessions WHERE id = $1`, id).Scan(&stateJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Session{}, archive.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("postgres archive: load session: %w", err)
	}

	var s session.Session
	if err := json.Unmarshal(stateJSON, &s); err != nil {
		return session.Session{}, fmt.Errorf("postgres archive: unmarshal state: %w", err)
	}

	const q = `
		SELECT id, role, content, parts, model_name, character_id, created_at
		FROM   messages
		WHERE  session_id = $1
		ORDER  BY position`

	rows, err := st.pool.Query(ctx, q, id)
	if err != nil {
		return session.Session{}, fmt.Errorf("postgres archive: load messages: %w", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Message, error) {
		var (
			m         types.Message
			role      string
			partsJSON []byte
		)
		if err := row.Scan(&m.ID, &role, &m.Content, &partsJSON, &m.ModelName, &m.CharacterID, &m.CreatedAt); err != nil {
			return types.Message{}, err
		}
		m.Role = types.Role(role)
		if len(partsJSON) > 0 {
			if err := json.Unmarshal(partsJSON, &m.Parts); err != nil {
				return types.Message{}, err
			}
		}
		return m, nil
	})
	if err != nil {
		return session.Session{}, fmt.Errorf("postgres archive: scan messages: %w", err)
	}

	s.Messages = messages
	return s, nil
}

// ListSessions implements [archive.Archive].
func (st *Store) ListSessions(ctx context.Context) ([]archive.Summary, error) {
	const q = `
		SELECT id, title, character_id, message_count, created_at, updated_at
		FROM   sessions
		ORDER  BY updated_at DESC`

	rows, err := st.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: list sessions: %w", err)
	}
	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.Summary, error) {
		var s archive.Summary
		err := row.Scan(&s.ID, &s.Title, &s.ActiveCharacterID, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres archive: scan sessions: %w", err)
	}
	if summaries == nil {
		summaries = []archive.Summary{}
	}
	return summaries, nil
}

// DeleteSession implements [archive.Archive]. Message rows are removed by
// the ON DELETE CASCADE constraint.
func (st *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := st.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres archive: delete session: %w", err)
	}
	return nil
}

// SearchMessages implements [archive.Archive]. It performs a full-text
// search over message content and applies optional filters from opts.
//
// The query is passed to plainto_tsquery so no special operator syntax is
// required.
func (st *Store) SearchMessages(ctx context.Context, query string, opts archive.SearchOpts) ([]archive.Hit, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('simple', content) @@ plainto_tsquery('simple', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.Role != "" {
		conditions = append(conditions, "role = "+next(opts.Role))
	}

	q := "SELECT session_id, id, role, content, created_at\n" +
		"FROM   messages\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY created_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := st.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: search: %w", err)
	}
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.Hit, error) {
		var h archive.Hit
		err := row.Scan(&h.SessionID, &h.MessageID, &h.Role, &h.Content, &h.CreatedAt)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres archive: scan hits: %w", err)
	}
	if hits == nil {
		hits = []archive.Hit{}
	}
	return hits, nil
}

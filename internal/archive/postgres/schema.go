// Package postgres provides a PostgreSQL-backed [archive.Archive]. Session
// state is stored as a JSONB snapshot; transcript messages get their own
// rows with a GIN full-text index so whole histories stay searchable after
// they leave the context window.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.SaveSession(ctx, snap)
//	hits, _ := store.SearchMessages(ctx, "rooftop", archive.SearchOpts{})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT         PRIMARY KEY,
    title         TEXT         NOT NULL DEFAULT '',
    character_id  TEXT         NOT NULL DEFAULT '',
    state         JSONB        NOT NULL DEFAULT '{}',
    message_count INTEGER      NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at
    ON sessions (updated_at DESC);
`

// The 'simple' FTS configuration skips stemming and stop words, which keeps
// the index usable for mixed-language transcripts.
const ddlMessages = `
CREATE TABLE IF NOT EXISTS messages (
    session_id    TEXT         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    id            TEXT         NOT NULL,
    position      INTEGER      NOT NULL,
    role          TEXT         NOT NULL,
    content       TEXT         NOT NULL,
    parts         JSONB,
    model_name    TEXT         NOT NULL DEFAULT '',
    character_id  TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, id)
);

CREATE INDEX IF NOT EXISTS idx_messages_session_position
    ON messages (session_id, position);

CREATE INDEX IF NOT EXISTS idx_messages_fts
    ON messages USING GIN (to_tsvector('simple', content));
`

// Migrate creates all tables and indexes required by the archive. It is
// idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlSessions, ddlMessages} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres archive: migrate: %w", err)
		}
	}
	return nil
}

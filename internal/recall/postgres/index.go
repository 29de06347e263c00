// Package postgres provides a pgvector-backed [recall.Index]. Notes live in
// a single table with an HNSW index for fast approximate nearest-neighbour
// search by cosine distance.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mutsucloud/otogi/internal/recall"
)

// Index is a PostgreSQL-backed [recall.Index]. All operations are safe for
// concurrent use.
type Index struct {
	pool *pgxpool.Pool
}

var _ recall.Index = (*Index)(nil)

// NewIndex creates a new Index, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate].
//
// embeddingDimensions must match the output dimension of the embedding model
// that produces [recall.Note.Embedding] values. Changing it after the first
// migration requires a manual schema change.
func NewIndex(ctx context.Context, dsn string, embeddingDimensions int) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("recall index: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("recall index: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("recall index: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}

	return &Index{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (ix *Index) Close() {
	ix.pool.Close()
}

// Ping verifies database connectivity, for health checks.
func (ix *Index) Ping(ctx context.Context) error {
	if err := ix.pool.Ping(ctx); err != nil {
		return fmt.Errorf("recall index: ping: %w", err)
	}
	return nil
}

// ddl returns the schema DDL with the embedding dimension substituted. The
// vector dimension is baked into the column type at schema creation time.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS recall_notes (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    kind        TEXT         NOT NULL DEFAULT '',
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recall_notes_session_id
    ON recall_notes (session_id);

CREATE INDEX IF NOT EXISTS idx_recall_notes_embedding
    ON recall_notes USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate installs the pgvector extension and creates the notes table. It is
// idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("recall index: migrate: %w", err)
	}
	return nil
}

// IndexNote implements [recall.Index]. A note with an existing ID is
// completely replaced.
func (ix *Index) IndexNote(ctx context.Context, note recall.Note) error {
	const q = `
		INSERT INTO recall_notes (id, session_id, kind, content, embedding, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    session_id = EXCLUDED.session_id,
		    kind       = EXCLUDED.kind,
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    timestamp  = EXCLUDED.timestamp`

	_, err := ix.pool.Exec(ctx, q,
		note.ID,
		note.SessionID,
		note.Kind,
		note.Content,
		pgvector.NewVector(note.Embedding),
		note.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recall index: index note: %w", err)
	}
	return nil
}

// Search implements [recall.Index]. Results are ordered by ascending cosine
// distance (most similar first).
func (ix *Index) Search(ctx context.Context, embedding []float32, topK int, filter recall.Filter) ([]recall.Result, error) {
	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(filter.SessionID))
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = "+next(filter.Kind))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, session_id, kind, content, embedding, timestamp,
		       embedding <=> $1 AS distance
		FROM   recall_notes
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := ix.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("recall index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (recall.Result, error) {
		var (
			res recall.Result
			vec pgvector.Vector
		)
		if err := row.Scan(
			&res.Note.ID,
			&res.Note.SessionID,
			&res.Note.Kind,
			&res.Note.Content,
			&vec,
			&res.Note.Timestamp,
			&res.Distance,
		); err != nil {
			return recall.Result{}, err
		}
		res.Note.Embedding = vec.Slice()
		return res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("recall index: scan rows: %w", err)
	}
	if results == nil {
		results = []recall.Result{}
	}
	return results, nil
}

// DeleteNotes implements [recall.Index].
func (ix *Index) DeleteNotes(ctx context.Context, sessionID string) error {
	if _, err := ix.pool.Exec(ctx, `DELETE FROM recall_notes WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("recall index: delete notes: %w", err)
	}
	return nil
}

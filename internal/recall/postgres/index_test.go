package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mutsucloud/otogi/internal/recall"
	"github.com/mutsucloud/otogi/internal/recall/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if OTOGI_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("OTOGI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("OTOGI_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestIndex creates a fresh [postgres.Index] with a clean schema.
func newTestIndex(t *testing.T) *postgres.Index {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS recall_notes`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	index, err := postgres.NewIndex(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(index.Close)
	return index
}

func note(id, sessionID, kind, content string, embedding []float32) recall.Note {
	return recall.Note{
		ID:        id,
		SessionID: sessionID,
		Kind:      kind,
		Content:   content,
		Embedding: embedding,
		Timestamp: time.Now().UTC(),
	}
}

func TestIndex_SearchOrdersByDistance(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	notes := []recall.Note{
		note("n1", "s1", "chapter", "rooftop confession", []float32{1, 0, 0, 0}),
		note("n2", "s1", "chapter", "festival cancelled", []float32{0, 1, 0, 0}),
		note("n3", "s1", "ltm", "the whole first arc", []float32{0.9, 0.1, 0, 0}),
	}
	for _, n := range notes {
		if err := index.IndexNote(ctx, n); err != nil {
			t.Fatalf("IndexNote: %v", err)
		}
	}

	results, err := index.Search(ctx, []float32{1, 0, 0, 0}, 2, recall.Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Note.ID != "n1" {
		t.Errorf("closest = %q, want n1", results[0].Note.ID)
	}
	if results[1].Note.ID != "n3" {
		t.Errorf("second = %q, want n3", results[1].Note.ID)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results should be ordered by ascending distance")
	}
}

func TestIndex_FilterByKind(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	if err := index.IndexNote(ctx, note("n1", "s1", "chapter", "a", []float32{1, 0, 0, 0})); err != nil {
		t.Fatalf("IndexNote: %v", err)
	}
	if err := index.IndexNote(ctx, note("n2", "s1", "ltm", "b", []float32{1, 0, 0, 0})); err != nil {
		t.Fatalf("IndexNote: %v", err)
	}

	results, err := index.Search(ctx, []float32{1, 0, 0, 0}, 10, recall.Filter{SessionID: "s1", Kind: "ltm"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Note.ID != "n2" {
		t.Errorf("results = %+v", results)
	}
}

func TestIndex_UpsertReplaces(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	if err := index.IndexNote(ctx, note("n1", "s1", "ltm", "old", []float32{1, 0, 0, 0})); err != nil {
		t.Fatalf("IndexNote: %v", err)
	}
	if err := index.IndexNote(ctx, note("n1", "s1", "ltm", "new", []float32{0, 1, 0, 0})); err != nil {
		t.Fatalf("IndexNote (upsert): %v", err)
	}

	results, err := index.Search(ctx, []float32{0, 1, 0, 0}, 10, recall.Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Note.Content != "new" {
		t.Errorf("results = %+v", results)
	}
}

func TestIndex_DeleteNotes(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	if err := index.IndexNote(ctx, note("n1", "s1", "ltm", "a", []float32{1, 0, 0, 0})); err != nil {
		t.Fatalf("IndexNote: %v", err)
	}
	if err := index.IndexNote(ctx, note("n2", "s2", "ltm", "b", []float32{1, 0, 0, 0})); err != nil {
		t.Fatalf("IndexNote: %v", err)
	}

	if err := index.DeleteNotes(ctx, "s1"); err != nil {
		t.Fatalf("DeleteNotes: %v", err)
	}

	results, err := index.Search(ctx, []float32{1, 0, 0, 0}, 10, recall.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Note.SessionID != "s2" {
		t.Errorf("results = %+v", results)
	}
}

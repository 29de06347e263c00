// Package recall implements semantic retrieval over consolidated memory.
// Chapter notes and merged long-term memory are embedded and stored in a
// vector index; later turns can pull back the most similar passages even
// when the events happened hundreds of turns ago.
package recall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mutsucloud/otogi/pkg/provider/embeddings"
)

// DefaultTopK is how many results Recall returns when the caller does not
// say otherwise.
const DefaultTopK = 5

// Note is one indexed memory passage.
type Note struct {
	ID        string
	SessionID string
	// Kind distinguishes chapter notes from merged long-term memory.
	Kind      string
	Content   string
	Embedding []float32
	Timestamp time.Time
}

// Result pairs a note with its cosine distance from the query. Smaller is
// more similar.
type Result struct {
	Note     Note
	Distance float64
}

// Filter narrows a search.
type Filter struct {
	SessionID string
	Kind      string
}

// Index is the vector store backing a [Recaller].
//
// Implementations must be safe for concurrent use.
type Index interface {
	// IndexNote upserts a pre-embedded note.
	IndexNote(ctx context.Context, note Note) error

	// Search returns the topK notes closest to embedding, most similar
	// first.
	Search(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Result, error)

	// DeleteNotes removes every note belonging to sessionID.
	DeleteNotes(ctx context.Context, sessionID string) error
}

// RecallerConfig configures a Recaller.
type RecallerConfig struct {
	// Embedder converts text to vectors. Required.
	Embedder embeddings.Provider
	// Index stores and searches the vectors. Required.
	Index Index
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Recaller ties an embedding provider to a vector index. It satisfies the
// memory engine's Recorder contract on the write side and serves similarity
// queries on the read side.
//
// Safe for concurrent use.
type Recaller struct {
	embedder embeddings.Provider
	index    Index
	log      *slog.Logger
}

// NewRecaller validates cfg and creates a Recaller.
func NewRecaller(cfg RecallerConfig) (*Recaller, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("recall: Embedder is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("recall: Index is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Recaller{
		embedder: cfg.Embedder,
		index:    cfg.Index,
		log:      log,
	}, nil
}

// Remember embeds content and indexes it under a fresh note ID. Blank
// content is skipped silently.
func (r *Recaller) Remember(ctx context.Context, sessionID, kind, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	vec, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("recall: embed note: %w", err)
	}

	note := Note{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      kind,
		Content:   content,
		Embedding: vec,
		Timestamp: time.Now().UTC(),
	}
	if err := r.index.IndexNote(ctx, note); err != nil {
		return fmt.Errorf("recall: index note: %w", err)
	}
	r.log.Debug("memory note indexed",
		"session_id", sessionID,
		"kind", kind,
		"model", r.embedder.ModelID(),
	)
	return nil
}

// Recall embeds the query and returns the closest notes for the session.
// topK falls back to DefaultTopK when non-positive.
func (r *Recaller) Recall(ctx context.Context, sessionID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recall: embed query: %w", err)
	}
	results, err := r.index.Search(ctx, vec, topK, Filter{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("recall: search: %w", err)
	}
	return results, nil
}

// Forget removes every indexed note for the session. Called when a session
// is deleted.
func (r *Recaller) Forget(ctx context.Context, sessionID string) error {
	if err := r.index.DeleteNotes(ctx, sessionID); err != nil {
		return fmt.Errorf("recall: forget: %w", err)
	}
	return nil
}

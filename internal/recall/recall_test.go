package recall_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/mutsucloud/otogi/internal/recall"
	embmock "github.com/mutsucloud/otogi/pkg/provider/embeddings/mock"
)

// fakeIndex is an in-memory recall.Index computing real cosine distances, so
// ranking behaviour can be asserted without a database.
type fakeIndex struct {
	mu    sync.Mutex
	notes map[string]recall.Note

	indexErr  error
	searchErr error
}

func (f *fakeIndex) IndexNote(_ context.Context, note recall.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	if f.notes == nil {
		f.notes = make(map[string]recall.Note)
	}
	f.notes[note.ID] = note
	return nil
}

func (f *fakeIndex) Search(_ context.Context, embedding []float32, topK int, filter recall.Filter) ([]recall.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var results []recall.Result
	for _, n := range f.notes {
		if filter.SessionID != "" && n.SessionID != filter.SessionID {
			continue
		}
		if filter.Kind != "" && n.Kind != filter.Kind {
			continue
		}
		results = append(results, recall.Result{Note: n, Distance: cosineDistance(embedding, n.Embedding)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (f *fakeIndex) DeleteNotes(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, n := range f.notes {
		if n.SessionID == sessionID {
			delete(f.notes, id)
		}
	}
	return nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func newRecaller(t *testing.T, index *fakeIndex) *recall.Recaller {
	t.Helper()
	r, err := recall.NewRecaller(recall.RecallerConfig{
		Embedder: &embmock.Provider{},
		Index:    index,
	})
	if err != nil {
		t.Fatalf("NewRecaller: %v", err)
	}
	return r
}

func TestNewRecaller_Validation(t *testing.T) {
	t.Parallel()
	if _, err := recall.NewRecaller(recall.RecallerConfig{Index: &fakeIndex{}}); err == nil {
		t.Error("expected error when Embedder is missing")
	}
	if _, err := recall.NewRecaller(recall.RecallerConfig{Embedder: &embmock.Provider{}}); err == nil {
		t.Error("expected error when Index is missing")
	}
}

func TestRecaller_RememberAndRecall(t *testing.T) {
	t.Parallel()
	index := &fakeIndex{}
	r := newRecaller(t, index)
	ctx := context.Background()

	notes := []string{
		"Asuka confessed on the rooftop after the rain.",
		"The festival was cancelled because of the storm.",
		"A stray cat followed them home.",
	}
	for _, n := range notes {
		if err := r.Remember(ctx, "s1", "chapter", n); err != nil {
			t.Fatalf("Remember: %v", err)
		}
	}

	// The mock embedder gives identical texts identical vectors, so the
	// exact phrase must come back first with distance zero.
	results, err := r.Recall(ctx, "s1", "Asuka confessed on the rooftop after the rain.", 2)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Note.Content != notes[0] {
		t.Errorf("top result = %q", results[0].Note.Content)
	}
	if results[0].Distance > 1e-6 {
		t.Errorf("top distance = %v, want ~0", results[0].Distance)
	}
}

func TestRecaller_RecallScopedToSession(t *testing.T) {
	t.Parallel()
	index := &fakeIndex{}
	r := newRecaller(t, index)
	ctx := context.Background()

	if err := r.Remember(ctx, "s1", "ltm", "first story"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if err := r.Remember(ctx, "s2", "ltm", "second story"); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	results, err := r.Recall(ctx, "s2", "story", 10)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 1 || results[0].Note.SessionID != "s2" {
		t.Errorf("results = %+v", results)
	}
}

func TestRecaller_SkipsBlankContent(t *testing.T) {
	t.Parallel()
	index := &fakeIndex{}
	r := newRecaller(t, index)

	if err := r.Remember(context.Background(), "s1", "ltm", "   \n"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if len(index.notes) != 0 {
		t.Errorf("blank content should not be indexed, got %d notes", len(index.notes))
	}
}

func TestRecaller_EmbedErrorPropagates(t *testing.T) {
	t.Parallel()
	r, err := recall.NewRecaller(recall.RecallerConfig{
		Embedder: &embmock.Provider{Err: errors.New("quota exceeded")},
		Index:    &fakeIndex{},
	})
	if err != nil {
		t.Fatalf("NewRecaller: %v", err)
	}
	if err := r.Remember(context.Background(), "s1", "ltm", "text"); err == nil {
		t.Error("expected embed error to propagate")
	}
	if _, err := r.Recall(context.Background(), "s1", "query", 3); err == nil {
		t.Error("expected embed error to propagate from Recall")
	}
}

func TestRecaller_Forget(t *testing.T) {
	t.Parallel()
	index := &fakeIndex{}
	r := newRecaller(t, index)
	ctx := context.Background()

	if err := r.Remember(ctx, "s1", "ltm", "gone soon"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if err := r.Forget(ctx, "s1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	results, err := r.Recall(ctx, "s1", "gone soon", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results after Forget, got %d", len(results))
	}
}

package archive_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mutsucloud/otogi/internal/archive"
	"github.com/mutsucloud/otogi/internal/archive/mock"
	"github.com/mutsucloud/otogi/internal/session"
)

func TestGuard_SwallowsSaveErrors(t *testing.T) {
	t.Parallel()
	backend := &mock.Archive{SaveErr: errors.New("connection refused")}
	guard := archive.NewGuard(backend)

	s := session.New(session.MemorySliding, "asuka_langley")
	if err := guard.SaveSession(context.Background(), s); err != nil {
		t.Fatalf("SaveSession should swallow the backend error, got %v", err)
	}
	if !guard.IsDegraded() {
		t.Error("guard should be degraded after a failed save")
	}

	backend.SaveErr = nil
	if err := guard.SaveSession(context.Background(), s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if guard.IsDegraded() {
		t.Error("guard should recover after a successful save")
	}
}

func TestGuard_PropagatesLoadErrors(t *testing.T) {
	t.Parallel()
	backend := &mock.Archive{LoadErr: errors.New("timeout")}
	guard := archive.NewGuard(backend)

	if _, err := guard.LoadSession(context.Background(), "s1"); err == nil {
		t.Fatal("LoadSession should propagate backend errors")
	}
	if !guard.IsDegraded() {
		t.Error("guard should be degraded after a failed load")
	}
}

func TestGuard_ListReturnsEmptyOnFailure(t *testing.T) {
	t.Parallel()
	backend := &mock.Archive{ListErr: errors.New("boom")}
	guard := archive.NewGuard(backend)

	summaries, err := guard.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions should swallow the backend error, got %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected empty summaries, got %d", len(summaries))
	}

	hits, err := guard.SearchMessages(context.Background(), "rain", archive.SearchOpts{})
	if err != nil {
		t.Fatalf("SearchMessages should swallow the backend error, got %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected empty hits, got %d", len(hits))
	}
}

func TestGuard_Passthrough(t *testing.T) {
	t.Parallel()
	backend := &mock.Archive{}
	guard := archive.NewGuard(backend)
	ctx := context.Background()

	s := session.New(session.MemoryInfinite, "asuka_langley")
	s.Title = "Rooftop Confession"
	if err := guard.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	loaded, err := guard.LoadSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.Title != "Rooftop Confession" {
		t.Errorf("Title = %q", loaded.Title)
	}

	summaries, err := guard.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != s.ID {
		t.Errorf("summaries = %+v", summaries)
	}

	if err := guard.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := guard.LoadSession(ctx, s.ID); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

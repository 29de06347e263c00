// Package mock provides an in-memory archive.Archive for testing.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mutsucloud/otogi/internal/archive"
	"github.com/mutsucloud/otogi/internal/session"
)

// Archive is an in-memory implementation of [archive.Archive]. Unless an
// error field is set, operations behave like a real archive with substring
// matching standing in for full-text search.
type Archive struct {
	mu       sync.Mutex
	sessions map[string]session.Session

	// SaveErr, LoadErr, ListErr, DeleteErr, and SearchErr, when non-nil,
	// are returned from the corresponding method.
	SaveErr   error
	LoadErr   error
	ListErr   error
	DeleteErr error
	SearchErr error

	// SaveCount counts SaveSession calls, including failed ones.
	SaveCount int
}

var _ archive.Archive = (*Archive)(nil)

func (a *Archive) SaveSession(_ context.Context, s session.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SaveCount++
	if a.SaveErr != nil {
		return a.SaveErr
	}
	if a.sessions == nil {
		a.sessions = make(map[string]session.Session)
	}
	a.sessions[s.ID] = s
	return nil
}

func (a *Archive) LoadSession(_ context.Context, id string) (session.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.LoadErr != nil {
		return session.Session{}, a.LoadErr
	}
	s, ok := a.sessions[id]
	if !ok {
		return session.Session{}, archive.ErrNotFound
	}
	return s, nil
}

func (a *Archive) ListSessions(_ context.Context) ([]archive.Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ListErr != nil {
		return nil, a.ListErr
	}
	summaries := make([]archive.Summary, 0, len(a.sessions))
	for _, s := range a.sessions {
		summaries = append(summaries, archive.Summary{
			ID:                s.ID,
			Title:             s.Title,
			ActiveCharacterID: s.ActiveCharacterID,
			MessageCount:      len(s.Messages),
			CreatedAt:         s.CreatedAt,
			UpdatedAt:         s.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (a *Archive) DeleteSession(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.DeleteErr != nil {
		return a.DeleteErr
	}
	delete(a.sessions, id)
	return nil
}

func (a *Archive) SearchMessages(_ context.Context, query string, opts archive.SearchOpts) ([]archive.Hit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SearchErr != nil {
		return nil, a.SearchErr
	}
	var hits []archive.Hit
	for _, s := range a.sessions {
		if opts.SessionID != "" && opts.SessionID != s.ID {
			continue
		}
		for _, m := range s.Messages {
			if opts.Role != "" && opts.Role != string(m.Role) {
				continue
			}
			if !strings.Contains(m.Content, query) {
				continue
			}
			hits = append(hits, archive.Hit{
				SessionID: s.ID,
				MessageID: m.ID,
				Role:      string(m.Role),
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
			})
		}
	}
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

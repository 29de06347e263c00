package session

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Mutator is a pure session update. It receives the session as it exists at
// apply time and returns the replacement.
type Mutator func(Session) Session

// Store is an atomically swappable immutable map of sessions. Readers load
// the current map without locking; writers serialize on a mutex and publish
// a fresh copy with one entry replaced. Asynchronous completions therefore
// apply against the live session looked up by ID, never against a stale
// snapshot captured when the work was dispatched.
type Store struct {
	mu       sync.Mutex
	sessions atomic.Pointer[map[string]Session]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{}
	empty := map[string]Session{}
	s.sessions.Store(&empty)
	return s
}

// Get returns the session with the given ID.
func (s *Store) Get(id string) (Session, bool) {
	m := *s.sessions.Load()
	sess, ok := m[id]
	return sess, ok
}

// List returns all sessions ordered by most recent update first.
func (s *Store) List() []Session {
	m := *s.sessions.Load()
	out := make([]Session, 0, len(m))
	for _, sess := range m {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	return len(*s.sessions.Load())
}

// Put inserts or replaces a session.
func (s *Store) Put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(sess.ID, func(map[string]Session) (Session, bool) {
		return sess, true
	})
}

// Apply looks the session up by ID and replaces it with fn's result. The
// lookup happens under the writer lock, so interleaved async completions
// always see each other's updates. Returns the updated session, or false
// when the ID is unknown (in which case fn is not called).
func (s *Store) Apply(id string, fn Mutator) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated Session
	ok := s.publish(id, func(m map[string]Session) (Session, bool) {
		cur, exists := m[id]
		if !exists {
			return Session{}, false
		}
		updated = fn(cur)
		updated.ID = id
		return updated, true
	})
	return updated, ok
}

// Delete removes a session. Removing an unknown ID is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := *s.sessions.Load()
	if _, ok := old[id]; !ok {
		return
	}
	next := make(map[string]Session, len(old)-1)
	for k, v := range old {
		if k != id {
			next[k] = v
		}
	}
	s.sessions.Store(&next)
}

// publish copies the current map, lets build produce the entry for id, and
// swaps the copy in. Caller must hold mu.
func (s *Store) publish(id string, build func(map[string]Session) (Session, bool)) bool {
	old := *s.sessions.Load()
	sess, ok := build(old)
	if !ok {
		return false
	}
	next := make(map[string]Session, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[id] = sess
	s.sessions.Store(&next)
	return true
}

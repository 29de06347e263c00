// Package sqlite provides a local save-slot store backed by SQLite. A slot
// is a named point-in-time snapshot of a session; loading one restores the
// full transcript and memory state, so a reader can branch the story and
// come back later.
//
// Uses the pure-Go modernc.org/sqlite driver, so no cgo is required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/mutsucloud/otogi/internal/session"
)

// ErrSlotNotFound is returned when the requested slot does not exist.
var ErrSlotNotFound = errors.New("sqlite slots: slot not found")

// Slot describes a stored snapshot.
type Slot struct {
	ID        string
	SessionID string
	// Label is the user-chosen name for the slot. Empty falls back to the
	// session title at save time.
	Label     string
	Title     string
	CreatedAt time.Time
}

// SlotStore persists session snapshots as save slots.
//
// All methods are safe for concurrent use.
type SlotStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// Open opens or creates the slot database at path.
func Open(path string) (*SlotStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite slots: create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("sqlite slots: open db: %w", err)
	}

	s := &SlotStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite slots: migrate: %w", err)
	}

	return s, nil
}

func (s *SlotStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS slots (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		label       TEXT NOT NULL DEFAULT '',
		title       TEXT NOT NULL DEFAULT '',
		snapshot    TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_slots_session ON slots(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SlotStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Close closes the underlying database.
func (s *SlotStore) Close() error {
	return s.db.Close()
}

// Save stores a snapshot of sess under a new slot and returns it.
func (s *SlotStore) Save(ctx context.Context, label string, sess session.Session) (Slot, error) {
	snapshot, err := json.Marshal(sess)
	if err != nil {
		return Slot{}, fmt.Errorf("sqlite slots: marshal snapshot: %w", err)
	}

	slot := Slot{
		ID:        s.newID(),
		SessionID: sess.ID,
		Label:     label,
		Title:     sess.Title,
		CreatedAt: time.Now().UTC(),
	}
	if slot.Label == "" {
		slot.Label = sess.Title
	}

	const q = `
	INSERT INTO slots (id, session_id, label, title, snapshot, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		slot.ID, slot.SessionID, slot.Label, slot.Title,
		string(snapshot), slot.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Slot{}, fmt.Errorf("sqlite slots: save: %w", err)
	}
	return slot, nil
}

// Load returns the session snapshot stored in the slot.
func (s *SlotStore) Load(ctx context.Context, slotID string) (session.Session, error) {
	const q = `SELECT snapshot FROM slots WHERE id = ?`

	var snapshot string
	err := s.db.QueryRowContext(ctx, q, slotID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, ErrSlotNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("sqlite slots: load: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(snapshot), &sess); err != nil {
		return session.Session{}, fmt.Errorf("sqlite slots: unmarshal snapshot: %w", err)
	}
	return sess, nil
}

// List returns slots for the given session, newest first. An empty sessionID
// lists slots across all sessions.
func (s *SlotStore) List(ctx context.Context, sessionID string) ([]Slot, error) {
	q := `SELECT id, session_id, label, title, created_at FROM slots`
	var args []any
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite slots: list: %w", err)
	}
	defer rows.Close()

	slots := []Slot{}
	for rows.Next() {
		var (
			slot      Slot
			createdAt string
		)
		if err := rows.Scan(&slot.ID, &slot.SessionID, &slot.Label, &slot.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite slots: scan: %w", err)
		}
		slot.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite slots: parse created_at: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite slots: rows: %w", err)
	}
	return slots, nil
}

// Delete removes a slot. Deleting an absent slot returns ErrSlotNotFound.
func (s *SlotStore) Delete(ctx context.Context, slotID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, slotID)
	if err != nil {
		return fmt.Errorf("sqlite slots: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite slots: rows affected: %w", err)
	}
	if n == 0 {
		return ErrSlotNotFound
	}
	return nil
}

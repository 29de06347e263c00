package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mutsucloud/otogi/internal/archive"
	"github.com/mutsucloud/otogi/internal/archive/sqlite"
	"github.com/mutsucloud/otogi/internal/session"
)

type createSessionRequest struct {
	CharacterID string `json:"characterId"`
	MemoryMode  string `json:"memoryMode"`
	Title       string `json:"title"`
}

type sessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CharacterID  string    `json:"characterId"`
	MessageCount int       `json:"messageCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type slotResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Label     string    `json:"label"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type recallResponse struct {
	Content  string  `json:"content"`
	Kind     string  `json:"kind"`
	Distance float64 `json:"distance"`
}

func (s *Server) handleCharacters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Characters)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	characterID := req.CharacterID
	if characterID == "" {
		characterID = s.cfg.DefaultCharacter
	}
	mode := session.MemoryMode(req.MemoryMode)
	if req.MemoryMode == "" {
		mode = s.cfg.DefaultMemoryMode
	} else if !mode.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown memory mode "+strconv.Quote(req.MemoryMode))
		return
	}

	sess := session.New(mode, characterID)
	if req.Title != "" {
		sess.Title = req.Title
	}
	s.cfg.Store.Put(sess)
	s.cfg.Metrics.ActiveSessions.Add(r.Context(), 1)
	s.persist(r.Context(), sess.ID)

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	live := s.cfg.Store.List()
	summaries := make([]sessionSummary, 0, len(live))
	for _, sess := range live {
		summaries = append(summaries, sessionSummary{
			ID:           sess.ID,
			Title:        sess.Title,
			CharacterID:  sess.ActiveCharacterID,
			MessageCount: len(sess.Messages),
			UpdatedAt:    sess.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.cfg.Store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.cfg.Store.Get(id); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.cfg.Store.Delete(id)
	s.cfg.Metrics.ActiveSessions.Add(r.Context(), -1)
	if s.cfg.Archive != nil {
		if err := s.cfg.Archive.DeleteSession(r.Context(), id); err != nil {
			s.log.Warn("archive delete failed", "session_id", id, "error", err)
		}
	}
	if s.cfg.Recaller != nil {
		if err := s.cfg.Recaller.Forget(r.Context(), id); err != nil {
			s.log.Warn("recall forget failed", "session_id", id, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	sess, ok := s.cfg.Store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if idx < 0 || idx >= len(sess.Messages) {
		writeError(w, http.StatusBadRequest, "message index out of range")
		return
	}

	updated, _ := s.cfg.Store.Apply(id, func(cur session.Session) session.Session {
		return session.DeleteMessage(cur, idx)
	})
	s.persist(r.Context(), id)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSaveSlot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.cfg.Store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	var req struct {
		Label string `json:"label"`
	}
	if r.Body != nil {
		// An empty body is fine; the label falls back to the session title.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	slot, err := s.cfg.Slots.Save(r.Context(), req.Label, sess)
	if err != nil {
		s.log.Error("slot save failed", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "slot save failed")
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponse(slot))
}

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := s.cfg.Slots.List(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error("slot list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "slot list failed")
		return
	}
	out := make([]slotResponse, 0, len(slots))
	for _, slot := range slots {
		out = append(out, toSlotResponse(slot))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLoadSlot(w http.ResponseWriter, r *http.Request) {
	sess, err := s.cfg.Slots.Load(r.Context(), r.PathValue("slot"))
	if errors.Is(err, sqlite.ErrSlotNotFound) {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	if err != nil {
		s.log.Error("slot load failed", "error", err)
		writeError(w, http.StatusInternalServerError, "slot load failed")
		return
	}

	// Loading a slot replaces the live session with the snapshot.
	s.cfg.Store.Put(sess)
	s.persist(r.Context(), sess.ID)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.Slots.Delete(r.Context(), r.PathValue("slot"))
	if errors.Is(err, sqlite.ErrSlotNotFound) {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	if err != nil {
		s.log.Error("slot delete failed", "error", err)
		writeError(w, http.StatusInternalServerError, "slot delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	hits, err := s.cfg.Archive.SearchMessages(r.Context(), query, archive.SearchOpts{
		SessionID: r.URL.Query().Get("session_id"),
		Role:      r.URL.Query().Get("role"),
		Limit:     limit,
	})
	if err != nil {
		s.log.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	topK := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		topK = n
	}

	results, err := s.cfg.Recaller.Recall(r.Context(), r.PathValue("id"), query, topK)
	if err != nil {
		s.log.Error("recall failed", "error", err)
		writeError(w, http.StatusInternalServerError, "recall failed")
		return
	}
	out := make([]recallResponse, 0, len(results))
	for _, res := range results {
		out = append(out, recallResponse{
			Content:  res.Note.Content,
			Kind:     res.Note.Kind,
			Distance: res.Distance,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func toSlotResponse(slot sqlite.Slot) slotResponse {
	return slotResponse{
		ID:        slot.ID,
		SessionID: slot.SessionID,
		Label:     slot.Label,
		Title:     slot.Title,
		CreatedAt: slot.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

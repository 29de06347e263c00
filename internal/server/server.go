// Package server exposes the engine over HTTP and WebSocket. REST endpoints
// cover session lifecycle, save slots, transcript search, and semantic
// recall; a per-session WebSocket streams turn updates and notifications.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mutsucloud/otogi/internal/archive"
	"github.com/mutsucloud/otogi/internal/archive/sqlite"
	"github.com/mutsucloud/otogi/internal/config"
	"github.com/mutsucloud/otogi/internal/health"
	"github.com/mutsucloud/otogi/internal/notify"
	"github.com/mutsucloud/otogi/internal/observe"
	"github.com/mutsucloud/otogi/internal/recall"
	"github.com/mutsucloud/otogi/internal/session"
	"github.com/mutsucloud/otogi/internal/turn"
	"github.com/mutsucloud/otogi/pkg/types"
)

// shutdownTimeout bounds the graceful drain when Run's context is cancelled.
const shutdownTimeout = 10 * time.Second

// Config configures a Server. Store and Turns are required; optional
// collaborators disable their endpoints when nil.
type Config struct {
	// Addr is the TCP listen address, e.g. ":8080".
	Addr string
	// TLS enables HTTPS when non-nil.
	TLS *config.TLSConfig

	// Store is the live session store. Required.
	Store *session.Store
	// Turns runs conversation turns. Required.
	Turns *turn.Controller

	// Archive persists session snapshots. Optional.
	Archive archive.Archive
	// Slots is the local save-slot store. Optional.
	Slots *sqlite.SlotStore
	// Recaller serves semantic memory queries. Optional.
	Recaller *recall.Recaller
	// Notifier relays transient notifications to WebSocket clients. Optional.
	Notifier *notify.Hub
	// Health serves /healthz and /readyz when non-nil.
	Health *health.Handler

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Characters is the configured roster, served on /api/characters.
	Characters []types.Character
	// DefaultCharacter is assigned to new sessions that do not name one.
	DefaultCharacter string
	// DefaultMemoryMode is assigned to new sessions that do not name one.
	DefaultMemoryMode session.MemoryMode

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Server is the HTTP/WebSocket front of the engine.
type Server struct {
	cfg Config
	srv *http.Server
	log *slog.Logger
}

// New validates cfg and builds a Server with all routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: session store is required")
	}
	if cfg.Turns == nil {
		return nil, errors.New("server: turn controller is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg: cfg,
		log: cfg.Logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()
	api.HandleFunc("GET /api/characters", s.handleCharacters)
	api.HandleFunc("POST /api/sessions", s.handleCreateSession)
	api.HandleFunc("GET /api/sessions", s.handleListSessions)
	api.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	api.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	api.HandleFunc("DELETE /api/sessions/{id}/messages/{index}", s.handleDeleteMessage)
	api.HandleFunc("GET /api/sessions/{id}/ws", s.handleStream)
	if cfg.Slots != nil {
		api.HandleFunc("POST /api/sessions/{id}/slots", s.handleSaveSlot)
		api.HandleFunc("GET /api/sessions/{id}/slots", s.handleListSlots)
		api.HandleFunc("POST /api/slots/{slot}/load", s.handleLoadSlot)
		api.HandleFunc("DELETE /api/slots/{slot}", s.handleDeleteSlot)
	}
	if cfg.Archive != nil {
		api.HandleFunc("GET /api/search", s.handleSearch)
	}
	if cfg.Recaller != nil {
		api.HandleFunc("GET /api/sessions/{id}/recall", s.handleRecall)
	}
	mux.Handle("/api/", observe.Middleware(cfg.Metrics)(api))

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run restores archived sessions into the live store, then serves until ctx
// is cancelled. On shutdown it drains in-flight requests, waits for the turn
// controller's background work, and persists every live session.
func (s *Server) Run(ctx context.Context) error {
	s.restore(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if s.cfg.TLS != nil {
			err = s.srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		s.cfg.Turns.Wait()
		s.persistAll(shutdownCtx)
		return nil
	})
	return g.Wait()
}

// restore loads every archived session into the live store so clients can
// resume where they left off.
func (s *Server) restore(ctx context.Context) {
	if s.cfg.Archive == nil {
		return
	}
	summaries, err := s.cfg.Archive.ListSessions(ctx)
	if err != nil {
		s.log.Warn("session restore skipped", "error", err)
		return
	}
	restored := 0
	for _, sum := range summaries {
		if _, ok := s.cfg.Store.Get(sum.ID); ok {
			continue
		}
		sess, err := s.cfg.Archive.LoadSession(ctx, sum.ID)
		if err != nil {
			s.log.Warn("session restore failed", "session_id", sum.ID, "error", err)
			continue
		}
		s.cfg.Store.Put(sess)
		s.cfg.Metrics.ActiveSessions.Add(ctx, 1)
		restored++
	}
	if restored > 0 {
		s.log.Info("sessions restored from archive", "count", restored)
	}
}

// persist snapshots one session into the archive.
func (s *Server) persist(ctx context.Context, sessionID string) {
	if s.cfg.Archive == nil {
		return
	}
	sess, ok := s.cfg.Store.Get(sessionID)
	if !ok {
		return
	}
	if err := s.cfg.Archive.SaveSession(ctx, sess); err != nil {
		s.log.Warn("session archive failed", "session_id", sessionID, "error", err)
	}
}

// persistAll snapshots every live session, called once on shutdown.
func (s *Server) persistAll(ctx context.Context) {
	if s.cfg.Archive == nil {
		return
	}
	for _, sess := range s.cfg.Store.List() {
		if err := s.cfg.Archive.SaveSession(ctx, sess); err != nil {
			s.log.Warn("session archive failed", "session_id", sess.ID, "error", err)
		}
	}
}

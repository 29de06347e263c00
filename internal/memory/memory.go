// Package memory implements tiered narrative memory. Each completed turn is
// compressed into a short note appended to the session's short-term memory
// (STM); once enough notes accumulate, they are folded together with the
// existing long-term memory (LTM) into a replacement LTM and the STM is
// cleared. One level of STM backup supports rollback when the trailing reply
// is regenerated.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mutsucloud/otogi/internal/notify"
	"github.com/mutsucloud/otogi/internal/observe"
	"github.com/mutsucloud/otogi/internal/session"
	"github.com/mutsucloud/otogi/pkg/provider/summarize"
)

// DefaultThreshold is how many STM appends trigger an LTM consolidation.
const DefaultThreshold = 7

// Note prefixes distinguishing the two STM entry styles.
const (
	slidingPrefix = "• "
	chapterPrefix = "[Chapter]: "
)

// Recorder receives consolidated memory text for semantic indexing, so plot
// events can be retrieved by similarity after they leave the transcript
// window. Indexing failures are logged, never surfaced to the turn.
type Recorder interface {
	Remember(ctx context.Context, sessionID, kind, content string) error
}

// Kinds passed to [Recorder.Remember].
const (
	RecordKindChapter = "chapter"
	RecordKindLTM     = "ltm"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Summarizer produces the compressed notes. Required.
	Summarizer summarize.Summarizer
	// Store is the live session store. Required.
	Store *session.Store
	// Notifier receives consolidation progress. Optional.
	Notifier *notify.Hub
	// Recorder indexes consolidated memory for semantic recall. Optional.
	Recorder Recorder
	// Threshold overrides DefaultThreshold when positive.
	Threshold int
	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Engine runs the consolidation pipeline. Safe for concurrent use; all
// session mutation goes through the store by identifier.
type Engine struct {
	summarizer summarize.Summarizer
	store      *session.Store
	notifier   *notify.Hub
	recorder   Recorder
	threshold  int
	metrics    *observe.Metrics
	log        *slog.Logger
}

// NewEngine validates cfg and creates an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Summarizer == nil {
		return nil, errors.New("memory: Summarizer is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("memory: Store is required")
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		summarizer: cfg.Summarizer,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		recorder:   cfg.Recorder,
		threshold:  threshold,
		metrics:    cfg.Metrics,
		log:        log,
	}, nil
}

// ConsolidateTurn compresses one completed exchange into the session's STM
// and, when the note count reaches the threshold, folds STM into LTM. It
// blocks until both stages finish; callers dispatch it in a goroutine so the
// turn itself never waits on summarization.
//
// An empty summary from the collaborator means "nothing worth keeping" and
// skips the turn without touching session state.
func (e *Engine) ConsolidateTurn(ctx context.Context, sessionID, userText, assistantText string) error {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return fmt.Errorf("memory: unknown session %s", sessionID)
	}

	var (
		mode   summarize.Mode
		text   string
		prefix string
	)
	switch sess.MemoryMode {
	case session.MemorySliding:
		mode = summarize.ModeMicro
		text = "User: " + userText + "\nAI: " + assistantText + "\n"
		prefix = slidingPrefix
	case session.MemoryNovel:
		mode = summarize.ModeNovelChapter
		text = assistantText
		prefix = chapterPrefix
	default:
		return nil
	}

	start := time.Now()
	summary, err := e.summarizer.Summarize(ctx, summarize.Request{Text: text, Mode: mode})
	e.metrics.RecordSummarize(ctx, string(mode), time.Since(start))
	if err != nil {
		e.log.Warn("turn summarization failed", "session_id", sessionID, "mode", mode, "error", err)
		e.notifyError(sessionID, "Memory note failed")
		return fmt.Errorf("memory: summarize turn: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}
	line := prefix + summary + "\n"

	// Stage 1: append the note. The threshold check and the STM/LTM snapshot
	// for stage 2 are taken inside the same atomic update, so interleaved
	// turns each observe a consistent count.
	var (
		consolidate bool
		stmSnapshot string
		ltmSnapshot string
	)
	_, ok = e.store.Apply(sessionID, func(s session.Session) session.Session {
		newSTM := s.STM + line
		newCount := s.TurnCount + 1
		s.STMBackup = s.STM
		s.STM = newSTM
		if newCount >= e.threshold {
			// Count resets now so the next turn starts a fresh cycle even
			// while the merge below is still in flight.
			s.TurnCount = 0
			consolidate = true
			stmSnapshot = newSTM
			ltmSnapshot = s.LTM
		} else {
			s.TurnCount = newCount
		}
		return s
	})
	if !ok {
		return fmt.Errorf("memory: session %s vanished during consolidation", sessionID)
	}
	if prefix == chapterPrefix {
		e.record(ctx, sessionID, RecordKindChapter, summary)
	}
	if !consolidate {
		return nil
	}

	start = time.Now()
	merged, err := e.summarizer.Summarize(ctx, summarize.Request{
		Text:        stmSnapshot,
		PreviousLTM: ltmSnapshot,
		Mode:        summarize.ModeMacro,
	})
	e.metrics.RecordSummarize(ctx, string(summarize.ModeMacro), time.Since(start))
	if err != nil {
		e.metrics.RecordConsolidation(ctx, "error")
		e.log.Warn("memory merge failed", "session_id", sessionID, "error", err)
		e.notifyError(sessionID, "Memory consolidation failed")
		return fmt.Errorf("memory: merge: %w", err)
	}
	merged = strings.TrimSpace(merged)
	if merged == "" {
		e.metrics.RecordConsolidation(ctx, "skipped")
		return nil
	}

	// Stage 2: replace LTM wholesale and clear the notes that fed it.
	e.store.Apply(sessionID, func(s session.Session) session.Session {
		s.LTM = merged
		s.STM = ""
		s.TurnCount = 0
		return s
	})
	e.record(ctx, sessionID, RecordKindLTM, merged)
	e.metrics.RecordConsolidation(ctx, "ok")
	if e.notifier != nil {
		e.notifier.Success(sessionID, "Memory consolidated")
	}
	e.log.Info("memory consolidated", "session_id", sessionID, "ltm_len", len(merged))
	return nil
}

func (e *Engine) record(ctx context.Context, sessionID, kind, content string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Remember(ctx, sessionID, kind, content); err != nil {
		e.log.Warn("recall indexing failed", "session_id", sessionID, "kind", kind, "error", err)
	}
}

// Rollback restores the session's STM from its backup. Called when the
// trailing assistant reply is regenerated, so the note that summarized the
// discarded reply does not survive it.
func (e *Engine) Rollback(sessionID string) {
	e.store.Apply(sessionID, func(s session.Session) session.Session {
		s.STM = s.STMBackup
		return s
	})
}

func (e *Engine) notifyError(sessionID, text string) {
	if e.notifier != nil {
		e.notifier.Error(sessionID, text)
	}
}

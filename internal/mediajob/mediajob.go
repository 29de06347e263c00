// Package mediajob turns parsed media commands into generated images and
// videos and splices the results back into the transcript they came from.
//
// Each job runs a small state machine: Submitted, then either resolved
// immediately or Polling with a fixed interval and a bounded attempt count,
// ending in Resolved, Failed, or TimedOut. Resolution rewrites the
// originating tag into its _log form plus a markdown media reference; on
// failure or timeout the tag is left untouched so the user can retry, and no
// session state is persisted.
package mediajob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mutsucloud/otogi/internal/notify"
	"github.com/mutsucloud/otogi/internal/observe"
	"github.com/mutsucloud/otogi/internal/session"
	"github.com/mutsucloud/otogi/internal/tagparse"
	"github.com/mutsucloud/otogi/pkg/provider/imagegen"
	"github.com/mutsucloud/otogi/pkg/provider/videogen"
	"github.com/mutsucloud/otogi/pkg/types"
)

// State is the lifecycle state of one media job.
type State string

const (
	StateIdle      State = "idle"
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateResolved  State = "resolved"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Default polling parameters: 3 seconds between polls, 60 attempts, roughly
// three minutes end to end.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxAttempts  = 60
)

// Job is the record of one dispatched media command.
type Job struct {
	ID          string
	SessionID   string
	Command     types.MediaCommand
	Fingerprint string

	State     State
	ResultURL string
	Err       error
	Polls     int
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	// Images handles image commands. Optional; image commands fail when nil.
	Images imagegen.Provider
	// Videos handles video commands. Optional; video commands fail when nil.
	Videos videogen.Provider
	// Store is the live session store. Required.
	Store *session.Store
	// Roster resolves model-written character references. Optional.
	Roster *tagparse.Roster
	// Notifier receives job progress. Optional.
	Notifier *notify.Hub
	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics

	// PollInterval and MaxAttempts override the defaults when positive.
	PollInterval time.Duration
	MaxAttempts  int

	// Sleep is the wait primitive between polls, injectable for tests.
	// Defaults to a context-aware timer sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Orchestrator executes media jobs. Safe for concurrent use; any number of
// jobs may run at once, each mutating its session only through the store.
type Orchestrator struct {
	images   imagegen.Provider
	videos   videogen.Provider
	store    *session.Store
	roster   *tagparse.Roster
	notifier *notify.Hub
	metrics  *observe.Metrics

	pollInterval time.Duration
	maxAttempts  int
	sleep        func(ctx context.Context, d time.Duration) error
	log          *slog.Logger
}

// NewOrchestrator validates cfg and creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("mediajob: Store is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		images:       cfg.Images,
		videos:       cfg.Videos,
		store:        cfg.Store,
		roster:       cfg.Roster,
		notifier:     cfg.Notifier,
		metrics:      cfg.Metrics,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		sleep:        cfg.Sleep,
		log:          cfg.Logger,
	}, nil
}

// Run executes one media command to completion and returns the finished Job.
// It blocks for the life of the job (possibly minutes for video); callers
// dispatch it in a goroutine so the turn never waits on it. The job mutates
// its session only on resolution, looked up by ID at that moment.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, cmd types.MediaCommand, fingerprint string) *Job {
	job := &Job{
		ID:          ulid.Make().String(),
		SessionID:   sessionID,
		Command:     cmd,
		Fingerprint: fingerprint,
		State:       StateSubmitted,
	}
	start := time.Now()
	log := o.log.With("job_id", job.ID, "session_id", sessionID, "kind", cmd.Kind)

	o.metrics.PendingMediaJobs.Add(ctx, 1)
	defer o.metrics.PendingMediaJobs.Add(ctx, -1)

	var url string
	var err error
	switch cmd.Kind {
	case types.MediaVideo:
		url, err = o.runVideo(ctx, job, log)
	default:
		url, err = o.runImage(ctx, job)
	}

	switch {
	case err == nil:
		job.State = StateResolved
		job.ResultURL = url
		o.commit(job)
		o.notifySuccess(job)
		log.Info("media job resolved", "polls", job.Polls, "elapsed", time.Since(start))
	case errors.Is(err, errPollBudget):
		job.State = StateTimedOut
		job.Err = err
		if o.notifier != nil {
			o.notifier.Timeout(sessionID, "Generation timed out, the scene can be retried")
		}
		log.Warn("media job timed out", "polls", job.Polls)
	default:
		job.State = StateFailed
		job.Err = err
		if o.notifier != nil {
			o.notifier.Error(sessionID, "Generation failed: "+err.Error())
		}
		log.Warn("media job failed", "error", err)
	}

	o.metrics.RecordMediaJob(ctx, string(cmd.Kind), string(job.State), time.Since(start))
	return job
}

// errPollBudget marks poll-budget exhaustion, distinct from backend failure.
var errPollBudget = errors.New("mediajob: poll budget exhausted")

func (o *Orchestrator) runImage(ctx context.Context, job *Job) (string, error) {
	if o.images == nil {
		return "", errors.New("mediajob: no image provider configured")
	}
	if o.notifier != nil {
		o.notifier.Info(job.SessionID, "Painting the scene")
	}

	charID := job.Command.CharacterID
	if o.roster != nil {
		sess, _ := o.store.Get(job.SessionID)
		charID = o.roster.Resolve(charID, sess.ActiveCharacterID)
	}

	res, err := o.images.Generate(ctx, imagegen.Request{
		Prompt:         job.Command.Description,
		NegativePrompt: job.Command.NegativePrompt,
		CharacterID:    charID,
		Model:          job.Command.Model,
		Parameters:     job.Command.Parameters,
	})
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	return res.ImageURL, nil
}

func (o *Orchestrator) runVideo(ctx context.Context, job *Job, log *slog.Logger) (string, error) {
	if o.videos == nil {
		return "", errors.New("mediajob: no video provider configured")
	}
	if o.notifier != nil {
		o.notifier.Info(job.SessionID, "Rendering cinematic")
	}

	sub, err := o.videos.Submit(ctx, videogen.Request{
		Prompt:     job.Command.Description,
		Model:      job.Command.Model,
		Parameters: job.Command.Parameters,
	})
	if err != nil {
		return "", fmt.Errorf("submit video: %w", err)
	}
	if sub.Done() {
		return sub.VideoURL, nil
	}

	job.State = StatePolling
	log.Debug("video job polling", "task_id", sub.TaskID)
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		if err := o.sleep(ctx, o.pollInterval); err != nil {
			return "", fmt.Errorf("poll wait: %w", err)
		}
		job.Polls++
		o.metrics.MediaJobPolls.Add(ctx, 1)

		st, err := o.videos.CheckStatus(ctx, sub)
		if err != nil {
			return "", fmt.Errorf("poll status: %w", err)
		}
		switch st.State {
		case videogen.StateProcessing:
			continue
		case videogen.StateSucceeded:
			return st.VideoURL, nil
		default:
			// Terminal backend failure aborts immediately, remaining
			// attempts are not spent.
			return "", fmt.Errorf("render failed: %s", st.Reason)
		}
	}
	return "", errPollBudget
}

// commit splices the result into the session transcript. Every message still
// containing the fingerprint is rewritten; when none is, the reference is
// appended to the trailing message instead.
func (o *Orchestrator) commit(job *Job) {
	o.store.Apply(job.SessionID, func(s session.Session) session.Session {
		msgs := make([]types.Message, len(s.Messages))
		copy(msgs, s.Messages)

		spliced := false
		for i := range msgs {
			if updated, ok := tagparse.SpliceMediaResult(msgs[i].Content, job.Fingerprint, job.Command.Kind, job.ResultURL); ok {
				msgs[i].Content = updated
				spliced = true
			}
		}
		if !spliced && len(msgs) > 0 {
			last := len(msgs) - 1
			msgs[last].Content = tagparse.AppendMediaResult(msgs[last].Content, job.Command.Kind, job.ResultURL)
		}
		s.Messages = msgs
		return s
	})
}

func (o *Orchestrator) notifySuccess(job *Job) {
	if o.notifier == nil {
		return
	}
	if job.Command.Kind == types.MediaVideo {
		o.notifier.Success(job.SessionID, "Scene complete")
	} else {
		o.notifier.Success(job.SessionID, "Image ready")
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

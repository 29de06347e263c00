package mediajob_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mutsucloud/otogi/internal/mediajob"
	"github.com/mutsucloud/otogi/internal/session"
	imgmock "github.com/mutsucloud/otogi/pkg/provider/imagegen/mock"
	"github.com/mutsucloud/otogi/pkg/provider/videogen"
	vidmock "github.com/mutsucloud/otogi/pkg/provider/videogen/mock"
	"github.com/mutsucloud/otogi/pkg/types"
)

// instantSleep skips real waiting and counts the waits instead.
func instantSleep(counter *int) func(context.Context, time.Duration) error {
	return func(ctx context.Context, _ time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		*counter++
		return nil
	}
}

func newOrchestrator(t *testing.T, cfg mediajob.OrchestratorConfig) *mediajob.Orchestrator {
	t.Helper()
	if cfg.Sleep == nil {
		var n int
		cfg.Sleep = instantSleep(&n)
	}
	o, err := mediajob.NewOrchestrator(cfg)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func seedSession(store *session.Store, assistantContent string) session.Session {
	s := session.New(session.MemoryInfinite, "rei")
	s = session.AppendMessage(s, types.Message{Role: types.RoleUser, Content: "draw it"})
	s = session.AppendMessage(s, types.Message{Role: types.RoleAssistant, Content: assistantContent})
	store.Put(s)
	return s
}

func TestRun_ImageResolvedSplices(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	body := `<draw>{"description":"sunset"}</draw>`
	s := seedSession(store, "She points up.\n"+body)

	img := &imgmock.Provider{}
	o := newOrchestrator(t, mediajob.OrchestratorConfig{Images: img, Store: store})

	cmd := types.MediaCommand{Trigger: true, Kind: types.MediaImage, Description: "sunset"}
	job := o.Run(context.Background(), s.ID, cmd, body)

	if job.State != mediajob.StateResolved {
		t.Fatalf("State = %q, want resolved (err=%v)", job.State, job.Err)
	}
	if job.ID == "" {
		t.Error("job has empty ID")
	}

	got, _ := store.Get(s.ID)
	content := got.Messages[1].Content
	if strings.Contains(content, "<draw>") {
		t.Errorf("pending tag survived: %q", content)
	}
	if !strings.Contains(content, "<draw_log>") {
		t.Errorf("log tag missing: %q", content)
	}
	if !strings.Contains(content, "![Generated](https://example.com/mock.png)") {
		t.Errorf("media reference missing: %q", content)
	}
}

func TestRun_ImageFailureLeavesTagUntouched(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	body := `<draw>{"description":"x"}</draw>`
	s := seedSession(store, body)

	img := &imgmock.Provider{Err: errors.New("quota exceeded")}
	o := newOrchestrator(t, mediajob.OrchestratorConfig{Images: img, Store: store})

	job := o.Run(context.Background(), s.ID, types.MediaCommand{Kind: types.MediaImage, Description: "x"}, body)
	if job.State != mediajob.StateFailed {
		t.Fatalf("State = %q, want failed", job.State)
	}

	got, _ := store.Get(s.ID)
	if got.Messages[1].Content != body {
		t.Errorf("transcript mutated on failure: %q", got.Messages[1].Content)
	}
}

func TestRun_VideoImmediateSuccess(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	body := `<video>{"prompt":"pan"}</video>`
	s := seedSession(store, body)

	vid := &vidmock.Provider{
		Submission: &videogen.Submission{TaskID: "t1", VideoURL: "https://cdn/v.mp4"},
	}
	var waits int
	o := newOrchestrator(t, mediajob.OrchestratorConfig{
		Videos: vid, Store: store, Sleep: instantSleep(&waits),
	})

	job := o.Run(context.Background(), s.ID, types.MediaCommand{Kind: types.MediaVideo, Description: "pan"}, body)
	if job.State != mediajob.StateResolved || job.ResultURL != "https://cdn/v.mp4" {
		t.Fatalf("job = %+v", job)
	}
	if waits != 0 || vid.StatusCalls != 0 {
		t.Errorf("immediate success still polled: waits=%d statusCalls=%d", waits, vid.StatusCalls)
	}

	got, _ := store.Get(s.ID)
	if !strings.Contains(got.Messages[1].Content, "![Video](https://cdn/v.mp4)") {
		t.Errorf("video reference missing: %q", got.Messages[1].Content)
	}
}

func TestRun_VideoPollsUntilSucceeded(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	body := `<video>{"prompt":"pan"}</video>`
	s := seedSession(store, body)

	vid := &vidmock.Provider{
		Submission: &videogen.Submission{TaskID: "t1", StatusURL: "s", ResponseURL: "r"},
		Statuses: []videogen.Status{
			{State: videogen.StateProcessing},
			{State: videogen.StateProcessing},
			{State: videogen.StateSucceeded, VideoURL: "https://cdn/done.mp4"},
		},
	}
	o := newOrchestrator(t, mediajob.OrchestratorConfig{Videos: vid, Store: store})

	job := o.Run(context.Background(), s.ID, types.MediaCommand{Kind: types.MediaVideo, Description: "pan"}, body)
	if job.State != mediajob.StateResolved {
		t.Fatalf("State = %q (err=%v)", job.State, job.Err)
	}
	if job.ResultURL != "https://cdn/done.mp4" {
		t.Errorf("ResultURL = %q", job.ResultURL)
	}
	// Exactly three polls: two processing, one succeeded, none after.
	if vid.StatusCalls != 3 {
		t.Errorf("StatusCalls = %d, want 3", vid.StatusCalls)
	}
	if job.Polls != 3 {
		t.Errorf("Polls = %d, want 3", job.Polls)
	}
}

func TestRun_VideoFailFast(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	body := `<video>{"prompt":"pan"}</video>`
	s := seedSession(store, body)

	vid := &vidmock.Provider{
		Submission: &videogen.Submission{TaskID: "t1", StatusURL: "s"},
		Statuses: []videogen.Status{
			{State: videogen.StateProcessing},
			{State: videogen.StateFailed, Reason: "nsfw rejected"},
		},
	}
	o := newOrchestrator(t, mediajob.OrchestratorConfig{Videos: vid, Store: store})

	job := o.Run(context.Background(), s.ID, types.MediaCommand{Kind: types.MediaVideo, Description: "pan"}, body)
	if job.State != mediajob.StateFailed {
		t.Fatalf("State = %q, want failed", job.State)
	}
	// Failure aborts immediately without exhausting the budget.
	if vid.StatusCalls != 2 {
		t.Errorf("StatusCalls = %d, want 2", vid.StatusCalls)
	}
	got, _ := store.Get(s.ID)
	if got.Messages[1].Content != body {
		t.Errorf("transcript mutated on failure: %q", got.Messages[1].Content)
	}
}

func TestRun_VideoTimesOutAfterBudget(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	body := `<video>{"prompt":"pan"}</video>`
	s := seedSession(store, body)

	vid := &vidmock.Provider{
		Submission: &videogen.Submission{TaskID: "t1", StatusURL: "s"},
		Statuses:   []videogen.Status{{State: videogen.StateProcessing}},
	}
	o := newOrchestrator(t, mediajob.OrchestratorConfig{
		Videos: vid, Store: store, MaxAttempts: 5,
	})

	job := o.Run(context.Background(), s.ID, types.MediaCommand{Kind: types.MediaVideo, Description: "pan"}, body)
	if job.State != mediajob.StateTimedOut {
		t.Fatalf("State = %q, want timed_out", job.State)
	}
	if vid.StatusCalls != 5 {
		t.Errorf("StatusCalls = %d, want 5", vid.StatusCalls)
	}
	got, _ := store.Get(s.ID)
	if got.Messages[1].Content != body {
		t.Errorf("transcript mutated on timeout: %q", got.Messages[1].Content)
	}
}

func TestRun_FallbackAppendWhenFingerprintGone(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	s := seedSession(store, "the tag was edited away")

	img := &imgmock.Provider{}
	o := newOrchestrator(t, mediajob.OrchestratorConfig{Images: img, Store: store})

	job := o.Run(context.Background(), s.ID, types.MediaCommand{Kind: types.MediaImage, Description: "x"}, "<draw>gone</draw>")
	if job.State != mediajob.StateResolved {
		t.Fatalf("State = %q", job.State)
	}

	got, _ := store.Get(s.ID)
	last := got.Messages[len(got.Messages)-1].Content
	if !strings.HasSuffix(last, "![Generated](https://example.com/mock.png)\n") {
		t.Errorf("fallback append missing: %q", last)
	}
	// Earlier messages untouched.
	if got.Messages[0].Content != "draw it" {
		t.Errorf("earlier message mutated: %q", got.Messages[0].Content)
	}
}

func TestRun_SpliceTargetsMessageEvenAfterNewTurnStarted(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	body := `<draw>{"description":"sunset"}</draw>`
	s := seedSession(store, "scene\n"+body)

	img := &imgmock.Provider{}
	o := newOrchestrator(t, mediajob.OrchestratorConfig{Images: img, Store: store})

	// Simulate the next turn landing while the job is in flight: two more
	// messages appended before resolution commits.
	store.Apply(s.ID, func(cur session.Session) session.Session {
		cur = session.AppendMessage(cur, types.Message{Role: types.RoleUser, Content: "next"})
		return session.AppendMessage(cur, types.Message{Role: types.RoleAssistant, Content: "reply"})
	})

	job := o.Run(context.Background(), s.ID, types.MediaCommand{Kind: types.MediaImage, Description: "sunset"}, body)
	if job.State != mediajob.StateResolved {
		t.Fatalf("State = %q", job.State)
	}

	got, _ := store.Get(s.ID)
	if !strings.Contains(got.Messages[1].Content, "<draw_log>") {
		t.Errorf("originating message not spliced: %q", got.Messages[1].Content)
	}
	if got.Messages[3].Content != "reply" {
		t.Errorf("newer message mutated: %q", got.Messages[3].Content)
	}
}

func TestRun_CancelledContextStopsPolling(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	body := `<video>{"prompt":"pan"}</video>`
	s := seedSession(store, body)

	vid := &vidmock.Provider{
		Submission: &videogen.Submission{TaskID: "t1", StatusURL: "s"},
	}
	o := newOrchestrator(t, mediajob.OrchestratorConfig{Videos: vid, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := o.Run(ctx, s.ID, types.MediaCommand{Kind: types.MediaVideo, Description: "pan"}, body)
	if job.State != mediajob.StateFailed {
		t.Fatalf("State = %q, want failed on cancelled context", job.State)
	}
}

func TestNewOrchestrator_RequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := mediajob.NewOrchestrator(mediajob.OrchestratorConfig{}); err == nil {
		t.Fatal("NewOrchestrator without store succeeded")
	}
}

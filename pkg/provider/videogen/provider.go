// Package videogen defines the Provider interface for asynchronous video
// generation backends. Unlike images, video jobs take long enough that every
// backend exposes a submit-then-poll model: Submit enqueues the job and
// returns a handle, CheckStatus reports progress until the job resolves.
package videogen

import "context"

// State is the lifecycle state of a submitted video job as reported by the
// backend.
type State string

const (
	// StateProcessing means the job was accepted and is still rendering.
	StateProcessing State = "processing"
	// StateSucceeded means the job finished and Status.VideoURL is set.
	StateSucceeded State = "succeeded"
	// StateFailed means the backend gave up on the job. Polling must stop.
	StateFailed State = "failed"
)

// Request carries everything a video backend needs to start a job.
type Request struct {
	// Prompt is the free-text description of the desired clip.
	Prompt string

	// ImageURL optionally seeds the first frame (image-to-video).
	ImageURL string

	// Model overrides the backend's default model when non-empty.
	Model string

	// Parameters is a backend-specific parameter bag passed through opaquely.
	Parameters map[string]any
}

// Submission is the handle returned by Submit. When the backend resolved the
// job synchronously, VideoURL is already set and Done reports true; otherwise
// the caller polls CheckStatus with this handle.
type Submission struct {
	// TaskID identifies the job at the backend.
	TaskID string

	// StatusURL and ResponseURL are backend-provided polling endpoints.
	// Empty for backends addressed purely by TaskID.
	StatusURL   string
	ResponseURL string

	// VideoURL is set when the job resolved at submit time.
	VideoURL string
}

// Done reports whether the submission resolved without polling.
func (s *Submission) Done() bool {
	return s.VideoURL != ""
}

// Status is one poll observation of a submitted job.
type Status struct {
	State State

	// VideoURL is set when State is StateSucceeded.
	VideoURL string

	// Reason carries the backend's failure detail when State is StateFailed.
	Reason string
}

// Provider is the abstraction over any asynchronous video generation backend.
// Implementations must be safe for concurrent use and must respect ctx.
type Provider interface {
	// Submit starts a video job. A non-nil Submission with Done() true means
	// the backend resolved synchronously and no polling is needed.
	Submit(ctx context.Context, req Request) (*Submission, error)

	// CheckStatus reports the current state of a previously submitted job.
	// A transport error is distinct from StateFailed: the former is
	// retryable, the latter is terminal.
	CheckStatus(ctx context.Context, sub *Submission) (*Status, error)
}

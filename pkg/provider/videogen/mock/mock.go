// Package mock provides a mock implementation of videogen.Provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/mutsucloud/otogi/pkg/provider/videogen"
)

// Provider is a configurable mock videogen.Provider that records calls and
// replays a scripted sequence of poll statuses.
type Provider struct {
	mu sync.Mutex

	// Submission is returned from Submit when SubmitErr is nil.
	Submission *videogen.Submission
	// SubmitErr, when non-nil, is returned from Submit.
	SubmitErr error

	// Statuses is consumed one per CheckStatus call; the last entry repeats
	// once the script is exhausted.
	Statuses []videogen.Status
	// StatusErr, when non-nil, is returned from every CheckStatus call.
	StatusErr error

	// SubmitCalls and StatusCalls record invocations.
	SubmitCalls []videogen.Request
	StatusCalls int

	statusIdx int
}

var _ videogen.Provider = (*Provider)(nil)

func (p *Provider) Submit(_ context.Context, req videogen.Request) (*videogen.Submission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SubmitCalls = append(p.SubmitCalls, req)
	if p.SubmitErr != nil {
		return nil, p.SubmitErr
	}
	if p.Submission != nil {
		s := *p.Submission
		return &s, nil
	}
	return &videogen.Submission{TaskID: "mock-task"}, nil
}

func (p *Provider) CheckStatus(_ context.Context, _ *videogen.Submission) (*videogen.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StatusCalls++
	if p.StatusErr != nil {
		return nil, p.StatusErr
	}
	if len(p.Statuses) == 0 {
		return &videogen.Status{State: videogen.StateProcessing}, nil
	}
	st := p.Statuses[p.statusIdx]
	if p.statusIdx < len(p.Statuses)-1 {
		p.statusIdx++
	}
	return &st, nil
}

// Reset clears recorded calls and scripted responses.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Submission = nil
	p.SubmitErr = nil
	p.Statuses = nil
	p.StatusErr = nil
	p.SubmitCalls = nil
	p.StatusCalls = 0
	p.statusIdx = 0
}

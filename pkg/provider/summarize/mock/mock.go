// Package mock provides a test double for the summarize.Summarizer interface.
package mock

import (
	"context"
	"sync"

	"github.com/mutsucloud/otogi/pkg/provider/summarize"
)

// Call records a single invocation of Summarize.
type Call struct {
	// Req is the request passed to Summarize.
	Req summarize.Request
}

// Summarizer is a mock implementation of summarize.Summarizer.
//
// Results are consumed in order; when exhausted, Result is returned for every
// subsequent call. An empty result with nil Err models the "skip" contract.
type Summarizer struct {
	mu sync.Mutex

	// Result is the summary returned by Summarize when Results is exhausted.
	Result string

	// Results, when non-empty, supplies one summary per call in order.
	Results []string

	// Err, if non-nil, is returned from every Summarize call.
	Err error

	// Calls records every invocation in order.
	Calls []Call

	next int
}

// Summarize records the call and returns the next configured result.
func (s *Summarizer) Summarize(_ context.Context, req summarize.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Req: req})
	if s.Err != nil {
		return "", s.Err
	}
	if s.next < len(s.Results) {
		r := s.Results[s.next]
		s.next++
		return r, nil
	}
	return s.Result, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (s *Summarizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// ModeCalls returns the recorded calls matching mode.
func (s *Summarizer) ModeCalls(mode summarize.Mode) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.Calls {
		if c.Req.Mode == mode {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls and result cursor. Thread-safe.
func (s *Summarizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
	s.next = 0
}

var _ summarize.Summarizer = (*Summarizer)(nil)

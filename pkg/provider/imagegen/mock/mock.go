// Package mock provides a mock implementation of imagegen.Provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/mutsucloud/otogi/pkg/provider/imagegen"
)

// Provider is a configurable mock imagegen.Provider that records calls.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Generate when Err is nil.
	Result *imagegen.Result
	// Err, when non-nil, is returned from Generate.
	Err error

	// Calls records every request passed to Generate.
	Calls []imagegen.Request
}

var _ imagegen.Provider = (*Provider)(nil)

func (p *Provider) Generate(_ context.Context, req imagegen.Request) (*imagegen.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result != nil {
		r := *p.Result
		return &r, nil
	}
	return &imagegen.Result{ImageURL: "https://example.com/mock.png", Model: "mock"}, nil
}

// CallCount returns how many times Generate was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears recorded calls and configured results.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Result = nil
	p.Err = nil
	p.Calls = nil
}

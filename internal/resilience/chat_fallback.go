package resilience

import (
	"context"

	"github.com/mutsucloud/otogi/pkg/provider/chat"
)

// ChatFallback implements [chat.Provider] with automatic failover across
// multiple chat backends. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy fallback is tried.
type ChatFallback struct {
	group *FallbackGroup[chat.Provider]
}

// Compile-time interface assertion.
var _ chat.Provider = (*ChatFallback)(nil)

// NewChatFallback creates a [ChatFallback] with primary as the preferred
// backend.
func NewChatFallback(primary chat.Provider, primaryName string, cfg FallbackConfig) *ChatFallback {
	if cfg.Kind == "" {
		cfg.Kind = "chat"
	}
	return &ChatFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional chat provider as a fallback.
func (f *ChatFallback) AddFallback(name string, provider chat.Provider) {
	f.group.AddFallback(name, provider)
}

// StreamCompletion sends the request to the first healthy provider and
// returns a streaming chunk channel. Note: only the initial connection
// attempt is covered by failover; once a stream is established, mid-stream
// errors are the caller's responsibility.
func (f *ChatFallback) StreamCompletion(ctx context.Context, req chat.CompletionRequest) (<-chan chat.Chunk, error) {
	return ExecuteWithResult(f.group, func(p chat.Provider) (<-chan chat.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *ChatFallback) Complete(ctx context.Context, req chat.CompletionRequest) (*chat.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p chat.Provider) (*chat.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Package chat defines the Provider interface for chat-completion backends.
//
// A chat provider wraps a remote model API (OpenAI, Gemini, DeepSeek, an
// OpenAI-compatible relay, …) and exposes a uniform streaming interface so the
// turn controller never couples to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package chat

import (
	"context"

	"github.com/mutsucloud/otogi/pkg/types"
)

// Usage holds token accounting information returned by the backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the user role and drives the response.
	Messages []types.Message

	// SystemPrompt is a high-priority instruction injected before the
	// conversation history. The turn controller folds world info, memory
	// snapshots, the character persona, and feature toggles into this field;
	// providers treat it opaquely.
	SystemPrompt string

	// Model overrides the provider's default model when non-empty.
	Model string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk. May be empty on a
	// final chunk that carries only a FinishReason.
	Text string

	// FinishReason is set on the final chunk and indicates why generation
	// stopped. Common values are "stop", "length", "error", and "" for
	// non-final chunks. Streaming errors that occur after the channel is
	// opened are surfaced as a chunk with FinishReason "error" and the error
	// message in Text.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly: when ctx is cancelled the
// method must return (or close its channel) as quickly as possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or when ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. The initial
	// error return is non-nil only for failures that prevent the stream from
	// starting (invalid credentials, malformed request). The returned channel
	// must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response. It is
	// a convenience for callers that do not need incremental output.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// FlattenParts renders a multi-part message payload as plain text for
// backends without native multi-part support. Image parts become an inline
// attachment note so the model still sees that an image was supplied.
func FlattenParts(m types.Message) string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		switch p.Kind {
		case types.PartText:
			if out != "" && p.Text != "" {
				out += "\n"
			}
			out += p.Text
		case types.PartImage:
			if out != "" {
				out += "\n"
			}
			out += "[Attached Image: " + p.ImageURL + "]"
		}
	}
	return out
}

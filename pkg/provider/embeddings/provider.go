// Package embeddings defines the Provider interface for vector embedding
// backends. The recall layer embeds consolidated memory summaries and chapter
// notes, so that earlier plot events can be retrieved by semantic similarity
// long after they have left the context window.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (Dimensions). Vectors from different instances must not be
// mixed in one similarity computation unless both use the same model.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The text
	// is passed through verbatim; any model-specific prefixing is the
	// caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds a slice of texts in a single provider call. The
	// returned slice is index-aligned with texts. On error the entire result
	// is nil; partial results are never returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces.
	Dimensions() int

	// ModelID returns the backend model identifier, for logging and for
	// detecting model drift between index writes and reads.
	ModelID() string
}

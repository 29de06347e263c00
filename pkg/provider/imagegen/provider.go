// Package imagegen defines the Provider interface for image generation
// backends. Image generation is synchronous from the caller's point of view:
// a single Generate call returns either a result URL (or data URI) or an
// error. Backends that queue internally must block until the image is ready
// or ctx is cancelled.
package imagegen

import "context"

// Request carries everything an image backend needs.
type Request struct {
	// Prompt is the free-text description of the desired image.
	Prompt string

	// NegativePrompt lists concepts to avoid. Backends without native
	// support may ignore it.
	NegativePrompt string

	// CharacterID identifies the subject character, used by backends that
	// maintain per-character style references. May be empty.
	CharacterID string

	// Model overrides the backend's default model when non-empty.
	Model string

	// Parameters is a backend-specific parameter bag passed through opaquely.
	Parameters map[string]any
}

// Result is a successful generation.
type Result struct {
	// ImageURL is an https URL or a data URI for the generated image.
	ImageURL string

	// Model records which backend/model produced the image.
	Model string
}

// Provider is the abstraction over any image generation backend.
// Implementations must be safe for concurrent use and must respect ctx.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

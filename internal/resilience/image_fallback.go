package resilience

import (
	"context"

	"github.com/mutsucloud/otogi/pkg/provider/imagegen"
)

// ImageFallback implements [imagegen.Provider] with automatic failover
// across multiple image generation backends.
type ImageFallback struct {
	group *FallbackGroup[imagegen.Provider]
}

// Compile-time interface assertion.
var _ imagegen.Provider = (*ImageFallback)(nil)

// NewImageFallback creates an [ImageFallback] with primary as the preferred
// backend.
func NewImageFallback(primary imagegen.Provider, primaryName string, cfg FallbackConfig) *ImageFallback {
	if cfg.Kind == "" {
		cfg.Kind = "image"
	}
	return &ImageFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional image provider as a fallback.
func (f *ImageFallback) AddFallback(name string, provider imagegen.Provider) {
	f.group.AddFallback(name, provider)
}

// Generate sends the request to the first healthy provider and returns its
// result. If the primary fails, subsequent fallbacks are tried.
func (f *ImageFallback) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	return ExecuteWithResult(f.group, func(p imagegen.Provider) (*imagegen.Result, error) {
		return p.Generate(ctx, req)
	})
}

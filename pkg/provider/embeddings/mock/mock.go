// Package mock provides a mock implementation of embeddings.Provider for testing.
package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/mutsucloud/otogi/pkg/provider/embeddings"
)

// Provider is a deterministic mock embeddings.Provider. Unless Err is set, it
// derives a stable pseudo-vector from each input text so similarity tests can
// rely on equal texts producing equal vectors.
type Provider struct {
	mu sync.Mutex

	// Dim is the vector dimensionality. Zero means 8.
	Dim int
	// Err, when non-nil, is returned from Embed and EmbedBatch.
	Err error

	// Calls records every text passed to Embed or EmbedBatch.
	Calls []string
}

var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, texts...)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *Provider) Dimensions() int {
	if p.Dim > 0 {
		return p.Dim
	}
	return 8
}

func (p *Provider) ModelID() string {
	return "mock-embeddings"
}

// vector derives a stable pseudo-embedding from the text hash.
func (p *Provider) vector(text string) []float32 {
	dim := p.Dim
	if dim == 0 {
		dim = 8
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	out := make([]float32, dim)
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return out
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.Err = nil
}

// Package volcengine provides an image generation provider backed by the
// Volcengine Ark images API. It implements the imagegen.Provider interface.
package volcengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mutsucloud/otogi/pkg/provider/imagegen"
)

const (
	generationsEndpoint = "https://ark.cn-beijing.volces.com/api/v3/images/generations"
	defaultModel        = "doubao-seedream-3-0-t2i-250415"
	defaultSize         = "1024x1024"

	// stylePreamble is prepended to every prompt so generated images stay
	// visually consistent across a session.
	stylePreamble = "Anime style, masterpiece, best quality. "
)

// Option is a functional option for configuring the Volcengine Provider.
type Option func(*Provider)

// WithModel sets the Ark model ID.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSize sets the output image size (e.g., "1024x1024").
func WithSize(size string) Option {
	return func(p *Provider) {
		p.size = size
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements imagegen.Provider backed by the Ark images API.
type Provider struct {
	apiKey     string
	model      string
	size       string
	httpClient *http.Client
}

var _ imagegen.Provider = (*Provider)(nil)

// New creates a new Volcengine Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("volcengine: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		size:       defaultSize,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// generationRequest is the JSON payload for POST /api/v3/images/generations.
type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	Watermark      bool   `json:"watermark"`
}

// generationResponse is the Ark images API response.
type generationResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the prompt to Ark and returns the image URL. When Ark
// returns base64 data instead of a URL, the result is a data URI.
func (p *Provider) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	if req.Prompt == "" {
		return nil, errors.New("volcengine: prompt must not be empty")
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	size := p.size
	if s, ok := req.Parameters["size"].(string); ok && s != "" {
		size = s
	}

	payload := generationRequest{
		Model:          model,
		Prompt:         stylePreamble + req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Size:           size,
		ResponseFormat: "url",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("volcengine: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, generationsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("volcengine: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("volcengine: generate HTTP: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("volcengine: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("volcengine: generate: unexpected status %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	result, err := parseGenerationResponse(raw)
	if err != nil {
		return nil, err
	}
	result.Model = model
	return result, nil
}

// parseGenerationResponse extracts the image URL (or a data URI built from
// base64 payload) from a raw Ark response body.
func parseGenerationResponse(raw []byte) (*imagegen.Result, error) {
	var gr generationResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("volcengine: decode response: %w", err)
	}
	if gr.Error != nil {
		return nil, fmt.Errorf("volcengine: generate: %s (%s)", gr.Error.Message, gr.Error.Code)
	}
	if len(gr.Data) == 0 {
		return nil, errors.New("volcengine: generate: empty data in response")
	}
	d := gr.Data[0]
	switch {
	case d.URL != "":
		return &imagegen.Result{ImageURL: d.URL}, nil
	case d.B64JSON != "":
		return &imagegen.Result{ImageURL: "data:image/jpeg;base64," + d.B64JSON}, nil
	default:
		return nil, errors.New("volcengine: generate: response carries neither url nor b64_json")
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

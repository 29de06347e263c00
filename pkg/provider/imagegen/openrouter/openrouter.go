// Package openrouter provides an image generation provider that relays
// prompts through an OpenRouter multimodal model (Gemini image output by
// default). The model returns the image embedded in an assistant message,
// either as a base64 payload, a markdown image link, or a bare URL; this
// package extracts whichever form is present.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mutsucloud/otogi/pkg/provider/imagegen"
)

const (
	completionsEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel        = "google/gemini-2.5-flash-image-preview"
)

// Option is a functional option for configuring the OpenRouter Provider.
type Option func(*Provider)

// WithModel sets the OpenRouter model slug.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements imagegen.Provider via OpenRouter chat completions.
type Provider struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ imagegen.Provider = (*Provider)(nil)

// New creates a new OpenRouter Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// completionRequest is the chat completions payload. Modalities asks the
// model to respond with an image.
type completionRequest struct {
	Model      string              `json:"model"`
	Messages   []completionMessage `json:"messages"`
	Modalities []string            `json:"modalities,omitempty"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionResponse covers the two shapes OpenRouter multimodal models
// return images in: a dedicated images array on the message, or image data
// embedded in the text content.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

var (
	markdownImageRE = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^)\s]+)\)`)
	bareURLRE       = regexp.MustCompile(`https?://\S+\.(?:png|jpe?g|webp|gif)\S*`)
)

// Generate asks the model for an image and extracts its URL or data URI
// from the response.
func (p *Provider) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	if req.Prompt == "" {
		return nil, errors.New("openrouter: prompt must not be empty")
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt += "\nAvoid: " + req.NegativePrompt
	}

	payload := completionRequest{
		Model: model,
		Messages: []completionMessage{
			{Role: "user", Content: "Generate an image: " + prompt},
		},
		Modalities: []string{"image", "text"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter: generate HTTP: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openrouter: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter: generate: unexpected status %d", resp.StatusCode)
	}

	url, err := extractImageURL(raw)
	if err != nil {
		return nil, err
	}
	return &imagegen.Result{ImageURL: url, Model: model}, nil
}

// extractImageURL pulls an image reference out of a raw completion response.
// Preference order: message.images array, data URI in content, markdown
// image link, bare image URL.
func extractImageURL(raw []byte) (string, error) {
	var cr completionResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("openrouter: generate: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("openrouter: generate: no choices in response")
	}
	msg := cr.Choices[0].Message

	for _, img := range msg.Images {
		if img.ImageURL.URL != "" {
			return img.ImageURL.URL, nil
		}
	}
	if idx := strings.Index(msg.Content, "data:image/"); idx >= 0 {
		uri := msg.Content[idx:]
		if end := strings.IndexAny(uri, ")\n \""); end >= 0 {
			uri = uri[:end]
		}
		return uri, nil
	}
	if m := markdownImageRE.FindStringSubmatch(msg.Content); m != nil {
		return m[1], nil
	}
	if m := bareURLRE.FindString(msg.Content); m != "" {
		return m, nil
	}
	return "", errors.New("openrouter: generate: no image found in model response")
}

// Package fal provides a video generation provider backed by the fal.ai
// queue API. It implements the videogen.Provider interface.
package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mutsucloud/otogi/pkg/provider/videogen"
)

const (
	queueEndpointFmt = "https://queue.fal.run/%s"
	defaultModel     = "fal-ai/kling-video/v2/master/text-to-video"
)

// Option is a functional option for configuring the fal Provider.
type Option func(*Provider)

// WithModel sets the fal model path (e.g., "fal-ai/kling-video/v2/master/text-to-video").
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

// Provider implements videogen.Provider backed by the fal.ai queue API.
type Provider struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ videogen.Provider = (*Provider)(nil)

// New creates a new fal Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("fal: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// submitRequest is the payload for POST queue.fal.run/{model}.
type submitRequest struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"image_url,omitempty"`
}

// submitResponse is the queue acknowledgement.
type submitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

// statusResponse is the body of GET status_url.
type statusResponse struct {
	Status string `json:"status"` // IN_QUEUE, IN_PROGRESS, COMPLETED
}

// resultResponse is the body of GET response_url once COMPLETED.
type resultResponse struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
	Detail string `json:"detail"`
}

// Submit enqueues a video job on the fal queue.
func (p *Provider) Submit(ctx context.Context, req videogen.Request) (*videogen.Submission, error) {
	if req.Prompt == "" {
		return nil, errors.New("fal: prompt must not be empty")
	}
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	body, err := json.Marshal(submitRequest{Prompt: req.Prompt, ImageURL: req.ImageURL})
	if err != nil {
		return nil, fmt.Errorf("fal: marshal request: %w", err)
	}
	url := fmt.Sprintf(queueEndpointFmt, model)
	raw, err := p.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	var sr submitResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("fal: decode submit response: %w", err)
	}
	if sr.RequestID == "" {
		return nil, errors.New("fal: submit: response carries no request_id")
	}
	return &videogen.Submission{
		TaskID:      sr.RequestID,
		StatusURL:   sr.StatusURL,
		ResponseURL: sr.ResponseURL,
	}, nil
}

// CheckStatus polls the job's status URL and, once completed, fetches the
// result URL from the response endpoint.
func (p *Provider) CheckStatus(ctx context.Context, sub *videogen.Submission) (*videogen.Status, error) {
	if sub == nil || sub.StatusURL == "" {
		return nil, errors.New("fal: submission carries no status URL")
	}

	raw, err := p.do(ctx, http.MethodGet, sub.StatusURL, nil)
	if err != nil {
		return nil, err
	}
	var st statusResponse
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("fal: decode status response: %w", err)
	}

	switch st.Status {
	case "IN_QUEUE", "IN_PROGRESS":
		return &videogen.Status{State: videogen.StateProcessing}, nil
	case "COMPLETED":
	default:
		return &videogen.Status{State: videogen.StateFailed, Reason: "unexpected queue status " + st.Status}, nil
	}

	resRaw, err := p.do(ctx, http.MethodGet, sub.ResponseURL, nil)
	if err != nil {
		return nil, err
	}
	var rr resultResponse
	if err := json.Unmarshal(resRaw, &rr); err != nil {
		return nil, fmt.Errorf("fal: decode result response: %w", err)
	}
	if rr.Video.URL == "" {
		reason := rr.Detail
		if reason == "" {
			reason = "completed without video url"
		}
		return &videogen.Status{State: videogen.StateFailed, Reason: reason}, nil
	}
	return &videogen.Status{State: videogen.StateSucceeded, VideoURL: rr.Video.URL}, nil
}

func (p *Provider) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("fal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+p.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal: HTTP %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fal: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fal: unexpected status %d from %s", resp.StatusCode, url)
	}
	return raw, nil
}

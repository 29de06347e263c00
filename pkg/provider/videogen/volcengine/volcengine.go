// Package volcengine provides a video generation provider backed by the
// Volcengine Ark content generation tasks API. It implements the
// videogen.Provider interface.
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

	"github.com/mutsucloud/otogi/pkg/provider/videogen"
)

const (
	tasksEndpoint = "https://ark.cn-beijing.volces.com/api/v3/contents/generations/tasks"
	defaultModel  = "doubao-seedance-1-0-lite-t2v-250428"
)

// Option is a functional option for configuring the Volcengine Provider.
type Option func(*Provider)

// WithModel sets the Ark model ID.
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

// Provider implements videogen.Provider backed by the Ark tasks API.
type Provider struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ videogen.Provider = (*Provider)(nil)

// New creates a new Volcengine Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("volcengine: apiKey must not be empty")
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

// taskContent is one content block of a task creation payload. Text blocks
// carry the prompt, image_url blocks seed the first frame.
type taskContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// createTaskRequest is the payload for POST /contents/generations/tasks.
type createTaskRequest struct {
	Model   string        `json:"model"`
	Content []taskContent `json:"content"`
}

// taskResponse covers both task creation and task status lookups.
type taskResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"` // queued, running, succeeded, failed, cancelled
	Content struct {
		VideoURL string `json:"video_url"`
	} `json:"content"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit creates an Ark content generation task.
func (p *Provider) Submit(ctx context.Context, req videogen.Request) (*videogen.Submission, error) {
	if req.Prompt == "" {
		return nil, errors.New("volcengine: prompt must not be empty")
	}
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	content := []taskContent{{Type: "text", Text: req.Prompt}}
	if req.ImageURL != "" {
		block := taskContent{Type: "image_url"}
		block.ImageURL = &struct {
			URL string `json:"url"`
		}{URL: req.ImageURL}
		content = append(content, block)
	}

	body, err := json.Marshal(createTaskRequest{Model: model, Content: content})
	if err != nil {
		return nil, fmt.Errorf("volcengine: marshal request: %w", err)
	}
	raw, err := p.do(ctx, http.MethodPost, tasksEndpoint, body)
	if err != nil {
		return nil, err
	}

	var tr taskResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("volcengine: decode task response: %w", err)
	}
	if tr.Error != nil {
		return nil, fmt.Errorf("volcengine: create task: %s (%s)", tr.Error.Message, tr.Error.Code)
	}
	if tr.ID == "" {
		return nil, errors.New("volcengine: create task: response carries no task id")
	}

	sub := &videogen.Submission{TaskID: tr.ID}
	// Ark occasionally resolves short clips synchronously.
	if tr.Status == "succeeded" && tr.Content.VideoURL != "" {
		sub.VideoURL = tr.Content.VideoURL
	}
	return sub, nil
}

// CheckStatus looks the task up by ID.
func (p *Provider) CheckStatus(ctx context.Context, sub *videogen.Submission) (*videogen.Status, error) {
	if sub == nil || sub.TaskID == "" {
		return nil, errors.New("volcengine: submission carries no task id")
	}

	raw, err := p.do(ctx, http.MethodGet, tasksEndpoint+"/"+sub.TaskID, nil)
	if err != nil {
		return nil, err
	}
	var tr taskResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("volcengine: decode task response: %w", err)
	}
	if tr.Error != nil {
		return &videogen.Status{State: videogen.StateFailed, Reason: tr.Error.Message}, nil
	}

	switch tr.Status {
	case "queued", "running":
		return &videogen.Status{State: videogen.StateProcessing}, nil
	case "succeeded":
		if tr.Content.VideoURL == "" {
			return &videogen.Status{State: videogen.StateFailed, Reason: "succeeded without video url"}, nil
		}
		return &videogen.Status{State: videogen.StateSucceeded, VideoURL: tr.Content.VideoURL}, nil
	case "failed", "cancelled":
		return &videogen.Status{State: videogen.StateFailed, Reason: "task " + tr.Status}, nil
	default:
		return &videogen.Status{State: videogen.StateFailed, Reason: "unexpected task status " + tr.Status}, nil
	}
}

func (p *Provider) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("volcengine: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("volcengine: HTTP %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("volcengine: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("volcengine: unexpected status %d", resp.StatusCode)
	}
	return raw, nil
}

package anyllm

import (
	"testing"

	"github.com/mutsucloud/otogi/pkg/provider/chat"
	"github.com/mutsucloud/otogi/pkg/types"
)

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptLeads checks that the system prompt becomes the
// first message.
func TestBuildParams_SystemPromptLeads(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(chat.CompletionRequest{
		SystemPrompt: "You are Asuka.",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "Hello!"},
			{Role: types.RoleAssistant, Content: "Hmph."},
		},
	})

	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" || params.Messages[0].ContentString() != "You are Asuka." {
		t.Errorf("first message = %+v, want the system prompt", params.Messages[0])
	}
	if params.Messages[1].Role != "user" || params.Messages[2].Role != "assistant" {
		t.Errorf("history roles = %q, %q", params.Messages[1].Role, params.Messages[2].Role)
	}
}

// TestBuildParams_NoSystemPrompt checks that no empty system message is emitted.
func TestBuildParams_NoSystemPrompt(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(chat.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "Hi"}},
	})
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "user" {
		t.Errorf("role = %q", params.Messages[0].Role)
	}
}

// TestBuildParams_ModelFallback checks provider default vs per-request model.
func TestBuildParams_ModelFallback(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}

	if got := p.buildParams(chat.CompletionRequest{}).Model; got != "deepseek-chat" {
		t.Errorf("Model = %q, want provider default", got)
	}
	if got := p.buildParams(chat.CompletionRequest{Model: "deepseek-reasoner"}).Model; got != "deepseek-reasoner" {
		t.Errorf("Model = %q, want request override", got)
	}
}

// TestBuildParams_OptionalSampling checks that zero temperature and max tokens
// stay nil while non-zero values are carried as pointers.
func TestBuildParams_OptionalSampling(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}

	params := p.buildParams(chat.CompletionRequest{})
	if params.Temperature != nil {
		t.Error("expected nil Temperature for zero value")
	}
	if params.MaxTokens != nil {
		t.Error("expected nil MaxTokens for zero value")
	}

	params = p.buildParams(chat.CompletionRequest{Temperature: 0.3, MaxTokens: 256})
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("Temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v", params.MaxTokens)
	}
}

// TestBuildParams_FlattensParts checks that multi-part messages collapse to
// their text form for backends without native multi-part support.
func TestBuildParams_FlattensParts(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(chat.CompletionRequest{
		Messages: []types.Message{{
			Role: types.RoleUser,
			Parts: []types.ContentPart{
				{Kind: types.PartText, Text: "look at this"},
				{Kind: types.PartImage, ImageURL: "https://img.example/a.png"},
			},
		}},
	})
	if params.Messages[0].ContentString() == "" {
		t.Error("expected flattened text content")
	}
}

// ── constructors ──────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "deepseek-chat"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("deepseek", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("bedrock", "some-model"); err == nil {
		t.Error("expected error for unsupported provider name")
	}
}

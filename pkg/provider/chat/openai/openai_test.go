package openai

import (
	"testing"

	"github.com/mutsucloud/otogi/pkg/provider/chat"
	"github.com/mutsucloud/otogi/pkg/types"
)

// TestConvertMessage_System checks that system role is converted correctly.
func TestConvertMessage_System(t *testing.T) {
	param := convertMessage(types.Message{Role: types.RoleSystem, Content: "You are Asuka."})
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

// TestConvertMessage_User checks that user role is converted correctly.
func TestConvertMessage_User(t *testing.T) {
	param := convertMessage(types.Message{Role: types.RoleUser, Content: "Hello!"})
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

// TestConvertMessage_Assistant checks that assistant role is converted.
func TestConvertMessage_Assistant(t *testing.T) {
	param := convertMessage(types.Message{Role: types.RoleAssistant, Content: "Hi there!"})
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

// TestConvertMessage_UserWithImagePart checks that multi-part user messages
// keep their image attachments.
func TestConvertMessage_UserWithImagePart(t *testing.T) {
	param := convertMessage(types.Message{
		Role: types.RoleUser,
		Parts: []types.ContentPart{
			{Kind: types.PartText, Text: "what is in this picture?"},
			{Kind: types.PartImage, ImageURL: "https://img.example/cat.png"},
		},
	})
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
	parts := param.OfUser.Content.OfArrayOfContentParts
	if len(parts) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(parts))
	}
	if parts[0].OfText == nil || parts[0].OfText.Text != "what is in this picture?" {
		t.Error("expected first part to carry the text")
	}
	if parts[1].OfImageURL == nil || parts[1].OfImageURL.ImageURL.URL != "https://img.example/cat.png" {
		t.Error("expected second part to carry the image URL")
	}
}

// TestBuildParams checks system prompt placement, model fallback, and
// optional sampling fields.
func TestBuildParams(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(chat.CompletionRequest{
		SystemPrompt: "stay in character",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "hi"}},
		Temperature:  0.8,
		MaxTokens:    512,
	})

	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("Model = %q, want provider default", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected leading system message")
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.8 {
		t.Errorf("Temperature = %+v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 512 {
		t.Errorf("MaxCompletionTokens = %+v", params.MaxCompletionTokens)
	}
}

// TestBuildParams_RequestModelOverrides checks that a per-request model wins
// over the provider default.
func TestBuildParams_RequestModelOverrides(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(chat.CompletionRequest{Model: "gpt-4o"})
	if string(params.Model) != "gpt-4o" {
		t.Errorf("Model = %q, want request override", params.Model)
	}
}

// TestBuildParams_ZeroOptionalsOmitted checks that unset temperature and
// max tokens stay absent from the payload.
func TestBuildParams_ZeroOptionalsOmitted(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(chat.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	if params.Temperature.Valid() {
		t.Error("expected Temperature to be omitted")
	}
	if params.MaxCompletionTokens.Valid() {
		t.Error("expected MaxCompletionTokens to be omitted")
	}
}

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

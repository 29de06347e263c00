package summarize_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mutsucloud/otogi/pkg/provider/chat"
	chatmock "github.com/mutsucloud/otogi/pkg/provider/chat/mock"
	"github.com/mutsucloud/otogi/pkg/provider/summarize"
	"github.com/mutsucloud/otogi/pkg/types"
)

func TestSummarize_MicroMode(t *testing.T) {
	t.Parallel()
	cp := &chatmock.Provider{
		CompleteResponse: &chat.CompletionResponse{Content: "  They met on the rooftop.  "},
	}
	s := summarize.NewLLMSummarizer(cp, "deepseek-chat")

	got, err := s.Summarize(context.Background(), summarize.Request{
		Text: "User: hi\nAI: hello",
		Mode: summarize.ModeMicro,
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "They met on the rooftop." {
		t.Errorf("summary = %q, want trimmed reply", got)
	}

	if len(cp.CompleteCalls) != 1 {
		t.Fatalf("got %d complete calls, want 1", len(cp.CompleteCalls))
	}
	req := cp.CompleteCalls[0].Req
	if req.Model != "deepseek-chat" {
		t.Errorf("Model = %q", req.Model)
	}
	if !strings.Contains(req.SystemPrompt, "ONE concise third-person sentence") {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != types.RoleUser || req.Messages[0].Content != "User: hi\nAI: hello" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", req.Temperature)
	}
}

func TestSummarize_MacroModeIncludesPreviousLTM(t *testing.T) {
	t.Parallel()
	cp := &chatmock.Provider{
		CompleteResponse: &chat.CompletionResponse{Content: "merged"},
	}
	s := summarize.NewLLMSummarizer(cp, "")

	_, err := s.Summarize(context.Background(), summarize.Request{
		Text:        "• she forgave him\n",
		PreviousLTM: "They argued about the move.",
		Mode:        summarize.ModeMacro,
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	user := cp.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(user, "[Existing long-term memory]\nThey argued about the move.") {
		t.Errorf("user message missing previous LTM: %q", user)
	}
	if !strings.Contains(user, "[New short-term notes]\n• she forgave him") {
		t.Errorf("user message missing notes: %q", user)
	}
}

func TestSummarize_MacroModeWithoutPreviousLTM(t *testing.T) {
	t.Parallel()
	cp := &chatmock.Provider{
		CompleteResponse: &chat.CompletionResponse{Content: "merged"},
	}
	s := summarize.NewLLMSummarizer(cp, "")

	if _, err := s.Summarize(context.Background(), summarize.Request{
		Text: "• first note",
		Mode: summarize.ModeMacro,
	}); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	user := cp.CompleteCalls[0].Req.Messages[0].Content
	if strings.Contains(user, "[Existing long-term memory]") {
		t.Errorf("empty LTM still produced a memory section: %q", user)
	}
}

func TestSummarize_BlankTextSkips(t *testing.T) {
	t.Parallel()
	cp := &chatmock.Provider{}
	s := summarize.NewLLMSummarizer(cp, "")

	got, err := s.Summarize(context.Background(), summarize.Request{Text: "   \n", Mode: summarize.ModeMicro})
	if err != nil || got != "" {
		t.Fatalf("got (%q, %v), want quiet skip", got, err)
	}
	if len(cp.CompleteCalls) != 0 {
		t.Errorf("blank text still reached the provider")
	}
}

func TestSummarize_InvalidMode(t *testing.T) {
	t.Parallel()
	s := summarize.NewLLMSummarizer(&chatmock.Provider{}, "")

	if _, err := s.Summarize(context.Background(), summarize.Request{Text: "x", Mode: "haiku"}); err == nil {
		t.Fatal("want error for unknown mode")
	}
}

func TestSummarize_ProviderErrorWrapped(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	cp := &chatmock.Provider{CompleteErr: boom}
	s := summarize.NewLLMSummarizer(cp, "")

	_, err := s.Summarize(context.Background(), summarize.Request{Text: "x", Mode: summarize.ModeNovelChapter})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
	if !strings.Contains(err.Error(), "novel_chapter") {
		t.Errorf("err = %v, want mode in message", err)
	}
}

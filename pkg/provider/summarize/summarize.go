// Package summarize defines the Summarizer interface used by the memory
// consolidation engine, and an LLM-backed implementation.
//
// A summarizer compresses raw conversation text into one of three shapes:
// a one-sentence micro summary of a single exchange, a 1–3 sentence chapter
// summary for novel mode, or a macro merge folding accumulated short-term
// memory into the existing long-term memory.
//
// A nil-equivalent result (empty summary with no error) means "skip": callers
// must treat it as a no-op, never as fatal.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/mutsucloud/otogi/pkg/provider/chat"
	"github.com/mutsucloud/otogi/pkg/types"
)

// Mode selects the compression shape.
type Mode string

const (
	// ModeMicro condenses one user+assistant exchange into a single concise
	// third-person sentence.
	ModeMicro Mode = "micro"

	// ModeNovelChapter condenses a full chapter of narrative text into 1–3
	// sentences describing the plot events.
	ModeNovelChapter Mode = "novel_chapter"

	// ModeMacro merges accumulated short-term memory into the existing
	// long-term memory, producing a replacement long-term summary.
	ModeMacro Mode = "macro"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeMicro, ModeNovelChapter, ModeMacro:
		return true
	}
	return false
}

// Request carries the text to compress.
type Request struct {
	// Text is the raw text to summarize.
	Text string

	// PreviousLTM is the existing long-term memory. Only meaningful for
	// ModeMacro, where the result must merge Text into it.
	PreviousLTM string

	// Mode selects the compression shape.
	Mode Mode
}

// Summarizer produces a compressed summary of conversation text.
//
// An empty summary with a nil error means the summarizer declined; callers
// skip the update and carry on.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// Per-mode system prompts. The macro prompt receives the previous LTM as part
// of the user message.
const (
	microPrompt = `Summarise the following single exchange between the user and the AI character in ONE concise third-person sentence. Preserve names, key decisions, and emotional shifts. Output only the sentence.`

	chapterPrompt = `Summarise the following narrative chapter in 1-3 sentences describing the plot events that occurred. Write in third person. Output only the summary.`

	macroPrompt = `You maintain the long-term memory of an ongoing story. Merge the new short-term notes into the existing long-term memory, producing a single coherent replacement summary. Keep established facts, relationships, and promises; drop redundant detail. Output only the merged memory.`
)

// LLMSummarizer implements [Summarizer] on top of a chat provider.
type LLMSummarizer struct {
	provider chat.Provider
	model    string
}

// NewLLMSummarizer creates a summarizer backed by the given chat provider.
// model may be empty to use the provider's default.
func NewLLMSummarizer(provider chat.Provider, model string) *LLMSummarizer {
	return &LLMSummarizer{provider: provider, model: model}
}

// Summarize implements [Summarizer]. It sends the text with a mode-specific
// prompt and returns the model's reply with surrounding whitespace trimmed.
func (s *LLMSummarizer) Summarize(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", nil
	}
	if !req.Mode.IsValid() {
		return "", fmt.Errorf("summarize: invalid mode %q", req.Mode)
	}

	var system, user string
	switch req.Mode {
	case ModeMicro:
		system = microPrompt
		user = req.Text
	case ModeNovelChapter:
		system = chapterPrompt
		user = req.Text
	case ModeMacro:
		system = macroPrompt
		var sb strings.Builder
		if req.PreviousLTM != "" {
			fmt.Fprintf(&sb, "[Existing long-term memory]\n%s\n\n", req.PreviousLTM)
		}
		fmt.Fprintf(&sb, "[New short-term notes]\n%s", req.Text)
		user = sb.String()
	}

	resp, err := s.provider.Complete(ctx, chat.CompletionRequest{
		SystemPrompt: system,
		Messages:     userMessage(user),
		Model:        s.model,
		Temperature:  0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", req.Mode, err)
	}

	return strings.TrimSpace(resp.Content), nil
}

// userMessage wraps text as a single-element user message history.
func userMessage(text string) []types.Message {
	return []types.Message{{Role: types.RoleUser, Content: text}}
}

var _ Summarizer = (*LLMSummarizer)(nil)

package turn

import (
	"encoding/json"
	"strings"

	"github.com/mutsucloud/otogi/internal/session"
)

// Features toggles the optional capabilities a turn may exercise. Disabled
// capabilities are removed from the system prompt and their tags are ignored
// if the model emits them anyway.
type Features struct {
	ImageGen     bool
	VideoGen     bool
	MusicControl bool
}

// PromptConfig carries the static pieces of the system prompt. Per-session
// state (memory, character status, timeline) is folded in at send time.
type PromptConfig struct {
	// WorldInfo is setting background injected into every turn.
	WorldInfo string

	// NovelStyle is an extra style directive applied in novel memory mode.
	NovelStyle string

	Features Features
}

// buildSystemPrompt assembles the full instruction block for one turn:
// persona, world info, memory snapshots, current scene state, and the output
// contract for the inline tags the engine parses back out.
func buildSystemPrompt(cfg PromptConfig, persona string, s session.Session) string {
	var b strings.Builder

	if persona != "" {
		b.WriteString(persona)
		b.WriteString("\n\n")
	}
	if cfg.WorldInfo != "" {
		b.WriteString("[World Info]\n")
		b.WriteString(cfg.WorldInfo)
		b.WriteString("\n\n")
	}
	if s.MemoryMode == session.MemoryNovel && cfg.NovelStyle != "" {
		b.WriteString("[Style]\n")
		b.WriteString(cfg.NovelStyle)
		b.WriteString("\n\n")
	}

	if s.LTM != "" {
		b.WriteString("[Long-term Memory]\n")
		b.WriteString(s.LTM)
		b.WriteString("\n\n")
	}
	if s.STM != "" {
		b.WriteString("[Recent Events]\n")
		b.WriteString(s.STM)
		b.WriteString("\n\n")
	}

	if len(s.CharStatus) > 0 {
		if data, err := json.Marshal(s.CharStatus); err == nil {
			b.WriteString("[Character Status]\n")
			b.Write(data)
			b.WriteString("\n\n")
		}
	}
	if s.Timeline != nil {
		if data, err := json.Marshal(s.Timeline); err == nil {
			b.WriteString("[Timeline]\n")
			b.Write(data)
			b.WriteString("\n\n")
		}
	}

	b.WriteString(outputContract(cfg.Features, session.IsPlaceholderTitle(s.Title)))
	return strings.TrimSpace(b.String())
}

// outputContract describes the inline tags the model may emit. Kept terse:
// models follow short contracts more reliably than prose.
func outputContract(f Features, wantTitle bool) string {
	var b strings.Builder
	b.WriteString("[Output Format]\n")
	b.WriteString("After your narrative reply, append a <game_state>{...}</game_state> block ")
	b.WriteString("updating protagonist, character, suggestions, danmaku, timeline, environment and live2d as JSON.\n")
	if wantTitle {
		b.WriteString("Include a <title>short evocative title</title> tag naming this story.\n")
	}
	if f.ImageGen {
		b.WriteString("To render a scene, emit <draw>{\"description\":...,\"negativePrompt\":...,\"charId\":...,\"outfitId\":...}</draw>.\n")
	}
	if f.VideoGen {
		b.WriteString("For a moving scene, emit <video>{\"description\":...}</video> instead of <draw>.\n")
	}
	if f.MusicControl {
		b.WriteString("To change music, emit <audio>{\"trackId\":...}</audio>.\n")
	}
	b.WriteString("To share a document or code, wrap it as <file name=\"<filename>\">...</file>.\n")
	return b.String()
}

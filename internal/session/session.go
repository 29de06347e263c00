// Package session holds the conversation state: the session type itself, the
// pure mutators that produce updated copies, and a copy-on-write store that
// lets asynchronous callbacks update sessions by identifier without locks
// around readers.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/mutsucloud/otogi/pkg/types"
)

// MemoryMode selects the consolidation behavior for a session.
type MemoryMode string

const (
	// MemoryInfinite disables summarization; the transcript alone is memory.
	MemoryInfinite MemoryMode = "infinite"
	// MemorySliding summarizes each exchange into short bullet notes.
	MemorySliding MemoryMode = "sliding"
	// MemoryNovel summarizes assistant prose into chapter notes.
	MemoryNovel MemoryMode = "novel"
)

// IsValid reports whether m is a known memory mode.
func (m MemoryMode) IsValid() bool {
	return m == MemoryInfinite || m == MemorySliding || m == MemoryNovel
}

// Placeholder titles a new session starts with. A model-suggested title is
// adopted only while the session still carries one of these.
const (
	DefaultTitle   = "New Dream"
	DefaultTitleZH = "新篇章"
)

// IsPlaceholderTitle reports whether title is still a default placeholder.
func IsPlaceholderTitle(title string) bool {
	return title == DefaultTitle || title == DefaultTitleZH
}

// Session is one continuing conversation and all its derived narrative state.
// Sessions are value types: mutators return updated copies and never modify
// shared slices or maps in place.
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// ActiveCharacterID is the character currently speaking for the session.
	ActiveCharacterID string `json:"activeCharacterId"`

	Messages []types.Message `json:"messages"`

	MemoryMode MemoryMode `json:"memoryMode"`
	// STM accumulates short compressed notes and is cleared on consolidation.
	STM string `json:"stm,omitempty"`
	// STMBackup holds STM as it was before the most recent append, enabling
	// one level of rollback when the last reply is regenerated.
	STMBackup string `json:"stmBackup,omitempty"`
	// LTM is replaced wholesale at each consolidation boundary.
	LTM string `json:"ltm,omitempty"`
	// TurnCount counts STM appends since the last consolidation.
	TurnCount int `json:"turnCount"`

	CharStatus  []types.CharacterStatus  `json:"charStatus,omitempty"`
	Protagonist *types.ProtagonistState  `json:"protagonist,omitempty"`
	Suggestions *types.PlotSuggestions   `json:"suggestions,omitempty"`
	Danmaku     []string                 `json:"danmaku,omitempty"`
	Timeline    *types.TimelineStructure `json:"timeline,omitempty"`

	Background   string `json:"background,omitempty"`
	Live2DCharID string `json:"live2dCharId,omitempty"`
	Emotion      string `json:"emotion,omitempty"`
	OutfitID     string `json:"outfitId,omitempty"`
	TrackID      string `json:"trackId,omitempty"`

	// CodeRepository maps filename to the latest extracted file block.
	CodeRepository map[string]types.CodeFile `json:"codeRepository,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates a fresh session with the placeholder title and the given
// memory mode.
func New(mode MemoryMode, characterID string) Session {
	if !mode.IsValid() {
		mode = MemoryInfinite
	}
	now := time.Now().UTC()
	return Session{
		ID:                uuid.NewString(),
		Title:             DefaultTitle,
		ActiveCharacterID: characterID,
		MemoryMode:        mode,
		Emotion:           "idle",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// AppendMessage returns s with msg appended. The message slice is copied so
// earlier snapshots stay valid.
func AppendMessage(s Session, msg types.Message) Session {
	msgs := make([]types.Message, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	s.Messages = append(msgs, msg)
	s.UpdatedAt = time.Now().UTC()
	return s
}

// ReplaceLastContent returns s with the trailing message's content replaced
// wholesale. Streaming uses this once per chunk with the accumulated text.
// A session without messages is returned unchanged.
func ReplaceLastContent(s Session, content string) Session {
	if len(s.Messages) == 0 {
		return s
	}
	msgs := make([]types.Message, len(s.Messages))
	copy(msgs, s.Messages)
	msgs[len(msgs)-1].Content = content
	s.Messages = msgs
	return s
}

// TruncateMessages returns s keeping only the first n messages. Used by
// regeneration to rewind the transcript before resending.
func TruncateMessages(s Session, n int) Session {
	if n < 0 {
		n = 0
	}
	if n >= len(s.Messages) {
		return s
	}
	msgs := make([]types.Message, n)
	copy(msgs, s.Messages[:n])
	s.Messages = msgs
	s.UpdatedAt = time.Now().UTC()
	return s
}

// DeleteMessage returns s with the message at idx removed. Deleting a user
// message that directly precedes the final assistant reply removes both, so
// an orphaned reply never survives its prompt.
func DeleteMessage(s Session, idx int) Session {
	if idx < 0 || idx >= len(s.Messages) {
		return s
	}
	count := 1
	if s.Messages[idx].Role == types.RoleUser && idx == len(s.Messages)-2 {
		count = 2
	}
	msgs := make([]types.Message, 0, len(s.Messages)-count)
	msgs = append(msgs, s.Messages[:idx]...)
	msgs = append(msgs, s.Messages[idx+count:]...)
	s.Messages = msgs
	s.UpdatedAt = time.Now().UTC()
	return s
}

// MergeFiles returns s with the extracted file blocks merged into the code
// repository, newer blocks replacing same-named older ones.
func MergeFiles(s Session, files []types.CodeFile) Session {
	if len(files) == 0 {
		return s
	}
	repo := make(map[string]types.CodeFile, len(s.CodeRepository)+len(files))
	for k, v := range s.CodeRepository {
		repo[k] = v
	}
	for _, f := range files {
		repo[f.Name] = f
	}
	s.CodeRepository = repo
	return s
}

// LastAssistant returns the trailing assistant message and its index, or
// index -1 when the session has none.
func LastAssistant(s Session) (types.Message, int) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == types.RoleAssistant {
			return s.Messages[i], i
		}
	}
	return types.Message{}, -1
}

// DefaultContextWindow is how many trailing messages a provider payload
// keeps in addition to the opening message.
const DefaultContextWindow = 20

// Window trims msgs to a provider-sized payload: the first message plus the
// most recent n. This bounds payload size only; memory consolidation is a
// separate concern.
func Window(msgs []types.Message, n int) []types.Message {
	if n <= 0 {
		n = DefaultContextWindow
	}
	if len(msgs) <= n {
		return msgs
	}
	out := make([]types.Message, 0, n+1)
	out = append(out, msgs[0])
	out = append(out, msgs[len(msgs)-n:]...)
	return out
}

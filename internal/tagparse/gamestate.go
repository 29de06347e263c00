package tagparse

import (
	"encoding/json"

	"github.com/mutsucloud/otogi/pkg/types"
)

// GameState is the JSON body of a <game_state> tag: the model's suggested
// update to the scene after its turn.
type GameState struct {
	Protagonist *types.ProtagonistState  `json:"protagonist,omitempty"`
	Character   []types.CharacterStatus  `json:"character,omitempty"`
	Suggestions *types.PlotSuggestions   `json:"suggestions,omitempty"`
	Danmaku     []string                 `json:"danmaku,omitempty"`
	Timeline    *types.TimelineStructure `json:"timeline,omitempty"`
	Environment *Environment             `json:"environment,omitempty"`
	Live2D      *Live2D                  `json:"live2d,omitempty"`
	Music       *MusicCue                `json:"music,omitempty"`
	ImageGen    *ImageGenHint            `json:"imageGen,omitempty"`
}

// Environment is the scene backdrop portion of a game state update.
type Environment struct {
	BgID string `json:"bgId"`
}

// Live2D selects the on-screen character model and its motion.
type Live2D struct {
	CharID string `json:"charId"`
	Motion string `json:"motion"`
}

// MusicCue switches the background track when Trigger is set.
type MusicCue struct {
	Trigger bool   `json:"trigger"`
	TrackID string `json:"trackId"`
}

// ImageGenHint is a soft image request embedded in game state, used when the
// model hints at a visual without emitting a full draw tag.
type ImageGenHint struct {
	Trigger        bool           `json:"trigger"`
	Emotion        string         `json:"emotion"`
	Description    string         `json:"description"`
	NegativePrompt string         `json:"negativePrompt"`
	CharID         string         `json:"charId"`
	OutfitID       string         `json:"outfitId"`
	Parameters     map[string]any `json:"parameters"`
}

// UnmarshalJSON tolerates the character field arriving as a single object
// instead of an array.
func (g *GameState) UnmarshalJSON(data []byte) error {
	type alias GameState
	aux := struct {
		Character json.RawMessage `json:"character,omitempty"`
		*alias
	}{alias: (*alias)(g)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Character) == 0 {
		return nil
	}
	var list []types.CharacterStatus
	if err := json.Unmarshal(aux.Character, &list); err == nil {
		g.Character = list
		return nil
	}
	var single types.CharacterStatus
	if err := json.Unmarshal(aux.Character, &single); err != nil {
		return err
	}
	g.Character = []types.CharacterStatus{single}
	return nil
}

// ExtractGameState pulls the first game state block out of content. On a
// malformed body the tag is stripped anyway but nil state is returned, so a
// broken block never leaks into the transcript.
func ExtractGameState(content string) (*GameState, string) {
	m := gameStateRE.FindStringSubmatch(content)
	if m == nil {
		return nil, content
	}
	rest := trimReplace(content, gameStateRE)
	var gs GameState
	if err := json.Unmarshal([]byte(m[1]), &gs); err != nil {
		return nil, rest
	}
	return &gs, rest
}

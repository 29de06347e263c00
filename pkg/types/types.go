// Package types defines the shared types used across all otogi packages.
//
// These types form the lingua franca between providers, the memory layers,
// the media job orchestrator, and the turn controller. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartKind discriminates the variants of a [ContentPart].
type PartKind string

const (
	// PartText is a plain text fragment.
	PartText PartKind = "text"

	// PartImage references an image by URL or data URI.
	PartImage PartKind = "image_url"
)

// ContentPart is one element of a multi-part message payload. Messages with
// attachments carry a text part plus an image part; plain messages carry no
// parts at all and use Message.Content directly.
type ContentPart struct {
	// Kind selects which of the remaining fields is meaningful.
	Kind PartKind `json:"type"`

	// Text is the text content when Kind is PartText.
	Text string `json:"text,omitempty"`

	// ImageURL is the image location (https URL or data URI) when Kind is
	// PartImage.
	ImageURL string `json:"image_url,omitempty"`
}

// Message is a single entry in a session transcript.
//
// Content holds the displayable text. While an assistant reply is streaming,
// Content is replaced wholesale with the accumulated text on every chunk;
// it is never appended to in place.
type Message struct {
	// ID uniquely identifies this message within its session.
	ID string `json:"id"`

	// Role is who authored the message.
	Role Role `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// Parts carries a structured multi-part payload for messages with
	// attachments. Nil for plain text messages.
	Parts []ContentPart `json:"parts,omitempty"`

	// ModelName records which model produced an assistant message.
	ModelName string `json:"modelName,omitempty"`

	// CharacterID identifies the character persona active when the message
	// was created.
	CharacterID string `json:"characterId,omitempty"`

	// CreatedAt is when the message was appended to the transcript.
	CreatedAt time.Time `json:"createdAt"`
}

// MediaKind selects the generation collaborator for a [MediaCommand].
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaCommand is the normalized form of an inline <draw> or <video> tag.
//
// It is ephemeral: recomputed from the tag text whenever needed and never
// persisted. The literal tag text it was parsed from doubles as the
// fingerprint used to splice results back into the transcript.
type MediaCommand struct {
	// Trigger reports whether a generation should actually run. Always true
	// for commands produced by the tag parser; callers constructing commands
	// from a game-state block may set it false.
	Trigger bool

	// Kind is the media type to generate.
	Kind MediaKind

	// Description is the free-text generation prompt.
	Description string

	// NegativePrompt lists concepts to avoid. May be empty.
	NegativePrompt string

	// CharacterID identifies the subject character, if any.
	CharacterID string

	// OutfitID selects the character outfit. Defaults to "casual".
	OutfitID string

	// Model overrides the configured generation model when non-empty.
	Model string

	// Parameters is a provider-specific parameter bag passed through opaquely.
	Parameters map[string]any
}

// CharacterStatus is the numeric affect state of a character plus its
// descriptive fields. The four numeric axes are produced by stat
// reconciliation and are always within the configured clamp bounds.
type CharacterStatus struct {
	Name     string `json:"name,omitempty"`
	Clothing string `json:"clothing,omitempty"`
	Shoes    string `json:"shoes,omitempty"`

	// BodyState and LegState describe physical posture.
	BodyState string `json:"bodyState,omitempty"`
	LegState  string `json:"legState,omitempty"`

	SexCount string `json:"sexCount,omitempty"`

	// Numeric affect axes, clamped per the reconciliation policy.
	Affection float64 `json:"affection"`
	Monopoly  float64 `json:"monopoly"`
	Yandere   float64 `json:"yandere"`
	Lust      float64 `json:"lust"`

	// InnerState is a free-text description of the character's thoughts.
	InnerState string `json:"innerState,omitempty"`
}

// ProtagonistState describes the player character's situation as reported by
// the model's game-state block.
type ProtagonistState struct {
	Name        string `json:"name,omitempty"`
	Age         string `json:"age,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Environment string `json:"environment,omitempty"`
	Temperature string `json:"temperature,omitempty"`
	TimeDesc    string `json:"timeDesc,omitempty"`
	Clothing    string `json:"clothing,omitempty"`
	Sensation   string `json:"sensation,omitempty"`
	InnerState  string `json:"innerState,omitempty"`
}

// TimelineStructure tracks the narrative timeline at three granularities.
type TimelineStructure struct {
	Major  string `json:"major,omitempty"`
	Medium string `json:"medium,omitempty"`
	Minor  string `json:"minor,omitempty"`
}

// PlotSuggestions offers three candidate continuations to the player.
type PlotSuggestions struct {
	Fun      string `json:"fun,omitempty"`
	Rational string `json:"rational,omitempty"`
	Radical  string `json:"radical,omitempty"`
}

// CodeFile is one entry in a session's code repository, extracted from a
// <file> block in assistant output.
type CodeFile struct {
	// Name is the filename including extension.
	Name string `json:"name"`

	// Language is the syntax-highlighting hint, derived from the extension.
	Language string `json:"language"`

	// Content is the file body with surrounding whitespace trimmed.
	Content string `json:"content"`
}

// Character describes one persona available in the roster. Used to resolve
// loosely-written character identifiers in AI output to canonical IDs.
type Character struct {
	// ID is the canonical character identifier (e.g., "sakiko").
	ID string `yaml:"id"`

	// Name is the display name.
	Name string `yaml:"name"`

	// Aliases lists alternative spellings the model may produce.
	Aliases []string `yaml:"aliases"`

	// Persona is the system-prompt fragment describing how this character
	// speaks and behaves. Injected when the character is active in a session.
	Persona string `yaml:"persona"`
}

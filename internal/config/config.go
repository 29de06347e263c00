// Package config provides the configuration schema, loader, and provider
// registry for the otogi narrative engine.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mutsucloud/otogi/internal/session"
	"github.com/mutsucloud/otogi/internal/stats"
	"github.com/mutsucloud/otogi/pkg/types"
)

// Duration is a time.Duration that unmarshals from YAML strings like "3s".
type Duration time.Duration

// UnmarshalYAML decodes either a duration string or a bare number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("config: invalid duration value on line %d", value.Line)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns d as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity for the otogi server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for otogi.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Providers  ProvidersConfig   `yaml:"providers"`
	Characters []types.Character `yaml:"characters"`

	// DefaultCharacter is the roster ID new sessions start with.
	DefaultCharacter string `yaml:"default_character"`

	Memory   MemoryConfig   `yaml:"memory"`
	Stats    StatsConfig    `yaml:"stats"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Media    MediaConfig    `yaml:"media"`
	Features FeaturesConfig `yaml:"features"`
	Prompt   PromptConfig   `yaml:"prompt"`
}

// ServerConfig holds network and logging settings for the otogi server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// collaborator. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	Chat ProviderEntry `yaml:"chat"`

	// ChatFallback is an optional secondary chat provider tried when the
	// primary fails or its circuit breaker is open.
	ChatFallback ProviderEntry `yaml:"chat_fallback"`

	// Summarize selects the model used for memory compression. Empty reuses
	// the chat provider.
	Summarize ProviderEntry `yaml:"summarize"`

	Image ProviderEntry `yaml:"image"`

	// ImageFallback is an optional secondary image provider.
	ImageFallback ProviderEntry `yaml:"image_fallback"`

	Video      ProviderEntry `yaml:"video"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "volcengine", "fal").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g.,
	// "deepseek-chat", "fal-ai/kling-video/v2/master/text-to-video").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or
	// nested maps.
	Options map[string]any `yaml:"options"`
}

// MemoryConfig holds settings for the tiered memory and semantic recall layer.
type MemoryConfig struct {
	// DefaultMode is the memory mode new sessions start in. Empty means
	// infinite (no summarization).
	DefaultMode session.MemoryMode `yaml:"default_mode"`

	// Threshold is how many short-term notes accumulate before they are
	// folded into long-term memory. Zero uses the built-in default.
	Threshold int `yaml:"threshold"`

	// PostgresDSN is the PostgreSQL connection string for the pgvector recall
	// index. Empty disables semantic recall.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension of the embeddings column.
	// Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// StatsConfig controls character-stat reconciliation.
type StatsConfig struct {
	// Policy selects how suggested stats merge with current ones.
	Policy stats.Policy `yaml:"policy"`

	// Min and Max clamp the numeric axes. Both zero means the default
	// [0, 100] range.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ArchiveConfig holds persistence settings for transcripts and save slots.
type ArchiveConfig struct {
	// PostgresDSN is the connection string for the transcript archive. Empty
	// keeps sessions in memory only.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SQLitePath is the file path for the local save-slot database. Empty
	// disables save slots.
	SQLitePath string `yaml:"sqlite_path"`
}

// MediaConfig tunes the asynchronous media job orchestrator.
type MediaConfig struct {
	// PollInterval is the wait between video status polls.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxAttempts caps how many polls a video job makes before timing out.
	MaxAttempts int `yaml:"max_attempts"`
}

// FeaturesConfig toggles the optional capabilities a turn may exercise.
type FeaturesConfig struct {
	ImageGen     bool `yaml:"image_gen"`
	VideoGen     bool `yaml:"video_gen"`
	MusicControl bool `yaml:"music_control"`
}

// PromptConfig holds the static system-prompt fragments.
type PromptConfig struct {
	// WorldInfo is setting background injected into every turn.
	WorldInfo string `yaml:"world_info"`

	// NovelStyle is an extra style directive applied in novel memory mode.
	NovelStyle string `yaml:"novel_style"`
}

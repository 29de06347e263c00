package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"chat":       {"anyllm", "openai"},
	"summarize":  {"anyllm", "openai"},
	"image":      {"volcengine", "openrouter"},
	"video":      {"fal", "volcengine"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("chat", cfg.Providers.ChatFallback.Name)
	validateProviderName("summarize", cfg.Providers.Summarize.Name)
	validateProviderName("image", cfg.Providers.Image.Name)
	validateProviderName("image", cfg.Providers.ImageFallback.Name)
	validateProviderName("video", cfg.Providers.Video.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.Chat.Name == "" {
		errs = append(errs, errors.New("providers.chat is required"))
	}
	if cfg.Providers.ImageFallback.Name != "" && cfg.Providers.Image.Name == "" {
		errs = append(errs, errors.New("providers.image_fallback requires providers.image"))
	}

	// Feature ↔ provider cross-validation
	if cfg.Features.ImageGen && cfg.Providers.Image.Name == "" {
		errs = append(errs, errors.New("features.image_gen requires providers.image"))
	}
	if cfg.Features.VideoGen && cfg.Providers.Video.Name == "" {
		errs = append(errs, errors.New("features.video_gen requires providers.video"))
	}

	// Memory
	if cfg.Memory.DefaultMode != "" && !cfg.Memory.DefaultMode.IsValid() {
		errs = append(errs, fmt.Errorf("memory.default_mode %q is invalid; valid values: infinite, sliding, novel", cfg.Memory.DefaultMode))
	}
	if cfg.Memory.Threshold < 0 {
		errs = append(errs, fmt.Errorf("memory.threshold %d must not be negative", cfg.Memory.Threshold))
	}
	if cfg.Memory.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		slog.Warn("memory.postgres_dsn is set but providers.embeddings is not; semantic recall will be unavailable")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but memory.embedding_dimensions is not set; defaulting to 1536")
	}

	// Stats
	if cfg.Stats.Policy != "" && !cfg.Stats.Policy.IsValid() {
		errs = append(errs, fmt.Errorf("stats.policy %q is invalid; valid values: override, additive", cfg.Stats.Policy))
	}
	if cfg.Stats.Min != 0 || cfg.Stats.Max != 0 {
		if cfg.Stats.Min >= cfg.Stats.Max {
			errs = append(errs, fmt.Errorf("stats bounds [%.1f, %.1f] are inverted", cfg.Stats.Min, cfg.Stats.Max))
		}
	}

	// Media
	if cfg.Media.PollInterval < 0 {
		errs = append(errs, errors.New("media.poll_interval must not be negative"))
	}
	if cfg.Media.MaxAttempts < 0 {
		errs = append(errs, errors.New("media.max_attempts must not be negative"))
	}

	// Characters
	idsSeen := make(map[string]int, len(cfg.Characters))
	for i, c := range cfg.Characters {
		prefix := fmt.Sprintf("characters[%d]", i)
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := idsSeen[c.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of characters[%d]", prefix, c.ID, prev))
			}
			idsSeen[c.ID] = i
		}
		if c.Name == "" {
			slog.Warn("character has no display name", "id", c.ID)
		}
	}
	if cfg.DefaultCharacter != "" {
		if _, ok := idsSeen[cfg.DefaultCharacter]; !ok {
			errs = append(errs, fmt.Errorf("default_character %q is not in the characters list", cfg.DefaultCharacter))
		}
	}

	// Archive availability
	if cfg.Archive.PostgresDSN == "" {
		slog.Warn("archive.postgres_dsn is empty; transcripts will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

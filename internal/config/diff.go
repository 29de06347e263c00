package config

import "github.com/mutsucloud/otogi/pkg/types"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	CharactersChanged bool            // true if any character persona, name, or aliases changed
	CharacterChanges  []CharacterDiff // per-character diffs
	LogLevelChanged   bool
	NewLogLevel       LogLevel
	FeaturesChanged   bool
	NewFeatures       FeaturesConfig
	PromptChanged     bool
}

// CharacterDiff describes what changed for a single character between two
// configs.
type CharacterDiff struct {
	ID             string
	PersonaChanged bool
	NameChanged    bool
	AliasesChanged bool
	Added          bool
	Removed        bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Features != new.Features {
		d.FeaturesChanged = true
		d.NewFeatures = new.Features
	}

	if old.Prompt != new.Prompt {
		d.PromptChanged = true
	}

	// Build character lookup maps keyed by ID.
	oldChars := make(map[string]int, len(old.Characters))
	for i := range old.Characters {
		oldChars[old.Characters[i].ID] = i
	}
	newChars := make(map[string]int, len(new.Characters))
	for i := range new.Characters {
		newChars[new.Characters[i].ID] = i
	}

	// Detect modified and removed characters.
	for id, oi := range oldChars {
		ni, exists := newChars[id]
		if !exists {
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{ID: id, Removed: true})
			d.CharactersChanged = true
			continue
		}
		cd := diffCharacter(id, &old.Characters[oi], &new.Characters[ni])
		if cd.PersonaChanged || cd.NameChanged || cd.AliasesChanged {
			d.CharacterChanges = append(d.CharacterChanges, cd)
			d.CharactersChanged = true
		}
	}

	// Detect added characters.
	for id := range newChars {
		if _, exists := oldChars[id]; !exists {
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{ID: id, Added: true})
			d.CharactersChanged = true
		}
	}

	return d
}

// diffCharacter compares two character configs with the same ID.
func diffCharacter(id string, old, new *types.Character) CharacterDiff {
	cd := CharacterDiff{ID: id}

	if old.Persona != new.Persona {
		cd.PersonaChanged = true
	}
	if old.Name != new.Name {
		cd.NameChanged = true
	}
	if len(old.Aliases) != len(new.Aliases) {
		cd.AliasesChanged = true
	} else {
		for i := range old.Aliases {
			if old.Aliases[i] != new.Aliases[i] {
				cd.AliasesChanged = true
				break
			}
		}
	}

	return cd
}

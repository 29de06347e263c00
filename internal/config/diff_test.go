package config_test

import (
	"testing"

	"github.com/mutsucloud/otogi/internal/config"
	"github.com/mutsucloud/otogi/pkg/types"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Characters: []types.Character{
			{ID: "asuka_langley", Name: "Asuka", Persona: "Prideful."},
			{ID: "rei_ayanami", Name: "Rei", Persona: "Quiet."},
		},
		Features: config.FeaturesConfig{ImageGen: true},
		Prompt:   config.PromptConfig{WorldInfo: "Tokyo-3."},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	d := config.Diff(old, new)
	if d.CharactersChanged || d.LogLevelChanged || d.FeaturesChanged || d.PromptChanged {
		t.Errorf("diff of identical configs = %+v", d)
	}
}

func TestDiff_LogLevelAndFeatures(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug
	new.Features.VideoGen = true

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if !d.FeaturesChanged || !d.NewFeatures.VideoGen {
		t.Errorf("features diff = %+v", d)
	}
}

func TestDiff_CharacterChanges(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Characters[0].Persona = "Prideful but softening."
	new.Characters = append(new.Characters[:1], types.Character{ID: "misato", Name: "Misato"})

	d := config.Diff(old, new)
	if !d.CharactersChanged {
		t.Fatal("CharactersChanged should be true")
	}
	byID := map[string]config.CharacterDiff{}
	for _, cd := range d.CharacterChanges {
		byID[cd.ID] = cd
	}
	if !byID["asuka_langley"].PersonaChanged {
		t.Errorf("asuka diff = %+v", byID["asuka_langley"])
	}
	if !byID["rei_ayanami"].Removed {
		t.Errorf("rei diff = %+v", byID["rei_ayanami"])
	}
	if !byID["misato"].Added {
		t.Errorf("misato diff = %+v", byID["misato"])
	}
}

func TestDiff_PromptChange(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Prompt.WorldInfo = "Tokyo-3, winter."
	if d := config.Diff(old, new); !d.PromptChanged {
		t.Error("PromptChanged should be true")
	}
}

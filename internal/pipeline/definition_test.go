package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devcrew/devcrew/internal/agent"
	"github.com/devcrew/devcrew/internal/llm"
	llmmock "github.com/devcrew/devcrew/internal/llm/mock"
)

func TestDefaultDefinitionIsValid(t *testing.T) {
	def, err := DefaultDefinition().Normalized()
	require.NoError(t, err)
	require.Len(t, def.Stages, 3)
	require.Equal(t, "planner", def.Stages[0].Name)
	require.Equal(t, "Product Manager", def.Stages[0].Role.Name)
	require.Equal(t, "Python Dev", def.Stages[1].Role.Name)
	require.Equal(t, "QA Engineer", def.Stages[2].Role.Name)
}

func TestExampleDefinitionMatchesDefault(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "pipeline.example.yaml")
	def, err := LoadDefinitionFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultDefinition(), def)
}

func TestLoadDefinitionFileEmptyPathUsesDefault(t *testing.T) {
	def, err := LoadDefinitionFile("")
	require.NoError(t, err)
	require.Equal(t, DefaultDefinition(), def)
}

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(`
stages:
  - name: " Writer "
    role:
      system_prompt: You write haiku.
    template: "Write a haiku about {goal}"
  - name: editor
    role:
      name: Editor
      system_prompt: You edit haiku.
    template: "Tighten this:\n{artifact}"
`))
	require.NoError(t, err)
	require.Len(t, def.Stages, 2)
	require.Equal(t, "writer", def.Stages[0].Name)
	require.Equal(t, "writer", def.Stages[0].Role.Name)
	require.Equal(t, "Editor", def.Stages[1].Role.Name)
}

func TestParseDefinitionYAMLRejectsBadInput(t *testing.T) {
	_, err := ParseDefinitionYAML([]byte("  "))
	require.ErrorContains(t, err, "empty")

	_, err = ParseDefinitionYAML([]byte("stages: [}"))
	require.ErrorContains(t, err, "decode")

	_, err = ParseDefinitionYAML([]byte(`
stages:
  - name: a
    role: {system_prompt: x}
    template: "{goal}"
  - name: a
    role: {system_prompt: y}
    template: "{artifact}"
`))
	require.ErrorContains(t, err, "duplicate")

	_, err = ParseDefinitionYAML([]byte(`
stages:
  - name: a
    role: {name: A}
    template: "{goal}"
`))
	require.ErrorContains(t, err, "system_prompt")

	_, err = ParseDefinitionYAML([]byte(`
stages:
  - name: a
    role: {system_prompt: x}
    template: "{goal}"
  - name: b
    role: {system_prompt: y}
    template: "{goal} again"
`))
	require.ErrorIs(t, err, ErrInvalidTemplate)

	_, err = ParseDefinitionYAML([]byte("stages: []"))
	require.ErrorIs(t, err, ErrNoStages)
}

func TestLoadDefinitionFileMissing(t *testing.T) {
	_, err := LoadDefinitionFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildAppliesStageParams(t *testing.T) {
	engine := &llmmock.EchoEngine{}
	p, err := DefaultDefinition().Build(engine, func(stage string) agent.Params {
		return agent.Params{Model: stage + "-model", MaxTokens: 64, Temperature: llm.Float64(0.1)}
	})
	require.NoError(t, err)

	for _, s := range p.Stages() {
		a := s.Agent.(*agent.Agent)
		require.Equal(t, s.Name+"-model", a.Params().Model)
		require.Equal(t, llm.Float64(0.1), a.Params().Temperature)
	}
}

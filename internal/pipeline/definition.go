package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devcrew/devcrew/internal/agent"
	"github.com/devcrew/devcrew/internal/llm"
)

// Definition is the declarative form of a pipeline: roles and templates only.
type Definition struct {
	Stages []StageDefinition `yaml:"stages"`
}

// StageDefinition describes one stage.
type StageDefinition struct {
	Name     string     `yaml:"name"`
	Role     agent.Role `yaml:"role"`
	Template string     `yaml:"template"`
}

const finalAnswerCriteria = "This is the expected criteria for your final answer: %s\n" +
	"You MUST return the actual complete content as the final answer, not a summary."

// DefaultDefinition is the built-in crew: planner, developer, reviewer.
func DefaultDefinition() Definition {
	return Definition{Stages: []StageDefinition{
		{
			Name: "planner",
			Role: agent.Role{
				Name:         "Product Manager",
				SystemPrompt: "You are Product Manager. Expert PM.\nYour personal goal is: Create spec list",
			},
			Template: "Analyze: '{goal}'. List requirements.\n\n" + fmt.Sprintf(finalAnswerCriteria, "List"),
		},
		{
			Name: "developer",
			Role: agent.Role{
				Name:         "Python Dev",
				SystemPrompt: "You are Python Dev. Python expert.\nYour personal goal is: Write code",
			},
			Template: "Write python code for requirements.\n\n" + fmt.Sprintf(finalAnswerCriteria, "Python Code") +
				"\n\nThis is the context you're working with:\n{artifact}",
		},
		{
			Name: "reviewer",
			Role: agent.Role{
				Name:         "QA Engineer",
				SystemPrompt: "You are QA Engineer. Strict reviewer.\nYour personal goal is: Fix bugs",
			},
			Template: "Review and fix code. Return ONLY code.\n\n" + fmt.Sprintf(finalAnswerCriteria, "Final Code") +
				"\n\nThis is the context you're working with:\n{artifact}",
		},
	}}
}

// Normalized trims names and checks the definition without building agents.
func (d Definition) Normalized() (Definition, error) {
	if len(d.Stages) == 0 {
		return Definition{}, ErrNoStages
	}
	out := Definition{Stages: make([]StageDefinition, len(d.Stages))}
	seen := make(map[string]bool, len(d.Stages))
	for i, s := range d.Stages {
		s.Name = strings.ToLower(strings.TrimSpace(s.Name))
		if s.Name == "" {
			return Definition{}, fmt.Errorf("stage %d: name is required", i+1)
		}
		if seen[s.Name] {
			return Definition{}, fmt.Errorf("stage %d: duplicate name %q", i+1, s.Name)
		}
		seen[s.Name] = true
		s.Role.Name = strings.TrimSpace(s.Role.Name)
		if s.Role.Name == "" {
			s.Role.Name = s.Name
		}
		if strings.TrimSpace(s.Role.SystemPrompt) == "" {
			return Definition{}, fmt.Errorf("stage %d (%s): role system_prompt is required", i+1, s.Name)
		}
		if err := validateTemplate(i, s.Template); err != nil {
			return Definition{}, fmt.Errorf("stage %d (%s): %w", i+1, s.Name, err)
		}
		out.Stages[i] = s
	}
	return out, nil
}

// Build creates fresh agents on the shared engine and wires them into a
// pipeline. params supplies per-stage generation parameters and may be nil.
func (d Definition) Build(engine llm.Engine, params func(stage string) agent.Params, opts ...Option) (*Pipeline, error) {
	def, err := d.Normalized()
	if err != nil {
		return nil, err
	}
	stages := make([]Stage, 0, len(def.Stages))
	for _, s := range def.Stages {
		var p agent.Params
		if params != nil {
			p = params(s.Name)
		}
		stages = append(stages, Stage{
			Name:     s.Name,
			Agent:    agent.New(s.Role, engine, p),
			Template: s.Template,
		})
	}
	return New(stages, opts...)
}

// ParseDefinitionYAML decodes a definition from YAML bytes.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("pipeline: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("pipeline: decode definition: %w", err)
	}
	return def.Normalized()
}

// LoadDefinitionFile loads a definition from path, or returns the built-in
// definition when path is empty.
func LoadDefinitionFile(path string) (Definition, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDefinition(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	def, err := ParseDefinitionYAML(content)
	if err != nil {
		return Definition{}, fmt.Errorf("pipeline: %s: %w", path, err)
	}
	return def, nil
}

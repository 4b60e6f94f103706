package agent

import (
	"context"
	"fmt"

	"github.com/devcrew/devcrew/internal/llm"
)

// Agent is one pipeline role bound to its private conversation history.
//
// The system prompt is sent with every request but never stored, so the
// history only ever holds user/assistant pairs in call order. An Agent is not
// safe for concurrent use.
type Agent struct {
	role    Role
	engine  llm.Engine
	params  Params
	history []llm.ChatMessage
}

// New creates an Agent using the shared engine.
func New(role Role, engine llm.Engine, params Params) *Agent {
	return &Agent{
		role:    role,
		engine:  engine,
		params:  params,
		history: make([]llm.ChatMessage, 0, 8),
	}
}

// Name returns the display name of the agent's role.
func (a *Agent) Name() string {
	return a.role.Name
}

// Role returns the agent's role descriptor.
func (a *Agent) Role() Role {
	return a.role
}

// Params returns the generation parameters used by the agent.
func (a *Agent) Params() Params {
	return a.params
}

// Respond sends system prompt, history and input to the engine. On success the
// input and the reply are appended to history; on failure history is untouched.
func (a *Agent) Respond(ctx context.Context, input string) (string, error) {
	userMsg := llm.UserMessage(input)

	messages := make([]llm.ChatMessage, 0, len(a.history)+2)
	messages = append(messages, llm.SystemMessage(a.role.SystemPrompt))
	messages = append(messages, a.history...)
	messages = append(messages, userMsg)

	out, err := a.engine.Generate(ctx, llm.GenerateRequest{
		Model:       a.params.Model,
		Messages:    messages,
		MaxTokens:   a.params.MaxTokens,
		Temperature: a.params.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", a.role.Name, llm.NewGenerationError(llm.ClassifyError(err), a.params.Model, err))
	}

	a.history = append(a.history, userMsg, llm.AssistantMessage(out))
	return out, nil
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(a.history))
	copy(out, a.history)
	return out
}

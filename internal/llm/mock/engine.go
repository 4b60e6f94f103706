package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/devcrew/devcrew/internal/llm"
)

// EchoEngine is a deterministic llm.Engine that answers with the content of
// the last user message. It records every request it receives.
type EchoEngine struct {
	// FailOn makes the Nth call (1-based) fail; 0 never fails.
	FailOn int
	// Err is returned on the failing call; defaults to an unavailable GenerationError.
	Err error
	// Transform, when set, rewrites the echoed text.
	Transform func(string) string

	mu       sync.Mutex
	requests []llm.GenerateRequest
}

// Generate implements llm.Engine.
func (e *EchoEngine) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	e.mu.Lock()
	msgs := append([]llm.ChatMessage(nil), req.Messages...)
	req.Messages = msgs
	e.requests = append(e.requests, req)
	call := len(e.requests)
	e.mu.Unlock()

	if e.FailOn > 0 && call == e.FailOn {
		if e.Err != nil {
			return "", e.Err
		}
		return "", &llm.GenerationError{Reason: llm.ReasonUnavailable, Model: req.Model, Err: errors.New("echo engine: forced failure")}
	}

	out := lastUser(msgs)
	if e.Transform != nil {
		out = e.Transform(out)
	}
	return out, nil
}

// Requests returns a copy of the recorded requests.
func (e *EchoEngine) Requests() []llm.GenerateRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]llm.GenerateRequest(nil), e.requests...)
}

// Calls returns the number of Generate calls so far.
func (e *EchoEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func lastUser(msgs []llm.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// GenerateRequest is one generation call against an Engine.
type GenerateRequest struct {
	// Model selects a registered model; empty uses the engine default.
	Model     string
	Messages  []ChatMessage
	MaxTokens int
	// Temperature is nil when unset; zero is a valid greedy setting.
	Temperature *float64
}

// DefaultTemperature applies when neither the request nor the model route
// sets a temperature.
const DefaultTemperature = 0.7

// Float64 returns a pointer to v, for optional temperatures.
func Float64(v float64) *float64 {
	return &v
}

// Engine turns an ordered message list into a single generated text.
// Implementations never return partial text together with an error.
type Engine interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate calls f.
func (f EngineFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// Failure reasons carried by GenerationError.
const (
	ReasonUnavailable   = "unavailable"
	ReasonContextLength = "context_length"
	ReasonInternal      = "internal"
)

// GenerationError reports that the engine could not produce output.
type GenerationError struct {
	Reason string
	Model  string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("generation failed (%s, model %s): %v", e.Reason, e.Model, e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError wraps err unless it already is a GenerationError.
func NewGenerationError(reason, model string, err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	if reason == "" {
		reason = ReasonInternal
	}
	return &GenerationError{Reason: reason, Model: model, Err: err}
}

// ProviderError is returned by providers for non-success HTTP responses.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// ClassifyError maps a provider failure to a GenerationError reason.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Reason
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonUnavailable
	}
	if mentionsContextLength(err.Error()) {
		return ReasonContextLength
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.StatusCode == 413:
			return ReasonContextLength
		case pe.StatusCode == 404, pe.StatusCode == 429, pe.StatusCode >= 500:
			return ReasonUnavailable
		}
		return ReasonInternal
	}
	var te *TransportError
	if errors.As(err, &te) {
		return ReasonUnavailable
	}
	return ReasonInternal
}

// TransportError marks failures to reach a provider at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send request: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func mentionsContextLength(msg string) bool {
	msg = strings.ToLower(msg)
	for _, needle := range []string{"context length", "context_length", "context window", "too many tokens", "prompt is too long"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

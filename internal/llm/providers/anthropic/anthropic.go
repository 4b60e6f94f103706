package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/devcrew/devcrew/internal/llm"
)

// defaultMaxTokens is sent when neither the request nor the route sets a cap;
// the Messages API requires one.
const defaultMaxTokens = 4096

// Provider implements llm.Provider on top of the Anthropic Messages API.
type Provider struct {
	name   string
	client sdk.Client
}

// NewProvider constructs an Anthropic provider. An empty apiKey falls back to
// ANTHROPIC_API_KEY as resolved by the SDK.
func NewProvider(name, baseURL, apiKey string, timeout time.Duration) *Provider {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &Provider{name: name, client: sdk.NewClient(opts...)}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Chat sends the conversation as a single Messages.New call.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if req.Model == "" {
		return llm.ChatResponse{}, fmt.Errorf("model is required")
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		MaxTokens:   maxTokens,
		Temperature: sdk.Float(req.Temperature),
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return llm.ChatResponse{}, &llm.ProviderError{Provider: p.name, StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return llm.ChatResponse{}, &llm.TransportError{Err: err}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(sdk.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	return llm.ChatResponse{
		Message:      llm.AssistantMessage(text.String()),
		FinishReason: string(msg.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

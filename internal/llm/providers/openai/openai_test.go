package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devcrew/devcrew/internal/llm"
)

func TestChatSendsRequestAndParsesResponse(t *testing.T) {
	t.Parallel()

	p := NewProvider("openai", "http://mock", "key", 5*time.Second)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			require.Equal(t, "/v1/chat/completions", r.URL.Path)
			require.Equal(t, "Bearer key", r.Header.Get("Authorization"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			var reqBody map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &reqBody))
			require.Equal(t, "gpt-4o-mini", reqBody["model"])
			require.Equal(t, float64(256), reqBody["max_tokens"])
			_, streamSet := reqBody["stream"]
			require.False(t, streamSet)

			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body: io.NopCloser(strings.NewReader(`{
					"choices": [{
						"index": 0,
						"finish_reason": "stop",
						"message": {"role": "assistant", "content": "hello"}
					}],
					"usage": {"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3}
				}`)),
			}, nil
		}),
	}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:     "gpt-4o-mini",
		MaxTokens: 256,
		Messages: []llm.ChatMessage{
			llm.UserMessage("hi"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Message.Content)
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, 3, resp.Usage.TotalTokens)
}

func TestChatContextLengthStatus(t *testing.T) {
	t.Parallel()

	p := NewProvider("openai", "http://mock", "", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`{"error":{"code":"context_length_exceeded","message":"maximum context length is 8192 tokens"}}`)),
			}, nil
		}),
	}

	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "gpt-4o-mini", Messages: []llm.ChatMessage{llm.UserMessage("hi")}})
	require.Error(t, err)
	require.Equal(t, llm.ReasonContextLength, llm.ClassifyError(err))
}

func TestChatEmptyChoices(t *testing.T) {
	t.Parallel()

	p := NewProvider("openai", "http://mock", "", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`{"choices": []}`)),
			}, nil
		}),
	}

	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "gpt-4o-mini", Messages: []llm.ChatMessage{llm.UserMessage("hi")}})
	require.ErrorContains(t, err, "empty choices")
}

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestChatServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	p := NewProvider("router", "http://mock", "", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"overloaded"}}`)),
			}, nil
		}),
	}

	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "m", Messages: []llm.ChatMessage{llm.UserMessage("hi")}})
	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "router", pe.Provider)
	require.Equal(t, "overloaded", pe.Body)
	require.Equal(t, llm.ReasonUnavailable, llm.ClassifyError(err))
}

func TestErrorMessage(t *testing.T) {
	require.Equal(t, "context_length_exceeded: too long", errorMessage([]byte(`{"error":{"code":"context_length_exceeded","message":"too long"}}`)))
	require.Equal(t, "too long", errorMessage([]byte(`{"error":{"code":400,"message":"too long"}}`)))
	require.Equal(t, "bad gateway", errorMessage([]byte("bad gateway\n")))
}

func TestChatSendsZeroTemperature(t *testing.T) {
	t.Parallel()

	p := NewProvider("openai", "http://mock", "", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			temp, ok := body["temperature"]
			require.True(t, ok)
			require.Equal(t, float64(0), temp)
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`)),
			}, nil
		}),
	}

	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "m", Temperature: 0, Messages: []llm.ChatMessage{llm.UserMessage("hi")}})
	require.NoError(t, err)
}

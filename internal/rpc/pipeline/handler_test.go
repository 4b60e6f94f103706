package pipeline

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devcrew/devcrew/internal/llm/mock"
	"github.com/devcrew/devcrew/internal/observability"
	"github.com/devcrew/devcrew/internal/rpc"
)

func decodeNDJSON(t *testing.T, body string) []rpc.PipelineEvent {
	t.Helper()
	var out []rpc.PipelineEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev rpc.PipelineEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		out = append(out, ev)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestHandlerStreamsNDJSON(t *testing.T) {
	h := NewHandler(newEchoRunner(&mock.EchoEngine{}), observability.NewMetrics())

	req := httptest.NewRequest(http.MethodPost, "/pipeline/run", strings.NewReader(`{"goal":"a todo app"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	events := decodeNDJSON(t, rec.Body.String())
	require.Len(t, events, 4)
	require.Equal(t, rpc.EventDone, events[3].Type)
	require.Contains(t, events[3].Artifact, "a todo app")
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	h := NewHandler(newEchoRunner(&mock.EchoEngine{}), nil)

	cases := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{name: "method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "decode", method: http.MethodPost, body: "{", status: http.StatusBadRequest},
		{name: "empty goal", method: http.MethodPost, body: `{"goal":""}`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/pipeline/run", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandlerStreamsErrorEvent(t *testing.T) {
	h := NewHandler(newEchoRunner(&mock.EchoEngine{FailOn: 1}), nil)

	req := httptest.NewRequest(http.MethodPost, "/pipeline/run", strings.NewReader(`{"goal":"x"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeNDJSON(t, rec.Body.String())
	require.Len(t, events, 1)
	require.Equal(t, rpc.EventError, events[0].Type)
	require.Equal(t, "planner", events[0].Stage)
	require.Contains(t, events[0].Error, "unavailable")
}

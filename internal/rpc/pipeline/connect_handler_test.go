package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bufbuild/connect-go"
	"github.com/stretchr/testify/require"

	"github.com/devcrew/devcrew/internal/llm/mock"
	"github.com/devcrew/devcrew/internal/observability"
	"github.com/devcrew/devcrew/internal/rpc"
	"github.com/devcrew/devcrew/internal/rpc/connectjson"
)

func startConnectServer(t *testing.T, engine *mock.EchoEngine) *connect.Client[rpc.RunPipelineRequest, rpc.PipelineEvent] {
	t.Helper()
	mux := http.NewServeMux()
	path, handler := NewConnectHandler(newEchoRunner(engine), observability.NewMetrics())
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return connect.NewClient[rpc.RunPipelineRequest, rpc.PipelineEvent](
		srv.Client(), srv.URL+ConnectRunProcedure, connect.WithCodec(connectjson.Codec{}))
}

func receiveAll(t *testing.T, client *connect.Client[rpc.RunPipelineRequest, rpc.PipelineEvent], goal string) ([]rpc.PipelineEvent, error) {
	t.Helper()
	stream, err := client.CallServerStream(context.Background(), connect.NewRequest(&rpc.RunPipelineRequest{Goal: goal}))
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	var out []rpc.PipelineEvent
	for stream.Receive() {
		out = append(out, *stream.Msg())
	}
	return out, stream.Err()
}

func TestConnectHandlerStreamsEvents(t *testing.T) {
	client := startConnectServer(t, &mock.EchoEngine{})

	events, err := receiveAll(t, client, "a todo app")
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, "planner", events[0].Stage)
	require.Equal(t, rpc.EventDone, events[3].Type)
	require.Contains(t, events[3].Artifact, "a todo app")
}

func TestConnectHandlerRejectsEmptyGoal(t *testing.T) {
	client := startConnectServer(t, &mock.EchoEngine{})

	_, err := receiveAll(t, client, "")
	require.Error(t, err)
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

package pipeline

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/devcrew/devcrew/internal/observability"
	"github.com/devcrew/devcrew/internal/rpc"
	"github.com/devcrew/devcrew/internal/rpc/connectjson"
)

// ConnectRunProcedure is the server-streaming procedure for pipeline runs.
const ConnectRunProcedure = "/devcrew.pipeline.v1.PipelineService/Run"

// NewConnectHandler builds a Connect server-stream handler for Run.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectRunHandler{runner: runner, metrics: metrics}
	return ConnectRunProcedure, connect.NewServerStreamHandler(ConnectRunProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectRunHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectRunHandler) handle(ctx context.Context, req *connect.Request[rpc.RunPipelineRequest], stream *connect.ServerStream[rpc.PipelineEvent]) error {
	h.metrics.IncActiveRuns("connect")
	defer h.metrics.DecActiveRuns("connect")

	events, err := h.runner.Run(ctx, *req.Msg)
	if err != nil {
		h.metrics.RecordTransportError("connect", "runner_error")
		if errors.Is(err, ErrEmptyGoal) {
			return connect.NewError(connect.CodeInvalidArgument, err)
		}
		return connect.NewError(connect.CodeInternal, err)
	}

	for ev := range events {
		if err := stream.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			return err
		}
	}
	return nil
}

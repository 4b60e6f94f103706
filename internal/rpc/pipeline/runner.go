package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devcrew/devcrew/internal/agent"
	"github.com/devcrew/devcrew/internal/llm"
	"github.com/devcrew/devcrew/internal/pipeline"
	"github.com/devcrew/devcrew/internal/rpc"
)

// ErrEmptyGoal is returned for requests without a goal.
var ErrEmptyGoal = errors.New("goal cannot be empty")

// Runner executes a pipeline run and yields its events.
type Runner interface {
	Run(ctx context.Context, req rpc.RunPipelineRequest) (<-chan rpc.PipelineEvent, error)
}

// PipelineRunner builds fresh agents for every request on one shared engine.
type PipelineRunner struct {
	Definition pipeline.Definition
	Engine     llm.Engine
	Params     func(stage string) agent.Params
	Metrics    pipeline.Metrics
	Logger     *zap.Logger
}

// Run validates the request, then runs the pipeline in the background. The
// channel is closed after a done or error event.
func (r *PipelineRunner) Run(ctx context.Context, req rpc.RunPipelineRequest) (<-chan rpc.PipelineEvent, error) {
	if strings.TrimSpace(req.Goal) == "" {
		return nil, ErrEmptyGoal
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make(chan rpc.PipelineEvent, 8)
	emit := func(ev rpc.PipelineEvent) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithObserver(pipeline.ObserverFunc(func(ev pipeline.Event) {
			if ev.Type != pipeline.StageCompleted {
				return
			}
			emit(rpc.PipelineEvent{
				Type:       rpc.EventStage,
				RunID:      ev.RunID,
				StageIndex: ev.Index,
				StageTotal: ev.Total,
				Stage:      ev.Stage,
				Agent:      ev.Agent,
				Output:     ev.Output,
				DurationMS: ev.Duration.Milliseconds(),
			})
		})),
	}
	if r.Metrics != nil {
		opts = append(opts, pipeline.WithMetrics(r.Metrics))
	}
	p, err := r.Definition.Build(r.Engine, r.Params, opts...)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(out)
		artifact, err := p.RunWithID(ctx, req.RunID, req.Goal)
		if err != nil {
			ev := rpc.PipelineEvent{Type: rpc.EventError, RunID: req.RunID, Error: err.Error()}
			var stageErr *pipeline.StageError
			if errors.As(err, &stageErr) {
				ev.StageIndex = stageErr.Index
				ev.Stage = stageErr.Stage
				ev.Agent = stageErr.Agent
			}
			emit(ev)
			return
		}
		emit(rpc.PipelineEvent{Type: rpc.EventDone, RunID: req.RunID, Artifact: artifact})
	}()
	return out, nil
}

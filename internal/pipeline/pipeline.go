package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoStages is returned when a pipeline is built without stages.
var ErrNoStages = errors.New("pipeline has no stages")

// Responder is the agent capability a stage needs.
type Responder interface {
	Name() string
	Respond(ctx context.Context, input string) (string, error)
}

// Stage pairs an agent with the template that derives its input.
type Stage struct {
	Name     string
	Agent    Responder
	Template string
}

// StageError reports which stage failed and why. Index is zero-based.
type StageError struct {
	Index int
	Stage string
	Agent string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %d (%s) failed: %v", e.Index+1, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Metrics receives stage and run outcomes.
type Metrics interface {
	RecordStage(stage, outcome string, duration time.Duration)
	RecordRun(outcome string, duration time.Duration)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithObserver adds an observer notified at every stage boundary.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// Pipeline is an ordered list of stages run once per Run call.
// It is not safe for concurrent use.
type Pipeline struct {
	stages    []Stage
	logger    *zap.Logger
	metrics   Metrics
	observers []Observer
}

// New validates the stages and returns a pipeline.
func New(stages []Stage, opts ...Option) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	for i, s := range stages {
		if s.Agent == nil {
			return nil, fmt.Errorf("stage %d (%s): agent is required", i+1, s.Name)
		}
		if err := validateTemplate(i, s.Template); err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i+1, s.Name, err)
		}
	}

	p := &Pipeline{
		stages: append([]Stage(nil), stages...),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Stages returns a copy of the configured stages.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Run executes every stage in order and returns the last stage's output.
func (p *Pipeline) Run(ctx context.Context, goal string) (string, error) {
	return p.RunWithID(ctx, uuid.NewString(), goal)
}

// RunWithID is Run with a caller-chosen run id for logs and events.
func (p *Pipeline) RunWithID(ctx context.Context, runID, goal string) (string, error) {
	logger := p.logger.With(zap.String("run_id", runID))
	start := time.Now()
	logger.Info("pipeline started", zap.Int("stages", len(p.stages)))

	artifact := goal
	for i, stage := range p.stages {
		input := Render(stage.Template, goal, artifact)
		p.notify(Event{
			Type:  StageStarted,
			RunID: runID,
			Index: i,
			Total: len(p.stages),
			Stage: stage.Name,
			Agent: stage.Agent.Name(),
			Input: input,
		})

		stageStart := time.Now()
		output, err := stage.Agent.Respond(ctx, input)
		elapsed := time.Since(stageStart)

		if err != nil {
			stageErr := &StageError{Index: i, Stage: stage.Name, Agent: stage.Agent.Name(), Err: err}
			p.recordStage(stage.Name, "failed", elapsed)
			p.recordRun("failed", time.Since(start))
			logger.Error("stage failed",
				zap.Int("index", i),
				zap.String("stage", stage.Name),
				zap.String("agent", stage.Agent.Name()),
				zap.Duration("duration", elapsed),
				zap.Error(err))
			p.notify(Event{
				Type:     StageFailed,
				RunID:    runID,
				Index:    i,
				Total:    len(p.stages),
				Stage:    stage.Name,
				Agent:    stage.Agent.Name(),
				Input:    input,
				Err:      stageErr,
				Duration: elapsed,
			})
			return "", stageErr
		}

		p.recordStage(stage.Name, "ok", elapsed)
		logger.Info("stage finished",
			zap.Int("index", i),
			zap.String("stage", stage.Name),
			zap.String("agent", stage.Agent.Name()),
			zap.Int("output_bytes", len(output)),
			zap.Duration("duration", elapsed))
		p.notify(Event{
			Type:     StageCompleted,
			RunID:    runID,
			Index:    i,
			Total:    len(p.stages),
			Stage:    stage.Name,
			Agent:    stage.Agent.Name(),
			Input:    input,
			Output:   output,
			Duration: elapsed,
		})
		artifact = output
	}

	p.recordRun("ok", time.Since(start))
	logger.Info("pipeline finished", zap.Duration("duration", time.Since(start)))
	return artifact, nil
}

func (p *Pipeline) notify(ev Event) {
	for _, o := range p.observers {
		o.Observe(ev)
	}
}

func (p *Pipeline) recordStage(stage, outcome string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordStage(stage, outcome, d)
	}
}

func (p *Pipeline) recordRun(outcome string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordRun(outcome, d)
	}
}

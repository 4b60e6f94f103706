package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// GateConfig bounds access to a shared engine.
type GateConfig struct {
	// MaxInFlight caps concurrent Generate calls (<=0 means 1).
	MaxInFlight int
	// RequestsPerSecond spaces calls out; 0 disables the limiter.
	RequestsPerSecond float64
}

// Gate serializes access to an engine shared by several pipeline runs and
// records every call.
type Gate struct {
	next    Engine
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	metrics GateMetrics
	logger  *zap.Logger
}

// GateMetrics is the subset of observability.Metrics used by Gate.
type GateMetrics interface {
	RecordGeneration(model, outcome string, duration time.Duration)
	IncEngineInFlight()
	DecEngineInFlight()
}

// NewGate wraps next. metrics and logger may be nil.
func NewGate(next Engine, cfg GateConfig, metrics GateMetrics, logger *zap.Logger) *Gate {
	slots := cfg.MaxInFlight
	if slots <= 0 {
		slots = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{
		next:    next,
		sem:     semaphore.NewWeighted(int64(slots)),
		metrics: metrics,
		logger:  logger,
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return g
}

// Generate waits for a slot, then delegates to the wrapped engine.
func (g *Gate) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", NewGenerationError(ReasonUnavailable, req.Model, err)
	}
	defer g.sem.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", NewGenerationError(ReasonUnavailable, req.Model, err)
		}
	}

	if g.metrics != nil {
		g.metrics.IncEngineInFlight()
		defer g.metrics.DecEngineInFlight()
	}

	start := time.Now()
	text, err := g.next.Generate(ctx, req)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = ClassifyError(err)
		g.logger.Warn("generation failed",
			zap.String("model", req.Model),
			zap.String("reason", outcome),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	} else {
		g.logger.Debug("generation finished",
			zap.String("model", req.Model),
			zap.Int("messages", len(req.Messages)),
			zap.Int("output_bytes", len(text)),
			zap.Duration("duration", elapsed))
	}
	if g.metrics != nil {
		g.metrics.RecordGeneration(req.Model, outcome, elapsed)
	}
	if err != nil {
		return "", NewGenerationError(outcome, req.Model, err)
	}
	return text, nil
}

package agent

import (
	"strings"

	"github.com/devcrew/devcrew/internal/config"
	"github.com/devcrew/devcrew/internal/llm"
)

// StrategyEngine chooses a model for each pipeline stage.
type StrategyEngine struct {
	registry *llm.Registry
	cfg      config.StrategyConfig
}

// NewStrategyEngine builds a strategy selector.
func NewStrategyEngine(reg *llm.Registry, cfg config.StrategyConfig) *StrategyEngine {
	return &StrategyEngine{registry: reg, cfg: cfg}
}

// ModelFor returns the model id for a stage: per-stage override, then the
// strategy default, then the first registered fallback. An empty result means
// the registry default.
func (s *StrategyEngine) ModelFor(stage string) string {
	if s == nil || s.registry == nil {
		return ""
	}
	stage = strings.ToLower(strings.TrimSpace(stage))
	modelID := firstNonEmpty(
		s.cfg.Overrides[stage],
		s.cfg.DefaultModel,
	)
	if modelID != "" && s.registry.Has(modelID) {
		return modelID
	}
	for _, fb := range s.cfg.Fallbacks {
		if s.registry.Has(fb) {
			return fb
		}
	}
	return ""
}

// ParamsFor combines the stage model with engine-wide generation settings.
func (s *StrategyEngine) ParamsFor(stage string, engine config.EngineConfig) Params {
	return Params{
		Model:       s.ModelFor(stage),
		MaxTokens:   engine.MaxTokens,
		Temperature: engine.Temperature,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

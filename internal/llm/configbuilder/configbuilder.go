package configbuilder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/devcrew/devcrew/internal/config"
	"github.com/devcrew/devcrew/internal/llm"
	llmanthropic "github.com/devcrew/devcrew/internal/llm/providers/anthropic"
	llmollama "github.com/devcrew/devcrew/internal/llm/providers/ollama"
	llmopenai "github.com/devcrew/devcrew/internal/llm/providers/openai"
)

// BuildRegistryFromConfig constructs a registry and providers from config.
func BuildRegistryFromConfig(cfg *config.Config) (*llm.Registry, error) {
	reg := llm.NewRegistry()

	for name, pCfg := range cfg.Providers {
		p, err := buildProvider(name, pCfg)
		if err != nil {
			return nil, err
		}
		reg.RegisterProvider(name, p)
	}

	for name, mCfg := range cfg.Models {
		reg.RegisterModel(name, llm.ModelRoute{
			Provider:    mCfg.Provider,
			Model:       mCfg.Model,
			Temperature: mCfg.Temperature,
			MaxTokens:   mCfg.MaxTokens,
		}, mCfg.Default)
	}

	if _, _, err := reg.Resolve(""); err != nil {
		return nil, err
	}

	return reg, nil
}

// BuildEngine builds the registry and wraps its engine in a Gate configured
// from cfg.Engine. metrics and logger may be nil.
func BuildEngine(cfg *config.Config, metrics llm.GateMetrics, logger *zap.Logger) (*llm.Gate, *llm.Registry, error) {
	reg, err := BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	gate := llm.NewGate(llm.NewRegistryEngine(reg), llm.GateConfig{
		MaxInFlight:       cfg.Engine.MaxInFlight,
		RequestsPerSecond: cfg.Engine.RequestsPerSecond,
	}, metrics, logger)
	return gate, reg, nil
}

func buildProvider(name string, cfg config.ProviderConfig) (llm.Provider, error) {
	switch cfg.Type {
	case "openai", "openrouter", "vllm", "lmstudio", "custom":
		return llmopenai.NewProvider(name, cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case "ollama":
		return llmollama.NewProvider(name, cfg.BaseURL, cfg.Timeout), nil
	case "anthropic":
		return llmanthropic.NewProvider(name, cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for provider %s", cfg.Type, name)
	}
}

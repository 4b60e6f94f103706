package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Strategy  StrategyConfig            `mapstructure:"strategy"`
	Engine    EngineConfig              `mapstructure:"engine"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline"`
	Output    OutputConfig              `mapstructure:"output"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Server    ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents LLM provider configuration such as Ollama, OpenAI or Anthropic.
type ProviderConfig struct {
	Type    string        `mapstructure:"type"`     // ollama, openai, openrouter, vllm, lmstudio, custom, anthropic
	BaseURL string        `mapstructure:"base_url"` // API base URL
	APIKey  string        `mapstructure:"api_key"`  // optional API key
	Timeout time.Duration `mapstructure:"timeout"`  // request timeout
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string   `mapstructure:"provider"`
	Model       string   `mapstructure:"model"`
	Temperature *float64 `mapstructure:"temperature"` // nil when not configured
	MaxTokens   int      `mapstructure:"max_tokens"`
	Default     bool     `mapstructure:"default"`
}

// StrategyConfig picks models per pipeline stage.
type StrategyConfig struct {
	DefaultModel string            `mapstructure:"default_model"`
	Overrides    map[string]string `mapstructure:"overrides"` // stage name -> model id
	Fallbacks    []string          `mapstructure:"fallbacks"` // used when a configured model is not registered
}

// EngineConfig holds generation parameters and access limits for the shared engine.
type EngineConfig struct {
	MaxTokens         int      `mapstructure:"max_tokens"`
	Temperature       *float64 `mapstructure:"temperature"` // nil defers to the model route
	MaxInFlight       int      `mapstructure:"max_in_flight"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
}

// PipelineConfig points to an optional declarative pipeline definition.
type PipelineConfig struct {
	Definition string `mapstructure:"definition"` // YAML file; empty uses the built-in crew
}

// OutputConfig controls where the final artifact is written.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: DEVCREW_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEVCREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// engine.temperature has no default, so its env override is bound explicitly.
	_ = v.BindEnv("engine.temperature")

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("engine.max_tokens", 1024)
	v.SetDefault("engine.max_in_flight", 1)
	v.SetDefault("engine.requests_per_second", 0)

	v.SetDefault("strategy.default_model", "")
	v.SetDefault("strategy.overrides", map[string]string{})
	v.SetDefault("strategy.fallbacks", []string{})

	v.SetDefault("pipeline.definition", "")
	v.SetDefault("output.path", "output/result.py")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	var defaultFound bool
	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if !validTemperature(m.Temperature) {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if c.Engine.MaxTokens < 0 {
		return errors.New("engine.max_tokens must be >= 0")
	}
	if !validTemperature(c.Engine.Temperature) {
		return errors.New("engine.temperature must be within [0,2]")
	}
	if c.Engine.MaxInFlight < 0 {
		return errors.New("engine.max_in_flight must be >= 0")
	}
	if c.Engine.RequestsPerSecond < 0 {
		return errors.New("engine.requests_per_second must be >= 0")
	}

	if strings.TrimSpace(c.Strategy.DefaultModel) != "" {
		if _, ok := c.Models[c.Strategy.DefaultModel]; !ok {
			return fmt.Errorf("strategy references unknown model %q", c.Strategy.DefaultModel)
		}
	}
	for stage, modelID := range c.Strategy.Overrides {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy override for %q references unknown model %q", stage, modelID)
		}
	}
	for _, modelID := range c.Strategy.Fallbacks {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy fallback references unknown model %q", modelID)
		}
	}

	if strings.TrimSpace(c.Output.Path) == "" {
		return errors.New("output.path must be set")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}

func validTemperature(t *float64) bool {
	return t == nil || (*t >= 0 && *t <= 2)
}

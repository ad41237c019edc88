package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/stratforge/stratforge/internal/scorer"
)

// ProviderConfig holds credentials and tuning for one LLM vendor.
type ProviderConfig struct {
	APIKey  string  `env:"API_KEY"`
	BaseURL string  `env:"BASE_URL"`
	Model   string  `env:"MODEL"`
	RPS     float64 `env:"RPS" envDefault:"1"`
	Burst   int     `env:"BURST" envDefault:"2"`
}

// Enabled reports whether the provider has credentials configured.
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

// CoordinatorConfig bounds the generation fan-out.
type CoordinatorConfig struct {
	PerProviderTimeout time.Duration `env:"PER_PROVIDER_TIMEOUT" envDefault:"45s"`
	OverallTimeout     time.Duration `env:"OVERALL_TIMEOUT" envDefault:"90s"`
	MaxTokens          int           `env:"MAX_TOKENS" envDefault:"4096"`
	Temperature        float64       `env:"TEMPERATURE" envDefault:"0.2"`
}

// OptimizationConfig tunes the optimization engine.
type OptimizationConfig struct {
	ConvergenceEpsilon     float64 `env:"CONVERGENCE_EPSILON" envDefault:"0.0001"`
	ConvergenceWindow      int     `env:"CONVERGENCE_WINDOW" envDefault:"5"`
	MaxConsecutiveFailures int     `env:"MAX_CONSECUTIVE_FAILURES" envDefault:"3"`
	Workers                int     `env:"WORKERS" envDefault:"1"`
	Seed                   int64   `env:"SEED" envDefault:"0"`
}

// RedisConfig points at the optional Redis template source.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Config is the full service configuration, parsed from the environment.
type Config struct {
	LogLevel     string             `env:"STRATFORGE_LOG_LEVEL" envDefault:"info"`
	WeightsFile  string             `env:"STRATFORGE_WEIGHTS_FILE"`
	Anthropic    ProviderConfig     `envPrefix:"ANTHROPIC_"`
	OpenAI       ProviderConfig     `envPrefix:"OPENAI_"`
	Coordinator  CoordinatorConfig  `envPrefix:"STRATFORGE_COORDINATOR_"`
	Optimization OptimizationConfig `envPrefix:"STRATFORGE_OPT_"`
	Redis        RedisConfig        `envPrefix:"STRATFORGE_REDIS_"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config from environment: %w", err)
	}
	return cfg, nil
}

// LoadWeights reads scoring weights from the configured YAML file, falling
// back to the built-in defaults when no file is configured. Invalid weights
// (not summing to 1.0) are an error, not a silent fallback.
func (c *Config) LoadWeights() (scorer.Weights, error) {
	if c.WeightsFile == "" {
		return scorer.DefaultWeights(), nil
	}

	data, err := os.ReadFile(c.WeightsFile)
	if err != nil {
		return scorer.Weights{}, fmt.Errorf("read weights file: %w", err)
	}

	var w scorer.Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return scorer.Weights{}, fmt.Errorf("parse weights file %s: %w", c.WeightsFile, err)
	}
	if err := w.Validate(); err != nil {
		return scorer.Weights{}, fmt.Errorf("weights file %s: %w", c.WeightsFile, err)
	}
	return w, nil
}

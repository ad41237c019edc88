package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stratforge/stratforge/internal/backtest"
	"github.com/stratforge/stratforge/internal/config"
	"github.com/stratforge/stratforge/internal/coordinator"
	"github.com/stratforge/stratforge/internal/llm"
	"github.com/stratforge/stratforge/internal/llm/providers/anthropic"
	"github.com/stratforge/stratforge/internal/llm/providers/openai"
	"github.com/stratforge/stratforge/internal/models"
	"github.com/stratforge/stratforge/internal/optimization"
	"github.com/stratforge/stratforge/internal/scorer"
	"github.com/stratforge/stratforge/internal/storage"
	"github.com/stratforge/stratforge/internal/templates"
	"github.com/stratforge/stratforge/internal/validator"
)

func main() {
	describe := flag.String("describe", "", "natural-language strategy description (required)")
	market := flag.String("market", string(models.MarketCrypto), "target market: crypto, equity, forex")
	timeframe := flag.String("timeframe", string(models.Timeframe1h), "candle timeframe, e.g. 1h")
	risk := flag.String("risk", string(models.RiskModerate), "risk level: conservative, moderate, aggressive")
	providers := flag.String("providers", "", "comma-separated provider ids (default: all configured)")
	dialect := flag.String("dialect", string(models.DialectPython), "code dialect: python or pinescript")
	templateID := flag.String("template", "", "optional prompt template id")
	optimize := flag.String("optimize", "", "optimize best result with this method: grid, random, bayesian")
	iterations := flag.Int("iterations", 50, "optimization iteration budget")
	optTimeout := flag.Duration("opt-timeout", 5*time.Minute, "optimization wall-clock budget")
	flag.Parse()

	logger := logrus.New()

	// A .env file is a convenience, not a requirement.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if strings.TrimSpace(*describe) == "" {
		flag.Usage()
		os.Exit(2)
	}

	registry := buildRegistry(cfg)
	if registry.Len() == 0 {
		logger.Fatal("No providers configured; set ANTHROPIC_API_KEY and/or OPENAI_API_KEY")
	}

	requested := registry.Names()
	if *providers != "" {
		requested = strings.Split(*providers, ",")
	}

	weights, err := cfg.LoadWeights()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load score weights")
	}
	sc, err := scorer.New(weights, nil)
	if err != nil {
		logger.WithError(err).Fatal("Invalid score weights")
	}

	coord := coordinator.New(
		registry,
		validator.New(validator.DefaultConfig(), logger),
		sc,
		buildTemplateSource(cfg, logger),
		coordinator.Config{
			PerProviderTimeout: cfg.Coordinator.PerProviderTimeout,
			OverallTimeout:     cfg.Coordinator.OverallTimeout,
			Options: models.GenerateOptions{
				MaxTokens:   cfg.Coordinator.MaxTokens,
				Temperature: cfg.Coordinator.Temperature,
			},
		},
		logger,
	)

	req := &models.StrategyRequest{
		Description: *describe,
		Market:      models.Market(*market),
		Timeframe:   models.Timeframe(*timeframe),
		RiskLevel:   models.RiskLevel(*risk),
		Providers:   requested,
		Dialect:     models.Dialect(*dialect),
		TemplateID:  *templateID,
		CreatedAt:   time.Now().UTC(),
	}

	ctx := context.Background()
	resp, err := coord.GenerateStrategies(ctx, req)
	if err != nil {
		logger.WithError(err).Fatal("Strategy generation failed")
	}

	printResults(resp)

	best := resp.Best()
	store := storage.NewMemoryStore()
	strategyID := resp.RequestID
	if err := store.Store(ctx, strategyID, best.Result.Code, map[string]any{
		"provider": best.Result.ProviderID,
		"score":    best.Score.Total,
	}); err != nil {
		logger.WithError(err).Warn("Failed to persist best strategy")
	}

	if *optimize != "" {
		runOptimization(ctx, logger, cfg, strategyID, best.Result.Code,
			optimization.Method(*optimize), *iterations, *optTimeout)
	}
}

// buildRegistry registers every provider with configured credentials, each
// behind a circuit breaker.
func buildRegistry(cfg *config.Config) *llm.Registry {
	registry := llm.NewRegistry()
	if cfg.Anthropic.Enabled() {
		p := anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.Anthropic.Model)
		registry.Register(llm.NewDefaultCircuitBreaker(p), cfg.Anthropic.RPS, cfg.Anthropic.Burst)
	}
	if cfg.OpenAI.Enabled() {
		p := openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
		registry.Register(llm.NewDefaultCircuitBreaker(p), cfg.OpenAI.RPS, cfg.OpenAI.Burst)
	}
	registry.Seal()
	return registry
}

func buildTemplateSource(cfg *config.Config, logger *logrus.Logger) templates.Source {
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return templates.NewRedisSource(client, "", logger)
	}
	return templates.NewMemorySource()
}

func printResults(resp *coordinator.Response) {
	fmt.Printf("request %s: %d result(s), %d failure(s)\n", resp.RequestID, len(resp.Results), len(resp.Failures))
	for i, r := range resp.Results {
		fmt.Printf("\n#%d %s (model %s)\n", i+1, r.Result.ProviderID, r.Result.Model)
		fmt.Printf("   score %.3f (completeness %.2f, indicators %.2f, syntax %.2f, latency %.2f)\n",
			r.Score.Total, r.Score.Completeness, r.Score.IndicatorUsage,
			r.Score.SyntaxCompliance, r.Score.LatencyScore)
		fmt.Printf("   validation: passed=%v findings=%d\n", r.Report.Passed, len(r.Report.Findings))
		for _, f := range r.Report.Findings {
			fmt.Printf("     [%s/%s] %s\n", f.Stage, f.Severity, f.Message)
		}
	}
	for _, f := range resp.Failures {
		fmt.Printf("\nfailed: %s (%s)\n", f.ProviderID, f.Cause)
	}
	if best := resp.Best(); best != nil {
		fmt.Printf("\n--- best strategy (%s) ---\n%s\n", best.Result.ProviderID, best.Result.Code)
	}
}

func runOptimization(ctx context.Context, logger *logrus.Logger, cfg *config.Config, strategyID, code string, method optimization.Method, iterations int, timeout time.Duration) {
	engine := optimization.New(
		backtest.NewSimEvaluator(42),
		optimization.Config{
			ConvergenceEpsilon:     cfg.Optimization.ConvergenceEpsilon,
			ConvergenceWindow:      cfg.Optimization.ConvergenceWindow,
			MaxConsecutiveFailures: cfg.Optimization.MaxConsecutiveFailures,
			Workers:                cfg.Optimization.Workers,
			Seed:                   cfg.Optimization.Seed,
		},
		logger,
	)

	space := optimization.NewSpace(
		optimization.Parameter{Name: "fast_ma", Values: []float64{5, 8, 10, 12, 15, 20}},
		optimization.Parameter{Name: "slow_ma", Values: []float64{20, 30, 40, 50, 60, 100}},
	)

	run, err := engine.Optimize(ctx, strategyID, code, space, method, iterations, timeout)
	if err != nil {
		logger.WithError(err).Error("Optimization aborted")
		if run == nil {
			return
		}
	}

	fmt.Printf("\noptimization run %s: state=%s trials=%d\n", run.ID, run.State, len(run.Trials))
	if best := run.Best(); best != nil {
		fmt.Printf("best %s = %.4f at %v (trial %d)\n", run.Objective, best.Value, best.Params, best.Index)
	}
}

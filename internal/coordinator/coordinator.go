package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stratforge/stratforge/internal/llm"
	"github.com/stratforge/stratforge/internal/metrics"
	"github.com/stratforge/stratforge/internal/models"
	"github.com/stratforge/stratforge/internal/scorer"
	"github.com/stratforge/stratforge/internal/templates"
	"github.com/stratforge/stratforge/internal/validator"
)

// Config bounds one coordinator invocation.
type Config struct {
	// PerProviderTimeout bounds each individual provider call.
	PerProviderTimeout time.Duration
	// OverallTimeout bounds the whole fan-out. When it fires, still-pending
	// provider calls are cancelled and whatever completed is returned.
	OverallTimeout time.Duration
	// Options are the generation options passed to every provider.
	Options models.GenerateOptions
}

// DefaultConfig returns sensible coordinator defaults.
func DefaultConfig() Config {
	return Config{
		PerProviderTimeout: 45 * time.Second,
		OverallTimeout:     90 * time.Second,
		Options: models.GenerateOptions{
			MaxTokens:   4096,
			Temperature: 0.2,
		},
	}
}

// AllProvidersFailedError is returned when every requested provider failed.
// It carries the individual failure causes keyed by provider identifier.
type AllProvidersFailedError struct {
	Causes map[string]error
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for id := range e.Causes {
		parts = append(parts, id)
	}
	sort.Strings(parts)
	for i, id := range parts {
		parts[i] = fmt.Sprintf("%s: %v", id, e.Causes[id])
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Response is the outcome of one coordinator invocation: validated, scored
// results sorted descending by total score, plus failed providers as
// metadata.
type Response struct {
	RequestID string                   `json:"request_id"`
	Results   []models.RankedResult    `json:"results"`
	Failures  []models.ProviderFailure `json:"failures,omitempty"`
}

// Best returns the top-ranked result, or nil when there is none.
func (r *Response) Best() *models.RankedResult {
	if len(r.Results) == 0 {
		return nil
	}
	return &r.Results[0]
}

// Coordinator fans a strategy request out to the requested providers,
// validates and scores each returned artifact, and selects the best one. It
// holds no mutable state of its own, so one instance serves concurrent
// invocations.
type Coordinator struct {
	registry  *llm.Registry
	validator *validator.Validator
	scorer    *scorer.Scorer
	templates templates.Source
	cfg       Config
	log       *logrus.Logger
	metrics   *metrics.PipelineMetrics
}

// New creates a coordinator. templates may be nil when prompt augmentation is
// not wanted; a nil logger falls back to the logrus default.
func New(registry *llm.Registry, v *validator.Validator, s *scorer.Scorer, t templates.Source, cfg Config, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.PerProviderTimeout <= 0 {
		cfg.PerProviderTimeout = DefaultConfig().PerProviderTimeout
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = DefaultConfig().OverallTimeout
	}
	return &Coordinator{
		registry:  registry,
		validator: v,
		scorer:    s,
		templates: t,
		cfg:       cfg,
		log:       log,
		metrics:   metrics.Default,
	}
}

// outcome is one provider call's result, success or failure.
type outcome struct {
	providerID string
	gen        *models.Generation
	err        error
}

// GenerateStrategies invokes every requested provider concurrently, bounded
// by the per-provider and overall timeouts. A provider failure never aborts
// sibling calls. If at least one provider succeeds the response carries the
// ranked results and reports failures as metadata; if all fail, the returned
// error is *AllProvidersFailedError with the individual causes.
func (c *Coordinator) GenerateStrategies(ctx context.Context, req *models.StrategyRequest) (*Response, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if _, err := c.registry.Resolve(req.Providers); err != nil {
		return nil, err
	}

	requestID := req.ID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	prompt := c.buildPrompt(ctx, req)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OverallTimeout)
	defer cancel()

	outcomes := make(chan outcome, len(req.Providers))
	var wg sync.WaitGroup
	for _, id := range req.Providers {
		provider, _ := c.registry.Get(id)
		wg.Add(1)
		go func(id string, p llm.Provider) {
			defer wg.Done()
			outcomes <- c.callProvider(ctx, id, p, prompt)
		}(id, provider)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var results []models.RankedResult
	failures := make([]models.ProviderFailure, 0)
	causes := make(map[string]error)

	for out := range outcomes {
		if out.err != nil {
			c.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"provider":   out.providerID,
				"kind":       llm.KindOf(out.err),
			}).Warn("Provider generation failed")
			c.metrics.RecordProviderError(out.providerID, string(llm.KindOf(out.err)))
			causes[out.providerID] = out.err
			failures = append(failures, models.ProviderFailure{
				ProviderID: out.providerID,
				Cause:      string(llm.KindOf(out.err)),
			})
			continue
		}
		results = append(results, c.rank(out, req.Dialect))
	}

	if len(results) == 0 {
		return nil, &AllProvidersFailedError{Causes: causes}
	}

	scorer.SortRanked(results)
	sort.Slice(failures, func(i, j int) bool { return failures[i].ProviderID < failures[j].ProviderID })

	best := results[0]
	c.metrics.SetBestScore(best.Result.ProviderID, best.Score.Total)
	c.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"results":    len(results),
		"failures":   len(failures),
		"best":       best.Result.ProviderID,
		"best_score": best.Score.Total,
	}).Info("Strategy generation completed")

	return &Response{RequestID: requestID, Results: results, Failures: failures}, nil
}

// callProvider runs one bounded provider call, including the registry's rate
// limiter gate.
func (c *Coordinator) callProvider(ctx context.Context, id string, p llm.Provider, prompt string) outcome {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.PerProviderTimeout)
	defer cancel()

	if err := c.registry.Acquire(callCtx, id); err != nil {
		if callCtx.Err() != nil {
			return outcome{providerID: id, err: llm.NewTimeoutError(id, callCtx.Err())}
		}
		return outcome{providerID: id, err: llm.NewUnknownError(id, err)}
	}

	start := time.Now()
	gen, err := p.Generate(callCtx, prompt, &c.cfg.Options)
	c.metrics.RecordGeneration(id, err == nil, time.Since(start).Seconds())
	if err != nil {
		return outcome{providerID: id, err: err}
	}
	return outcome{providerID: id, gen: gen}
}

// rank validates and scores one successful generation.
func (c *Coordinator) rank(out outcome, dialect models.Dialect) models.RankedResult {
	result := models.ProviderResult{
		ProviderID:   out.providerID,
		Code:         out.gen.Text,
		Model:        out.gen.Model,
		TokensUsed:   out.gen.TokensUsed,
		Latency:      out.gen.Latency,
		Success:      true,
		FinishReason: out.gen.FinishReason,
		CreatedAt:    time.Now().UTC(),
	}

	report := c.validator.Validate(result.Code, dialect)
	c.recordValidation(report)
	score := c.scorer.Score(&result, report)

	return models.RankedResult{Result: result, Report: *report, Score: score}
}

func (c *Coordinator) recordValidation(report *models.ValidationReport) {
	findings := make(map[string]map[string]int)
	for _, f := range report.Findings {
		if findings[string(f.Stage)] == nil {
			findings[string(f.Stage)] = make(map[string]int)
		}
		findings[string(f.Stage)][string(f.Severity)]++
	}
	c.metrics.RecordValidation(report.Passed, findings)
}

func checkRequest(req *models.StrategyRequest) error {
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}
	if strings.TrimSpace(req.Description) == "" {
		return fmt.Errorf("request description cannot be empty")
	}
	if len(req.Providers) == 0 {
		return fmt.Errorf("request must name at least one provider")
	}
	return nil
}

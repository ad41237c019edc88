package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratforge/stratforge/internal/llm"
	"github.com/stratforge/stratforge/internal/models"
	"github.com/stratforge/stratforge/internal/scorer"
	"github.com/stratforge/stratforge/internal/templates"
	"github.com/stratforge/stratforge/internal/validator"
)

const cleanStrategy = `def initialize(context):
    context.window = 14

def generate_signals(df):
    df['rsi'] = compute_rsi(df['close'], 14)
    df['sma'] = df['close'].rolling(20).mean()
    df['signal'] = 0
    df.loc[df['rsi'] < 30, 'signal'] = 1
    return df
`

const insecureStrategy = `def initialize(context):
    pass

def generate_signals(df):
    eval("df")
    df['signal'] = 0
    return df
`

// stubProvider is a scripted provider for fan-out tests.
type stubProvider struct {
	mu      sync.Mutex
	name    string
	gen     *models.Generation
	err     error
	delay   time.Duration
	prompts []string
}

func (s *stubProvider) Generate(ctx context.Context, prompt string, opts *models.GenerateOptions) (*models.Generation, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, llm.NewTimeoutError(s.name, ctx.Err())
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.gen, nil
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Capabilities() *models.ProviderCapabilities {
	return &models.ProviderCapabilities{}
}

func (s *stubProvider) HealthCheck(ctx context.Context) error { return nil }

func (s *stubProvider) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

func newTestCoordinator(t *testing.T, tmpl templates.Source, providers ...llm.Provider) *Coordinator {
	t.Helper()
	registry := llm.NewRegistry()
	for _, p := range providers {
		registry.Register(p, 0, 0)
	}
	registry.Seal()

	return New(
		registry,
		validator.New(validator.DefaultConfig(), nil),
		scorer.NewDefault(),
		tmpl,
		Config{PerProviderTimeout: time.Second, OverallTimeout: 2 * time.Second},
		nil,
	)
}

func testRequest(providers ...string) *models.StrategyRequest {
	return &models.StrategyRequest{
		Description: "RSI mean reversion on BTC",
		Market:      models.MarketCrypto,
		Timeframe:   models.Timeframe1h,
		RiskLevel:   models.RiskModerate,
		Providers:   providers,
		Dialect:     models.DialectPython,
	}
}

func TestGenerateStrategies_RanksAllProviders(t *testing.T) {
	fast := &stubProvider{name: "anthropic", gen: &models.Generation{
		Text: cleanStrategy, Model: "m1", TokensUsed: 100, Latency: time.Second,
	}}
	slow := &stubProvider{name: "openai", gen: &models.Generation{
		Text: cleanStrategy, Model: "m2", TokensUsed: 120, Latency: 8 * time.Second,
	}}
	c := newTestCoordinator(t, nil, fast, slow)

	resp, err := c.GenerateStrategies(context.Background(), testRequest("anthropic", "openai"))
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Empty(t, resp.Failures)
	assert.NotEmpty(t, resp.RequestID)

	// Identical code; lower latency ranks first.
	assert.Equal(t, "anthropic", resp.Results[0].Result.ProviderID)
	assert.Equal(t, "openai", resp.Results[1].Result.ProviderID)
	assert.Equal(t, resp.Results[0].Result.ProviderID, resp.Best().Result.ProviderID)
	assert.GreaterOrEqual(t, resp.Results[0].Score.Total, resp.Results[1].Score.Total)
}

func TestGenerateStrategies_PartialFailureIsMetadata(t *testing.T) {
	good := &stubProvider{name: "anthropic", gen: &models.Generation{Text: cleanStrategy, Latency: time.Second}}
	bad := &stubProvider{name: "openai", err: llm.NewTimeoutError("openai", context.DeadlineExceeded)}
	c := newTestCoordinator(t, nil, good, bad)

	resp, err := c.GenerateStrategies(context.Background(), testRequest("anthropic", "openai"))
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "anthropic", resp.Results[0].Result.ProviderID)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "openai", resp.Failures[0].ProviderID)
	assert.Equal(t, "timeout", resp.Failures[0].Cause)
}

func TestGenerateStrategies_AllProvidersFailed(t *testing.T) {
	a := &stubProvider{name: "anthropic", err: llm.NewRateLimitedError("anthropic", time.Minute, nil)}
	b := &stubProvider{name: "openai", err: llm.NewAuthError("openai", nil)}
	c := newTestCoordinator(t, nil, a, b)

	resp, err := c.GenerateStrategies(context.Background(), testRequest("anthropic", "openai"))
	require.Error(t, err)
	assert.Nil(t, resp)

	var allFailed *AllProvidersFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Len(t, allFailed.Causes, 2)
	assert.True(t, llm.IsRateLimited(allFailed.Causes["anthropic"]))
	assert.Equal(t, llm.ErrKindAuth, llm.KindOf(allFailed.Causes["openai"]))
	assert.Contains(t, err.Error(), "all providers failed")
}

func TestGenerateStrategies_SlowProviderTimesOut(t *testing.T) {
	good := &stubProvider{name: "anthropic", gen: &models.Generation{Text: cleanStrategy, Latency: time.Second}}
	stuck := &stubProvider{name: "openai", delay: 10 * time.Second, gen: &models.Generation{Text: cleanStrategy}}

	registry := llm.NewRegistry()
	registry.Register(good, 0, 0)
	registry.Register(stuck, 0, 0)
	registry.Seal()
	c := New(registry, validator.New(validator.DefaultConfig(), nil), scorer.NewDefault(), nil,
		Config{PerProviderTimeout: 50 * time.Millisecond, OverallTimeout: time.Second}, nil)

	start := time.Now()
	resp, err := c.GenerateStrategies(context.Background(), testRequest("anthropic", "openai"))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, resp.Results, 1)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "openai", resp.Failures[0].ProviderID)
	assert.Equal(t, "timeout", resp.Failures[0].Cause)
}

func TestGenerateStrategies_ValidationShapesRanking(t *testing.T) {
	clean := &stubProvider{name: "openai", gen: &models.Generation{Text: cleanStrategy, Latency: time.Second}}
	insecure := &stubProvider{name: "anthropic", gen: &models.Generation{Text: insecureStrategy, Latency: time.Second}}
	c := newTestCoordinator(t, nil, clean, insecure)

	resp, err := c.GenerateStrategies(context.Background(), testRequest("anthropic", "openai"))
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	best := resp.Results[0]
	assert.Equal(t, "openai", best.Result.ProviderID)
	assert.True(t, best.Report.Passed)

	worst := resp.Results[1]
	assert.False(t, worst.Report.Passed)
	assert.Equal(t, 0.0, worst.Score.Completeness)
	assert.True(t, worst.Report.HasStage(models.StageSecurity))
}

func TestGenerateStrategies_TemplateAugmentsPrompt(t *testing.T) {
	source := templates.NewMemorySource()
	source.Put("mean-reversion", "Use a 14-period RSI with 30/70 bands.")

	p := &stubProvider{name: "anthropic", gen: &models.Generation{Text: cleanStrategy}}
	c := newTestCoordinator(t, source, p)

	req := testRequest("anthropic")
	req.TemplateID = "mean-reversion"
	_, err := c.GenerateStrategies(context.Background(), req)
	require.NoError(t, err)

	prompt := p.lastPrompt()
	assert.Contains(t, prompt, "RSI mean reversion on BTC")
	assert.Contains(t, prompt, "Use a 14-period RSI with 30/70 bands.")
	assert.Contains(t, prompt, "generate_signals")
}

func TestGenerateStrategies_MissingTemplateIsSoftMiss(t *testing.T) {
	p := &stubProvider{name: "anthropic", gen: &models.Generation{Text: cleanStrategy}}
	c := newTestCoordinator(t, templates.NewMemorySource(), p)

	req := testRequest("anthropic")
	req.TemplateID = "does-not-exist"
	resp, err := c.GenerateStrategies(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.NotContains(t, p.lastPrompt(), "Follow this template")
}

func TestGenerateStrategies_RequestValidation(t *testing.T) {
	p := &stubProvider{name: "anthropic", gen: &models.Generation{Text: cleanStrategy}}
	c := newTestCoordinator(t, nil, p)
	ctx := context.Background()

	_, err := c.GenerateStrategies(ctx, nil)
	assert.Error(t, err)

	req := testRequest("anthropic")
	req.Description = "   "
	_, err = c.GenerateStrategies(ctx, req)
	assert.ErrorContains(t, err, "description")

	_, err = c.GenerateStrategies(ctx, testRequest())
	assert.ErrorContains(t, err, "at least one provider")

	_, err = c.GenerateStrategies(ctx, testRequest("unregistered"))
	assert.ErrorContains(t, err, "unknown provider")
}

func TestGenerateStrategies_PreservesRequestID(t *testing.T) {
	p := &stubProvider{name: "anthropic", gen: &models.Generation{Text: cleanStrategy}}
	c := newTestCoordinator(t, nil, p)

	req := testRequest("anthropic")
	req.ID = "req-42"
	resp, err := c.GenerateStrategies(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.RequestID)
}

func TestGenerateStrategies_PineScriptPrompt(t *testing.T) {
	p := &stubProvider{name: "anthropic", gen: &models.Generation{
		Text: "strategy(\"x\")\nstrategy.entry(\"long\", strategy.long)\n",
	}}
	c := newTestCoordinator(t, nil, p)

	req := testRequest("anthropic")
	req.Dialect = models.DialectPineScript
	resp, err := c.GenerateStrategies(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, p.lastPrompt(), "Pine Script")
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Report.Passed)
}

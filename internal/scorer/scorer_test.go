package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratforge/stratforge/internal/models"
)

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	bad := Weights{Completeness: 0.5, IndicatorUsage: 0.5, SyntaxCompliance: 0.5, Latency: 0.5}
	assert.Error(t, bad.Validate())

	negative := Weights{Completeness: 1.2, IndicatorUsage: -0.2, SyntaxCompliance: 0, Latency: 0}
	assert.Error(t, negative.Validate())
}

func TestNew_RejectsInvalidWeights(t *testing.T) {
	_, err := New(Weights{Completeness: 1.0, IndicatorUsage: 0.5}, nil)
	assert.Error(t, err)
}

func TestScore_IsPure(t *testing.T) {
	s := NewDefault()
	result := &models.ProviderResult{
		ProviderID: "anthropic",
		Code:       "df['rsi'] = x\ndf['signal'] = 0",
		Latency:    2 * time.Second,
	}
	report := &models.ValidationReport{Passed: true}

	first := s.Score(result, report)
	second := s.Score(result, report)

	assert.Equal(t, first, second)
}

func TestScore_ErrorZeroesCompleteness(t *testing.T) {
	s := NewDefault()
	result := &models.ProviderResult{ProviderID: "openai", Code: "eval('x')"}
	report := &models.ValidationReport{
		Findings: []models.Finding{
			{Stage: models.StageSecurity, Severity: models.SeverityError, Message: "forbidden"},
		},
	}

	breakdown := s.Score(result, report)

	assert.Equal(t, 0.0, breakdown.Completeness)
}

func TestScore_WarningsReduceSyntaxCompliance(t *testing.T) {
	s := NewDefault()
	result := &models.ProviderResult{ProviderID: "anthropic"}

	warn := models.Finding{Stage: models.StageCompliance, Severity: models.SeverityWarning}

	clean := s.Score(result, &models.ValidationReport{Passed: true})
	oneWarning := s.Score(result, &models.ValidationReport{Passed: true, Findings: []models.Finding{warn}})
	twoWarnings := s.Score(result, &models.ValidationReport{Passed: true, Findings: []models.Finding{warn, warn}})

	assert.Equal(t, 1.0, clean.SyntaxCompliance)
	assert.InDelta(t, 1.0-WarningPenalty, oneWarning.SyntaxCompliance, 1e-9)
	assert.InDelta(t, 1.0-2*WarningPenalty, twoWarnings.SyntaxCompliance, 1e-9)
	assert.Greater(t, clean.Total, oneWarning.Total)
	assert.Greater(t, oneWarning.Total, twoWarnings.Total)
}

func TestScore_SyntaxComplianceFloorsAtZero(t *testing.T) {
	s := NewDefault()
	result := &models.ProviderResult{ProviderID: "anthropic"}

	findings := make([]models.Finding, 10)
	for i := range findings {
		findings[i] = models.Finding{Stage: models.StageCompliance, Severity: models.SeverityWarning}
	}
	breakdown := s.Score(result, &models.ValidationReport{Passed: true, Findings: findings})

	assert.Equal(t, 0.0, breakdown.SyntaxCompliance)
}

func TestScore_TotalIsWeightedSum(t *testing.T) {
	s := NewDefault()
	result := &models.ProviderResult{
		ProviderID: "anthropic",
		Code:       "df['rsi'] = x",
		Latency:    5 * time.Second,
	}

	b := s.Score(result, &models.ValidationReport{Passed: true})

	w := s.Weights()
	expected := w.Completeness*b.Completeness +
		w.IndicatorUsage*b.IndicatorUsage +
		w.SyntaxCompliance*b.SyntaxCompliance +
		w.Latency*b.LatencyScore
	assert.InDelta(t, expected, b.Total, 1e-9)
}

func TestLatencyScore(t *testing.T) {
	assert.Equal(t, 1.0, LatencyScore(0))
	assert.Equal(t, 1.0, LatencyScore(-time.Second))

	fast := LatencyScore(1 * time.Second)
	slow := LatencyScore(30 * time.Second)
	assert.Greater(t, fast, slow)
	assert.Greater(t, slow, 0.0)
	assert.Less(t, fast, 1.0)
}

func TestSortRanked_Deterministic(t *testing.T) {
	ranked := func(provider string, total float64, latency time.Duration) models.RankedResult {
		return models.RankedResult{
			Result: models.ProviderResult{ProviderID: provider, Latency: latency},
			Score:  models.ScoreBreakdown{Total: total},
		}
	}

	results := []models.RankedResult{
		ranked("openai", 0.8, 2*time.Second),
		ranked("anthropic", 0.9, 5*time.Second),
		// Same total as openai, lower latency wins the tie.
		ranked("mistral", 0.8, 1*time.Second),
		// Full tie with openai resolves on provider identifier.
		ranked("aleph", 0.8, 2*time.Second),
	}

	SortRanked(results)

	require.Len(t, results, 4)
	assert.Equal(t, "anthropic", results[0].Result.ProviderID)
	assert.Equal(t, "mistral", results[1].Result.ProviderID)
	assert.Equal(t, "aleph", results[2].Result.ProviderID)
	assert.Equal(t, "openai", results[3].Result.ProviderID)
}

package scorer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/stratforge/stratforge/internal/models"
	"github.com/stratforge/stratforge/internal/validator"
)

const (
	// WarningPenalty is subtracted from the syntax-compliance component per
	// WARNING finding, floored at 0.
	WarningPenalty = 0.15
	// LatencyScale controls how fast the latency component decays.
	LatencyScale = 10 * time.Second
	// weightTolerance is the permitted deviation when checking weights sum to 1.
	weightTolerance = 1e-9
)

// Weights holds the fixed component weights of the confidence score.
// They must sum to 1.0.
type Weights struct {
	Completeness     float64 `json:"completeness" yaml:"completeness"`
	IndicatorUsage   float64 `json:"indicator_usage" yaml:"indicator_usage"`
	SyntaxCompliance float64 `json:"syntax_compliance" yaml:"syntax_compliance"`
	Latency          float64 `json:"latency" yaml:"latency"`
}

// DefaultWeights returns the stock weight configuration.
func DefaultWeights() Weights {
	return Weights{
		Completeness:     0.30,
		IndicatorUsage:   0.25,
		SyntaxCompliance: 0.25,
		Latency:          0.20,
	}
}

// Validate checks the weights-sum-to-one invariant.
func (w Weights) Validate() error {
	sum := w.Completeness + w.IndicatorUsage + w.SyntaxCompliance + w.Latency
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("score weights must sum to 1.0, got %.6f", sum)
	}
	for name, v := range map[string]float64{
		"completeness":      w.Completeness,
		"indicator_usage":   w.IndicatorUsage,
		"syntax_compliance": w.SyntaxCompliance,
		"latency":           w.Latency,
	} {
		if v < 0 {
			return fmt.Errorf("score weight %s must be non-negative, got %.6f", name, v)
		}
	}
	return nil
}

// Scorer combines validator output and result metadata into a confidence
// score. Score is a deterministic pure function of its inputs.
type Scorer struct {
	weights    Weights
	indicators []string
}

// New creates a scorer. It fails when the weights violate the sum invariant.
func New(weights Weights, indicators []string) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if len(indicators) == 0 {
		indicators = validator.DefaultIndicators()
	}
	return &Scorer{weights: weights, indicators: indicators}, nil
}

// NewDefault creates a scorer with the stock weights and indicator checklist.
func NewDefault() *Scorer {
	s, err := New(DefaultWeights(), nil)
	if err != nil {
		panic(err) // DefaultWeights always validates
	}
	return s
}

// Weights returns the configured weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the component scores and weighted total for one result.
func (s *Scorer) Score(result *models.ProviderResult, report *models.ValidationReport) models.ScoreBreakdown {
	completeness := 1.0
	if report.ErrorCount() > 0 {
		// Gating component: any structural or security ERROR zeroes it.
		completeness = 0.0
	}

	indicatorUsage := validator.IndicatorCoverage(result.Code, s.indicators)

	syntaxCompliance := 1.0 - float64(report.WarningCount())*WarningPenalty
	if syntaxCompliance < 0 {
		syntaxCompliance = 0
	}

	latencyScore := LatencyScore(result.Latency)

	breakdown := models.ScoreBreakdown{
		Completeness:     completeness,
		IndicatorUsage:   indicatorUsage,
		SyntaxCompliance: syntaxCompliance,
		LatencyScore:     latencyScore,
	}
	breakdown.Total = s.weights.Completeness*completeness +
		s.weights.IndicatorUsage*indicatorUsage +
		s.weights.SyntaxCompliance*syntaxCompliance +
		s.weights.Latency*latencyScore
	return breakdown
}

// LatencyScore maps response latency to [0,1], monotonically decreasing, 1.0
// at zero latency.
func LatencyScore(latency time.Duration) float64 {
	if latency <= 0 {
		return 1.0
	}
	return math.Exp(-float64(latency) / float64(LatencyScale))
}

// SortRanked orders results by total score descending; ties prefer lower
// latency, then the lexicographically smaller provider identifier. The
// ordering is fully deterministic regardless of completion order.
func SortRanked(results []models.RankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score.Total != results[j].Score.Total {
			return results[i].Score.Total > results[j].Score.Total
		}
		if results[i].Result.Latency != results[j].Result.Latency {
			return results[i].Result.Latency < results[j].Result.Latency
		}
		return results[i].Result.ProviderID < results[j].Result.ProviderID
	})
}

package backtest

import (
	"context"
	"math"
	"math/rand"
)

const (
	// simBars is the length of the synthetic price series.
	simBars = 500
	// annualization factor for a daily-bar Sharpe ratio.
	annualization = 252
)

// SimEvaluator is a deterministic in-process evaluator: it backtests a
// moving-average crossover over a seeded synthetic price series and scores it
// with a Sharpe-style ratio. It reads the candidate parameters, not the
// strategy code text, so identical parameters always produce identical
// objective values. Safe for concurrent use.
type SimEvaluator struct {
	closes []float64
}

// NewSimEvaluator builds the synthetic series from seed.
func NewSimEvaluator(seed int64) *SimEvaluator {
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 - synthetic market data
	closes := make([]float64, simBars)
	price := 100.0
	for i := 0; i < simBars; i++ {
		drift := 0.0002
		cycle := 0.01 * math.Sin(float64(i)/25)
		noise := rng.NormFloat64() * 0.01
		price *= 1 + drift + cycle + noise
		closes[i] = price
	}
	return &SimEvaluator{closes: closes}
}

// ObjectiveName identifies the metric Evaluate returns.
func (e *SimEvaluator) ObjectiveName() string {
	return "sharpe_ratio"
}

// Evaluate backtests a fast/slow moving-average crossover using the
// fast_ma and slow_ma parameters (defaults 10 and 30).
func (e *SimEvaluator) Evaluate(ctx context.Context, code string, params map[string]float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &EvaluationError{Reason: "cancelled", Err: err}
	}

	fast := intParam(params, "fast_ma", 10)
	slow := intParam(params, "slow_ma", 30)
	if fast < 1 || slow < 2 {
		return 0, &EvaluationError{Reason: "moving-average periods must be positive"}
	}
	if fast >= slow {
		return 0, &EvaluationError{Reason: "fast_ma must be shorter than slow_ma"}
	}
	if slow >= len(e.closes) {
		return 0, &EvaluationError{Reason: "slow_ma longer than price series"}
	}

	fastMA := rollingMean(e.closes, fast)
	slowMA := rollingMean(e.closes, slow)

	var rets []float64
	for i := slow; i < len(e.closes); i++ {
		if fastMA[i-1] > slowMA[i-1] { // long while fast is above slow
			rets = append(rets, e.closes[i]/e.closes[i-1]-1)
		}
	}
	return sharpe(rets), nil
}

func intParam(params map[string]float64, name string, def int) int {
	v, ok := params[name]
	if !ok {
		return def
	}
	return int(math.Round(v))
}

func rollingMean(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

func sharpe(rets []float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	var variance float64
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(annualization)
}

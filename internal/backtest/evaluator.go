package backtest

import (
	"context"
	"fmt"
)

// EvaluationError is the typed failure of one trial evaluation.
type EvaluationError struct {
	Reason string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("evaluation failed: %s", e.Reason)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Evaluator is the backtest/metric collaborator the optimization engine calls
// exactly once per trial. Implementations must respect ctx cancellation.
type Evaluator interface {
	// Evaluate runs strategy code under the given parameter assignment and
	// returns the scalar objective value.
	Evaluate(ctx context.Context, code string, params map[string]float64) (float64, error)
	// ObjectiveName identifies the metric Evaluate returns, e.g. "sharpe_ratio".
	ObjectiveName() string
}

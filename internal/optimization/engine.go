package optimization

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stratforge/stratforge/internal/backtest"
	"github.com/stratforge/stratforge/internal/metrics"
)

// Method selects the search algorithm for a run.
type Method string

const (
	MethodGrid     Method = "grid"
	MethodRandom   Method = "random"
	MethodBayesian Method = "bayesian"
)

// State is the run's position in its lifecycle. pending and running are
// transient; the other four are terminal and double as the termination
// reason.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateConverged State = "converged"
	StateExhausted State = "exhausted"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateConverged, StateExhausted, StateTimedOut, StateFailed:
		return true
	}
	return false
}

// Trial is one evaluation of a parameter assignment. Trials are append-only
// and kept in dispatch (index) order, not completion order.
type Trial struct {
	Index     int        `json:"index"`
	Params    Assignment `json:"params"`
	Value     float64    `json:"value"`
	Failed    bool       `json:"failed,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Run owns the trial history of one optimization. After the engine returns,
// the run is read-only.
type Run struct {
	ID          string    `json:"id"`
	StrategyID  string    `json:"strategy_id"`
	Method      Method    `json:"method"`
	Objective   string    `json:"objective"`
	Space       Space     `json:"space"`
	State       State     `json:"state"`
	Trials      []Trial   `json:"trials"`
	BestIndex   int       `json:"best_index"` // -1 when no successful trial yet
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Err         string    `json:"error,omitempty"`
}

// Best returns the best successful trial so far, or nil.
func (r *Run) Best() *Trial {
	if r.BestIndex < 0 || r.BestIndex >= len(r.Trials) {
		return nil
	}
	return &r.Trials[r.BestIndex]
}

// BestValues walks the history and returns the running best objective value
// after each successful trial. For a maximization objective the sequence is
// non-decreasing by construction.
func (r *Run) BestValues() []float64 {
	var out []float64
	best := math.Inf(-1)
	for _, t := range r.Trials {
		if t.Failed {
			continue
		}
		if t.Value > best {
			best = t.Value
		}
		out = append(out, best)
	}
	return out
}

// OptimizationFailedError surfaces an aborted run. The partial run, with its
// full trial history, travels with the error.
type OptimizationFailedError struct {
	Run *Run
	Err error
}

func (e *OptimizationFailedError) Error() string {
	return fmt.Sprintf("optimization run %s failed after %d trials: %v", e.Run.ID, len(e.Run.Trials), e.Err)
}

func (e *OptimizationFailedError) Unwrap() error {
	return e.Err
}

// Config tunes engine behavior across runs.
type Config struct {
	// ConvergenceEpsilon is the minimum best-value improvement that counts
	// as progress.
	ConvergenceEpsilon float64
	// ConvergenceWindow is how many consecutive no-progress trials converge
	// a run.
	ConvergenceWindow int
	// MaxConsecutiveFailures is how many evaluation failures in a row abort
	// a run.
	MaxConsecutiveFailures int
	// Workers bounds parallel trial evaluation for grid and random search.
	// Bayesian search is always sequential: the surrogate must observe each
	// trial before proposing the next.
	Workers int
	// Seed makes sampling reproducible; 0 seeds from the clock.
	Seed int64
}

// DefaultConfig returns sensible engine defaults.
func DefaultConfig() Config {
	return Config{
		ConvergenceEpsilon:     1e-4,
		ConvergenceWindow:      5,
		MaxConsecutiveFailures: 3,
		Workers:                1,
	}
}

// Engine runs parameter-optimization searches against an evaluation
// collaborator. Runs do not share mutable state, so one engine serves
// concurrent optimizations.
type Engine struct {
	eval    backtest.Evaluator
	cfg     Config
	log     *logrus.Logger
	metrics *metrics.PipelineMetrics
}

// New creates an engine. A nil logger falls back to the logrus default.
func New(eval backtest.Evaluator, cfg Config, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	def := DefaultConfig()
	if cfg.ConvergenceEpsilon <= 0 {
		cfg.ConvergenceEpsilon = def.ConvergenceEpsilon
	}
	if cfg.ConvergenceWindow <= 0 {
		cfg.ConvergenceWindow = def.ConvergenceWindow
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{eval: eval, cfg: cfg, log: log, metrics: metrics.Default}
}

// Optimize searches the parameter space for the assignment maximizing the
// evaluator's objective. It returns the finished run; the error is non-nil
// only for invalid input or when the run aborted on evaluation failures, in
// which case it is an *OptimizationFailedError carrying the partial run.
func (e *Engine) Optimize(ctx context.Context, strategyID, code string, space Space, method Method, maxIterations int, timeout time.Duration) (*Run, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if maxIterations <= 0 {
		return nil, fmt.Errorf("maxIterations must be positive, got %d", maxIterations)
	}

	seed := e.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	search, err := e.newSearcher(method, space, seed)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:         uuid.New().String(),
		StrategyID: strategyID,
		Method:     method,
		Objective:  e.eval.ObjectiveName(),
		Space:      space,
		State:      StatePending,
		BestIndex:  -1,
		StartedAt:  time.Now().UTC(),
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	workers := e.cfg.Workers
	if method == MethodBayesian {
		workers = 1
	}

	bestVal := math.Inf(-1)
	noImprove := 0
	consecutiveFailures := 0
	index := 0

	for !run.State.Terminal() {
		if ctx.Err() != nil {
			e.finalize(run, StateTimedOut)
			break
		}

		batch := make([]Assignment, 0, workers)
		for len(batch) < workers && index+len(batch) < maxIterations {
			a, ok := search.Next()
			if !ok {
				break
			}
			batch = append(batch, a)
		}
		if len(batch) == 0 {
			// Search space or iteration budget exhausted.
			e.finalize(run, StateExhausted)
			break
		}

		if run.State == StatePending {
			run.State = StateRunning // first trial dispatch
		}

		trials, timedOut := e.evaluateBatch(ctx, code, method, batch)
		for _, t := range trials {
			t.Index = index
			run.Trials = append(run.Trials, t)
			search.Observe(t)
			index++

			if t.Failed {
				consecutiveFailures++
				if consecutiveFailures > e.cfg.MaxConsecutiveFailures {
					cause := fmt.Errorf("%d consecutive evaluation failures, last: %s", consecutiveFailures, t.Error)
					run.Err = cause.Error()
					e.finalize(run, StateFailed)
					return run, &OptimizationFailedError{Run: run, Err: cause}
				}
				continue
			}

			consecutiveFailures = 0
			if t.Value > bestVal+e.cfg.ConvergenceEpsilon {
				noImprove = 0
			} else {
				noImprove++
			}
			if t.Value > bestVal {
				bestVal = t.Value
				run.BestIndex = t.Index
			}
			if noImprove >= e.cfg.ConvergenceWindow {
				e.finalize(run, StateConverged)
				break
			}
		}
		if run.State.Terminal() {
			break
		}
		if timedOut {
			e.finalize(run, StateTimedOut)
			break
		}
		if index >= maxIterations {
			e.finalize(run, StateExhausted)
			break
		}
	}

	return run, nil
}

func (e *Engine) newSearcher(method Method, space Space, seed int64) (searcher, error) {
	switch method {
	case MethodGrid:
		return newGridSearcher(space), nil
	case MethodRandom:
		return newRandomSearcher(space, seed), nil
	case MethodBayesian:
		return newBayesianSearcher(space, seed), nil
	default:
		return nil, fmt.Errorf("unknown optimization method %q", method)
	}
}

// evaluateBatch evaluates the batch on a bounded worker group, one evaluator
// call per trial. The returned trials are in dispatch order with indices
// assigned by the caller. When the context expires mid-batch the cancelled
// in-flight trials are dropped, completed trials are kept, and timedOut is
// true.
func (e *Engine) evaluateBatch(ctx context.Context, code string, method Method, batch []Assignment) ([]Trial, bool) {
	trials := make([]Trial, len(batch))
	cancelled := make([]bool, len(batch))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(len(batch))
	for i, a := range batch {
		i, a := i, a
		g.Go(func() error {
			start := time.Now()
			value, err := e.eval.Evaluate(ctx, code, a)
			t := Trial{
				Params:    a,
				Timestamp: time.Now().UTC(),
			}
			if err != nil {
				t.Failed = true
				t.Error = err.Error()
				if ctx.Err() != nil {
					mu.Lock()
					cancelled[i] = true
					mu.Unlock()
				}
			} else {
				t.Value = value
			}
			e.metrics.RecordTrial(string(method), t.Failed, time.Since(start).Seconds())
			mu.Lock()
			trials[i] = t
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	timedOut := false
	kept := trials[:0]
	for i := range trials {
		if cancelled[i] {
			timedOut = true
			continue
		}
		kept = append(kept, trials[i])
	}
	return kept, timedOut
}

func (e *Engine) finalize(run *Run, state State) {
	run.State = state
	run.CompletedAt = time.Now().UTC()
	e.metrics.RecordRun(string(run.Method), string(state))

	fields := logrus.Fields{
		"run_id":   run.ID,
		"method":   run.Method,
		"state":    state,
		"trials":   len(run.Trials),
		"duration": run.CompletedAt.Sub(run.StartedAt),
	}
	if best := run.Best(); best != nil {
		fields["best_value"] = best.Value
	}
	e.log.WithFields(fields).Info("Optimization run finished")
}

package optimization

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// Parameter is one tunable strategy parameter: either a discrete candidate
// set or a continuous bounded range.
type Parameter struct {
	Name string `json:"name"`
	// Values holds discrete candidates. When non-empty, Min/Max/Steps are ignored.
	Values []float64 `json:"values,omitempty"`
	// Min and Max bound a continuous range.
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
	// Steps is the discretization count used by grid search over a
	// continuous range (default 10).
	Steps int `json:"steps,omitempty"`
}

// IsDiscrete reports whether the parameter has an explicit candidate set.
func (p Parameter) IsDiscrete() bool {
	return len(p.Values) > 0
}

func (p Parameter) validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if p.IsDiscrete() {
		return nil
	}
	if p.Max <= p.Min {
		return fmt.Errorf("parameter %s: range [%g,%g] is empty", p.Name, p.Min, p.Max)
	}
	return nil
}

// candidates returns the grid candidates for the parameter: the discrete set
// as-is, or the continuous range discretized into Steps points.
func (p Parameter) candidates() []float64 {
	if p.IsDiscrete() {
		return p.Values
	}
	steps := p.Steps
	if steps < 2 {
		steps = 10
	}
	out := make([]float64, steps)
	width := (p.Max - p.Min) / float64(steps-1)
	for i := 0; i < steps; i++ {
		out[i] = p.Min + float64(i)*width
	}
	return out
}

// sample draws one uniform value: over the candidate set when discrete,
// over the range when continuous.
func (p Parameter) sample(rng *rand.Rand) float64 {
	if p.IsDiscrete() {
		return p.Values[rng.Intn(len(p.Values))]
	}
	return p.Min + rng.Float64()*(p.Max-p.Min)
}

// Space is an ordered parameter space. Declaration order is significant: grid
// enumeration, deterministic truncation, and surrogate features all follow it.
type Space struct {
	Params []Parameter `json:"params"`
}

// NewSpace builds a space from parameters in declaration order.
func NewSpace(params ...Parameter) Space {
	return Space{Params: params}
}

// Validate checks that every parameter has at least one candidate value or a
// non-empty range, and that names are unique.
func (s Space) Validate() error {
	if len(s.Params) == 0 {
		return fmt.Errorf("parameter space cannot be empty")
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if err := p.validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("parameter %s declared twice", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// GridSize is the number of assignments a full grid enumeration visits.
func (s Space) GridSize() int {
	size := 1
	for _, p := range s.Params {
		size *= len(p.candidates())
	}
	return size
}

// Finite reports whether every parameter is discrete, i.e. the space has a
// finite number of exact assignments.
func (s Space) Finite() bool {
	for _, p := range s.Params {
		if !p.IsDiscrete() {
			return false
		}
	}
	return true
}

// Assignment maps parameter names to concrete values.
type Assignment map[string]float64

// Key renders an assignment as a canonical string in declaration order, used
// to detect exact re-evaluations.
func (s Space) Key(a Assignment) string {
	parts := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		parts = append(parts, p.Name+"="+strconv.FormatFloat(a[p.Name], 'g', -1, 64))
	}
	return strings.Join(parts, ",")
}

// EnumerateGrid returns the Cartesian product of all candidate values in
// declaration order, with later-declared parameters varying fastest. The
// enumeration is fully deterministic so truncation by an iteration budget is
// deterministic too.
func (s Space) EnumerateGrid() []Assignment {
	candidateSets := make([][]float64, len(s.Params))
	for i, p := range s.Params {
		candidateSets[i] = p.candidates()
	}

	total := s.GridSize()
	assignments := make([]Assignment, 0, total)
	indices := make([]int, len(s.Params))
	for n := 0; n < total; n++ {
		a := make(Assignment, len(s.Params))
		for i, p := range s.Params {
			a[p.Name] = candidateSets[i][indices[i]]
		}
		assignments = append(assignments, a)

		// Odometer increment, last parameter fastest.
		for i := len(indices) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(candidateSets[i]) {
				break
			}
			indices[i] = 0
		}
	}
	return assignments
}

// SampleRandom draws one independent uniform assignment.
func (s Space) SampleRandom(rng *rand.Rand) Assignment {
	a := make(Assignment, len(s.Params))
	for _, p := range s.Params {
		a[p.Name] = p.sample(rng)
	}
	return a
}

// features converts an assignment to a normalized feature vector (one entry
// per parameter in declaration order, plus a bias term) for the surrogate.
func (s Space) features(a Assignment) []float64 {
	x := make([]float64, len(s.Params)+1)
	for i, p := range s.Params {
		lo, hi := p.Min, p.Max
		if p.IsDiscrete() {
			lo, hi = minMax(p.Values)
		}
		if hi > lo {
			x[i] = (a[p.Name] - lo) / (hi - lo)
		}
	}
	x[len(s.Params)] = 1.0
	return x
}

// Names returns the parameter names in declaration order.
func (s Space) Names() []string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return names
}

func minMax(values []float64) (float64, float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[0], sorted[len(sorted)-1]
}

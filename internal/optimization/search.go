package optimization

import (
	"math/rand"
)

// searcher proposes the next parameter assignment for a run. Observe feeds
// completed trials back so adaptive methods can learn; grid and random ignore
// it.
type searcher interface {
	// Next returns the next assignment to try, or false when the method has
	// nothing left to propose.
	Next() (Assignment, bool)
	// Observe records a completed trial.
	Observe(t Trial)
}

// gridSearcher walks the pre-enumerated Cartesian product in declaration
// order. Truncation by the iteration budget happens naturally: the engine
// simply stops asking.
type gridSearcher struct {
	assignments []Assignment
	pos         int
}

func newGridSearcher(space Space) *gridSearcher {
	return &gridSearcher{assignments: space.EnumerateGrid()}
}

func (g *gridSearcher) Next() (Assignment, bool) {
	if g.pos >= len(g.assignments) {
		return nil, false
	}
	a := g.assignments[g.pos]
	g.pos++
	return a, true
}

func (g *gridSearcher) Observe(Trial) {}

// randomSearcher draws independent uniform samples; no replacement guarantee.
type randomSearcher struct {
	space Space
	rng   *rand.Rand
}

func newRandomSearcher(space Space, seed int64) *randomSearcher {
	return &randomSearcher{
		space: space,
		rng:   rand.New(rand.NewSource(seed)), // #nosec G404 - search sampling
	}
}

func (r *randomSearcher) Next() (Assignment, bool) {
	return r.space.SampleRandom(r.rng), true
}

func (r *randomSearcher) Observe(Trial) {}

package optimization

import (
	"math/rand"
)

const (
	// bayesSeedTrials is how many initial trials are sampled uniformly to
	// seed the surrogate before the acquisition step takes over.
	bayesSeedTrials = 4
	// bayesExploreP is the epsilon-greedy exploration probability.
	bayesExploreP = 0.10
	// bayesCandidatePool is how many candidates the acquisition step draws
	// and ranks by surrogate score per proposal.
	bayesCandidatePool = 32
	// bayesMaxDrawAttempts bounds the search for an unseen assignment.
	bayesMaxDrawAttempts = 256
)

// bayesianSearcher keeps a running surrogate estimate of the objective
// surface and proposes the unseen assignment the surrogate likes best,
// with epsilon-greedy exploration so it does not get stuck. It never
// re-proposes an exact assignment it has already seen, unless the space is
// continuous and the draw collides by chance.
type bayesianSearcher struct {
	space    Space
	sur      *surrogate
	rng      *rand.Rand
	seen     map[string]bool
	observed int
}

func newBayesianSearcher(space Space, seed int64) *bayesianSearcher {
	return &bayesianSearcher{
		space: space,
		sur:   newSurrogate(len(space.Params) + 1),
		rng:   rand.New(rand.NewSource(seed)), // #nosec G404 - search sampling
		seen:  make(map[string]bool),
	}
}

func (b *bayesianSearcher) Next() (Assignment, bool) {
	if b.observed < bayesSeedTrials || b.rng.Float64() < bayesExploreP {
		return b.drawUnseen()
	}

	// Acquisition: draw a candidate pool and keep the unseen assignment the
	// surrogate scores highest.
	var best Assignment
	bestScore := 0.0
	for i := 0; i < bayesCandidatePool; i++ {
		a := b.space.SampleRandom(b.rng)
		if b.seen[b.space.Key(a)] {
			continue
		}
		score := b.sur.score(b.space.features(a))
		if best == nil || score > bestScore {
			best = a
			bestScore = score
		}
	}
	if best != nil {
		return best, true
	}
	return b.drawUnseen()
}

func (b *bayesianSearcher) Observe(t Trial) {
	b.seen[b.space.Key(t.Params)] = true
	b.observed++
	if !t.Failed {
		b.sur.update(b.space.features(t.Params), t.Value)
	}
}

// drawUnseen samples until it finds an assignment not yet evaluated. A finite
// space that has been fully visited exhausts the method.
func (b *bayesianSearcher) drawUnseen() (Assignment, bool) {
	if b.space.Finite() && len(b.seen) >= b.space.GridSize() {
		return nil, false
	}
	for i := 0; i < bayesMaxDrawAttempts; i++ {
		a := b.space.SampleRandom(b.rng)
		if !b.seen[b.space.Key(a)] {
			return a, true
		}
	}
	// Small finite spaces can defeat random draws; fall back to scanning the
	// grid for anything unseen.
	for _, a := range b.space.EnumerateGrid() {
		if !b.seen[b.space.Key(a)] {
			return a, true
		}
	}
	return nil, false
}

// surrogate is an online ridge-regularized linear model over normalized
// parameter features, trained by gradient steps with a Huber-like clamp.
type surrogate struct {
	w  []float64
	lr float64
	l2 float64
}

func newSurrogate(dim int) *surrogate {
	return &surrogate{
		w:  make([]float64, dim),
		lr: 0.02,
		l2: 1e-4,
	}
}

func (m *surrogate) score(x []float64) float64 {
	var s float64
	for i := 0; i < len(m.w) && i < len(x); i++ {
		s += m.w[i] * x[i]
	}
	return s
}

func (m *surrogate) update(x []float64, y float64) {
	err := m.score(x) - y
	// clamp to avoid huge gradients
	if err > 5 {
		err = 5
	}
	if err < -5 {
		err = -5
	}
	for i := 0; i < len(m.w) && i < len(x); i++ {
		grad := err*x[i] + m.l2*m.w[i]
		m.w[i] -= m.lr * grad
	}
}

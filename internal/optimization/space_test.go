package optimization

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpace_Validate(t *testing.T) {
	assert.Error(t, NewSpace().Validate())

	assert.Error(t, NewSpace(Parameter{Name: ""}).Validate())

	// Empty continuous range.
	assert.Error(t, NewSpace(Parameter{Name: "x", Min: 5, Max: 5}).Validate())

	// Duplicate name.
	assert.Error(t, NewSpace(
		Parameter{Name: "x", Values: []float64{1}},
		Parameter{Name: "x", Values: []float64{2}},
	).Validate())

	assert.NoError(t, NewSpace(
		Parameter{Name: "fast", Values: []float64{5, 10}},
		Parameter{Name: "slow", Min: 20, Max: 60, Steps: 5},
	).Validate())
}

func TestSpace_GridSizeAndFinite(t *testing.T) {
	s := NewSpace(
		Parameter{Name: "a", Values: []float64{1, 2, 3}},
		Parameter{Name: "b", Values: []float64{10, 20}},
	)
	assert.Equal(t, 6, s.GridSize())
	assert.True(t, s.Finite())

	cont := NewSpace(Parameter{Name: "x", Min: 0, Max: 1, Steps: 4})
	assert.Equal(t, 4, cont.GridSize())
	assert.False(t, cont.Finite())
}

func TestSpace_EnumerateGridOrder(t *testing.T) {
	s := NewSpace(
		Parameter{Name: "a", Values: []float64{1, 2}},
		Parameter{Name: "b", Values: []float64{10, 20, 30}},
	)

	grid := s.EnumerateGrid()
	require.Len(t, grid, 6)

	// Later-declared parameter varies fastest.
	expected := []Assignment{
		{"a": 1, "b": 10},
		{"a": 1, "b": 20},
		{"a": 1, "b": 30},
		{"a": 2, "b": 10},
		{"a": 2, "b": 20},
		{"a": 2, "b": 30},
	}
	for i, want := range expected {
		assert.Equal(t, want, grid[i], "position %d", i)
	}
}

func TestSpace_EnumerateGridDiscretizesContinuous(t *testing.T) {
	s := NewSpace(Parameter{Name: "x", Min: 0, Max: 10, Steps: 5})

	grid := s.EnumerateGrid()
	require.Len(t, grid, 5)
	assert.Equal(t, 0.0, grid[0]["x"])
	assert.Equal(t, 2.5, grid[1]["x"])
	assert.Equal(t, 10.0, grid[4]["x"])
}

func TestSpace_Key(t *testing.T) {
	s := NewSpace(
		Parameter{Name: "fast", Values: []float64{5, 10}},
		Parameter{Name: "slow", Values: []float64{20, 30}},
	)

	a := Assignment{"slow": 30, "fast": 5}
	b := Assignment{"fast": 5, "slow": 30}

	// Declaration order, not map order.
	assert.Equal(t, "fast=5,slow=30", s.Key(a))
	assert.Equal(t, s.Key(a), s.Key(b))
	assert.NotEqual(t, s.Key(a), s.Key(Assignment{"fast": 10, "slow": 30}))
}

func TestSpace_SampleRandomStaysInBounds(t *testing.T) {
	s := NewSpace(
		Parameter{Name: "fast", Values: []float64{5, 10, 15}},
		Parameter{Name: "slow", Min: 20, Max: 60},
	)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 100; i++ {
		a := s.SampleRandom(rng)
		assert.Contains(t, []float64{5, 10, 15}, a["fast"])
		assert.GreaterOrEqual(t, a["slow"], 20.0)
		assert.Less(t, a["slow"], 60.0)
	}
}

func TestSpace_Features(t *testing.T) {
	s := NewSpace(
		Parameter{Name: "fast", Values: []float64{5, 10, 15}},
		Parameter{Name: "slow", Min: 20, Max: 60},
	)

	x := s.features(Assignment{"fast": 10, "slow": 40})
	require.Len(t, x, 3)
	assert.InDelta(t, 0.5, x[0], 1e-9) // midpoint of [5,15]
	assert.InDelta(t, 0.5, x[1], 1e-9) // midpoint of [20,60]
	assert.Equal(t, 1.0, x[2])         // bias term
}

package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformVectors(t *testing.T) {
	v := NewRNG(4711).UniformVectors(8, 32)

	require.Len(t, v, 8)
	require.Len(t, v[0], 32)
	for _, vec := range v {
		for _, x := range vec {
			assert.GreaterOrEqual(t, x, float32(0))
			assert.Less(t, x, float32(1))
		}
	}
}

func TestUnitVectors(t *testing.T) {
	v := NewRNG(4711).UnitVectors(8, 32)

	require.Len(t, v, 8)
	for _, vec := range v {
		require.Len(t, vec, 32)
		var norm float32
		for _, x := range vec {
			norm += x * x
		}
		assert.InDelta(t, 1.0, norm, 1e-5)
	}
}

func TestClusteredVectors(t *testing.T) {
	v := NewRNG(4711).ClusteredVectors(100, 32, 5, 0.1)

	require.Len(t, v, 100)
	require.Len(t, v[0], 32)
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	first := rng.UniformVectors(1, 10)

	rng.Reset()
	assert.Equal(t, first, rng.UniformVectors(1, 10), "Reset should replay the stream")
}

func TestBruteForceSearch(t *testing.T) {
	vectors := [][]float32{
		{0, 0},
		{1, 0},
		{0, 2},
		{3, 3},
	}

	results := BruteForceSearch(vectors, []float32{0, 0}, 2)

	require.Len(t, results, 2)
	assert.Equal(t, uint32(0), results[0].Slot)
	assert.Equal(t, uint32(1), results[1].Slot)
}

func TestComputeRecall(t *testing.T) {
	truth := []SearchResult{{Slot: 1}, {Slot: 2}, {Slot: 3}, {Slot: 4}}
	approx := []SearchResult{{Slot: 1}, {Slot: 2}, {Slot: 9}, {Slot: 4}}

	assert.InDelta(t, 0.75, ComputeRecall(truth, approx), 1e-9)
	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.0, ComputeRecall(truth, nil))
}

package sgrid_test

import (
	"testing"

	"github.com/gomlx/sgstream/sgrid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegularGrid(t *testing.T) {
	// Number of points of regular sparse grids (without boundary).
	for _, tc := range []struct{ dims, level, size int }{
		{1, 1, 1}, {1, 3, 7}, {2, 2, 5}, {2, 3, 17}, {3, 3, 31},
	} {
		grid, err := sgrid.RegularGrid(tc.dims, tc.level)
		require.NoError(t, err)
		assert.Equal(t, tc.size, grid.Size(), "dims=%d level=%d", tc.dims, tc.level)
		assert.Equal(t, tc.dims, grid.Dims())
	}
	_, err := sgrid.RegularGrid(0, 2)
	require.Error(t, err)
}

func TestStorage(t *testing.T) {
	grid := sgrid.NewStorage(2)
	position, err := grid.Insert([]int{1, 2}, []int{1, 3})
	require.NoError(t, err)
	assert.Equal(t, 0, position)
	position, err = grid.Insert([]int{1, 2}, []int{1, 3})
	require.NoError(t, err)
	assert.Equal(t, 0, position, "duplicate insert")
	assert.Equal(t, 1, grid.Size())
	level, index := grid.Get(0, 1)
	assert.Equal(t, 2, level)
	assert.Equal(t, 3, index)

	_, err = grid.Insert([]int{2, 2}, []int{2, 1})
	require.Error(t, err, "even index")
	_, err = grid.Insert([]int{1}, []int{1})
	require.Error(t, err, "wrong dimension")

	added, err := grid.Refine(0)
	require.NoError(t, err)
	assert.Equal(t, 4, added)
	assert.True(t, grid.Contains([]int{2, 2}, []int{1, 3}))
	assert.True(t, grid.Contains([]int{1, 3}, []int{1, 7}))
}

func TestModLinear(t *testing.T) {
	assert.Equal(t, 1.0, sgrid.ModLinear(1, 1, 0.3))
	// Left boundary: 2 - 4x.
	assert.InDelta(t, 1.6, sgrid.ModLinear(2, 1, 0.1), 1e-12)
	assert.Equal(t, 0.0, sgrid.ModLinear(2, 1, 0.7))
	// Right boundary: 4x - 3 + 1.
	assert.InDelta(t, 1.6, sgrid.ModLinear(2, 3, 0.9), 1e-12)
	// Interior hat: 1 - |8x - 3|.
	assert.InDelta(t, 1.0, sgrid.ModLinear(3, 3, 0.375), 1e-12)
	assert.InDelta(t, 0.6, sgrid.ModLinear(3, 3, 0.425), 1e-12)
	assert.Equal(t, 0.0, sgrid.ModLinear(3, 3, 0.9))
}

func TestMultReference(t *testing.T) {
	grid, err := sgrid.RegularGrid(2, 2)
	require.NoError(t, err)
	dataset, err := sgrid.NewDataMatrix(2, 2, []float64{0.1, 0.5, 0.8, 0.25})
	require.NoError(t, err)
	alpha := make([]float64, grid.Size())
	alpha[0] = 1
	result, err := sgrid.Mult(grid, dataset, alpha)
	require.NoError(t, err)
	// The first point is the level 1 constant.
	assert.Equal(t, []float64{1, 1}, result)

	// <MultTranspose(source), alpha> == <source, Mult(alpha)>.
	for ii := range alpha {
		alpha[ii] = float64(ii + 1)
	}
	source := []float64{0.5, -2}
	forward, err := sgrid.Mult(grid, dataset, alpha)
	require.NoError(t, err)
	backward, err := sgrid.MultTranspose(grid, dataset, source)
	require.NoError(t, err)
	var lhs, rhs float64
	for ii := range alpha {
		lhs += alpha[ii] * backward[ii]
	}
	for jj := range source {
		rhs += source[jj] * forward[jj]
	}
	assert.InDelta(t, lhs, rhs, 1e-12)

	_, err = sgrid.Mult(grid, dataset, alpha[:1])
	require.Error(t, err)
	_, err = sgrid.NewDataMatrix(3, 2, []float64{1})
	require.Error(t, err)
}

package streaming

import (
	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/sgrid"
)

// gridTables holds the grid in the form evaluated by the kernels, one grid point after the other.
//
// For each grid point and dimension, with level l and index i, the basis function is
// max(offset + (level*x - index | mask), 0), where "| mask" sets the sign bit:
//
//   - l == 1:       constant 1: level=0, index=0, mask=0, offset=1.
//   - i == 1:       max(2 - 2^l*x, 0): level=-2^l, index=0, mask=0, offset=2.
//   - i == 2^l-1:   max(2^l*x - i + 1, 0): level=2^l, index=i, mask=0, offset=1.
//   - otherwise:    max(1 - |2^l*x - i|, 0): level=2^l, index=i, mask=-0.0, offset=1.
//
// Padding grid points have the constant basis function, and are multiplied by zero coefficients.
type gridTables[T dtypes.Float] struct {
	level, index, mask, offset []T
}

func newGridTables[T dtypes.Float](grid *sgrid.Storage, paddedSize int) *gridTables[T] {
	dims := grid.Dims()
	n := paddedSize * dims
	t := &gridTables[T]{
		level:  make([]T, n),
		index:  make([]T, n),
		mask:   make([]T, n),
		offset: make([]T, n),
	}
	signMask := dtypes.SignMask[T]()
	for point := range paddedSize {
		for d := range dims {
			entry := point*dims + d
			t.offset[entry] = 1
			if point >= grid.Size() {
				continue
			}
			l, i := grid.Get(point, d)
			scale := T(int(1) << l)
			switch {
			case l == 1:
			case i == 1:
				t.level[entry] = -scale
				t.offset[entry] = 2
			case i == 1<<l-1:
				t.level[entry] = scale
				t.index[entry] = T(i)
			default:
				t.level[entry] = scale
				t.index[entry] = T(i)
				t.mask[entry] = signMask
			}
		}
	}
	return t
}

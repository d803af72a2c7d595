package sgrid

import (
	"github.com/pkg/errors"
)

// ModLinear evaluates the one dimensional modified linear basis function of the given level and
// index at x in [0, 1].
func ModLinear(level, index int, x float64) float64 {
	if level == 1 {
		return 1
	}
	scale := float64(int(1) << level)
	switch index {
	case 1:
		return max(2-scale*x, 0)
	case 1<<level - 1:
		return max(scale*x-float64(index)+1, 0)
	}
	v := scale*x - float64(index)
	if v < 0 {
		v = -v
	}
	return max(1-v, 0)
}

func basis(grid *Storage, point int, x []float64) float64 {
	value := 1.0
	for d, xd := range x {
		level, index := grid.Get(point, d)
		value *= ModLinear(level, index, xd)
		if value == 0 {
			break
		}
	}
	return value
}

func checkDims(grid *Storage, dataset *DataMatrix) error {
	if grid.Dims() != dataset.Cols() {
		return errors.Errorf("grid has %d dimensions but dataset has %d columns", grid.Dims(), dataset.Cols())
	}
	return nil
}

// Mult evaluates the sparse grid function with coefficients alpha on every data point:
// result[j] = sum_i alpha[i] * phi_i(x_j).
func Mult(grid *Storage, dataset *DataMatrix, alpha []float64) ([]float64, error) {
	if err := checkDims(grid, dataset); err != nil {
		return nil, errors.WithMessage(err, "sgrid.Mult")
	}
	if len(alpha) != grid.Size() {
		return nil, errors.Errorf("sgrid.Mult: alpha has %d values for %d grid points", len(alpha), grid.Size())
	}
	result := make([]float64, dataset.Rows())
	for j := range result {
		x := dataset.Row(j)
		var sum float64
		for i, a := range alpha {
			sum += a * basis(grid, i, x)
		}
		result[j] = sum
	}
	return result, nil
}

// MultTranspose computes result[i] = sum_j source[j] * phi_i(x_j).
func MultTranspose(grid *Storage, dataset *DataMatrix, source []float64) ([]float64, error) {
	if err := checkDims(grid, dataset); err != nil {
		return nil, errors.WithMessage(err, "sgrid.MultTranspose")
	}
	if len(source) != dataset.Rows() {
		return nil, errors.Errorf("sgrid.MultTranspose: source has %d values for %d data points", len(source), dataset.Rows())
	}
	result := make([]float64, grid.Size())
	for i := range result {
		var sum float64
		for j, s := range source {
			sum += s * basis(grid, i, dataset.Row(j))
		}
		result[i] = sum
	}
	return result, nil
}

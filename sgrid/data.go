package sgrid

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// DataMatrix is a row-major matrix of float64: one data point per row.
type DataMatrix struct {
	rows, cols int
	data       []float64
}

// NewDataMatrix wraps data (not copied) as a rows x cols matrix.
func NewDataMatrix(rows, cols int, data []float64) (*DataMatrix, error) {
	if rows < 0 || cols <= 0 || len(data) != rows*cols {
		return nil, errors.Errorf("sgrid.NewDataMatrix: %d values can't be shaped as %d x %d", len(data), rows, cols)
	}
	return &DataMatrix{rows: rows, cols: cols, data: data}, nil
}

// RandomDataMatrix returns a matrix of uniformly distributed points in [0, 1)^cols, generated
// deterministically from seed.
func RandomDataMatrix(rows, cols int, seed uint64) *DataMatrix {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]float64, rows*cols)
	for ii := range data {
		data[ii] = rng.Float64()
	}
	return &DataMatrix{rows: rows, cols: cols, data: data}
}

// Rows returns the number of data points.
func (m *DataMatrix) Rows() int { return m.rows }

// Cols returns the dimension of the data points.
func (m *DataMatrix) Cols() int { return m.cols }

// At returns the value of row, col.
func (m *DataMatrix) At(row, col int) float64 {
	return m.data[row*m.cols+col]
}

// Row returns the slice holding a row. It is not a copy.
func (m *DataMatrix) Row(row int) []float64 {
	return m.data[row*m.cols : (row+1)*m.cols]
}

// Data returns the row-major backing slice. It is not a copy.
func (m *DataMatrix) Data() []float64 {
	return m.data
}

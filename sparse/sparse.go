// Package sparse provides coordinate-format (COO) sparse matrix values.
//
// The factor graph core assembles whitened residual Jacobians as parallel
// row/column/value triples; duplicate (row, col) pairs are summed, following
// standard coordinate-format semantics. Only the operations the nonlinear
// solvers need are implemented: matrix-vector products with the matrix and
// its transpose, column scaling sums, and dense conversion for small systems
// and tests.
package sparse

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Coordinates holds the (row, col) layout of a sparse matrix block,
// separately from its values. Layouts are computed once at graph
// construction and reused across solver iterations.
type Coordinates struct {
	Rows []int
	Cols []int
}

// Len returns the number of coordinate pairs.
func (c Coordinates) Len() int {
	return len(c.Rows)
}

// Append extends c with the pairs from other.
func (c *Coordinates) Append(other Coordinates) {
	c.Rows = append(c.Rows, other.Rows...)
	c.Cols = append(c.Cols, other.Cols...)
}

// Matrix is a sparse matrix in coordinate format. Values align one-to-one
// with the coordinate pairs; duplicates are summed implicitly by every
// operation.
type Matrix struct {
	Coords  Coordinates
	Values  []float64
	NumRows int
	NumCols int
}

// NewMatrix builds a COO matrix, validating that values align with the
// coordinate layout.
func NewMatrix(coords Coordinates, values []float64, numRows, numCols int) (*Matrix, error) {
	if len(coords.Rows) != len(coords.Cols) {
		return nil, fmt.Errorf("sparse: row/col length mismatch: %d vs %d", len(coords.Rows), len(coords.Cols))
	}
	if len(values) != coords.Len() {
		return nil, fmt.Errorf("sparse: %d values for %d coordinates", len(values), coords.Len())
	}
	return &Matrix{
		Coords:  coords,
		Values:  values,
		NumRows: numRows,
		NumCols: numCols,
	}, nil
}

// NNZ returns the number of stored entries, counting duplicates.
func (m *Matrix) NNZ() int {
	return len(m.Values)
}

// MulVec computes dst = A*x. dst must have NumRows elements and x NumCols.
func (m *Matrix) MulVec(dst, x []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for k, v := range m.Values {
		dst[m.Coords.Rows[k]] += v * x[m.Coords.Cols[k]]
	}
}

// MulVecT computes dst = Aᵀ*x. dst must have NumCols elements and x NumRows.
func (m *Matrix) MulVecT(dst, x []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for k, v := range m.Values {
		dst[m.Coords.Cols[k]] += v * x[m.Coords.Rows[k]]
	}
}

// ColumnSquaredSums accumulates the squared values per column into dst,
// the diagonal of AᵀA. Used for Jacobi preconditioning of the damped
// normal equations.
func (m *Matrix) ColumnSquaredSums(dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for k, v := range m.Values {
		dst[m.Coords.Cols[k]] += v * v
	}
}

// Dense expands the matrix to a dense gonum matrix, summing duplicate
// coordinate pairs. Intended for small systems and tests.
func (m *Matrix) Dense() *mat.Dense {
	d := mat.NewDense(m.NumRows, m.NumCols, nil)
	for k, v := range m.Values {
		r, c := m.Coords.Rows[k], m.Coords.Cols[k]
		d.Set(r, c, d.At(r, c)+v)
	}
	return d
}

package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/factorgo/geometry"
	"github.com/hupe1980/factorgo/graph"
	"github.com/hupe1980/factorgo/noise"
)

// mixedFixture builds a graph with two stack signatures: scalar priors
// and scalar between factors.
func mixedFixture(t *testing.T) ([]graph.Factor, []*geometry.VectorVariable, map[graph.Variable][]float64) {
	t.Helper()

	vars := []*geometry.VectorVariable{
		geometry.NewVectorVariable(1),
		geometry.NewVectorVariable(1),
		geometry.NewVectorVariable(1),
	}

	unit := noise.NewUnit(1)
	tight, err := noise.NewDiagonal([]float64{0.1})
	require.NoError(t, err)

	p0, err := geometry.NewVectorPrior(vars[0], []float64{0}, tight)
	require.NoError(t, err)
	b01, err := geometry.NewVectorBetween(vars[0], vars[1], []float64{1}, unit)
	require.NoError(t, err)
	b12, err := geometry.NewVectorBetween(vars[1], vars[2], []float64{2}, unit)
	require.NoError(t, err)
	p2, err := geometry.NewVectorPrior(vars[2], []float64{3.5}, unit)
	require.NoError(t, err)

	factors := []graph.Factor{p0, b01, b12, p2}
	initial := map[graph.Variable][]float64{
		vars[0]: {0.2},
		vars[1]: {0.9},
		vars[2]: {3.4},
	}
	return factors, vars, initial
}

func newAssignments(t *testing.T, g *graph.Graph, initial map[graph.Variable][]float64) *graph.Assignments {
	t.Helper()
	a := graph.NewAssignments(g.Metadata())
	for v, value := range initial {
		require.NoError(t, a.Set(v, value))
	}
	return a
}

func TestNewGraph(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		_, err := graph.New(nil)
		assert.ErrorIs(t, err, graph.ErrEmptyGraph)
	})

	t.Run("StacksBySignature", func(t *testing.T) {
		factors, _, _ := mixedFixture(t)
		g, err := graph.New(factors)
		require.NoError(t, err)

		assert.Equal(t, 2, g.NumStacks())
		assert.Equal(t, 4, g.ResidualDim())
		assert.Equal(t, 3, g.Metadata().Dim())
		assert.Equal(t, 3, g.LocalMetadata().Dim())
	})
}

func TestComputeCost(t *testing.T) {
	factors, _, initial := mixedFixture(t)
	g, err := graph.New(factors)
	require.NoError(t, err)
	a := newAssignments(t, g, initial)

	cost, residual := g.ComputeCost(a)
	require.Len(t, residual, g.ResidualDim())

	var want float64
	for _, r := range residual {
		want += r * r
	}
	assert.InDelta(t, want, cost, 1e-12)
	assert.Greater(t, cost, 0.0)
}

// TestSparseAssemblyMatchesDense validates coordinate/value alignment by
// comparing the normal-equations products of the sparse Jacobian with a
// per-factor dense accumulation, which is independent of row ordering.
func TestSparseAssemblyMatchesDense(t *testing.T) {
	factors, _, initial := mixedFixture(t)
	g, err := graph.New(factors)
	require.NoError(t, err)
	a := newAssignments(t, g, initial)

	sp := g.WhitenedJacobian(a)
	assert.Equal(t, g.ResidualDim(), sp.NumRows)
	assert.Equal(t, g.LocalMetadata().Dim(), sp.NumCols)

	dense := sp.Dense()
	var ata mat.Dense
	ata.Mul(dense.T(), dense)

	// Accumulate AᵀA factor by factor from individually whitened
	// Jacobians scattered through the local layout.
	n := g.LocalMetadata().Dim()
	want := mat.NewDense(n, n, nil)
	for _, f := range factors {
		operands := make([][]float64, len(f.Variables()))
		jacs := make([]*mat.Dense, len(f.Variables()))
		cols := make([]int, len(f.Variables()))
		for i, v := range f.Variables() {
			got, err := a.Get(v)
			require.NoError(t, err)
			operands[i] = got
			jacs[i] = mat.NewDense(f.ResidualDim(), v.LocalDim(), nil)
			off, ok := g.LocalMetadata().Offset(v)
			require.True(t, ok)
			cols[i] = off
		}
		f.Jacobians(jacs, operands...)
		for i := range jacs {
			f.Noise().WhitenJacobian(jacs[i])
		}

		for i, vi := range f.Variables() {
			for j, vj := range f.Variables() {
				for r := 0; r < f.ResidualDim(); r++ {
					for ci := 0; ci < vi.LocalDim(); ci++ {
						for cj := 0; cj < vj.LocalDim(); cj++ {
							ri, rj := cols[i]+ci, cols[j]+cj
							want.Set(ri, rj, want.At(ri, rj)+jacs[i].At(r, ci)*jacs[j].At(r, cj))
						}
					}
				}
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.InDelta(t, want.At(i, j), ata.At(i, j), 1e-12, "AtA[%d,%d]", i, j)
		}
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	factors, _, initial := mixedFixture(t)

	serial, err := graph.New(factors)
	require.NoError(t, err)
	parallel, err := graph.New(factors, graph.WithParallelism(4))
	require.NoError(t, err)

	as := newAssignments(t, serial, initial)
	ap := newAssignments(t, parallel, initial)

	costS, resS := serial.ComputeCost(as)
	costP, resP := parallel.ComputeCost(ap)
	assert.Equal(t, costS, costP)
	assert.Equal(t, resS, resP)

	js := serial.WhitenedJacobian(as)
	jp := parallel.WhitenedJacobian(ap)
	assert.Equal(t, js.Values, jp.Values)
	assert.Equal(t, js.Coords, jp.Coords)
}

package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestUnit(t *testing.T) {
	u := NewUnit(3)
	assert.Equal(t, 3, u.Dim())

	r := []float64{1, -2, 3}
	u.WhitenResidual(r)
	assert.Equal(t, []float64{1, -2, 3}, r)
}

func TestDiagonal(t *testing.T) {
	t.Run("Residual", func(t *testing.T) {
		d, err := NewDiagonal([]float64{0.5, 2})
		require.NoError(t, err)

		r := []float64{1, 4}
		d.WhitenResidual(r)
		assert.InDelta(t, 2, r[0], 1e-12)
		assert.InDelta(t, 2, r[1], 1e-12)
	})

	t.Run("Jacobian", func(t *testing.T) {
		d, err := NewDiagonal([]float64{0.5, 2})
		require.NoError(t, err)

		j := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
		d.WhitenJacobian(j)
		assert.InDelta(t, 2, j.At(0, 0), 1e-12)
		assert.InDelta(t, 4, j.At(0, 1), 1e-12)
		assert.InDelta(t, 1.5, j.At(1, 0), 1e-12)
		assert.InDelta(t, 2, j.At(1, 1), 1e-12)
	})

	t.Run("InvalidSigma", func(t *testing.T) {
		_, err := NewDiagonal([]float64{1, 0})
		assert.Error(t, err)
	})

	t.Run("Isotropic", func(t *testing.T) {
		d, err := NewIsotropic(3, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, d.Dim())

		r := []float64{2, 4, 6}
		d.WhitenResidual(r)
		assert.Equal(t, []float64{1, 2, 3}, r)
	})
}

func TestGaussian(t *testing.T) {
	t.Run("DiagonalCovarianceMatchesDiagonalModel", func(t *testing.T) {
		// cov = diag(4, 9) -> sigmas (2, 3)
		cov := mat.NewSymDense(2, []float64{4, 0, 0, 9})
		g, err := NewGaussian(cov)
		require.NoError(t, err)

		d, err := NewDiagonal([]float64{2, 3})
		require.NoError(t, err)

		rg := []float64{2, 3}
		rd := []float64{2, 3}
		g.WhitenResidual(rg)
		d.WhitenResidual(rd)
		assert.InDelta(t, rd[0], rg[0], 1e-12)
		assert.InDelta(t, rd[1], rg[1], 1e-12)
	})

	t.Run("WhitenedNormIsMahalanobis", func(t *testing.T) {
		// For any r, ||W r||^2 must equal rᵀ Σ⁻¹ r.
		cov := mat.NewSymDense(2, []float64{2, 0.5, 0.5, 1})
		g, err := NewGaussian(cov)
		require.NoError(t, err)

		r := []float64{1, -2}
		w := append([]float64(nil), r...)
		g.WhitenResidual(w)
		got := w[0]*w[0] + w[1]*w[1]

		var inv mat.Dense
		require.NoError(t, inv.Inverse(cov))
		var tmp, quad mat.Dense
		rv := mat.NewDense(2, 1, []float64{r[0], r[1]})
		tmp.Mul(&inv, rv)
		quad.Mul(rv.T(), &tmp)

		assert.InDelta(t, quad.At(0, 0), got, 1e-10)
	})

	t.Run("NotPositiveDefinite", func(t *testing.T) {
		cov := mat.NewSymDense(2, []float64{1, 2, 2, 1})
		_, err := NewGaussian(cov)
		assert.Error(t, err)
	})

	t.Run("JacobianConsistentWithResidual", func(t *testing.T) {
		// Whitening J column-by-column must match whitening each column
		// as a residual.
		cov := mat.NewSymDense(2, []float64{3, 1, 1, 2})
		g, err := NewGaussian(cov)
		require.NoError(t, err)

		j := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
		g.WhitenJacobian(j)

		for c := 0; c < 2; c++ {
			col := []float64{0, 0}
			col[c] = 1
			g.WhitenResidual(col)
			assert.InDelta(t, col[0], j.At(0, c), 1e-12)
			assert.InDelta(t, col[1], j.At(1, c), 1e-12)
		}
	})
}

// Package noise provides whitening models for factor residuals.
//
// A model maps a raw residual r and its Jacobian J to whitened counterparts
// W*r and W*J, where W is the square-root information matrix of the factor's
// noise distribution. The total graph cost is the squared norm of the
// whitened residual vector.
package noise

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Model whitens residuals and Jacobians in place.
type Model interface {
	// Dim is the residual dimension the model applies to.
	Dim() int
	// WhitenResidual replaces r with W*r.
	WhitenResidual(r []float64)
	// WhitenJacobian replaces j with W*j. j must have Dim rows.
	WhitenJacobian(j *mat.Dense)
}

// Unit is the identity model: residuals are already whitened.
type Unit struct {
	dim int
}

// NewUnit returns a unit-covariance model of the given dimension.
func NewUnit(dim int) Unit {
	return Unit{dim: dim}
}

func (u Unit) Dim() int { return u.dim }

func (u Unit) WhitenResidual(r []float64) {}

func (u Unit) WhitenJacobian(j *mat.Dense) {}

// Diagonal models independent per-component noise with standard
// deviations sigmas; whitening scales each component by 1/sigma.
type Diagonal struct {
	invSigmas []float64
}

// NewDiagonal builds a diagonal model from per-component standard
// deviations. All sigmas must be positive.
func NewDiagonal(sigmas []float64) (Diagonal, error) {
	inv := make([]float64, len(sigmas))
	for i, s := range sigmas {
		if s <= 0 {
			return Diagonal{}, fmt.Errorf("noise: sigma[%d] = %v, must be positive", i, s)
		}
		inv[i] = 1 / s
	}
	return Diagonal{invSigmas: inv}, nil
}

// NewIsotropic builds a diagonal model with a single standard deviation
// shared across dim components.
func NewIsotropic(dim int, sigma float64) (Diagonal, error) {
	sigmas := make([]float64, dim)
	for i := range sigmas {
		sigmas[i] = sigma
	}
	return NewDiagonal(sigmas)
}

func (d Diagonal) Dim() int { return len(d.invSigmas) }

func (d Diagonal) WhitenResidual(r []float64) {
	for i := range r {
		r[i] *= d.invSigmas[i]
	}
}

func (d Diagonal) WhitenJacobian(j *mat.Dense) {
	rows, cols := j.Dims()
	for i := 0; i < rows; i++ {
		for c := 0; c < cols; c++ {
			j.Set(i, c, j.At(i, c)*d.invSigmas[i])
		}
	}
}

// Gaussian models correlated noise with a full covariance matrix.
// The whitener is L⁻¹ where L*Lᵀ is the Cholesky factorization of the
// covariance, precomputed at construction.
type Gaussian struct {
	dim      int
	whitener *mat.TriDense
}

// NewGaussian builds a Gaussian model from a covariance matrix, which
// must be symmetric positive definite.
func NewGaussian(cov mat.Symmetric) (*Gaussian, error) {
	n := cov.SymmetricDim()

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, fmt.Errorf("noise: covariance is not positive definite")
	}

	var l mat.TriDense
	chol.LTo(&l)

	w := mat.NewTriDense(n, mat.Lower, nil)
	if err := w.InverseTri(&l); err != nil {
		return nil, fmt.Errorf("noise: inverting cholesky factor: %w", err)
	}

	return &Gaussian{dim: n, whitener: w}, nil
}

func (g *Gaussian) Dim() int { return g.dim }

func (g *Gaussian) WhitenResidual(r []float64) {
	var y mat.VecDense
	y.MulVec(g.whitener, mat.NewVecDense(g.dim, r))
	for i := range r {
		r[i] = y.AtVec(i)
	}
}

func (g *Gaussian) WhitenJacobian(j *mat.Dense) {
	var tmp mat.Dense
	tmp.Mul(g.whitener, j)
	j.Copy(&tmp)
}

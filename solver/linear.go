package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/factorgo/sparse"
)

// SubproblemSolver solves the damped normal-equations subproblem
// (AᵀA + λ·D)·δ = ATb for a tangent-space step δ. Implementations may
// return a best-effort approximate solution (e.g. from an iterative
// method) rather than failing; the outer loop's damping absorbs
// inaccuracy.
type SubproblemSolver interface {
	Solve(a *sparse.Matrix, atb []float64, lambda float64, iteration int) []float64
}

// ConjugateGradient solves (AᵀA + λI)·δ = ATb with a Jacobi-preconditioned
// conjugate-gradient iteration. The matrix AᵀA is never formed; each CG
// step applies A and Aᵀ against the coordinate-format Jacobian.
type ConjugateGradient struct {
	// MaxIterations bounds the CG loop. <= 0 uses twice the system
	// dimension.
	MaxIterations int

	// Tolerance is the relative residual tolerance.
	Tolerance float64

	// InexactStepEta, when positive, loosens the tolerance to
	// eta/(iteration+1) in early outer iterations; exact subproblem
	// solutions are wasted while the linearization point is far from the
	// optimum.
	InexactStepEta float64
}

// NewConjugateGradient returns a CG subproblem solver with defaults.
func NewConjugateGradient() *ConjugateGradient {
	return &ConjugateGradient{
		Tolerance: 1e-10,
	}
}

// Solve implements SubproblemSolver.
func (cg *ConjugateGradient) Solve(a *sparse.Matrix, atb []float64, lambda float64, iteration int) []float64 {
	n := a.NumCols
	x := make([]float64, n)

	bnorm := floats.Norm(atb, 2)
	if bnorm == 0 {
		return x
	}

	tol := cg.Tolerance
	if cg.InexactStepEta > 0 {
		tol = math.Max(tol, cg.InexactStepEta/float64(iteration+1))
	}

	maxIter := cg.MaxIterations
	if maxIter <= 0 {
		maxIter = 2 * n
	}

	// Jacobi preconditioner: the diagonal of AᵀA + λI.
	minv := make([]float64, n)
	a.ColumnSquaredSums(minv)
	for i := range minv {
		d := minv[i] + lambda
		if d > 0 {
			minv[i] = 1 / d
		} else {
			minv[i] = 1
		}
	}

	// x starts at zero, so the initial residual is ATb itself.
	r := append([]float64(nil), atb...)
	z := make([]float64, n)
	for i := range z {
		z[i] = minv[i] * r[i]
	}
	p := append([]float64(nil), z...)
	rz := floats.Dot(r, z)

	ax := make([]float64, a.NumRows)
	op := make([]float64, n)

	for k := 0; k < maxIter && floats.Norm(r, 2) > tol*bnorm; k++ {
		// op = (AᵀA + λI)·p
		a.MulVec(ax, p)
		a.MulVecT(op, ax)
		floats.AddScaled(op, lambda, p)

		pop := floats.Dot(p, op)
		if pop <= 0 || math.IsNaN(pop) {
			// Lost positive definiteness numerically; return the current
			// best-effort iterate.
			break
		}

		alpha := rz / pop
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, op)

		for i := range z {
			z[i] = minv[i] * r[i]
		}
		rzNext := floats.Dot(r, z)
		beta := rzNext / rz
		rz = rzNext

		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	return x
}

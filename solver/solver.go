package solver

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/factorgo/graph"
	"github.com/hupe1980/factorgo/sparse"
)

// Problem is the graph-level driver contract the solvers iterate
// against. *graph.Graph satisfies it.
type Problem interface {
	// ComputeCost returns the total cost (squared whitened residual
	// norm) and the whitened residual vector at the given assignments.
	ComputeCost(a *graph.Assignments) (float64, []float64)

	// WhitenedJacobian assembles the graph-wide whitened residual
	// Jacobian at the given assignments.
	WhitenedJacobian(a *graph.Assignments) *sparse.Matrix

	// LocalMetadata returns the tangent-space layout step vectors are
	// expressed in.
	LocalMetadata() *graph.StorageMetadata
}

// Solver drives an iterate sequence from initial assignments to a
// terminal state.
type Solver interface {
	Solve(ctx context.Context, p Problem, initial *graph.Assignments) (*graph.Assignments, State, error)
}

// State is the solver iterate passed between steps. It is replaced
// wholesale each iteration and terminal once Done is set.
type State struct {
	Assignments *graph.Assignments
	Cost        float64
	Residual    []float64
	Iterations  int

	// Lambda is the damping scalar (Levenberg-Marquardt only).
	Lambda float64

	// Radius is the trust-region radius (Dogleg only).
	Radius float64

	Done bool
}

// negGradient computes Aᵀ·(−r), the negative cost gradient up to a
// factor of two.
func negGradient(a *sparse.Matrix, residual []float64) []float64 {
	neg := make([]float64, len(residual))
	for i, v := range residual {
		neg[i] = -v
	}
	atb := make([]float64, a.NumCols)
	a.MulVecT(atb, neg)
	return atb
}

// predictedCost evaluates the linear model ||A·step + r||² at a step.
func predictedCost(a *sparse.Matrix, step, residual []float64) float64 {
	pred := make([]float64, a.NumRows)
	a.MulVec(pred, step)
	floats.Add(pred, residual)
	return floats.Dot(pred, pred)
}

// stepQuality is the gain ratio comparing the actual cost reduction to
// the reduction predicted by the linear model. When the model predicts
// no reduction (e.g. at a fixed point, where the step is zero), a
// non-increasing candidate still counts as a perfect step so the
// convergence check can run.
func stepQuality(prevCost, proposedCost, predicted float64) float64 {
	actual := prevCost - proposedCost
	model := prevCost - predicted
	if model <= 0 {
		if actual >= 0 {
			return 1
		}
		return math.Inf(-1)
	}
	return actual / model
}

// retractStep applies a tangent-space step vector to assignments through
// the graph-wide manifold retraction.
func retractStep(p Problem, a *graph.Assignments, step []float64) (*graph.Assignments, error) {
	delta, err := graph.NewAssignmentsFromStorage(p.LocalMetadata(), step)
	if err != nil {
		return nil, err
	}
	return a.ManifoldRetract(delta)
}

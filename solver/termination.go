package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Termination bundles the convergence criteria shared by all solvers.
type Termination struct {
	// MaxIterations bounds the iterate sequence. Reaching it is not an
	// error; the loop terminates with the best last-accepted state.
	MaxIterations int

	// CostTolerance terminates when the relative cost change of an
	// accepted step falls below it.
	CostTolerance float64

	// DeltaTolerance terminates when the norm of an accepted step vector
	// falls below it.
	DeltaTolerance float64

	// GradientTolerance terminates when the max-norm of the negative
	// gradient falls below it, checked only from
	// GradientToleranceStart iterations on.
	GradientTolerance float64

	// GradientToleranceStart delays the gradient check; early iterates
	// of poorly initialized problems can sit near saddle-like plateaus.
	GradientToleranceStart int
}

// DefaultTermination returns the default criteria.
func DefaultTermination() Termination {
	return Termination{
		MaxIterations:          100,
		CostTolerance:          1e-5,
		DeltaTolerance:         1e-5,
		GradientTolerance:      1e-4,
		GradientToleranceStart: 10,
	}
}

// exhausted reports whether the iteration starting from the given
// previous-iteration count is the last one allowed.
func (t Termination) exhausted(prevIterations int) bool {
	return prevIterations >= t.MaxIterations-1
}

// converged checks the accepted-step criteria: relative/absolute cost
// change, step-size magnitude, or gradient norm.
func (t Termination) converged(prevCost, cost float64, step, negGradient []float64, prevIterations int) bool {
	costDelta := math.Abs(cost - prevCost)
	if prevCost > 0 {
		costDelta /= prevCost
	}
	if costDelta < t.CostTolerance {
		return true
	}

	if floats.Norm(step, 2) < t.DeltaTolerance {
		return true
	}

	if prevIterations >= t.GradientToleranceStart &&
		floats.Norm(negGradient, math.Inf(1)) < t.GradientTolerance {
		return true
	}
	return false
}

package solver

import (
	"context"
	"io"
	"log/slog"
	"math"

	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/factorgo/graph"
	"github.com/hupe1980/factorgo/sparse"
)

// Dogleg is a trust-region variant: each step blends the steepest-descent
// (Cauchy) direction and the Gauss-Newton direction within a trust
// radius, and the radius adapts to the observed gain ratio.
type Dogleg struct {
	// RadiusInitial is the trust-region radius at iteration 0.
	RadiusInitial float64

	// RadiusMin floors the radius when shrinking after poor steps.
	RadiusMin float64

	// StepQualityMin is the minimum gain ratio for acceptance.
	StepQualityMin float64

	Termination Termination
	Linear      SubproblemSolver
	Logger      *slog.Logger

	progress *rate.Limiter
}

// NewDogleg returns a solver with default parameters.
func NewDogleg() *Dogleg {
	return &Dogleg{
		RadiusInitial:  1.0,
		RadiusMin:      1e-10,
		StepQualityMin: 1e-3,
		Termination:    DefaultTermination(),
		Linear:         NewConjugateGradient(),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (s *Dogleg) init() {
	if s.Linear == nil {
		s.Linear = NewConjugateGradient()
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.progress == nil {
		s.progress = newProgressLimiter()
	}
}

// Solve iterates from the initial assignments until done.
func (s *Dogleg) Solve(ctx context.Context, p Problem, initial *graph.Assignments) (*graph.Assignments, State, error) {
	s.init()

	cost, residual := p.ComputeCost(initial)
	state := State{
		Assignments: initial,
		Cost:        cost,
		Residual:    residual,
		Radius:      s.RadiusInitial,
	}

	for !state.Done {
		if err := ctx.Err(); err != nil {
			return state.Assignments, state, err
		}

		next, err := s.step(p, state)
		if err != nil {
			return state.Assignments, state, err
		}
		state = next
	}
	return state.Assignments, state, nil
}

func (s *Dogleg) step(p Problem, prev State) (State, error) {
	if s.progress.Allow() {
		s.Logger.Debug("dogleg iteration",
			"iteration", prev.Iterations,
			"max_iterations", s.Termination.MaxIterations,
			"cost", prev.Cost,
			"radius", prev.Radius,
		)
	}

	a := p.WhitenedJacobian(prev.Assignments)
	atb := negGradient(a, prev.Residual)

	gn := s.Linear.Solve(a, atb, 0, prev.Iterations)
	cauchy := cauchyStep(a, atb)
	step := doglegStep(gn, cauchy, prev.Radius)

	proposed, err := retractStep(p, prev.Assignments, step)
	if err != nil {
		return State{}, err
	}
	proposedCost, proposedResidual := p.ComputeCost(proposed)

	rho := stepQuality(prev.Cost, proposedCost, predictedCost(a, step, prev.Residual))
	accept := rho >= s.StepQualityMin

	next := State{
		Iterations: prev.Iterations + 1,
		Radius:     prev.Radius,
	}
	switch {
	case rho > 0.75:
		next.Radius = math.Max(prev.Radius, 3*floats.Norm(step, 2))
	case rho < 0.25:
		next.Radius = math.Max(prev.Radius/2, s.RadiusMin)
	}

	if accept {
		next.Assignments = proposed
		next.Cost = proposedCost
		next.Residual = proposedResidual
	} else {
		next.Assignments = prev.Assignments
		next.Cost = prev.Cost
		next.Residual = prev.Residual
	}

	next.Done = s.Termination.exhausted(prev.Iterations) ||
		(accept && s.Termination.converged(prev.Cost, proposedCost, step, atb, prev.Iterations))
	return next, nil
}

// cauchyStep computes the steepest-descent minimizer
// (‖g‖²/‖A·g‖²)·g along the negative gradient g.
func cauchyStep(a *sparse.Matrix, g []float64) []float64 {
	ag := make([]float64, a.NumRows)
	a.MulVec(ag, g)

	out := make([]float64, len(g))
	denom := floats.Dot(ag, ag)
	if denom <= 0 {
		return out
	}
	floats.AddScaled(out, floats.Dot(g, g)/denom, g)
	return out
}

// doglegStep selects the classic dogleg point for the given radius:
// the Gauss-Newton step if it fits, the truncated steepest-descent step
// if even that leaves the region, and otherwise the boundary point on
// the segment between the two.
func doglegStep(gn, cauchy []float64, radius float64) []float64 {
	if floats.Norm(gn, 2) <= radius {
		return gn
	}

	cNorm := floats.Norm(cauchy, 2)
	if cNorm >= radius {
		out := make([]float64, len(cauchy))
		floats.AddScaled(out, radius/cNorm, cauchy)
		return out
	}

	// ‖cauchy + β·(gn − cauchy)‖ = radius, 0 < β < 1.
	d := make([]float64, len(gn))
	floats.SubTo(d, gn, cauchy)

	aa := floats.Dot(d, d)
	if aa == 0 {
		return cauchy
	}
	bb := 2 * floats.Dot(cauchy, d)
	cc := floats.Dot(cauchy, cauchy) - radius*radius
	beta := (-bb + math.Sqrt(bb*bb-4*aa*cc)) / (2 * aa)

	out := append([]float64(nil), cauchy...)
	floats.AddScaled(out, beta, d)
	return out
}

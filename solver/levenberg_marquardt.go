package solver

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/factorgo/graph"
)

// newProgressLimiter throttles per-iteration progress logging so large
// problems don't flood the handler.
func newProgressLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(50*time.Millisecond), 1)
}

// LevenbergMarquardt is a damped least-squares solver. Each step
// linearizes the graph, solves the damped normal equations, retracts the
// step onto every variable's manifold, and accepts or rejects the
// candidate by its gain ratio; damping adapts accordingly.
type LevenbergMarquardt struct {
	// LambdaInitial is the damping at iteration 0.
	LambdaInitial float64

	// LambdaFactor divides lambda on accepted steps and multiplies it on
	// rejected ones.
	LambdaFactor float64

	// LambdaMin and LambdaMax clamp lambda after rejected steps only.
	// Decreases on acceptance are intentionally unclamped
	// (cf. Madsen et al. 2004, Algorithm 3.16).
	LambdaMin float64
	LambdaMax float64

	// StepQualityMin is the minimum gain ratio for a step to be
	// accepted. A rejected step is not an error; it is absorbed by a
	// damping increase.
	StepQualityMin float64

	Termination Termination
	Linear      SubproblemSolver
	Logger      *slog.Logger

	progress *rate.Limiter
}

// NewLevenbergMarquardt returns a solver with default parameters.
func NewLevenbergMarquardt() *LevenbergMarquardt {
	return &LevenbergMarquardt{
		LambdaInitial:  5e-4,
		LambdaFactor:   2.0,
		LambdaMin:      1e-5,
		LambdaMax:      1e10,
		StepQualityMin: 1e-3,
		Termination:    DefaultTermination(),
		Linear:         NewConjugateGradient(),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (s *LevenbergMarquardt) init() {
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

// Solve iterates from the initial assignments until done. Exceeding the
// iteration budget is not an error: the last-accepted assignments are
// returned with Done set, and callers needing to distinguish "converged"
// from "exhausted" can inspect the final state's iteration count.
func (s *LevenbergMarquardt) Solve(ctx context.Context, p Problem, initial *graph.Assignments) (*graph.Assignments, State, error) {
	s.init()

	cost, residual := p.ComputeCost(initial)
	state := State{
		Assignments: initial,
		Cost:        cost,
		Residual:    residual,
		Lambda:      s.LambdaInitial,
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

	s.Logger.Debug("lm finished",
		"iterations", state.Iterations,
		"cost", state.Cost,
		"lambda", state.Lambda,
	)
	return state.Assignments, state, nil
}

func (s *LevenbergMarquardt) step(p Problem, prev State) (State, error) {
	if s.progress.Allow() {
		s.Logger.Debug("lm iteration",
			"iteration", prev.Iterations,
			"max_iterations", s.Termination.MaxIterations,
			"cost", prev.Cost,
			"lambda", prev.Lambda,
		)
	}

	// Linearize. Relinearization also happens after rejected steps; the
	// assignments are unchanged then, so the result is identical.
	a := p.WhitenedJacobian(prev.Assignments)
	atb := negGradient(a, prev.Residual)

	// Damped subproblem and on-manifold retraction.
	step := s.Linear.Solve(a, atb, prev.Lambda, prev.Iterations)
	proposed, err := retractStep(p, prev.Assignments, step)
	if err != nil {
		return State{}, err
	}
	proposedCost, proposedResidual := p.ComputeCost(proposed)

	rho := stepQuality(prev.Cost, proposedCost, predictedCost(a, step, prev.Residual))
	accept := rho >= s.StepQualityMin

	next := State{Iterations: prev.Iterations + 1}
	if accept {
		next.Lambda = prev.Lambda / s.LambdaFactor
		next.Assignments = proposed
		next.Cost = proposedCost
		next.Residual = proposedResidual
	} else {
		next.Lambda = math.Min(math.Max(prev.Lambda*s.LambdaFactor, s.LambdaMin), s.LambdaMax)
		next.Assignments = prev.Assignments
		next.Cost = prev.Cost
		next.Residual = prev.Residual
	}

	next.Done = s.Termination.exhausted(prev.Iterations) ||
		(accept && s.Termination.converged(prev.Cost, proposedCost, step, atb, prev.Iterations))
	return next, nil
}

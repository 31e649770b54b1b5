package solver

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/hupe1980/factorgo/graph"
)

// GaussNewton is the undamped variant: every step solves the plain
// normal equations and is accepted unconditionally. Faster than
// Levenberg-Marquardt near the optimum, but with no safeguard against
// overshooting on poorly conditioned problems.
type GaussNewton struct {
	Termination Termination
	Linear      SubproblemSolver
	Logger      *slog.Logger

	progress *rate.Limiter
}

// NewGaussNewton returns a solver with default parameters.
func NewGaussNewton() *GaussNewton {
	return &GaussNewton{
		Termination: DefaultTermination(),
		Linear:      NewConjugateGradient(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (s *GaussNewton) init() {
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
func (s *GaussNewton) Solve(ctx context.Context, p Problem, initial *graph.Assignments) (*graph.Assignments, State, error) {
	s.init()

	cost, residual := p.ComputeCost(initial)
	state := State{
		Assignments: initial,
		Cost:        cost,
		Residual:    residual,
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

func (s *GaussNewton) step(p Problem, prev State) (State, error) {
	if s.progress.Allow() {
		s.Logger.Debug("gn iteration",
			"iteration", prev.Iterations,
			"max_iterations", s.Termination.MaxIterations,
			"cost", prev.Cost,
		)
	}

	a := p.WhitenedJacobian(prev.Assignments)
	atb := negGradient(a, prev.Residual)

	step := s.Linear.Solve(a, atb, 0, prev.Iterations)
	proposed, err := retractStep(p, prev.Assignments, step)
	if err != nil {
		return State{}, err
	}
	cost, residual := p.ComputeCost(proposed)

	return State{
		Iterations:  prev.Iterations + 1,
		Assignments: proposed,
		Cost:        cost,
		Residual:    residual,
		Done: s.Termination.exhausted(prev.Iterations) ||
			s.Termination.converged(prev.Cost, cost, step, atb, prev.Iterations),
	}, nil
}

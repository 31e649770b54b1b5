package factorgo

import (
	"context"
	"fmt"

	"github.com/hupe1980/factorgo/graph"
	"github.com/hupe1980/factorgo/solver"
)

type options struct {
	logger      *Logger
	parallelism int
}

// Option configures Solve behavior.
type Option func(*options)

// WithLogger sets the structured logger used by graph construction.
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithParallelism sets the maximum number of factor stacks evaluated
// concurrently. Values <= 1 evaluate serially.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// Solve builds a stacked factor graph from factors, assigns every
// variable its initial value, and runs the solver to completion. If s is
// nil, a default Levenberg-Marquardt solver is used.
//
// Every variable referenced by a factor must have an entry in initial;
// the value length is the variable's StorageDim.
func Solve(ctx context.Context, factors []graph.Factor, initial map[graph.Variable][]float64, s solver.Solver, opts ...Option) (*graph.Assignments, solver.State, error) {
	o := &options{
		logger:      NoopLogger(),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(o)
	}

	g, err := graph.New(factors,
		graph.WithParallelism(o.parallelism),
		graph.WithLogger(o.logger.Logger),
	)
	if err != nil {
		return nil, solver.State{}, err
	}

	assignments := graph.NewAssignments(g.Metadata())
	for _, v := range g.Metadata().Variables() {
		value, ok := initial[v]
		if !ok {
			return nil, solver.State{}, fmt.Errorf("factorgo: no initial value for %v: %w", v, graph.ErrUnknownVariable)
		}
		if err := assignments.Set(v, value); err != nil {
			return nil, solver.State{}, err
		}
	}

	if s == nil {
		s = solver.NewLevenbergMarquardt()
	}
	return s.Solve(ctx, g, assignments)
}

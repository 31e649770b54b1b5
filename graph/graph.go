package graph

import (
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/factorgo/sparse"
)

// Graph is a stacked factor graph: factors grouped into homogeneous
// batches, plus the storage layouts and sparse coordinate bookkeeping
// gluing them together. A Graph is immutable after New; solvers evaluate
// it against successive Assignments.
type Graph struct {
	stacks []*Stack

	// rowOffsets[i] is where stack i's residual block begins in the
	// global residual vector.
	rowOffsets []int

	// valueOffsets[i][j] is where stack i, slot j's Jacobian values begin
	// in the global value array; the layout mirrors coords.
	valueOffsets [][]int

	coords      sparse.Coordinates
	meta        *StorageMetadata
	localMeta   *StorageMetadata
	residualDim int

	parallel int
	logger   *slog.Logger
}

// Option configures graph construction.
type Option func(*Graph)

// WithParallelism sets the maximum number of stacks evaluated
// concurrently. Values <= 1 evaluate serially. Stacks write to disjoint
// blocks of the residual vector and value array, so no synchronization
// beyond the join is needed.
func WithParallelism(n int) Option {
	return func(g *Graph) {
		g.parallel = n
	}
}

// WithLogger sets the structured logger used during construction.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// New builds a stacked factor graph from a non-empty list of factors.
// Factors are grouped by (factor type, ordered operand types); groups,
// and therefore residual row blocks, keep the order in which each
// signature first appears.
func New(factors []Factor, opts ...Option) (*Graph, error) {
	if len(factors) == 0 {
		return nil, ErrEmptyGraph
	}

	g := &Graph{
		parallel: 1,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}

	// Storage layouts over every referenced variable.
	var variables []Variable
	for _, f := range factors {
		variables = append(variables, f.Variables()...)
	}
	g.meta = NewStorageMetadata(variables)
	g.localMeta = NewLocalStorageMetadata(variables)

	// Group factors by signature, preserving first-appearance order.
	var keyOrder []string
	groups := make(map[string][]Factor)
	for _, f := range factors {
		k := stackKey(f)
		if _, ok := groups[k]; !ok {
			keyOrder = append(keyOrder, k)
		}
		groups[k] = append(groups[k], f)
	}

	for _, k := range keyOrder {
		stack, err := NewStack(groups[k], g.meta)
		if err != nil {
			return nil, fmt.Errorf("graph: stacking %q: %w", k, err)
		}

		coords, err := stack.JacobianCoords(g.localMeta, g.residualDim)
		if err != nil {
			return nil, fmt.Errorf("graph: jacobian coords for %q: %w", k, err)
		}

		offsets := make([]int, len(coords))
		for j, c := range coords {
			offsets[j] = g.coords.Len()
			g.coords.Append(c)
		}

		g.stacks = append(g.stacks, stack)
		g.rowOffsets = append(g.rowOffsets, g.residualDim)
		g.valueOffsets = append(g.valueOffsets, offsets)
		g.residualDim += stack.ResidualDim()
	}

	g.logger.Debug("stacked factor graph",
		"factors", len(factors),
		"stacks", len(g.stacks),
		"variables", g.meta.NumVariables(),
		"residual_dim", g.residualDim,
		"storage_dim", g.meta.Dim(),
		"local_dim", g.localMeta.Dim(),
		"jacobian_nnz", g.coords.Len(),
	)
	return g, nil
}

// Metadata returns the storage-dimension layout of the graph's variables.
func (g *Graph) Metadata() *StorageMetadata { return g.meta }

// LocalMetadata returns the tangent-dimension layout used for retraction
// deltas and Jacobian columns.
func (g *Graph) LocalMetadata() *StorageMetadata { return g.localMeta }

// ResidualDim returns the length of the graph-wide residual vector.
func (g *Graph) ResidualDim() int { return g.residualDim }

// NumStacks returns the number of homogeneous factor batches.
func (g *Graph) NumStacks() int { return len(g.stacks) }

// Stacks returns the graph's factor stacks in residual-block order. The
// returned slice must not be modified.
func (g *Graph) Stacks() []*Stack { return g.stacks }

// forEachStack runs fn for every stack, concurrently when parallelism is
// enabled. fn must only write to state owned by its stack index.
func (g *Graph) forEachStack(fn func(i int, s *Stack)) {
	if g.parallel <= 1 || len(g.stacks) == 1 {
		for i, s := range g.stacks {
			fn(i, s)
		}
		return
	}

	var eg errgroup.Group
	eg.SetLimit(g.parallel)
	for i, s := range g.stacks {
		i, s := i, s
		eg.Go(func() error {
			fn(i, s)
			return nil
		})
	}
	_ = eg.Wait() // workers never return errors
}

// ComputeResidual evaluates the whitened residual vector at the given
// assignments, stack blocks concatenated in graph order.
func (g *Graph) ComputeResidual(a *Assignments) []float64 {
	residual := make([]float64, g.residualDim)
	g.forEachStack(func(i int, s *Stack) {
		g.stacks[i].Residuals(a, residual[g.rowOffsets[i]:g.rowOffsets[i]+s.ResidualDim()])
	})
	return residual
}

// ComputeCost evaluates the total cost, the squared norm of the whitened
// residual vector, returning both.
func (g *Graph) ComputeCost(a *Assignments) (float64, []float64) {
	residual := g.ComputeResidual(a)
	return floats.Dot(residual, residual), residual
}

// WhitenedJacobian assembles the graph-wide whitened residual Jacobian in
// coordinate form at the given assignments. Rows follow the residual
// ordering (by stack, then factor, then residual component); columns are
// tangent-space storage offsets. The coordinate layout is shared across
// calls; only values are recomputed.
func (g *Graph) WhitenedJacobian(a *Assignments) *sparse.Matrix {
	values := make([]float64, g.coords.Len())

	g.forEachStack(func(i int, s *Stack) {
		out := make([][]float64, len(s.slots))
		for j, slot := range s.slots {
			start := g.valueOffsets[i][j]
			out[j] = values[start : start+s.NumFactors()*s.FactorResidualDim()*slot.LocalDim()]
		}
		s.Jacobians(a, out)
	})

	m, err := sparse.NewMatrix(g.coords, values, g.residualDim, g.localMeta.Dim())
	if err != nil {
		// Construction guarantees alignment.
		panic(fmt.Sprintf("graph: %v", err))
	}
	return m
}

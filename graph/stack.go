package graph

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/factorgo/sparse"
)

// Stack groups all factors sharing one (factor type, ordered operand
// types) signature so residuals, Jacobians, and sparse index layouts can
// be computed across the whole batch in one pass.
//
// A stack holds, per operand slot, an index array locating every batch
// member's operand inside the global storage buffer. Stacks are built
// once at graph construction and never mutated afterwards.
type Stack struct {
	factors  []Factor
	template Factor
	slots    []Variable
	resDim   int

	// valueIndices[i] holds, factor-major, the absolute storage offsets
	// of slot i's values: len(factors) * slots[i].StorageDim() entries.
	valueIndices [][]int
}

// NewStack builds a stack from a non-empty sequence of factors sharing
// the same type signature. Mismatched operand types or missing metadata
// entries are graph-construction bugs and abort with an error.
func NewStack(factors []Factor, meta *StorageMetadata) (*Stack, error) {
	if len(factors) == 0 {
		return nil, ErrEmptyStack
	}

	first := factors[0]
	slots := first.Variables()

	s := &Stack{
		factors:      factors,
		template:     first,
		slots:        slots,
		resDim:       first.ResidualDim(),
		valueIndices: make([][]int, len(slots)),
	}
	for i, v := range slots {
		s.valueIndices[i] = make([]int, 0, len(factors)*v.StorageDim())
	}

	for fi, f := range factors {
		vars := f.Variables()
		if len(vars) != len(slots) {
			return nil, fmt.Errorf("graph: factor %d has %d operands, want %d: %w",
				fi, len(vars), len(slots), ErrTypeMismatch)
		}
		for i, v := range vars {
			if typeKey(v) != typeKey(slots[i]) {
				return nil, fmt.Errorf("graph: factor %d slot %d is %T, want %T: %w",
					fi, i, v, slots[i], ErrTypeMismatch)
			}
			off, ok := meta.Offset(v)
			if !ok {
				return nil, fmt.Errorf("graph: factor %d slot %d (%T): %w",
					fi, i, v, ErrUnknownVariable)
			}
			for k := 0; k < v.StorageDim(); k++ {
				s.valueIndices[i] = append(s.valueIndices[i], off+k)
			}
		}
	}
	return s, nil
}

// NumFactors returns the batch size.
func (s *Stack) NumFactors() int { return len(s.factors) }

// FactorResidualDim returns the per-factor residual dimension.
func (s *Stack) FactorResidualDim() int { return s.resDim }

// ResidualDim returns the block size the stack contributes to the global
// residual vector: per-factor residual dimension times batch size.
func (s *Stack) ResidualDim() int { return s.resDim * len(s.factors) }

// JacobianCoords computes the (row, col) layout each operand slot's
// Jacobian contributes to the graph-wide sparse Jacobian, one layout per
// slot. localMeta must describe tangent-space offsets; rowOffset is where
// the stack's residual block begins in the global residual vector.
//
// Pairs are ordered batch-major, then residual row, then column, which
// matches the value ordering produced by Jacobians exactly.
func (s *Stack) JacobianCoords(localMeta *StorageMetadata, rowOffset int) ([]sparse.Coordinates, error) {
	out := make([]sparse.Coordinates, len(s.slots))

	for i, slot := range s.slots {
		ld := slot.LocalDim()
		n := len(s.factors) * s.resDim * ld
		coords := sparse.Coordinates{
			Rows: make([]int, 0, n),
			Cols: make([]int, 0, n),
		}

		for fi, f := range s.factors {
			v := f.Variables()[i]
			off, ok := localMeta.Offset(v)
			if !ok {
				return nil, fmt.Errorf("graph: factor %d slot %d (%T): %w", fi, i, v, ErrUnknownVariable)
			}
			for r := 0; r < s.resDim; r++ {
				row := rowOffset + fi*s.resDim + r
				for c := 0; c < ld; c++ {
					coords.Rows = append(coords.Rows, row)
					coords.Cols = append(coords.Cols, off+c)
				}
			}
		}
		out[i] = coords
	}
	return out, nil
}

// gather copies every batch member's operand values into contiguous
// struct-of-arrays buffers using the stack's index arrays, one buffer per
// slot.
func (s *Stack) gather(storage []float64) [][]float64 {
	out := make([][]float64, len(s.slots))
	for i, idx := range s.valueIndices {
		buf := make([]float64, len(idx))
		for k, j := range idx {
			buf[k] = storage[j]
		}
		out[i] = buf
	}
	return out
}

// operandViews slices per-factor operand views out of the gathered
// buffers for batch member fi.
func (s *Stack) operandViews(gathered [][]float64, fi int, views [][]float64) {
	for i, v := range s.slots {
		sd := v.StorageDim()
		views[i] = gathered[i][fi*sd : (fi+1)*sd]
	}
}

// Residuals evaluates the whitened residuals of the whole batch into dst,
// which must have ResidualDim elements, laid out factor-major.
//
// When the representative factor implements BatchFactor, the vectorized
// kernel is used; otherwise members are evaluated in factor order. Both
// paths produce identical output.
func (s *Stack) Residuals(a *Assignments, dst []float64) {
	gathered := s.gather(a.Storage())

	if bf, ok := s.template.(BatchFactor); ok {
		bf.ResidualBatch(s.factors, dst, gathered...)
	} else {
		views := make([][]float64, len(s.slots))
		for fi, f := range s.factors {
			s.operandViews(gathered, fi, views)
			f.Residual(dst[fi*s.resDim:(fi+1)*s.resDim], views...)
		}
	}

	for fi, f := range s.factors {
		f.Noise().WhitenResidual(dst[fi*s.resDim : (fi+1)*s.resDim])
	}
}

// Jacobians evaluates the whitened residual Jacobians of the whole batch.
// out holds one flat value array per operand slot, each of
// NumFactors*ResidualDim*LocalDim elements; the flattened ordering aligns
// one-to-one with the coordinate pairs from JacobianCoords.
func (s *Stack) Jacobians(a *Assignments, out [][]float64) {
	gathered := s.gather(a.Storage())

	jacs := make([]*mat.Dense, len(s.slots))
	for i, v := range s.slots {
		jacs[i] = mat.NewDense(s.resDim, v.LocalDim(), nil)
	}

	views := make([][]float64, len(s.slots))
	for fi, f := range s.factors {
		for i := range jacs {
			jacs[i].Zero()
		}
		s.operandViews(gathered, fi, views)
		f.Jacobians(jacs, views...)

		model := f.Noise()
		for i := range jacs {
			model.WhitenJacobian(jacs[i])
		}

		for i, v := range s.slots {
			ld := v.LocalDim()
			base := fi * s.resDim * ld
			for r := 0; r < s.resDim; r++ {
				for c := 0; c < ld; c++ {
					out[i][base+r*ld+c] = jacs[i].At(r, c)
				}
			}
		}
	}
}

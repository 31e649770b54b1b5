package graph

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/factorgo/noise"
)

// Factor is a constraint linking one or more variables. Given its
// operands' current stored values it contributes ResidualDim rows to the
// graph-wide residual vector; the squared norm of the whitened residual
// forms part of the total cost.
//
// Factors are immutable after construction.
type Factor interface {
	// Variables returns the ordered operand slots. The slice must not
	// change between calls.
	Variables() []Variable

	// ResidualDim is the number of residual components the factor
	// contributes.
	ResidualDim() int

	// Residual writes the unwhitened residual to dst given the operands'
	// stored values, one slice per slot, each of the slot variable's
	// StorageDim length.
	Residual(dst []float64, operands ...[]float64)

	// Jacobians writes the Jacobian of the residual with respect to each
	// operand's tangent-space delta. jacs[i] is a ResidualDim x LocalDim
	// matrix for slot i and must be fully written.
	Jacobians(jacs []*mat.Dense, operands ...[]float64)

	// Noise returns the whitening model applied to the raw residual and
	// Jacobian. Its dimension must equal ResidualDim.
	Noise() noise.Model
}

// BatchFactor is an optional fast path for factor types with a vectorized
// residual kernel. When the representative factor of a stack implements
// it, the stack evaluates all batch members in one call over
// struct-of-arrays operand buffers instead of looping per factor.
//
// The batched output must be numerically identical to the per-factor
// path.
type BatchFactor interface {
	Factor

	// ResidualBatch evaluates len(batch) factors at once. dst has
	// len(batch)*ResidualDim elements, laid out factor-major. operands[i]
	// holds the gathered slot-i values of every batch member,
	// len(batch)*StorageDim elements, also factor-major.
	ResidualBatch(batch []Factor, dst []float64, operands ...[]float64)
}

// typeKey returns a stable key for a concrete Go type.
func typeKey(v any) string {
	return fmt.Sprintf("%T", v)
}

// stackKey identifies the (factor type, ordered operand types) group a
// factor belongs to. Only factors sharing a key can share batched kernels
// and index layouts.
func stackKey(f Factor) string {
	var sb strings.Builder
	sb.WriteString(typeKey(f))
	for _, v := range f.Variables() {
		sb.WriteByte('|')
		sb.WriteString(typeKey(v))
	}
	return sb.String()
}

package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/factorgo/graph"
	"github.com/hupe1980/factorgo/noise"
)

// VectorVariable is an unknown in Euclidean space R^dim. Storage and
// tangent dimensions coincide and retraction is vector addition.
type VectorVariable struct {
	dim int
}

// NewVectorVariable creates a Euclidean variable of the given dimension.
func NewVectorVariable(dim int) *VectorVariable {
	return &VectorVariable{dim: dim}
}

func (v *VectorVariable) StorageDim() int { return v.dim }

func (v *VectorVariable) LocalDim() int { return v.dim }

func (v *VectorVariable) Retract(dst, x, delta []float64) {
	floats.AddTo(dst, x, delta)
}

// VectorPrior anchors a vector variable to a target value:
// r = x − target.
type VectorPrior struct {
	variable *VectorVariable
	target   []float64
	model    noise.Model
	vars     []graph.Variable
}

// NewVectorPrior creates a prior factor on v.
func NewVectorPrior(v *VectorVariable, target []float64, model noise.Model) (*VectorPrior, error) {
	if len(target) != v.StorageDim() {
		return nil, fmt.Errorf("geometry: prior target dim %d, variable dim %d", len(target), v.StorageDim())
	}
	if model.Dim() != v.StorageDim() {
		return nil, fmt.Errorf("geometry: prior noise dim %d, variable dim %d", model.Dim(), v.StorageDim())
	}
	return &VectorPrior{
		variable: v,
		target:   append([]float64(nil), target...),
		model:    model,
		vars:     []graph.Variable{v},
	}, nil
}

func (f *VectorPrior) Variables() []graph.Variable { return f.vars }

func (f *VectorPrior) ResidualDim() int { return f.variable.dim }

func (f *VectorPrior) Residual(dst []float64, operands ...[]float64) {
	floats.SubTo(dst, operands[0], f.target)
}

func (f *VectorPrior) Jacobians(jacs []*mat.Dense, operands ...[]float64) {
	for i := 0; i < f.variable.dim; i++ {
		jacs[0].Set(i, i, 1)
	}
}

func (f *VectorPrior) Noise() noise.Model { return f.model }

// ResidualBatch evaluates a whole stack of priors over struct-of-arrays
// operand buffers.
func (f *VectorPrior) ResidualBatch(batch []graph.Factor, dst []float64, operands ...[]float64) {
	dim := f.variable.dim
	xs := operands[0]
	for j, bf := range batch {
		p := bf.(*VectorPrior)
		floats.SubTo(dst[j*dim:(j+1)*dim], xs[j*dim:(j+1)*dim], p.target)
	}
}

// VectorBetween constrains the difference of two vector variables to a
// measured value: r = x1 − x0 − measured.
type VectorBetween struct {
	v0, v1   *VectorVariable
	measured []float64
	model    noise.Model
	vars     []graph.Variable
}

// NewVectorBetween creates a relative factor between v0 and v1.
func NewVectorBetween(v0, v1 *VectorVariable, measured []float64, model noise.Model) (*VectorBetween, error) {
	if v0.dim != v1.dim {
		return nil, fmt.Errorf("geometry: between variables of dims %d and %d", v0.dim, v1.dim)
	}
	if len(measured) != v0.dim {
		return nil, fmt.Errorf("geometry: between measurement dim %d, variable dim %d", len(measured), v0.dim)
	}
	if model.Dim() != v0.dim {
		return nil, fmt.Errorf("geometry: between noise dim %d, variable dim %d", model.Dim(), v0.dim)
	}
	return &VectorBetween{
		v0:       v0,
		v1:       v1,
		measured: append([]float64(nil), measured...),
		model:    model,
		vars:     []graph.Variable{v0, v1},
	}, nil
}

func (f *VectorBetween) Variables() []graph.Variable { return f.vars }

func (f *VectorBetween) ResidualDim() int { return f.v0.dim }

func (f *VectorBetween) Residual(dst []float64, operands ...[]float64) {
	floats.SubTo(dst, operands[1], operands[0])
	floats.Sub(dst, f.measured)
}

func (f *VectorBetween) Jacobians(jacs []*mat.Dense, operands ...[]float64) {
	for i := 0; i < f.v0.dim; i++ {
		jacs[0].Set(i, i, -1)
		jacs[1].Set(i, i, 1)
	}
}

func (f *VectorBetween) Noise() noise.Model { return f.model }

// ResidualBatch evaluates a whole stack of between factors over
// struct-of-arrays operand buffers.
func (f *VectorBetween) ResidualBatch(batch []graph.Factor, dst []float64, operands ...[]float64) {
	dim := f.v0.dim
	x0s, x1s := operands[0], operands[1]
	for j, bf := range batch {
		b := bf.(*VectorBetween)
		out := dst[j*dim : (j+1)*dim]
		floats.SubTo(out, x1s[j*dim:(j+1)*dim], x0s[j*dim:(j+1)*dim])
		floats.Sub(out, b.measured)
	}
}

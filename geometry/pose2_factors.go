package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/factorgo/graph"
	"github.com/hupe1980/factorgo/noise"
)

// jacobianSettings is shared by all pose factors: central differences
// keep the truncation error well below solver tolerances.
var jacobianSettings = &fd.JacobianSettings{Formula: fd.Central}

// Pose2Prior anchors a pose to a prior estimate:
// r = Log(prior⁻¹ · X).
type Pose2Prior struct {
	variable *Pose2Variable
	prior    Pose2
	model    noise.Model
	vars     []graph.Variable
}

// NewPose2Prior creates a prior factor on v.
func NewPose2Prior(v *Pose2Variable, prior Pose2, model noise.Model) (*Pose2Prior, error) {
	if model.Dim() != v.LocalDim() {
		return nil, fmt.Errorf("geometry: pose prior noise dim %d, want %d", model.Dim(), v.LocalDim())
	}
	return &Pose2Prior{
		variable: v,
		prior:    prior,
		model:    model,
		vars:     []graph.Variable{v},
	}, nil
}

func (f *Pose2Prior) Variables() []graph.Variable { return f.vars }

func (f *Pose2Prior) ResidualDim() int { return 3 }

func (f *Pose2Prior) Residual(dst []float64, operands ...[]float64) {
	p := Pose2FromStorage(operands[0])
	f.prior.Inverse().Mul(p).Log(dst)
}

func (f *Pose2Prior) Jacobians(jacs []*mat.Dense, operands ...[]float64) {
	x := operands[0]
	fd.Jacobian(jacs[0], func(y, delta []float64) {
		var retracted [4]float64
		f.variable.Retract(retracted[:], x, delta)
		f.Residual(y, retracted[:])
	}, make([]float64, 3), jacobianSettings)
}

func (f *Pose2Prior) Noise() noise.Model { return f.model }

// Pose2Between constrains the relative transform between two poses:
// r = Log(measured⁻¹ · Xa⁻¹ · Xb).
type Pose2Between struct {
	a, b     *Pose2Variable
	measured Pose2
	model    noise.Model
	vars     []graph.Variable
}

// NewPose2Between creates a relative factor from pose a to pose b.
func NewPose2Between(a, b *Pose2Variable, measured Pose2, model noise.Model) (*Pose2Between, error) {
	if model.Dim() != a.LocalDim() {
		return nil, fmt.Errorf("geometry: pose between noise dim %d, want %d", model.Dim(), a.LocalDim())
	}
	return &Pose2Between{
		a:        a,
		b:        b,
		measured: measured,
		model:    model,
		vars:     []graph.Variable{a, b},
	}, nil
}

func (f *Pose2Between) Variables() []graph.Variable { return f.vars }

func (f *Pose2Between) ResidualDim() int { return 3 }

func (f *Pose2Between) Residual(dst []float64, operands ...[]float64) {
	pa := Pose2FromStorage(operands[0])
	pb := Pose2FromStorage(operands[1])
	f.measured.Inverse().Mul(pa.Inverse().Mul(pb)).Log(dst)
}

func (f *Pose2Between) Jacobians(jacs []*mat.Dense, operands ...[]float64) {
	xa, xb := operands[0], operands[1]

	fd.Jacobian(jacs[0], func(y, delta []float64) {
		var retracted [4]float64
		f.a.Retract(retracted[:], xa, delta)
		f.Residual(y, retracted[:], xb)
	}, make([]float64, 3), jacobianSettings)

	fd.Jacobian(jacs[1], func(y, delta []float64) {
		var retracted [4]float64
		f.b.Retract(retracted[:], xb, delta)
		f.Residual(y, xa, retracted[:])
	}, make([]float64, 3), jacobianSettings)
}

func (f *Pose2Between) Noise() noise.Model { return f.model }

package geometry

import (
	"math"
)

// Pose2 is a rigid transform in SE(2). The rotation is stored as a unit
// complex number, so the flattened representation is
// (cosθ, sinθ, x, y) — storage dimension 4, tangent dimension 3.
type Pose2 struct {
	Cos, Sin float64
	X, Y     float64
}

// NewPose2 builds a pose from a translation and heading.
func NewPose2(x, y, theta float64) Pose2 {
	return Pose2{
		Cos: math.Cos(theta),
		Sin: math.Sin(theta),
		X:   x,
		Y:   y,
	}
}

// Pose2FromStorage unflattens a pose from its stored representation.
func Pose2FromStorage(s []float64) Pose2 {
	return Pose2{Cos: s[0], Sin: s[1], X: s[2], Y: s[3]}
}

// Storage flattens the pose into dst, which must have 4 elements.
func (p Pose2) Storage(dst []float64) {
	dst[0] = p.Cos
	dst[1] = p.Sin
	dst[2] = p.X
	dst[3] = p.Y
}

// Theta returns the heading angle in (−π, π].
func (p Pose2) Theta() float64 {
	return math.Atan2(p.Sin, p.Cos)
}

// Mul composes two transforms: p then q in p's frame.
func (p Pose2) Mul(q Pose2) Pose2 {
	return Pose2{
		Cos: p.Cos*q.Cos - p.Sin*q.Sin,
		Sin: p.Sin*q.Cos + p.Cos*q.Sin,
		X:   p.X + p.Cos*q.X - p.Sin*q.Y,
		Y:   p.Y + p.Sin*q.X + p.Cos*q.Y,
	}
}

// Inverse returns the inverse transform.
func (p Pose2) Inverse() Pose2 {
	return Pose2{
		Cos: p.Cos,
		Sin: -p.Sin,
		X:   -(p.Cos*p.X + p.Sin*p.Y),
		Y:   -(-p.Sin*p.X + p.Cos*p.Y),
	}
}

// se2V returns the coefficients of V(θ) = a·I + b·S with S the 90°
// rotation generator, using series expansions near θ = 0.
func se2V(theta float64) (a, b float64) {
	if math.Abs(theta) < 1e-9 {
		t2 := theta * theta
		return 1 - t2/6, theta/2 - t2*theta/24
	}
	return math.Sin(theta) / theta, (1 - math.Cos(theta)) / theta
}

// Exp2 maps a tangent vector (vx, vy, ω) to a pose via the SE(2)
// exponential.
func Exp2(delta []float64) Pose2 {
	vx, vy, omega := delta[0], delta[1], delta[2]
	a, b := se2V(omega)
	return Pose2{
		Cos: math.Cos(omega),
		Sin: math.Sin(omega),
		X:   a*vx - b*vy,
		Y:   b*vx + a*vy,
	}
}

// Log writes the SE(2) logarithm (vx, vy, ω) of p into dst, the inverse
// of Exp2.
func (p Pose2) Log(dst []float64) {
	theta := p.Theta()
	a, b := se2V(theta)
	det := a*a + b*b
	dst[0] = (a*p.X + b*p.Y) / det
	dst[1] = (-b*p.X + a*p.Y) / det
	dst[2] = theta
}

// normalized rescales the rotation back to a unit complex number,
// countering drift from repeated composition.
func (p Pose2) normalized() Pose2 {
	n := math.Hypot(p.Cos, p.Sin)
	if n == 0 {
		return Pose2{Cos: 1}
	}
	p.Cos /= n
	p.Sin /= n
	return p
}

// Pose2Variable is an unknown SE(2) pose.
type Pose2Variable struct {
	// Name is an optional label for debugging and error messages.
	Name string
}

// NewPose2Variable creates a pose variable.
func NewPose2Variable() *Pose2Variable {
	return &Pose2Variable{}
}

func (v *Pose2Variable) String() string {
	if v.Name != "" {
		return "Pose2(" + v.Name + ")"
	}
	return "Pose2"
}

func (v *Pose2Variable) StorageDim() int { return 4 }

func (v *Pose2Variable) LocalDim() int { return 3 }

// Retract applies a right-multiplied tangent update:
// retract(x, δ) = x · Exp2(δ).
func (v *Pose2Variable) Retract(dst, x, delta []float64) {
	p := Pose2FromStorage(x).Mul(Exp2(delta)).normalized()
	p.Storage(dst)
}

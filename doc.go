// Package factorgo is a nonlinear least-squares backend for factor-graph
// estimation problems such as pose-graph optimization. It minimizes a sum
// of squared, whitened residuals over manifold-valued unknowns connected
// by constraints.
//
// Heterogeneous factors are grouped into homogeneous stacks so residuals,
// Jacobians, and sparse index layouts are computed in batched form, and a
// damped Gauss-Newton (Levenberg-Marquardt) iteration drives the
// estimate; Gauss-Newton and Dogleg variants are also provided.
//
// The subpackages compose bottom-up: sparse (coordinate-format matrices),
// noise (residual whitening), graph (storage, stacking, sparse assembly),
// solver (the nonlinear iteration), and geometry (concrete vector and
// SE(2) variable/factor types). This package ties them together behind a
// single Solve call:
//
//	x0 := geometry.NewPose2Variable()
//	x1 := geometry.NewPose2Variable()
//	...
//	solution, state, err := factorgo.Solve(ctx, factors, initial, nil)
package factorgo

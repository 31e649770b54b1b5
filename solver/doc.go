// Package solver implements the nonlinear least-squares iteration over a
// stacked factor graph: Levenberg-Marquardt with adaptive damping, plus
// the Gauss-Newton and Dogleg variants sharing the same
// linearize/solve/retract/check skeleton.
//
// The damped normal-equations subproblem is delegated to a
// SubproblemSolver; a preconditioned conjugate-gradient implementation is
// provided as the default.
package solver

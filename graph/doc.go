// Package graph implements the batched factor-graph core: flat variable
// storage with offset metadata, factor stacks that evaluate homogeneous
// groups of constraints in one pass, and sparse Jacobian assembly in
// coordinate format.
//
// A Graph is built once from a list of factors and reused, unmutated,
// across all solver iterations; only the Assignments buffer changes
// between iterations, and each accepted iteration produces a fresh
// Assignments rather than mutating in place.
package graph

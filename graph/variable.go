package graph

// Variable describes the manifold a single unknown lives on and doubles as
// the unknown's identity inside a graph: storage metadata keys on the
// instance, so implementations must be pointer types and each estimated
// quantity gets its own instance.
//
// Variables never hold their own value. Values live flattened in an
// Assignments buffer, and the Variable only interprets slices of it.
type Variable interface {
	// StorageDim is the length of the flattened stored representation.
	StorageDim() int

	// LocalDim is the tangent-space dimension used by retraction deltas.
	// For non-Euclidean manifolds this is generally smaller than
	// StorageDim.
	LocalDim() int

	// Retract writes the on-manifold update retract(x, delta) to dst.
	// dst and x have StorageDim elements, delta has LocalDim elements.
	// dst may alias x.
	Retract(dst, x, delta []float64)
}

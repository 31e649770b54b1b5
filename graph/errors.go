package graph

import "errors"

// Construction-time sentinels. All of these indicate a malformed problem
// graph and abort construction; none are recoverable at runtime.
var (
	// ErrEmptyGraph is returned when a graph is built from no factors.
	ErrEmptyGraph = errors.New("empty factor graph")

	// ErrEmptyStack is returned when a stack is built from no factors.
	ErrEmptyStack = errors.New("empty factor stack")

	// ErrTypeMismatch is returned when factors grouped into one stack
	// disagree on their ordered operand variable types.
	ErrTypeMismatch = errors.New("operand type mismatch")

	// ErrUnknownVariable is returned when a referenced variable has no
	// storage metadata entry.
	ErrUnknownVariable = errors.New("variable not in storage metadata")

	// ErrDimensionMismatch is returned when a value's length disagrees
	// with the variable or storage dimension it is assigned to.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

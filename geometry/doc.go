// Package geometry provides concrete variable and factor types for
// common estimation problems: Euclidean vector variables and SE(2) rigid
// transforms, with prior and relative ("between") factors for both.
//
// The graph core consumes these only through its capability contracts;
// applications with custom manifolds can supply their own types the same
// way.
package geometry

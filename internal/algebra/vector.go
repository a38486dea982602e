// Package algebra holds the vector, quaternion and matrix operations shared by
// every geometry and solver, plus the closed-form rotation subproblems the
// pseudo-axis modes are built from.
package algebra

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats/scalar"
)

// Epsilon is the single tolerance used for every comparison in the core.
// It absorbs round-off across a six-axis composition chain.
const Epsilon = 1e-6

// ErrDegenerate reports a configuration where a transform is undefined,
// typically the normalization of a zero-length vector.
var ErrDegenerate = errors.New("algebra: degenerate configuration")

// Lab frame unit vectors.
var (
	X = r3.Vector{X: 1}
	Y = r3.Vector{Y: 1}
	Z = r3.Vector{Z: 1}
)

// Normalize returns v scaled to unit length.
// Vectors shorter than Epsilon cannot be normalized.
func Normalize(v r3.Vector) (r3.Vector, error) {
	n := v.Norm()
	if n < Epsilon {
		return r3.Vector{}, fmt.Errorf("normalizing %v: %w", v, ErrDegenerate)
	}
	return v.Mul(1 / n), nil
}

// Reject returns the component of v perpendicular to the unit vector k.
func Reject(v, k r3.Vector) r3.Vector {
	return v.Sub(k.Mul(k.Dot(v)))
}

// VectorsEqual reports whether a and b agree component-wise within Epsilon.
func VectorsEqual(a, b r3.Vector) bool {
	return scalar.EqualWithinAbs(a.X, b.X, Epsilon) &&
		scalar.EqualWithinAbs(a.Y, b.Y, Epsilon) &&
		scalar.EqualWithinAbs(a.Z, b.Z, Epsilon)
}

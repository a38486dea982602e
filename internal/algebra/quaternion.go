package algebra

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Identity is the quaternion of the null rotation.
var Identity = quat.Number{Real: 1}

// FromAxisAngle returns the unit quaternion rotating by angle (radians)
// around the unit vector axis.
func FromAxisAngle(axis r3.Vector, angle float64) quat.Number {
	s, c := math.Sincos(angle / 2)
	return quat.Number{Real: c, Imag: s * axis.X, Jmag: s * axis.Y, Kmag: s * axis.Z}
}

// Pure lifts v into a quaternion with zero real part.
func Pure(v r3.Vector) quat.Number {
	return quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
}

// VectorPart returns the imaginary components of q.
func VectorPart(q quat.Number) r3.Vector {
	return r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// Unit returns q scaled to unit norm. The zero quaternion is returned as Identity.
func Unit(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Rotate applies the rotation q to v as q·v·q*.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	q = Unit(q)
	return VectorPart(quat.Mul(quat.Mul(q, Pure(v)), quat.Conj(q)))
}

// ToMatrix converts q into the equivalent rotation matrix.
func ToMatrix(q quat.Number) Matrix {
	q = Unit(q)
	a, b, c, d := q.Real, q.Imag, q.Jmag, q.Kmag
	return Matrix{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (a*c + b*d)},
		{2 * (a*d + b*c), a*a - b*b + c*c - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (a*b + c*d), a*a - b*b - c*c + d*d},
	}
}

// Rotation returns the matrix rotating by angle around the unit vector axis.
func Rotation(axis r3.Vector, angle float64) Matrix {
	return ToMatrix(FromAxisAngle(axis, angle))
}

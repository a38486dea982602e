package algebra

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a row-major 3x3 matrix. The zero value is the null matrix.
type Matrix [3][3]float64

// IdentityMatrix is the 3x3 identity.
var IdentityMatrix = Matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// Diag builds a diagonal matrix.
func Diag(a, b, c float64) Matrix {
	return Matrix{{a, 0, 0}, {0, b, 0}, {0, 0, c}}
}

// FromColumns builds a matrix whose columns are a, b and c.
func FromColumns(a, b, c r3.Vector) Matrix {
	return Matrix{
		{a.X, b.X, c.X},
		{a.Y, b.Y, c.Y},
		{a.Z, b.Z, c.Z},
	}
}

// MulVec returns m·v.
func (m Matrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Mul returns m·n.
func (m Matrix) Mul(n Matrix) Matrix {
	var r Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return r
}

// Transpose returns mᵀ. For rotations this is the inverse.
func (m Matrix) Transpose() Matrix {
	var r Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[j][i]
		}
	}
	return r
}

// Col returns column j.
func (m Matrix) Col(j int) r3.Vector {
	return r3.Vector{X: m[0][j], Y: m[1][j], Z: m[2][j]}
}

// Equal reports whether every element of m and n agrees within Epsilon.
func (m Matrix) Equal(n Matrix) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !scalar.EqualWithinAbs(m[i][j], n[i][j], Epsilon) {
				return false
			}
		}
	}
	return true
}

func (m Matrix) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// Solve returns x such that m·x = b.
// A singular m yields ErrDegenerate.
func (m Matrix) Solve(b r3.Vector) (r3.Vector, error) {
	var x mat.VecDense
	if err := x.SolveVec(m.dense(), mat.NewVecDense(3, []float64{b.X, b.Y, b.Z})); err != nil {
		return r3.Vector{}, fmt.Errorf("solving linear system: %w", ErrDegenerate)
	}
	return r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}, nil
}

// Inverse returns m⁻¹, or ErrDegenerate when m is singular.
func (m Matrix) Inverse() (Matrix, error) {
	var inv mat.Dense
	if err := inv.Inverse(m.dense()); err != nil {
		return Matrix{}, fmt.Errorf("inverting matrix: %w", ErrDegenerate)
	}
	var r Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = inv.At(i, j)
		}
	}
	return r, nil
}

// Frame returns the orthonormal basis whose columns are â, the part of b
// perpendicular to a normalized, and their cross product.
// It fails when a is null or b is parallel to a.
func Frame(a, b r3.Vector) (Matrix, error) {
	u, err := Normalize(a)
	if err != nil {
		return Matrix{}, err
	}
	v, err := Normalize(Reject(b, u))
	if err != nil {
		return Matrix{}, err
	}
	return FromColumns(u, v, u.Cross(v)), nil
}

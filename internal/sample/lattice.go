package sample

import (
	"fmt"
	"math"

	"github.com/stuwilkins/hkl/internal/algebra"
)

// Lattice holds direct cell parameters. Lengths are Å, angles radians.
type Lattice struct {
	A, B, C            float64
	Alpha, Beta, Gamma float64
}

// Cubic returns a cubic lattice of side a.
func Cubic(a float64) Lattice {
	return Lattice{A: a, B: a, C: a, Alpha: math.Pi / 2, Beta: math.Pi / 2, Gamma: math.Pi / 2}
}

// NewLattice validates and returns a lattice.
func NewLattice(a, b, c, alpha, beta, gamma float64) (Lattice, error) {
	l := Lattice{A: a, B: b, C: c, Alpha: alpha, Beta: beta, Gamma: gamma}
	if a <= 0 || b <= 0 || c <= 0 {
		return Lattice{}, fmt.Errorf("lengths %.4f %.4f %.4f: %w", a, b, c, ErrInvalidLattice)
	}
	for _, ang := range []float64{alpha, beta, gamma} {
		if ang <= 0 || ang >= math.Pi {
			return Lattice{}, fmt.Errorf("angle %.4f: %w", ang, ErrInvalidLattice)
		}
	}
	if l.volumeFactor() <= algebra.Epsilon {
		return Lattice{}, fmt.Errorf("angles %.4f %.4f %.4f do not close a cell: %w", alpha, beta, gamma, ErrInvalidLattice)
	}
	return l, nil
}

func (l Lattice) volumeFactor() float64 {
	ca, cb, cg := math.Cos(l.Alpha), math.Cos(l.Beta), math.Cos(l.Gamma)
	return 1 - ca*ca - cb*cb - cg*cg + 2*ca*cb*cg
}

// Volume returns the direct cell volume.
func (l Lattice) Volume() float64 {
	return l.A * l.B * l.C * math.Sqrt(l.volumeFactor())
}

// Reciprocal returns the reciprocal lattice with the 2π convention.
func (l Lattice) Reciprocal() Lattice {
	v := l.Volume()
	sa, sb, sg := math.Sin(l.Alpha), math.Sin(l.Beta), math.Sin(l.Gamma)
	ca, cb, cg := math.Cos(l.Alpha), math.Cos(l.Beta), math.Cos(l.Gamma)
	return Lattice{
		A:     2 * math.Pi * l.B * l.C * sa / v,
		B:     2 * math.Pi * l.A * l.C * sb / v,
		C:     2 * math.Pi * l.A * l.B * sg / v,
		Alpha: math.Acos((cb*cg - ca) / (sb * sg)),
		Beta:  math.Acos((ca*cg - cb) / (sa * sg)),
		Gamma: math.Acos((ca*cb - cg) / (sa * sb)),
	}
}

// Basis returns the Busing-Levy matrix taking hkl to the crystal cartesian frame.
func (l Lattice) Basis() algebra.Matrix {
	r := l.Reciprocal()
	return algebra.Matrix{
		{r.A, r.B * math.Cos(r.Gamma), r.C * math.Cos(r.Beta)},
		{0, r.B * math.Sin(r.Gamma), -r.C * math.Sin(r.Beta) * math.Cos(l.Alpha)},
		{0, 0, 2 * math.Pi / l.C},
	}
}

// Package sample supplies the crystal orientation consumed by the hkl
// engines: a lattice giving the reciprocal basis B and an orientation U,
// combined as UB = U·B.
package sample

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/stuwilkins/hkl/internal/algebra"
	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
)

var (
	ErrInvalidLattice    = errors.New("invalid lattice")
	ErrUnknownReflection = errors.New("unknown reflection")
)

// DefaultLatticeA is the cubic cell used by a fresh sample.
const DefaultLatticeA = 1.54

// Reflection is an indexed reflection observed at a given geometry.
type Reflection struct {
	H, K, L  float64
	Geometry *geometry.Geometry
	Detector detector.Detector
}

// Sample is a crystal with lattice and orientation.
type Sample struct {
	Name string

	lattice     Lattice
	u           algebra.Matrix
	ux, uy, uz  float64
	reflections []Reflection
}

// New returns a cubic sample with identity orientation.
func New(name string) *Sample {
	return &Sample{Name: name, lattice: Cubic(DefaultLatticeA), u: algebra.IdentityMatrix}
}

func (s *Sample) Lattice() Lattice { return s.lattice }

func (s *Sample) SetLattice(l Lattice) error {
	v, err := NewLattice(l.A, l.B, l.C, l.Alpha, l.Beta, l.Gamma)
	if err != nil {
		return err
	}
	s.lattice = v
	return nil
}

// SetU orients the crystal by successive rotations around x, y and z.
func (s *Sample) SetU(ux, uy, uz float64) {
	s.ux, s.uy, s.uz = ux, uy, uz
	s.u = algebra.Rotation(algebra.X, ux).
		Mul(algebra.Rotation(algebra.Y, uy)).
		Mul(algebra.Rotation(algebra.Z, uz))
}

// UAngles returns the angles last given to SetU.
func (s *Sample) UAngles() (ux, uy, uz float64) { return s.ux, s.uy, s.uz }

// SetUMatrix replaces U directly. It must be a rotation.
func (s *Sample) SetUMatrix(u algebra.Matrix) error {
	if !u.Transpose().Mul(u).Equal(algebra.IdentityMatrix) {
		return fmt.Errorf("U is not orthonormal: %w", algebra.ErrDegenerate)
	}
	s.u = u
	return nil
}

func (s *Sample) U() algebra.Matrix { return s.u }

// B returns the reciprocal basis matrix.
func (s *Sample) B() algebra.Matrix { return s.lattice.Basis() }

// UB returns the orientation matrix.
func (s *Sample) UB() algebra.Matrix { return s.u.Mul(s.lattice.Basis()) }

// ReciprocalBasis returns a*, b* and c* in the crystal cartesian frame.
func (s *Sample) ReciprocalBasis() [3]r3.Vector {
	b := s.B()
	return [3]r3.Vector{b.Col(0), b.Col(1), b.Col(2)}
}

// AddReflection records hkl observed at a snapshot of g. It returns the
// reflection index.
func (s *Sample) AddReflection(g *geometry.Geometry, d detector.Detector, h, k, l float64) int {
	s.reflections = append(s.reflections, Reflection{H: h, K: k, L: l, Geometry: g.Clone(), Detector: d})
	return len(s.reflections) - 1
}

func (s *Sample) Reflections() []Reflection {
	return append([]Reflection(nil), s.reflections...)
}

// ComputeUBBusingLevy orients U from reflections i and j. The lattice is
// left untouched.
func (s *Sample) ComputeUBBusingLevy(i, j int) error {
	if i < 0 || j < 0 || i >= len(s.reflections) || j >= len(s.reflections) {
		return fmt.Errorf("reflections %d, %d of %d: %w", i, j, len(s.reflections), ErrUnknownReflection)
	}
	b := s.B()
	r1, r2 := s.reflections[i], s.reflections[j]

	tc, err := algebra.Frame(
		b.MulVec(r3.Vector{X: r1.H, Y: r1.K, Z: r1.L}),
		b.MulVec(r3.Vector{X: r2.H, Y: r2.K, Z: r2.L}),
	)
	if err != nil {
		return fmt.Errorf("crystal frame: %w", err)
	}
	tphi, err := algebra.Frame(r1.sampleQ(), r2.sampleQ())
	if err != nil {
		return fmt.Errorf("sample frame: %w", err)
	}
	s.u = tphi.Mul(tc.Transpose())
	return nil
}

// sampleQ is the scattering vector expressed in the frame of the sample holder.
func (r Reflection) sampleQ() r3.Vector {
	return r.Geometry.SampleRotation().Transpose().MulVec(r.Detector.ScatteringVector(r.Geometry))
}

// Clone returns an independent copy.
func (s *Sample) Clone() *Sample {
	c := *s
	c.reflections = make([]Reflection, len(s.reflections))
	for i, r := range s.reflections {
		r.Geometry = r.Geometry.Clone()
		c.reflections[i] = r
	}
	return &c
}

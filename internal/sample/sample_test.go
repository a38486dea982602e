package sample

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"

	"github.com/stuwilkins/hkl/internal/algebra"
	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
)

const deg = math.Pi / 180

func TestDefaultSample_CubicB(t *testing.T) {
	s := New("default")
	tau := 2 * math.Pi / DefaultLatticeA
	require.True(t, s.B().Equal(algebra.Diag(tau, tau, tau)))
	require.True(t, s.UB().Equal(s.B()))
}

func TestNewLattice_Invalid(t *testing.T) {
	tests := []struct {
		name             string
		a, b, c          float64
		alpha, beta, gam float64
	}{
		{"negative length", -1, 1, 1, 90 * deg, 90 * deg, 90 * deg},
		{"flat angle", 1, 1, 1, 180 * deg, 90 * deg, 90 * deg},
		{"open cell", 1, 1, 1, 120 * deg, 120 * deg, 120 * deg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLattice(tt.a, tt.b, tt.c, tt.alpha, tt.beta, tt.gam)
			require.ErrorIs(t, err, ErrInvalidLattice)
		})
	}
}

func TestLattice_HexagonalB(t *testing.T) {
	l, err := NewLattice(2, 2, 5, 90*deg, 90*deg, 120*deg)
	require.NoError(t, err)
	require.Equal(t, 2.0, l.B)
	b := l.Basis()

	aStar := 2 * math.Pi / (2 * math.Sin(120*deg))
	require.InDelta(t, aStar, b.MulVec(r3.Vector{X: 1}).Norm(), 1e-9)
	require.InDelta(t, aStar, b.MulVec(r3.Vector{Y: 1}).Norm(), 1e-9)
	require.InDelta(t, 2*math.Pi/5, b.MulVec(r3.Vector{Z: 1}).Norm(), 1e-9)
	// a* and b* of a hexagonal cell are 60 degrees apart.
	cos := b.Col(0).Dot(b.Col(1)) / (b.Col(0).Norm() * b.Col(1).Norm())
	require.InDelta(t, 0.5, cos, 1e-9)
}

func TestSetU(t *testing.T) {
	s := New("u")
	s.SetU(math.Pi/2, 0, 0)
	got := s.U().MulVec(algebra.Y)
	require.True(t, algebra.VectorsEqual(got, algebra.Z), "U·y = %v", got)

	require.Error(t, s.SetUMatrix(algebra.Diag(2, 1, 1)))
}

func TestComputeUBBusingLevy_RecoversU(t *testing.T) {
	truth := New("truth")
	truth.SetU(0.3, -0.2, 0.5)
	ubInv, err := truth.UB().Inverse()
	require.NoError(t, err)

	d := detector.New0D()
	fresh := New("fresh")
	for _, v := range [][]float64{{30, 0, 0, 60}, {45, 10, 135, 90}} {
		g, err := geometry.New("E4CV")
		require.NoError(t, err)
		require.NoError(t, g.SetValues(v[0]*deg, v[1]*deg, v[2]*deg, v[3]*deg))
		hkl := ubInv.MulVec(g.SampleRotation().Transpose().MulVec(d.ScatteringVector(g)))
		fresh.AddReflection(g, d, hkl.X, hkl.Y, hkl.Z)
	}

	require.NoError(t, fresh.ComputeUBBusingLevy(0, 1))
	require.True(t, fresh.U().Equal(truth.U()), "U = %v, want %v", fresh.U(), truth.U())

	require.ErrorIs(t, fresh.ComputeUBBusingLevy(0, 5), ErrUnknownReflection)
}

func TestClone_Independent(t *testing.T) {
	s := New("a")
	g, err := geometry.New("E4CV")
	require.NoError(t, err)
	s.AddReflection(g, detector.New0D(), 0, 0, 1)

	c := s.Clone()
	c.SetU(0.1, 0, 0)
	require.NoError(t, c.Reflections()[0].Geometry.SetValues(1, 0, 0, 0))

	require.True(t, s.U().Equal(algebra.IdentityMatrix))
	require.InDelta(t, 0, s.Reflections()[0].Geometry.Values()[0], 0)
}

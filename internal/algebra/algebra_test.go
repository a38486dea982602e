package algebra

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func TestRotate_QuarterTurn(t *testing.T) {
	got := Rotate(FromAxisAngle(Z, math.Pi/2), X)
	if !VectorsEqual(got, Y) {
		t.Errorf("Rz(90)·x = %v, want %v", got, Y)
	}
}

func TestToMatrix_MatchesRotate(t *testing.T) {
	axis, _ := Normalize(r3.Vector{X: 1, Y: -2, Z: 0.5})
	q := FromAxisAngle(axis, 1.234)
	v := r3.Vector{X: 0.3, Y: 0.7, Z: -1.1}
	if got, want := ToMatrix(q).MulVec(v), Rotate(q, v); !VectorsEqual(got, want) {
		t.Errorf("matrix rotation = %v, quaternion rotation = %v", got, want)
	}
}

func TestNormalize_Zero(t *testing.T) {
	_, err := Normalize(r3.Vector{})
	if !errors.Is(err, ErrDegenerate) {
		t.Fatalf("Normalize(0) error = %v, want ErrDegenerate", err)
	}
}

func TestMatrix_InverseAndSolve(t *testing.T) {
	m := Matrix{{2, 0, 1}, {0, 3, 0}, {1, 0, 4}}
	inv, err := m.Inverse()
	require.NoError(t, err)
	require.True(t, m.Mul(inv).Equal(IdentityMatrix))

	x, err := m.Solve(r3.Vector{X: 3, Y: 3, Z: 5})
	require.NoError(t, err)
	require.True(t, VectorsEqual(x, r3.Vector{X: 1, Y: 1, Z: 1}), "x = %v", x)

	_, err = Matrix{}.Inverse()
	require.ErrorIs(t, err, ErrDegenerate)
}

func TestFrame_Orthonormal(t *testing.T) {
	f, err := Frame(r3.Vector{X: 1, Y: 1}, r3.Vector{Z: 2, X: 1})
	require.NoError(t, err)
	require.True(t, f.Transpose().Mul(f).Equal(IdentityMatrix))

	_, err = Frame(X, X.Mul(3))
	require.ErrorIs(t, err, ErrDegenerate)
}

func TestAngleAbout(t *testing.T) {
	theta, ok := AngleAbout(Z, X, Y, 0)
	if !ok || math.Abs(theta-math.Pi/2) > Epsilon {
		t.Errorf("AngleAbout(z, x, y) = %.6f, %v, want pi/2", theta, ok)
	}

	theta, ok = AngleAbout(Z, Z, Z, 0.25)
	if !ok || theta != 0.25 {
		t.Errorf("AngleAbout on axis = %.6f, %v, want fallback 0.25", theta, ok)
	}

	if _, ok := AngleAbout(Z, X, Z, 0); ok {
		t.Error("AngleAbout(z, x, z) succeeded, want failure")
	}
}

func TestRotationPair_Recovers(t *testing.T) {
	p := r3.Vector{X: 0.2, Y: 0.5, Z: 0.8}
	q := Rotate(FromAxisAngle(Z, 0.3), Rotate(FromAxisAngle(X, -0.7), p))

	sols := RotationPair(Z, X, p, q, 0, 0)
	require.NotEmpty(t, sols)
	found := false
	for _, s := range sols {
		got := Rotate(FromAxisAngle(Z, s.A), Rotate(FromAxisAngle(X, s.B), p))
		require.True(t, VectorsEqual(got, q), "pair %+v maps p to %v, want %v", s, got, q)
		if math.Abs(s.A-0.3) < Epsilon && math.Abs(s.B+0.7) < Epsilon {
			found = true
		}
	}
	require.True(t, found, "expected (0.3, -0.7) among %+v", sols)
}

func TestRotationPair_ParallelAxesPinSecond(t *testing.T) {
	sols := RotationPair(Z, Z, X, Y, 0, 0.1)
	require.Len(t, sols, 1)
	require.Equal(t, 0.1, sols[0].B)
	require.InDelta(t, math.Pi/2-0.1, sols[0].A, Epsilon)
}

func TestRotationOffset(t *testing.T) {
	sols := RotationOffset(Z, X, X, math.Cos(0.4), 0)
	require.Len(t, sols, 2)
	for _, s := range sols {
		require.InDelta(t, 0.4, math.Abs(s), Epsilon)
	}

	require.Empty(t, RotationOffset(Z, X, X, 2, 0))
	require.Equal(t, []float64{0.5}, RotationOffset(Z, Z, Z, 1, 0.5))
	require.Empty(t, RotationOffset(Z, Z, Z, 0.3, 0.5))
}

func TestChain_SolveThree(t *testing.T) {
	c := Chain{
		Axes:   []r3.Vector{Y.Mul(-1), X, Y.Mul(-1)},
		Values: []float64{0.4, -0.9, 1.3},
	}
	target := c.Orientation()

	start := Chain{Axes: c.Axes, Values: []float64{0, 0, 0}}
	sols := start.SolveThree(0, 1, 2, target)
	require.NotEmpty(t, sols)
	for _, v := range sols {
		got := Chain{Axes: c.Axes, Values: v}.Orientation()
		require.True(t, got.Equal(target), "solution %v does not reproduce target", v)
	}
}

func TestChain_SolvePairAndOne(t *testing.T) {
	c := Chain{
		Axes:   []r3.Vector{Y.Mul(-1), X, Y.Mul(-1)},
		Values: []float64{0.2, 0.3, -0.5},
	}
	p := r3.Vector{X: 0.3, Y: 0.4, Z: 0.2}
	tgt := Rotation(Y.Mul(-1), 0.7).Mul(Rotation(X, -0.2)).Mul(Rotation(Y.Mul(-1), -0.5)).MulVec(p)

	sols := c.SolvePair(0, 1, p, tgt)
	require.NotEmpty(t, sols)
	for _, v := range sols {
		got := Chain{Axes: c.Axes, Values: v}.Orientation().MulVec(p)
		require.True(t, VectorsEqual(got, tgt), "solution %v maps p to %v", v, got)
		require.Equal(t, -0.5, v[2])
	}

	w := r3.Vector{X: 1}
	want := 0.25
	for _, v := range c.SolveOne(2, p, w, want) {
		got := Chain{Axes: c.Axes, Values: v}.Orientation().MulVec(p).Dot(w)
		require.InDelta(t, want, got, Epsilon)
	}
}

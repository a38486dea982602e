package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"

	"github.com/stuwilkins/hkl/internal/algebra"
)

func rad(d ...float64) []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = v * math.Pi / 180
	}
	return out
}

func mustNew(t *testing.T, typ string) *Geometry {
	t.Helper()
	g, err := New(typ)
	require.NoError(t, err)
	return g
}

func TestNew_Types(t *testing.T) {
	tests := []struct {
		typ  string
		axes []string
	}{
		{"E4CV", []string{"omega", "chi", "phi", "tth"}},
		{"E4CH", []string{"omega", "chi", "phi", "tth"}},
		{"K4CV", []string{"komega", "kappa", "kphi", "tth"}},
		{"E6C", []string{"mu", "omega", "chi", "phi", "gamma", "delta"}},
		{"K6C", []string{"mu", "komega", "kappa", "kphi", "gamma", "delta"}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			g := mustNew(t, tt.typ)
			require.Equal(t, tt.axes, g.AxisNames())
			require.Len(t, g.Holders(), 2)
			require.InDelta(t, 1.54, g.Source.Wavelength, 1e-12)
		})
	}
	require.Equal(t, []string{"E4CV", "E4CH", "K4CV", "E6C", "K6C"}, Types())

	_, err := New("Z9")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestSetValues_CountMismatch(t *testing.T) {
	g := mustNew(t, "E4CV")
	require.ErrorIs(t, g.SetValues(1, 2, 3), ErrCountMismatch)
	require.NoError(t, g.SetValues(rad(30, 0, 0, 60)...))
	require.InDeltaSlice(t, rad(30, 0, 0, 60), g.Values(), 1e-12)
}

func TestSetAxisValue_Range(t *testing.T) {
	g := mustNew(t, "E4CV")
	require.ErrorIs(t, g.SetAxisValue("omega", 4), ErrRange)
	require.ErrorIs(t, g.SetAxisValue("nu", 0), ErrUnknownAxis)

	a, err := g.AxisRef("omega")
	require.NoError(t, err)
	a.ClearRange()
	require.NoError(t, g.SetAxisValue("omega", 4))
	require.True(t, g.InRange())
}

func TestScatteringVector(t *testing.T) {
	g := mustNew(t, "E4CV")
	require.NoError(t, g.SetValues(rad(30, 0, 0, 60)...))
	k := g.Source.WaveNumber()

	q := g.ScatteringVector(DetectorHolder)
	want := r3.Vector{X: -0.5 * k, Z: math.Sqrt(3) / 2 * k}
	if !algebra.VectorsEqual(q, want) {
		t.Errorf("Q = %v, want %v", q, want)
	}
	if math.Abs(q.Norm()-k) > algebra.Epsilon {
		t.Errorf("|Q| = %.6f, want %.6f", q.Norm(), k)
	}
}

func TestHolderOrientation_Order(t *testing.T) {
	g := mustNew(t, "E4CV")
	require.NoError(t, g.SetValues(rad(10, 20, 30, 0)...))
	want := algebra.Rotation(r3.Vector{Y: -1}, rad(10)[0]).
		Mul(algebra.Rotation(r3.Vector{X: 1}, rad(20)[0])).
		Mul(algebra.Rotation(r3.Vector{Y: -1}, rad(30)[0]))
	require.True(t, g.SampleRotation().Equal(want))

	reversed := algebra.Rotation(r3.Vector{Y: -1}, rad(30)[0]).
		Mul(algebra.Rotation(r3.Vector{X: 1}, rad(20)[0])).
		Mul(algebra.Rotation(r3.Vector{Y: -1}, rad(10)[0]))
	require.False(t, g.SampleRotation().Equal(reversed))
}

func TestEqualDistanceClone(t *testing.T) {
	a := mustNew(t, "E4CV")
	b := a.Clone()
	require.True(t, a.Equal(b))

	require.NoError(t, b.SetValues(0.1, -0.2, 0, 0.3))
	require.False(t, a.Equal(b))
	require.InDelta(t, 0.6, a.Distance(b), 1e-12)
	require.InDeltaSlice(t, []float64{0, 0, 0, 0}, a.Values(), 0)
}

func TestClosestTo(t *testing.T) {
	g := mustNew(t, "E4CV")
	ref := g.Clone()
	require.NoError(t, g.SetValues(rad(350, -350, 170, 0)...))
	require.True(t, g.ClosestTo(ref))
	require.InDeltaSlice(t, rad(-10, 10, 170, 0), g.Values(), 1e-9)

	a, err := g.AxisRef("omega")
	require.NoError(t, err)
	a.SetRange(Range{Min: 0, Max: rad(10)[0]})
	require.NoError(t, g.SetValues(rad(90, 0, 0, 0)...))
	require.False(t, g.ClosestTo(ref))
}

func TestList(t *testing.T) {
	ref := mustNew(t, "E4CV")
	l := NewList(ref.Type)

	far := ref.Clone()
	require.NoError(t, far.SetValues(1, 1, 0, 0))
	near := ref.Clone()
	require.NoError(t, near.SetValues(0.5, 0, 0, 0))
	tie := ref.Clone()
	require.NoError(t, tie.SetValues(0, 0.5, 0, 0))

	require.True(t, l.Add(far))
	require.True(t, l.Add(near))
	require.True(t, l.Add(tie))
	dup := near.Clone()
	require.NoError(t, dup.SetValues(0.5+1e-9, 0, 0, 0))
	require.False(t, l.Add(dup))
	require.Equal(t, 3, l.Len())

	l.SortByDistance(ref)
	require.True(t, l.At(0).Equal(near))
	require.True(t, l.At(1).Equal(tie))
	require.True(t, l.At(2).Equal(far))

	out := ref.Clone()
	require.NoError(t, out.SetValues(4, 0, 0, 0))
	l.Add(out)
	l.FilterValid()
	require.Equal(t, 3, l.Len())
}

func TestKappaConversion(t *testing.T) {
	alpha := rad(50)[0]
	for _, k := range [][3]float64{{0.3, -1.2, 2.0}, {-2.5, 0.7, -0.4}, {1.1, 2.9, 0}} {
		g := mustNew(t, "K4CV")
		require.NoError(t, g.SetValues(k[0], k[1], k[2], 0))
		for sol := 0; sol < 2; sol++ {
			o, c, p := KappaToEulerian(alpha, k[0], k[1], k[2], sol)
			e := mustNew(t, "E4CV")
			require.NoError(t, e.SetValues(o, c, p, 0))
			require.True(t, e.SampleRotation().Equal(g.SampleRotation()), "branch %d of %v", sol, k)

			ko, ka, kp, err := EulerianToKappa(alpha, o, c, p, sol)
			require.NoError(t, err)
			back := mustNew(t, "K4CV")
			require.NoError(t, back.SetValues(ko, ka, kp, 0))
			require.True(t, back.SampleRotation().Equal(g.SampleRotation()))
		}
	}

	_, _, _, err := EulerianToKappa(alpha, 0, rad(120)[0], 0, 1)
	require.ErrorIs(t, err, ErrRange)
}

func TestEulerianView(t *testing.T) {
	g := mustNew(t, "K6C")
	require.NoError(t, g.SetValues(0.1, 0.4, -0.8, 1.2, 0.2, 0.5))

	view, err := g.EulerianView()
	require.NoError(t, err)
	require.Equal(t, []string{"mu", "omega", "chi", "phi", "gamma", "delta"}, view.AxisNames())
	require.True(t, view.SampleRotation().Equal(g.SampleRotation()))

	back, err := g.FromEulerianView(view)
	require.NoError(t, err)
	require.Len(t, back, 2)
	for _, b := range back {
		require.True(t, b.SampleRotation().Equal(g.SampleRotation()))
		require.InDelta(t, 0.5, b.Values()[5], 1e-12)
	}
}

func TestKappaToEulerian_WrappedKappa(t *testing.T) {
	alpha := rad(50)[0]
	g := mustNew(t, "K4CV")
	kappa, err := g.AxisRef("kappa")
	require.NoError(t, err)
	kappa.ClearRange()
	require.NoError(t, g.SetValues(rad(10, 330, 20, 0)...))

	for sol := 0; sol < 2; sol++ {
		o, c, p := KappaToEulerian(alpha, rad(10)[0], rad(330)[0], rad(20)[0], sol)
		w := func(v float64) float64 { return math.Remainder(v, 2*math.Pi) }
		e := mustNew(t, "E4CV")
		require.NoError(t, e.SetValues(w(o), w(c), w(p), 0))
		require.True(t, e.SampleRotation().Equal(g.SampleRotation()), "branch %d", sol)
	}

	view, err := g.EulerianView()
	require.NoError(t, err)
	require.True(t, view.SampleRotation().Equal(g.SampleRotation()))
}

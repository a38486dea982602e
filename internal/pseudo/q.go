package pseudo

import (
	"math"

	"github.com/stuwilkins/hkl/internal/algebra"
	"github.com/stuwilkins/hkl/internal/geometry"
)

// qMode reads |Q| from a single detector axis, keeping its sign.
type qMode struct {
	base
	axis string
}

func (m *qMode) Get(in Inputs) ([]float64, error) {
	a, err := in.Geometry.Axis(m.axis)
	if err != nil {
		return nil, err
	}
	k := in.Geometry.Source.WaveNumber()
	return []float64{2 * k * math.Sin(math.Remainder(a.Value(), 2*math.Pi)/2)}, nil
}

func (m *qMode) Set(in Inputs, targets []float64) ([]*geometry.Geometry, error) {
	g := in.Geometry
	i, err := g.AxisIndex(m.axis)
	if err != nil {
		return nil, err
	}
	x := targets[0] / (2 * g.Source.WaveNumber())
	if math.Abs(x) > 1 {
		return nil, nil
	}
	c := g.Clone()
	vals := c.Values()
	vals[i] = 2 * math.Asin(x)
	if err := c.SetValues(vals...); err != nil {
		return nil, err
	}
	return []*geometry.Geometry{c}, nil
}

func (m *qMode) Clone() Mode {
	return &qMode{base: m.base.clone(), axis: m.axis}
}

// q2Mode drives a two-axis detector to a scattering vector of magnitude q
// whose outgoing beam sits at azimuth alpha around the incident beam.
type q2Mode struct {
	base
	axes []string
}

func (m *q2Mode) Get(in Inputs) ([]float64, error) {
	g := in.Geometry
	kf := in.Detector.Kf(g)
	k := g.Source.WaveNumber()
	u, err := algebra.Normalize(kf)
	if err != nil {
		return nil, err
	}
	tth := math.Acos(math.Max(-1, math.Min(1, u.Dot(g.Source.Direction))))
	return []float64{2 * k * math.Sin(tth/2), math.Atan2(kf.Z, kf.Y)}, nil
}

func (m *q2Mode) Set(in Inputs, targets []float64) ([]*geometry.Geometry, error) {
	g := in.Geometry
	x := targets[0] / (2 * g.Source.WaveNumber())
	if x > 1 {
		return nil, nil
	}
	tth := 2 * math.Asin(x)
	alpha := targets[1]
	st, ct := math.Sincos(tth)
	sa, ca := math.Sincos(alpha)
	t := algebra.X.Mul(ct).Add(algebra.Y.Mul(st * ca)).Add(algebra.Z.Mul(st * sa))

	s := solver{detector: m.axes}
	dp, err := s.positions(g, in.Detector.Holder, m.axes)
	if err != nil {
		return nil, err
	}
	var out []*geometry.Geometry
	for _, v := range g.HolderChain(in.Detector.Holder).SolvePair(dp[0], dp[1], g.Source.Direction, t) {
		c := g.Clone()
		c.SetHolderValues(in.Detector.Holder, v)
		out = append(out, c)
	}
	return out, nil
}

func (m *q2Mode) Clone() Mode {
	return &q2Mode{base: m.base.clone(), axes: m.axes}
}

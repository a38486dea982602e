package pseudo

import (
	"math"

	"github.com/stuwilkins/hkl/internal/geometry"
)

// euleriansMode exposes a kappa stage as eulerian omega, chi and phi.
// The solutions parameter picks which of the two equivalent eulerian
// triples Get reports.
type euleriansMode struct {
	base
}

func (m *euleriansMode) branch() int {
	if math.Round(m.param("solutions")) == 0 {
		return 0
	}
	return 1
}

func (m *euleriansMode) Get(in Inputs) ([]float64, error) {
	r, err := m.readings(in)
	if err != nil {
		return nil, err
	}
	return r[m.branch()], nil
}

// readings returns both eulerian triples of the kappa stage, indexed by
// branch.
func (m *euleriansMode) readings(in Inputs) ([][]float64, error) {
	idx, k, err := in.Geometry.KappaIndices()
	if err != nil {
		return nil, err
	}
	v := in.Geometry.Values()
	out := make([][]float64, 0, 2)
	for _, sol := range []int{0, 1} {
		o, c, p := geometry.KappaToEulerian(k.Alpha, v[idx[0]], v[idx[1]], v[idx[2]], sol)
		out = append(out, []float64{o, c, p})
	}
	return out, nil
}

// Set returns both kappa branches reaching the eulerian target. Targets
// with |chi| > 2·alpha have none.
func (m *euleriansMode) Set(in Inputs, targets []float64) ([]*geometry.Geometry, error) {
	idx, k, err := in.Geometry.KappaIndices()
	if err != nil {
		return nil, err
	}
	var out []*geometry.Geometry
	for _, sol := range []int{0, 1} {
		ko, ka, kp, err := geometry.EulerianToKappa(k.Alpha, targets[0], targets[1], targets[2], sol)
		if err != nil {
			continue
		}
		c := in.Geometry.Clone()
		v := c.Values()
		v[idx[0]], v[idx[1]], v[idx[2]] = ko, ka, kp
		if err := c.SetValues(v...); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *euleriansMode) Clone() Mode {
	return &euleriansMode{base: m.base.clone()}
}

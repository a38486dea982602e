package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	opt "github.com/repeale/fp-go/option"
)

// Eulerian axis names and directions used by the virtual view of a kappa
// stage.
var eulerianAxes = [3]struct {
	name string
	dir  r3.Vector
}{
	{"omega", r3.Vector{Y: -1}},
	{"chi", r3.Vector{X: 1}},
	{"phi", r3.Vector{Y: -1}},
}

// KappaToEulerian converts kappa stage angles into the eulerian triple that
// produces the same orientation. solution selects one of the two branches
// (0 or 1); both give the same rotation. kappa may lie outside [-π, π].
func KappaToEulerian(alpha, komega, kappa, kphi float64, solution int) (omega, chi, phi float64) {
	kappa = math.Remainder(kappa, 2*math.Pi)
	p :=  math.Atan(math.Tan(kappa/2) * math.Cos(alpha))
	c := 2 * math.Asin(math.Sin(kappa/2)*math.Sin(alpha))
	if solution == 1 {
		return komega + p - math.Pi/2, c, kphi + p + math.Pi/2
	}
	return komega + p + math.Pi/2, -c, kphi + p - math.Pi/2
}

// EulerianToKappa is the inverse of KappaToEulerian. Only |chi| ≤ 2·alpha
// is reachable by the kappa stage.
func EulerianToKappa(alpha, omega, chi, phi float64, solution int) (komega, kappa, kphi float64, err error) {
	if math.Abs(chi) > 2*alpha+1e-12 {
		return 0, 0, 0, fmt.Errorf("chi %.6f beyond kappa reach %.6f: %w", chi, 2*alpha, ErrRange)
	}
	p := math.Asin(clamp(math.Tan(chi/2) / math.Tan(alpha)))
	k := 2 * math.Asin(clamp(math.Sin(chi/2) / math.Sin(alpha)))
	if solution == 1 {
		return omega - p + math.Pi/2, k, phi - p - math.Pi/2, nil
	}
	return omega + p - math.Pi/2, -k, phi + p + math.Pi/2, nil
}

func clamp(x float64) float64 { return math.Max(-1, math.Min(1, x)) }

// KappaIndices returns the geometry indices of the komega, kappa and kphi
// axes along with the stage description.
func (g *Geometry) KappaIndices() ([3]int, Kappa, error) {
	var idx [3]int
	if opt.IsNone(g.kappa) {
		return idx, Kappa{}, fmt.Errorf("%s has no kappa stage: %w", g.Type, ErrUnknownAxis)
	}
	k := g.kappa.Value
	for n, name := range k.Axes {
		i, err := g.axes.Index(name)
		if err != nil {
			return idx, k, err
		}
		idx[n] = i
	}
	return idx, k, nil
}

// EulerianView returns a geometry where the kappa stage is replaced by
// unbounded omega, chi and phi axes holding the equivalent orientation.
// Geometries without a kappa stage are returned as a clone.
func (g *Geometry) EulerianView() (*Geometry, error) {
	if opt.IsNone(g.kappa) {
		return g.Clone(), nil
	}
	slots, k, err := g.KappaIndices()
	if err != nil {
		return nil, err
	}
	o, c, p := KappaToEulerian(k.Alpha,
		g.axes.At(slots[0]).value, g.axes.At(slots[1]).value, g.axes.At(slots[2]).value, 1)
	eul := [3]float64{o, c, p}

	v := newGeometry(g.Type, g.Source)
	for _, h := range g.holders {
		axes := make([]Axis, 0, len(h.Axes))
		for _, idx := range h.Axes {
			a := g.axes.At(idx)
			for n, s := range slots {
				if s == idx {
					a, err = NewAxis(eulerianAxes[n].name, eulerianAxes[n].dir)
					if err != nil {
						return nil, err
					}
					a.value = eul[n]
				}
			}
			axes = append(axes, a)
		}
		if err := v.AddHolder(h.Name, axes...); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// FromEulerianView maps a solved eulerian view back onto copies of g, one
// per reachable kappa branch. Axes other than the kappa stage are copied
// by position.
func (g *Geometry) FromEulerianView(view *Geometry) ([]*Geometry, error) {
	if opt.IsNone(g.kappa) {
		c := g.Clone()
		if err := c.SetValues(view.Values()...); err != nil {
			return nil, err
		}
		return []*Geometry{c}, nil
	}
	slots, k, err := g.KappaIndices()
	if err != nil {
		return nil, err
	}
	vals := view.Values()
	var out []*Geometry
	for _, sol := range []int{0, 1} {
		ko, ka, kp, err := EulerianToKappa(k.Alpha, vals[slots[0]], vals[slots[1]], vals[slots[2]], sol)
		if err != nil {
			continue
		}
		c := g.Clone()
		v := append([]float64(nil), vals...)
		v[slots[0]], v[slots[1]], v[slots[2]] = ko, ka, kp
		if err := c.SetValues(v...); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

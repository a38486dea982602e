// Package geometry models a diffractometer as ordered rotation axes grouped
// into holders, one carrying the sample and one the detector arm.
//
// Angles are radians throughout. A holder's orientation is the left-to-right
// product of its axes' quaternions, so the first axis listed is the outermost
// stage and the last one sits closest to the sample or detector.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	opt "github.com/repeale/fp-go/option"
	"gonum.org/v1/gonum/num/quat"

	"github.com/stuwilkins/hkl/internal/algebra"
	"github.com/stuwilkins/hkl/internal/named"
)

var (
	ErrRange         = errors.New("value out of range")
	ErrUnknownAxis   = errors.New("unknown axis")
	ErrDuplicateAxis = errors.New("duplicate axis")
	ErrCountMismatch = errors.New("value count mismatch")
	ErrUnknownType   = errors.New("unknown geometry type")
)

// Holder indices used by every built-in geometry.
const (
	SampleHolder   = 0
	DetectorHolder = 1
)

// Holder is a named group of axes, referenced by index into the geometry.
type Holder struct {
	Name string
	Axes []int
}

// Source is the incident beam.
type Source struct {
	Wavelength float64
	Direction  r3.Vector
}

// WaveNumber returns k = 2π/λ.
func (s Source) WaveNumber() float64 { return 2 * math.Pi / s.Wavelength }

// Ki returns the incident wave vector.
func (s Source) Ki() r3.Vector { return s.Direction.Mul(s.WaveNumber()) }

// Kappa describes the kappa stage of a kappa geometry: the tilt alpha of
// the kappa axis and the names of its komega, kappa and kphi axes.
type Kappa struct {
	Alpha float64
	Axes  [3]string
}

// Geometry is the mutable motor state of one instrument.
type Geometry struct {
	Type   string
	Source Source

	axes    *named.List[Axis]
	holders []Holder
	kappa   opt.Option[Kappa]
}

func newGeometry(typ string, src Source) *Geometry {
	return &Geometry{
		Type:   typ,
		Source: src,
		axes:   named.New[Axis](ErrUnknownAxis, ErrDuplicateAxis),
		kappa:  opt.None[Kappa](),
	}
}

// AddHolder appends a holder made of the given axes. Axes already present in
// the geometry are shared rather than duplicated.
func (g *Geometry) AddHolder(name string, axes ...Axis) error {
	h := Holder{Name: name}
	for _, a := range axes {
		i, err := g.axes.Index(a.Name)
		if err != nil {
			if err := g.axes.Add(a); err != nil {
				return err
			}
			i = g.axes.Len() - 1
		}
		h.Axes = append(h.Axes, i)
	}
	g.holders = append(g.holders, h)
	return nil
}

// Kappa returns the kappa stage description, if the geometry has one.
func (g *Geometry) Kappa() opt.Option[Kappa] { return g.kappa }

// HasKappa reports whether the sample stage is a kappa stage.
func (g *Geometry) HasKappa() bool { return opt.IsSome(g.kappa) }

func (g *Geometry) Len() int { return g.axes.Len() }

// Holders returns the holder list. Callers must not modify it.
func (g *Geometry) Holders() []Holder { return g.holders }

func (g *Geometry) AxisNames() []string { return g.axes.Names() }

// Axes returns copies of every axis in order.
func (g *Geometry) Axes() []Axis { return g.axes.Values() }

// Axis returns a copy of the named axis.
func (g *Geometry) Axis(name string) (Axis, error) { return g.axes.Get(name) }

func (g *Geometry) AxisIndex(name string) (int, error) { return g.axes.Index(name) }

// AxisRef returns the named axis for in-place range updates.
func (g *Geometry) AxisRef(name string) (*Axis, error) {
	i, err := g.axes.Index(name)
	if err != nil {
		return nil, err
	}
	return g.axes.Ref(i), nil
}

// Values returns the current angles in axis order.
func (g *Geometry) Values() []float64 {
	out := make([]float64, g.axes.Len())
	for i := range out {
		out[i] = g.axes.At(i).value
	}
	return out
}

// SetValues assigns every axis at once. Ranges are not checked here so
// that solvers can stage candidates; use InRange to validate.
func (g *Geometry) SetValues(values ...float64) error {
	if len(values) != g.axes.Len() {
		return fmt.Errorf("%s has %d axes, got %d values: %w", g.Type, g.axes.Len(), len(values), ErrCountMismatch)
	}
	for i, v := range values {
		g.axes.Ref(i).value = v
	}
	return nil
}

// SetAxisValue assigns one axis, enforcing its range.
func (g *Geometry) SetAxisValue(name string, v float64) error {
	a, err := g.AxisRef(name)
	if err != nil {
		return err
	}
	return a.SetValue(v)
}

// HolderOrientation returns the ordered quaternion product of holder i.
func (g *Geometry) HolderOrientation(i int) quat.Number {
	q := algebra.Identity
	for _, idx := range g.holders[i].Axes {
		q = quat.Mul(q, g.axes.At(idx).Quaternion())
	}
	return q
}

// HolderRotation returns holder i's orientation as a matrix.
func (g *Geometry) HolderRotation(i int) algebra.Matrix {
	return algebra.ToMatrix(g.HolderOrientation(i))
}

// HolderChain exposes holder i as a solver chain.
func (g *Geometry) HolderChain(i int) algebra.Chain {
	h := g.holders[i]
	c := algebra.Chain{Axes: make([]r3.Vector, len(h.Axes)), Values: make([]float64, len(h.Axes))}
	for n, idx := range h.Axes {
		a := g.axes.At(idx)
		c.Axes[n], c.Values[n] = a.Direction, a.value
	}
	return c
}

// SetHolderValues writes chain values back onto holder i.
func (g *Geometry) SetHolderValues(i int, values []float64) {
	for n, idx := range g.holders[i].Axes {
		g.axes.Ref(idx).value = values[n]
	}
}

// HolderPosition returns the position within holder i of the named axis.
func (g *Geometry) HolderPosition(i int, name string) (int, error) {
	idx, err := g.axes.Index(name)
	if err != nil {
		return -1, err
	}
	for n, a := range g.holders[i].Axes {
		if a == idx {
			return n, nil
		}
	}
	return -1, fmt.Errorf("%q not on holder %s: %w", name, g.holders[i].Name, ErrUnknownAxis)
}

// SampleRotation returns the sample holder orientation as a matrix.
func (g *Geometry) SampleRotation() algebra.Matrix {
	return g.HolderRotation(SampleHolder)
}

// Kf returns the outgoing wave vector for the detector on holder.
func (g *Geometry) Kf(holder int) r3.Vector {
	return algebra.Rotate(g.HolderOrientation(holder), g.Source.Ki())
}

// ScatteringVector returns Q = kf − ki in the lab frame.
func (g *Geometry) ScatteringVector(holder int) r3.Vector {
	return g.Kf(holder).Sub(g.Source.Ki())
}

// Equal reports whether every axis agrees within Epsilon.
func (g *Geometry) Equal(o *Geometry) bool {
	if g.axes.Len() != o.axes.Len() {
		return false
	}
	for i := 0; i < g.axes.Len(); i++ {
		if math.Abs(g.axes.At(i).value-o.axes.At(i).value) > algebra.Epsilon {
			return false
		}
	}
	return true
}

// Distance is the sum of absolute per-axis differences.
func (g *Geometry) Distance(o *Geometry) float64 {
	d := 0.0
	for i := 0; i < g.axes.Len() && i < o.axes.Len(); i++ {
		d += math.Abs(g.axes.At(i).value - o.axes.At(i).value)
	}
	return d
}

// InRange reports whether every axis honours its range.
func (g *Geometry) InRange() bool {
	for i := 0; i < g.axes.Len(); i++ {
		if !g.axes.At(i).InRange() {
			return false
		}
	}
	return true
}

// ClosestTo moves every axis to the 2π-equivalent nearest ref inside its
// range. It reports false, leaving the geometry partially updated, when an
// axis has no equivalent in range.
func (g *Geometry) ClosestTo(ref *Geometry) bool {
	for i := 0; i < g.axes.Len(); i++ {
		if !g.axes.Ref(i).closestTo(ref.axes.At(i).value) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (g *Geometry) Clone() *Geometry {
	c := *g
	c.axes = g.axes.Clone()
	c.holders = make([]Holder, len(g.holders))
	for i, h := range g.holders {
		c.holders[i] = Holder{Name: h.Name, Axes: append([]int(nil), h.Axes...)}
	}
	return &c
}

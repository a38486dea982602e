package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	opt "github.com/repeale/fp-go/option"
	"gonum.org/v1/gonum/num/quat"

	"github.com/stuwilkins/hkl/internal/algebra"
)

// Range is a closed interval [Min, Max] in the unit of the value it bounds.
type Range struct {
	Min float64 `yaml:"min" json:"min" cbor:"min"`
	Max float64 `yaml:"max" json:"max" cbor:"max"`
}

// Contains reports whether v lies in the range, allowing Epsilon of slack
// at both ends so solver round-off does not reject boundary values.
func (r Range) Contains(v float64) bool {
	return v >= r.Min-algebra.Epsilon && v <= r.Max+algebra.Epsilon
}

// Axis is a single rotation stage.
type Axis struct {
	Name      string
	Direction r3.Vector

	value float64
	limit opt.Option[Range]
}

// NewAxis returns an axis rotating around direction, which is normalized.
func NewAxis(name string, direction r3.Vector) (Axis, error) {
	d, err := algebra.Normalize(direction)
	if err != nil {
		return Axis{}, fmt.Errorf("axis %q: %w", name, err)
	}
	return Axis{Name: name, Direction: d, limit: opt.None[Range]()}, nil
}

func (a Axis) Key() string { return a.Name }

// Value returns the current angle in radians.
func (a Axis) Value() float64 { return a.value }

// SetValue assigns the angle. Values outside the range are refused, not clamped.
func (a *Axis) SetValue(v float64) error {
	if r := a.limit; opt.IsSome(r) && !r.Value.Contains(v) {
		return fmt.Errorf("axis %q value %.6f outside [%.6f, %.6f]: %w", a.Name, v, r.Value.Min, r.Value.Max, ErrRange)
	}
	a.value = v
	return nil
}

// Range returns the configured range, if any.
func (a Axis) Range() opt.Option[Range] { return a.limit }

func (a *Axis) SetRange(r Range) { a.limit = opt.Some(r) }

func (a *Axis) ClearRange() { a.limit = opt.None[Range]() }

// InRange reports whether the current value honours the range.
func (a Axis) InRange() bool {
	return opt.IsNone(a.limit) || a.limit.Value.Contains(a.value)
}

// Quaternion encodes the current rotation.
func (a Axis) Quaternion() quat.Number {
	return algebra.FromAxisAngle(a.Direction, a.value)
}

// closestTo moves the value to the 2π-equivalent nearest ref that lies in
// range. It reports false when every equivalent is out of range.
func (a *Axis) closestTo(ref float64) bool {
	base := a.value + 2*math.Pi*math.Round((ref-a.value)/(2*math.Pi))
	best, found := 0.0, false
	for _, k := range []float64{-1, 0, 1} {
		c := base + 2*math.Pi*k
		if opt.IsSome(a.limit) && !a.limit.Value.Contains(c) {
			continue
		}
		if !found || math.Abs(c-ref) < math.Abs(best-ref) {
			best, found = c, true
		}
	}
	if found {
		a.value = best
	}
	return found
}

// Package pseudo computes pseudo-axes (hkl, psi, q, eulerian angles) from a
// geometry and solves the inverse problem in closed form.
//
// An EngineList owns one geometry, detector and sample shared by all its
// engines. Each Engine has an ordered set of modes, exactly one selected,
// and moves between uninitialized and initialized states: selecting a mode
// always drops back to uninitialized.
package pseudo

import (
	"fmt"
	"math"

	"github.com/stuwilkins/hkl/internal/algebra"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/named"
)

// Engine is one family of pseudo-axes.
type Engine struct {
	name        string
	axes        *named.List[Parameter]
	modes       *named.List[Mode]
	current     int
	initialized bool
	inputs      *Inputs
}

func (e *Engine) Key() string  { return e.name }
func (e *Engine) Name() string { return e.name }

// PseudoAxes returns the pseudo-axes with their last computed values.
func (e *Engine) PseudoAxes() []Parameter { return e.axes.Values() }

// Values returns the last computed pseudo-axis values.
func (e *Engine) Values() []float64 {
	out := make([]float64, e.axes.Len())
	for i := range out {
		out[i] = e.axes.At(i).Value
	}
	return out
}

// Modes returns the mode names in order.
func (e *Engine) Modes() []string { return e.modes.Names() }

// Mode returns the selected mode.
func (e *Engine) Mode() Mode { return e.modes.At(e.current) }

// Initialized reports whether Initialize ran since the last mode change.
func (e *Engine) Initialized() bool { return e.initialized }

// SelectMode switches mode and drops back to uninitialized.
func (e *Engine) SelectMode(name string) error {
	i, err := e.modes.Index(name)
	if err != nil {
		return fmt.Errorf("engine %s: %w", e.name, err)
	}
	e.current = i
	e.initialized = false
	return nil
}

// SetParameter assigns a parameter of the selected mode.
func (e *Engine) SetParameter(name string, v float64) error {
	if err := setParamValue(e.Mode().Parameters(), name, v); err != nil {
		return fmt.Errorf("engine %s mode %s: %w", e.name, e.Mode().Name(), err)
	}
	return nil
}

// Parameters returns the selected mode's parameters.
func (e *Engine) Parameters() []Parameter { return e.Mode().Parameters().Values() }

// Initialize lets the selected mode capture reference state from the
// current geometry. A failed attempt leaves the engine uninitialized.
func (e *Engine) Initialize() error {
	if in, ok := e.Mode().(Initializer); ok {
		if err := in.Initialize(*e.inputs); err != nil {
			e.initialized = false
			return fmt.Errorf("engine %s initialize: %w", e.name, err)
		}
	}
	e.initialized = true
	return nil
}

// Get recomputes, stores and returns the pseudo-axis values.
func (e *Engine) Get() ([]float64, error) {
	vals, err := e.Mode().Get(*e.inputs)
	if err != nil {
		return nil, fmt.Errorf("engine %s get: %w", e.name, err)
	}
	for i, v := range vals {
		e.axes.Ref(i).Value = v
	}
	return vals, nil
}

// Solve returns every valid geometry realising targets, nearest to the
// current geometry first, without changing anything.
func (e *Engine) Solve(targets ...float64) (*geometry.List, error) {
	if len(targets) != e.axes.Len() {
		return nil, fmt.Errorf("engine %s takes %d values, got %d: %w", e.name, e.axes.Len(), len(targets), geometry.ErrCountMismatch)
	}
	for i, v := range targets {
		if p := e.axes.At(i); !p.Contains(v) {
			return nil, fmt.Errorf("engine %s %s = %.6f: %w", e.name, p.Name, v, geometry.ErrRange)
		}
	}
	mode := e.Mode()
	if r, ok := mode.(initRequired); ok && r.requiresInitialization() && !e.initialized {
		return nil, fmt.Errorf("engine %s mode %s: %w", e.name, mode.Name(), ErrNotInitialized)
	}

	cur := e.inputs.Geometry
	cands, err := mode.Set(*e.inputs, targets)
	if err != nil {
		return nil, fmt.Errorf("engine %s set: %w", e.name, err)
	}
	list := geometry.NewList(cur.Type)
	for _, c := range cands {
		if c.ClosestTo(cur) && e.reproduces(c, targets) {
			list.Add(c)
		}
	}
	list.FilterValid()
	list.SortByDistance(cur)
	if list.Len() == 0 {
		return nil, fmt.Errorf("engine %s mode %s %v: %w", e.name, mode.Name(), targets, ErrNoSolution)
	}
	return list, nil
}

// multiReader is implemented by modes whose Get reports one of several
// equivalent readings of the same geometry.
type multiReader interface {
	readings(in Inputs) ([][]float64, error)
}

// reproduces reports whether g reads back as targets. Angular pseudo-axes
// match modulo 2π. Candidates that cannot be read back at all, such as
// Q = 0 for hkl, are kept.
func (e *Engine) reproduces(g *geometry.Geometry, targets []float64) bool {
	in := *e.inputs
	in.Geometry = g
	var reads [][]float64
	if m, ok := e.Mode().(multiReader); ok {
		r, err := m.readings(in)
		if err != nil {
			return true
		}
		reads = r
	} else {
		v, err := e.Mode().Get(in)
		if err != nil {
			return true
		}
		reads = [][]float64{v}
	}
	for _, got := range reads {
		if e.matches(got, targets) {
			return true
		}
	}
	return false
}

func (e *Engine) matches(got, targets []float64) bool {
	if len(got) != len(targets) {
		return false
	}
	for i, t := range targets {
		d := got[i] - t
		if e.axes.At(i).Unit == UnitRadian {
			d = math.Remainder(d, 2*math.Pi)
		}
		if math.Abs(d) > algebra.Epsilon*math.Max(1, math.Abs(t)) {
			return false
		}
	}
	return true
}

// Set solves for targets and commits the solution nearest the current
// geometry. On failure the geometry is left untouched.
func (e *Engine) Set(targets ...float64) (*geometry.List, error) {
	list, err := e.Solve(targets...)
	if err != nil {
		return nil, err
	}
	if err := e.inputs.Geometry.SetValues(list.At(0).Values()...); err != nil {
		return nil, err
	}
	if _, err := e.Get(); err != nil {
		for i, v := range targets {
			e.axes.Ref(i).Value = v
		}
	}
	return list, nil
}

func (e *Engine) clone(in *Inputs) *Engine {
	c := &Engine{
		name:        e.name,
		axes:        e.axes.Clone(),
		modes:       named.New[Mode](ErrUnknownMode, ErrDuplicateName),
		current:     e.current,
		initialized: e.initialized,
		inputs:      in,
	}
	for _, m := range e.modes.Values() {
		_ = c.modes.Add(m.Clone())
	}
	return c
}

package pseudo

import (
	"errors"
	"fmt"

	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/named"
	"github.com/stuwilkins/hkl/internal/sample"
)

// EngineList holds every engine available for one geometry type.
type EngineList struct {
	inputs  *Inputs
	engines *named.List[*Engine]
}

// NewEngineList builds the engines of g's type around the shared inputs.
func NewEngineList(g *geometry.Geometry, d detector.Detector, s *sample.Sample) (*EngineList, error) {
	specs, err := enginesFor(g.Type)
	if err != nil {
		return nil, err
	}
	l := &EngineList{
		inputs:  &Inputs{Geometry: g, Detector: d, Sample: s},
		engines: named.New[*Engine](ErrUnknownEngine, ErrDuplicateName),
	}
	for _, spec := range specs {
		e, err := spec.build(l.inputs)
		if err != nil {
			return nil, fmt.Errorf("%s engine %s: %w", g.Type, spec.Name, err)
		}
		if err := l.engines.Add(e); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *EngineList) Geometry() *geometry.Geometry { return l.inputs.Geometry }
func (l *EngineList) Detector() detector.Detector  { return l.inputs.Detector }
func (l *EngineList) Sample() *sample.Sample       { return l.inputs.Sample }

// Names returns the engine names in order.
func (l *EngineList) Names() []string { return l.engines.Names() }

// Engines returns the engines in order.
func (l *EngineList) Engines() []*Engine { return l.engines.Values() }

// Engine returns the named engine.
func (l *EngineList) Engine(name string) (*Engine, error) {
	return l.engines.Get(name)
}

// Get recomputes the named engine.
func (l *EngineList) Get(name string) ([]float64, error) {
	e, err := l.Engine(name)
	if err != nil {
		return nil, err
	}
	return e.Get()
}

// Set drives the named engine to values.
func (l *EngineList) Set(name string, values ...float64) (*geometry.List, error) {
	e, err := l.Engine(name)
	if err != nil {
		return nil, err
	}
	return e.Set(values...)
}

// GetAll recomputes every engine against the shared geometry. Engines that
// cannot be evaluated in the current configuration are reported together;
// the others are still updated.
func (l *EngineList) GetAll() error {
	var errs []error
	for _, e := range l.engines.Values() {
		if _, err := e.Get(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clone returns an independent list with its own geometry and sample.
func (l *EngineList) Clone() *EngineList {
	in := &Inputs{
		Geometry: l.inputs.Geometry.Clone(),
		Detector: l.inputs.Detector,
		Sample:   l.inputs.Sample.Clone(),
	}
	c := &EngineList{inputs: in, engines: named.New[*Engine](ErrUnknownEngine, ErrDuplicateName)}
	for _, e := range l.engines.Values() {
		_ = c.engines.Add(e.clone(in))
	}
	return c
}

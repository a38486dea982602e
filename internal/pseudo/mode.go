package pseudo

import (
	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/named"
	"github.com/stuwilkins/hkl/internal/sample"
)

// Inputs is the state every engine of a list shares.
type Inputs struct {
	Geometry *geometry.Geometry
	Detector detector.Detector
	Sample   *sample.Sample
}

// Mode is one kinematic strategy of an engine.
//
// Get computes the pseudo-axis values of the current geometry. Set returns
// candidate geometries realising targets; it never mutates in.Geometry and
// returns an empty slice when no configuration exists.
type Mode interface {
	named.Named
	Name() string
	Parameters() *named.List[Parameter]
	Get(in Inputs) ([]float64, error)
	Set(in Inputs, targets []float64) ([]*geometry.Geometry, error)
	Clone() Mode
}

// Initializer is implemented by modes that capture reference state from the
// current geometry.
type Initializer interface {
	Initialize(in Inputs) error
}

// initRequired is implemented by modes whose Set needs Initialize first.
type initRequired interface {
	requiresInitialization() bool
}

type base struct {
	name   string
	params *named.List[Parameter]
}

func newBase(name string, params []Parameter) (base, error) {
	b := base{name: name, params: newParameters()}
	for _, p := range params {
		if err := b.params.Add(p); err != nil {
			return base{}, err
		}
	}
	return b, nil
}

func (b *base) Key() string                        { return b.name }
func (b *base) Name() string                       { return b.name }
func (b *base) Parameters() *named.List[Parameter] { return b.params }
func (b *base) param(name string) float64          { return paramValue(b.params, name) }
func (b *base) clone() base                        { return base{name: b.name, params: b.params.Clone()} }

package pseudo

import (
	_ "embed"
	"fmt"

	opt "github.com/repeale/fp-go/option"
	"gopkg.in/yaml.v3"

	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/named"
)

//go:embed engines.yaml
var enginesYAML []byte

type paramSpec struct {
	Name  string          `yaml:"name"`
	Value float64         `yaml:"value"`
	Unit  string          `yaml:"unit"`
	Range *geometry.Range `yaml:"range"`
}

func (p paramSpec) parameter() Parameter {
	r := opt.None[geometry.Range]()
	if p.Range != nil {
		r = opt.Some(*p.Range)
	}
	return Parameter{Name: p.Name, Value: p.Value, Unit: p.Unit, Range: r}
}

type modeSpec struct {
	Name       string      `yaml:"name"`
	Kind       string      `yaml:"kind"`
	Sample     []string    `yaml:"sample"`
	Detector   []string    `yaml:"detector"`
	Bisector   string      `yaml:"bisector"`
	Parameters []paramSpec `yaml:"parameters"`
}

type engineSpec struct {
	Name  string      `yaml:"name"`
	Axes  []paramSpec `yaml:"axes"`
	Modes []modeSpec  `yaml:"modes"`
}

type tableSpec struct {
	Geometries map[string][]engineSpec `yaml:"geometries"`
}

var table = mustLoadTable(enginesYAML)

func mustLoadTable(data []byte) tableSpec {
	var t tableSpec
	if err := yaml.Unmarshal(data, &t); err != nil {
		panic(fmt.Sprintf("engine table: %v", err))
	}
	return t
}

func enginesFor(typ string) ([]engineSpec, error) {
	specs, ok := table.Geometries[typ]
	if !ok {
		return nil, fmt.Errorf("no engines for %q: %w", typ, geometry.ErrUnknownType)
	}
	return specs, nil
}

func (s modeSpec) build() (Mode, error) {
	params := make([]Parameter, len(s.Parameters))
	for i, p := range s.Parameters {
		params[i] = p.parameter()
	}
	b, err := newBase(s.Name, params)
	if err != nil {
		return nil, err
	}
	sv := solver{kind: s.Kind, sample: s.Sample, detector: s.Detector, bisector: s.Bisector}

	switch s.Kind {
	case kindPair:
		if len(s.Sample) != 2 || len(s.Detector) != 1 {
			return nil, fmt.Errorf("mode %s: pair needs 2 sample and 1 detector axes", s.Name)
		}
		return &hklMode{base: b, solver: sv}, nil
	case kindPsiConstant, kindDoubleDiffraction:
		if len(s.Sample) != 3 || len(s.Detector) != 1 {
			return nil, fmt.Errorf("mode %s: %s needs 3 sample and 1 detector axes", s.Name, s.Kind)
		}
		return &hklMode{base: b, solver: sv}, nil
	case kindLifting:
		if len(s.Sample) != 1 || len(s.Detector) != 2 {
			return nil, fmt.Errorf("mode %s: lifting needs 1 sample and 2 detector axes", s.Name)
		}
		return &hklMode{base: b, solver: sv}, nil
	case "psi":
		sv.kind = kindPsiConstant
		return &psiMode{base: b, solver: sv}, nil
	case "q":
		return &qMode{base: b, axis: s.Detector[0]}, nil
	case "q2":
		return &q2Mode{base: b, axes: s.Detector}, nil
	case "eulerians":
		return &euleriansMode{base: b}, nil
	}
	return nil, fmt.Errorf("mode %s: unknown kind %q", s.Name, s.Kind)
}

func (s engineSpec) build(in *Inputs) (*Engine, error) {
	e := &Engine{
		name:   s.Name,
		axes:   newParameters(),
		modes:  named.New[Mode](ErrUnknownMode, ErrDuplicateName),
		inputs: in,
	}
	for _, a := range s.Axes {
		if err := e.axes.Add(a.parameter()); err != nil {
			return nil, err
		}
	}
	for _, ms := range s.Modes {
		m, err := ms.build()
		if err != nil {
			return nil, err
		}
		if err := e.modes.Add(m); err != nil {
			return nil, err
		}
	}
	if e.modes.Len() == 0 {
		return nil, fmt.Errorf("engine %s has no modes", s.Name)
	}
	return e, nil
}

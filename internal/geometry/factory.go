package geometry

import (
	_ "embed"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	opt "github.com/repeale/fp-go/option"
	"gopkg.in/yaml.v3"
)

//go:embed geometries.yaml
var geometriesYAML []byte

type axisSpec struct {
	Name      string    `yaml:"name"`
	Direction []float64 `yaml:"direction"`
	Kappa     bool      `yaml:"kappa"`
}

type holderSpec struct {
	Name string     `yaml:"name"`
	Axes []axisSpec `yaml:"axes"`
}

type kappaSpec struct {
	Alpha float64   `yaml:"alpha"`
	Axes  [3]string `yaml:"axes"`
}

type typeSpec struct {
	Type        string       `yaml:"type"`
	Description string       `yaml:"description"`
	Kappa       *kappaSpec   `yaml:"kappa"`
	Holders     []holderSpec `yaml:"holders"`
}

type tableSpec struct {
	Defaults struct {
		Wavelength float64   `yaml:"wavelength"`
		Source     []float64 `yaml:"source"`
		Range      Range     `yaml:"range"`
	} `yaml:"defaults"`
	Geometries []typeSpec `yaml:"geometries"`
}

var table = mustLoadTable(geometriesYAML)

func mustLoadTable(data []byte) tableSpec {
	var t tableSpec
	if err := yaml.Unmarshal(data, &t); err != nil {
		panic(fmt.Sprintf("geometry table: %v", err))
	}
	return t
}

func vec(v []float64) r3.Vector {
	if len(v) != 3 {
		return r3.Vector{}
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func deg(v float64) float64 { return v * math.Pi / 180 }

// KappaDirection returns the kappa axis for a stage tilted by alpha
// (radians) from the vertical omega axis.
func KappaDirection(alpha float64) r3.Vector {
	return r3.Vector{Y: -math.Cos(alpha), Z: -math.Sin(alpha)}
}

// Types lists the built-in geometry types in table order.
func Types() []string {
	out := make([]string, len(table.Geometries))
	for i, s := range table.Geometries {
		out[i] = s.Type
	}
	return out
}

// Description returns the human readable description of typ.
func Description(typ string) (string, error) {
	s, err := lookup(typ)
	if err != nil {
		return "", err
	}
	return s.Description, nil
}

func lookup(typ string) (typeSpec, error) {
	for _, s := range table.Geometries {
		if s.Type == typ {
			return s, nil
		}
	}
	return typeSpec{}, fmt.Errorf("%q: %w", typ, ErrUnknownType)
}

// New builds a geometry of the given type with every axis at zero and
// bounded by the default range.
func New(typ string) (*Geometry, error) {
	s, err := lookup(typ)
	if err != nil {
		return nil, err
	}
	src := Source{Wavelength: table.Defaults.Wavelength, Direction: vec(table.Defaults.Source)}
	g := newGeometry(s.Type, src)

	alpha := 0.0
	if s.Kappa != nil {
		alpha = deg(s.Kappa.Alpha)
		g.kappa = opt.Some(Kappa{Alpha: alpha, Axes: s.Kappa.Axes})
	}
	rng := Range{Min: deg(table.Defaults.Range.Min), Max: deg(table.Defaults.Range.Max)}

	for _, h := range s.Holders {
		axes := make([]Axis, 0, len(h.Axes))
		for _, as := range h.Axes {
			dir := vec(as.Direction)
			if as.Kappa {
				dir = KappaDirection(alpha)
			}
			a, err := NewAxis(as.Name, dir)
			if err != nil {
				return nil, fmt.Errorf("geometry %s: %w", s.Type, err)
			}
			a.SetRange(rng)
			axes = append(axes, a)
		}
		if err := g.AddHolder(h.Name, axes...); err != nil {
			return nil, fmt.Errorf("geometry %s: %w", s.Type, err)
		}
	}
	return g, nil
}

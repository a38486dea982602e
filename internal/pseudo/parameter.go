package pseudo

import (
	"errors"
	"fmt"

	opt "github.com/repeale/fp-go/option"

	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/named"
)

var (
	ErrUnknownMode      = errors.New("unknown mode")
	ErrUnknownEngine    = errors.New("unknown engine")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrNotInitialized   = errors.New("engine not initialized")
	ErrNoSolution       = errors.New("no solution")
)

// Units reported alongside values.
const (
	UnitNone        = ""
	UnitRadian      = "rad"
	UnitInverseAngs = "1/Å"
)

// Parameter is a named scalar: a pseudo-axis or a mode parameter.
type Parameter struct {
	Name  string
	Value float64
	Range opt.Option[geometry.Range]
	Unit  string
}

func (p Parameter) Key() string { return p.Name }

// Contains reports whether v honours the parameter's range, if it has one.
func (p Parameter) Contains(v float64) bool {
	return opt.IsNone(p.Range) || p.Range.Value.Contains(v)
}

func newParameters() *named.List[Parameter] {
	return named.New[Parameter](ErrUnknownParameter, ErrDuplicateName)
}

func paramValue(l *named.List[Parameter], name string) float64 {
	p, err := l.Get(name)
	if err != nil {
		return 0
	}
	return p.Value
}

func setParamValue(l *named.List[Parameter], name string, v float64) error {
	i, err := l.Index(name)
	if err != nil {
		return err
	}
	p := l.Ref(i)
	if !p.Contains(v) {
		return fmt.Errorf("%s = %.6f: %w", name, v, geometry.ErrRange)
	}
	p.Value = v
	return nil
}

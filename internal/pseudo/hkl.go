package pseudo

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/stuwilkins/hkl/internal/geometry"
)

// hklGet returns UB⁻¹·Rᵀ·Q for the current geometry.
func hklGet(in Inputs) (r3.Vector, error) {
	g := in.Geometry
	q := in.Detector.ScatteringVector(g)
	v, err := in.Sample.UB().Solve(g.SampleRotation().Transpose().MulVec(q))
	if err != nil {
		return r3.Vector{}, fmt.Errorf("hkl: %w", err)
	}
	return v, nil
}

// hklMode is any mode of the hkl engine.
type hklMode struct {
	base
	solver solver
}

func (m *hklMode) Get(in Inputs) ([]float64, error) {
	v, err := hklGet(in)
	if err != nil {
		return nil, err
	}
	return []float64{v.X, v.Y, v.Z}, nil
}

func (m *hklMode) reference() r3.Vector {
	return r3.Vector{X: m.param("h2"), Y: m.param("k2"), Z: m.param("l2")}
}

func (m *hklMode) Set(in Inputs, targets []float64) ([]*geometry.Geometry, error) {
	hkl := r3.Vector{X: targets[0], Y: targets[1], Z: targets[2]}
	return m.solver.solve(in, hkl, m.reference(), m.param("psi"))
}

// Initialize captures psi of the reference reflection for psi_constant modes.
// Other kinds have nothing to capture.
func (m *hklMode) Initialize(in Inputs) error {
	if m.solver.kind != kindPsiConstant {
		return nil
	}
	psi, err := psiGet(in, m.reference())
	if err != nil {
		return err
	}
	return setParamValue(m.params, "psi", psi)
}

func (m *hklMode) Clone() Mode {
	return &hklMode{base: m.base.clone(), solver: m.solver}
}

package pseudo

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/stuwilkins/hkl/internal/algebra"
	"github.com/stuwilkins/hkl/internal/geometry"
)

// psiGet returns the azimuth of the reference reflection ref around Q,
// measured from the scattering-plane normal. It fails when Q vanishes or
// ref is collinear with Q.
func psiGet(in Inputs, ref r3.Vector) (float64, error) {
	g := in.Geometry
	q, err := algebra.Normalize(in.Detector.ScatteringVector(g))
	if err != nil {
		return 0, fmt.Errorf("psi: scattering vector: %w", err)
	}
	n, err := planeNormal(g, in.Detector, q)
	if err != nil {
		return 0, fmt.Errorf("psi: %w", err)
	}
	h := g.SampleRotation().MulVec(in.Sample.UB().MulVec(ref))
	h, err = algebra.Normalize(algebra.Reject(h, q))
	if err != nil {
		return 0, fmt.Errorf("psi: reference along Q: %w", err)
	}
	return math.Atan2(q.Dot(n.Cross(h)), n.Dot(h)), nil
}

// psiMode rotates the sample around Q keeping the hkl captured by
// Initialize in diffraction.
type psiMode struct {
	base
	solver solver
	hkl    r3.Vector
	hasHKL bool
}

func (m *psiMode) reference() r3.Vector {
	return r3.Vector{X: m.param("h1"), Y: m.param("k1"), Z: m.param("l1")}
}

func (m *psiMode) Get(in Inputs) ([]float64, error) {
	psi, err := psiGet(in, m.reference())
	if err != nil {
		return nil, err
	}
	return []float64{psi}, nil
}

func (m *psiMode) Initialize(in Inputs) error {
	hkl, err := hklGet(in)
	if err != nil {
		return err
	}
	// psi must be defined at the captured position.
	if _, err := psiGet(in, m.reference()); err != nil {
		return err
	}
	m.hkl, m.hasHKL = hkl, true
	return nil
}

func (m *psiMode) requiresInitialization() bool { return true }

func (m *psiMode) Set(in Inputs, targets []float64) ([]*geometry.Geometry, error) {
	if !m.hasHKL {
		return nil, ErrNotInitialized
	}
	return m.solver.solve(in, m.hkl, m.reference(), targets[0])
}

func (m *psiMode) Clone() Mode {
	c := *m
	c.base = m.base.clone()
	return &c
}

package pseudo

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/stuwilkins/hkl/internal/algebra"
	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
)

// Kinds of reciprocal-space solvers.
const (
	kindPair              = "pair"
	kindDoubleDiffraction = "double_diffraction"
	kindPsiConstant       = "psi_constant"
	kindLifting           = "lifting_detector"
)

// solver places the reciprocal vector UB·hkl in diffraction by moving the
// named sample and detector axes.
//
//   - pair: one detector axis sets |Q|, two sample axes bring UB·hkl onto Q.
//     A bisector axis, when named, is first set to half the detector angle.
//   - psi_constant: three sample axes; the reference reflection is held at
//     azimuth psi around Q.
//   - double_diffraction: three sample axes; the reference reflection is
//     brought into diffraction too.
//   - lifting_detector: one sample axis, two detector axes.
type solver struct {
	kind     string
	sample   []string
	detector []string
	bisector string
}

// frame picks the geometry the solver works on: the real one when every
// sample axis exists, otherwise the eulerian view of a kappa stage.
func (s solver) frame(g *geometry.Geometry) (*geometry.Geometry, bool, error) {
	for _, name := range s.sample {
		if _, err := g.AxisIndex(name); err != nil {
			if !g.HasKappa() {
				return nil, false, err
			}
			v, err := g.EulerianView()
			return v, true, err
		}
	}
	return g.Clone(), false, nil
}

// positions returns the holder positions of names in chain order.
func (s solver) positions(g *geometry.Geometry, holder int, names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		p, err := g.HolderPosition(holder, n)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	sort.Ints(out)
	return out, nil
}

// solve returns candidate geometries for hkl. ref and psi are only used by
// the psi_constant and double_diffraction kinds.
func (s solver) solve(in Inputs, hkl, ref r3.Vector, psi float64) ([]*geometry.Geometry, error) {
	f, view, err := s.frame(in.Geometry)
	if err != nil {
		return nil, err
	}
	sp, err := s.positions(f, geometry.SampleHolder, s.sample)
	if err != nil {
		return nil, err
	}
	dp, err := s.positions(f, in.Detector.Holder, s.detector)
	if err != nil {
		return nil, err
	}

	ub := in.Sample.UB()
	hc := ub.MulVec(hkl)
	if hc.Norm() < algebra.Epsilon {
		return nil, nil
	}
	h2 := ub.MulVec(ref)

	var cands []*geometry.Geometry
	if s.kind == kindLifting {
		cands = s.lifting(f, in.Detector, sp[0], dp, hc)
	} else {
		for _, w := range detectorSolutions(f, in.Detector, dp[0], hc.Norm()) {
			cands = append(cands, s.sampleSolutions(w, in.Detector, sp, hc, h2, psi)...)
		}
	}
	if !view {
		return cands, nil
	}

	var out []*geometry.Geometry
	for _, c := range cands {
		back, err := in.Geometry.FromEulerianView(c)
		if err != nil {
			return nil, err
		}
		out = append(out, back...)
	}
	return out, nil
}

// detectorSolutions moves detector axis pos so that |Q| = qn.
func detectorSolutions(f *geometry.Geometry, d detector.Detector, pos int, qn float64) []*geometry.Geometry {
	k := f.Source.WaveNumber()
	src := f.Source.Direction
	chain := f.HolderChain(d.Holder)
	var out []*geometry.Geometry
	for _, v := range chain.SolveOne(pos, src, src, 1-qn*qn/(2*k*k)) {
		w := f.Clone()
		w.SetHolderValues(d.Holder, v)
		out = append(out, w)
	}
	return out
}

func (s solver) sampleSolutions(w *geometry.Geometry, d detector.Detector, sp []int, hc, h2 r3.Vector, psi float64) []*geometry.Geometry {
	q, err := algebra.Normalize(d.ScatteringVector(w))
	if err != nil {
		return nil
	}

	var sols [][]float64
	switch s.kind {
	case kindPair:
		if s.bisector != "" {
			if err := bisect(w, s.bisector, s.detector[0]); err != nil {
				return nil
			}
		}
		u, _ := algebra.Normalize(hc)
		sols = w.HolderChain(geometry.SampleHolder).SolvePair(sp[0], sp[1], u, q)
	case kindPsiConstant, kindDoubleDiffraction:
		var targets []algebra.Matrix
		if s.kind == kindPsiConstant {
			targets = psiConstantOrientation(w, d, q, hc, h2, psi)
		} else {
			targets = doubleDiffractionOrientations(w, q, hc, h2)
		}
		chain := w.HolderChain(geometry.SampleHolder)
		for _, t := range targets {
			sols = append(sols, chain.SolveThree(sp[0], sp[1], sp[2], t)...)
		}
	}

	out := make([]*geometry.Geometry, 0, len(sols))
	for _, v := range sols {
		c := w.Clone()
		c.SetHolderValues(geometry.SampleHolder, v)
		out = append(out, c)
	}
	return out
}

// bisect sets the bisector axis to half the detector angle.
func bisect(w *geometry.Geometry, axis, det string) error {
	i, err := w.AxisIndex(axis)
	if err != nil {
		return err
	}
	j, err := w.AxisIndex(det)
	if err != nil {
		return err
	}
	vals := w.Values()
	vals[i] = vals[j] / 2
	return w.SetValues(vals...)
}

// psiConstantOrientation returns the sample orientation mapping hc onto Q
// with the part of h2 perpendicular to hc at azimuth psi from the
// scattering-plane normal.
func psiConstantOrientation(w *geometry.Geometry, d detector.Detector, q, hc, h2 r3.Vector, psi float64) []algebra.Matrix {
	n, err := planeNormal(w, d, q)
	if err != nil {
		return nil
	}
	sin, cos := math.Sincos(psi)
	dir := n.Mul(cos).Add(q.Cross(n).Mul(sin))
	crystal, err := algebra.Frame(hc, h2)
	if err != nil {
		return nil
	}
	lab, err := algebra.Frame(q, dir)
	if err != nil {
		return nil
	}
	return []algebra.Matrix{lab.Mul(crystal.Transpose())}
}

// doubleDiffractionOrientations returns every sample orientation bringing
// both hc and h2 into diffraction. Collinear hc and h2 are rejected.
func doubleDiffractionOrientations(w *geometry.Geometry, q, hc, h2 r3.Vector) []algebra.Matrix {
	if _, err := algebra.Frame(hc, h2); err != nil {
		return nil
	}
	crystal, err := algebra.Frame(hc, algebra.Perpendicular(hc))
	if err != nil {
		return nil
	}
	lab, err := algebra.Frame(q, algebra.Perpendicular(q))
	if err != nil {
		return nil
	}
	r0 := lab.Mul(crystal.Transpose())
	p := r0.MulVec(h2)
	k := w.Source.WaveNumber()

	var out []algebra.Matrix
	for _, a := range algebra.RotationOffset(q, p, w.Source.Direction, -h2.Norm2()/(2*k), 0) {
		out = append(out, algebra.Rotation(q, a).Mul(r0))
	}
	return out
}

// lifting moves sample axis pos so that UB·hkl can reach the Ewald sphere,
// then places the detector on the outgoing beam.
func (s solver) lifting(f *geometry.Geometry, d detector.Detector, pos int, dp []int, hc r3.Vector) []*geometry.Geometry {
	src := f.Source
	k := src.WaveNumber()
	var out []*geometry.Geometry
	for _, v := range f.HolderChain(geometry.SampleHolder).SolveOne(pos, hc, src.Direction, -hc.Norm2()/(2*k)) {
		w := f.Clone()
		w.SetHolderValues(geometry.SampleHolder, v)
		kf := src.Ki().Add(w.SampleRotation().MulVec(hc))
		t, err := algebra.Normalize(kf)
		if err != nil {
			continue
		}
		for _, dv := range w.HolderChain(d.Holder).SolvePair(dp[0], dp[1], src.Direction, t) {
			c := w.Clone()
			c.SetHolderValues(d.Holder, dv)
			out = append(out, c)
		}
	}
	return out
}

// planeNormal returns the unit normal of the scattering plane, oriented as
// (kf × ki) × Q̂.
func planeNormal(g *geometry.Geometry, d detector.Detector, q r3.Vector) (r3.Vector, error) {
	kf := d.Kf(g)
	n, err := algebra.Normalize(kf.Cross(g.Source.Ki()).Cross(q))
	if err != nil {
		return r3.Vector{}, fmt.Errorf("scattering plane: %w", err)
	}
	return n, nil
}

package algebra

import "github.com/golang/geo/r3"

// Chain is an ordered list of rotation axes with their current angles.
// Its orientation is the left-to-right product R(a0,v0)·R(a1,v1)·...
type Chain struct {
	Axes   []r3.Vector
	Values []float64
}

// span returns the product of the rotations in [lo, hi).
func (c Chain) span(lo, hi int) Matrix {
	m := IdentityMatrix
	for i := lo; i < hi; i++ {
		m = m.Mul(Rotation(c.Axes[i], c.Values[i]))
	}
	return m
}

// Orientation returns the full product of the chain.
func (c Chain) Orientation() Matrix {
	return c.span(0, len(c.Axes))
}

func (c Chain) with(idx []int, vals ...float64) []float64 {
	out := append([]float64(nil), c.Values...)
	for n, i := range idx {
		out[i] = vals[n]
	}
	return out
}

// SolveOne varies axis i alone so that (R·p)·w = target, with R the chain
// orientation and p expressed in the frame after the last axis.
func (c Chain) SolveOne(i int, p, w r3.Vector, target float64) [][]float64 {
	left := c.span(0, i)
	right := c.span(i+1, len(c.Axes))
	var out [][]float64
	for _, t := range RotationOffset(c.Axes[i], right.MulVec(p), left.Transpose().MulVec(w), target, c.Values[i]) {
		out = append(out, c.with([]int{i}, t))
	}
	return out
}

// SolvePair varies axes i < j so that R·p = t.
func (c Chain) SolvePair(i, j int, p, t r3.Vector) [][]float64 {
	left := c.span(0, i)
	mid := c.span(i+1, j)
	right := c.span(j+1, len(c.Axes))
	tp := left.Transpose().MulVec(t)
	p2 := mid.MulVec(right.MulVec(p))
	b := mid.MulVec(c.Axes[j])
	var out [][]float64
	for _, s := range RotationPair(c.Axes[i], b, p2, tp, c.Values[i], c.Values[j]) {
		out = append(out, c.with([]int{i, j}, s.A, s.B))
	}
	return out
}

// SolveThree varies axes i < j < k so that the chain orientation equals target.
func (c Chain) SolveThree(i, j, k int, target Matrix) [][]float64 {
	n := len(c.Axes)
	left := c.span(0, i)
	m := c.span(i+1, j)
	nn := c.span(j+1, k)
	post := c.span(k+1, n)
	mn := m.Mul(nn)
	t := left.Transpose().Mul(target).Mul(post.Transpose()).Mul(mn.Transpose())

	a := c.Axes[i]
	b := m.MulVec(c.Axes[j])
	ck := mn.MulVec(c.Axes[k])

	var out [][]float64
	for _, s := range RotationPair(a, b, ck, t.MulVec(ck), c.Values[i], c.Values[j]) {
		rab := Rotation(a, s.A).Mul(Rotation(b, s.B))
		v0 := Perpendicular(ck)
		third, ok := AngleAbout(ck, v0, rab.Transpose().MulVec(t.MulVec(v0)), c.Values[k])
		if !ok {
			continue
		}
		out = append(out, c.with([]int{i, j, k}, s.A, s.B, third))
	}
	return out
}

// Perpendicular returns a unit vector orthogonal to v.
func Perpendicular(v r3.Vector) r3.Vector {
	p := v.Cross(X)
	if p.Norm() < 0.1 {
		p = v.Cross(Y)
	}
	return p.Normalize()
}

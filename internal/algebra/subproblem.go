package algebra

import (
	"math"

	"github.com/golang/geo/r3"
)

// The three closed-form subproblems below are the only primitives the
// pseudo-axis solvers need. Every axis k passed in must be a unit vector.

// AngleAbout returns the angle θ such that rotating p by θ around k yields q.
// When both p and q lie on k every angle works and fallback is returned.
// ok is false when no rotation maps p onto q.
func AngleAbout(k, p, q r3.Vector, fallback float64) (theta float64, ok bool) {
	if math.Abs(k.Dot(p)-k.Dot(q)) > Epsilon {
		return 0, false
	}
	pp, qq := Reject(p, k), Reject(q, k)
	np, nq := pp.Norm(), qq.Norm()
	if np < Epsilon || nq < Epsilon {
		if np < Epsilon && nq < Epsilon {
			return fallback, true
		}
		return 0, false
	}
	if math.Abs(np-nq) > Epsilon {
		return 0, false
	}
	return math.Atan2(k.Dot(pp.Cross(qq)), pp.Dot(qq)), true
}

// Pair is a solution (a, b) of RotationPair.
type Pair struct {
	A, B float64
}

// RotationPair solves R_A(a)·R_B(b)·p = q for (a, b).
// It returns zero, one or two pairs. Parallel axes leave a one-parameter
// family of solutions; b is then pinned to fb.
func RotationPair(A, B, p, q r3.Vector, fa, fb float64) []Pair {
	g := A.Dot(B)
	den := 1 - g*g
	if den < Epsilon {
		a, ok := AngleAbout(A, Rotate(FromAxisAngle(B, fb), p), q, fa)
		if !ok {
			return nil
		}
		return []Pair{{A: a, B: fb}}
	}

	x := (q.Dot(A) - g*p.Dot(B)) / den
	y := (p.Dot(B) - g*q.Dot(A)) / den
	axb := A.Cross(B)
	z2 := (p.Dot(p) - x*x - y*y - 2*x*y*g) / axb.Norm2()
	if z2 < -1e-9 {
		return nil
	}
	zs := []float64{0}
	if z2 >= 1e-12 {
		z := math.Sqrt(z2)
		zs = []float64{z, -z}
	}

	var out []Pair
	for _, z := range zs {
		c := A.Mul(x).Add(B.Mul(y)).Add(axb.Mul(z))
		b, okB := AngleAbout(B, p, c, fb)
		a, okA := AngleAbout(A, c, q, fa)
		if !okA || !okB {
			continue
		}
		out = append(out, Pair{A: a, B: b})
	}
	return out
}

// RotationOffset solves (R_k(θ)·p)·w = c for θ.
// It returns zero, one or two angles. When the equation does not depend on θ
// and already holds, fallback is the single answer.
func RotationOffset(k, p, w r3.Vector, c, fallback float64) []float64 {
	pp, ww := Reject(p, k), Reject(w, k)
	a := pp.Dot(ww)
	b := k.Dot(pp.Cross(ww))
	rhs := c - k.Dot(p)*k.Dot(w)
	r := math.Hypot(a, b)
	if r < Epsilon {
		if math.Abs(rhs) < Epsilon {
			return []float64{fallback}
		}
		return nil
	}
	if math.Abs(rhs) > r+1e-12 {
		return nil
	}
	base := math.Atan2(b, a)
	d := math.Acos(math.Max(-1, math.Min(1, rhs/r)))
	if d < 1e-12 {
		return []float64{base}
	}
	return []float64{base + d, base - d}
}

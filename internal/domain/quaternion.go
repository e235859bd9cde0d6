package domain

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is an orientation quaternion. W is the scalar part (EGM u0).
type Quaternion struct {
	W float64 `json:"w" yaml:"w"`
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quaternion {
	return Quaternion{W: n.Real, X: n.Imag, Y: n.Jmag, Z: n.Kmag}
}

// Norm returns the Euclidean length of q.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.number())
}

// IsZero reports whether q carries no orientation at all (all components zero).
func (q Quaternion) IsZero() bool {
	return q == Quaternion{}
}

// Normalized returns q scaled to unit length, or the identity if q is degenerate.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return IdentityQuaternion
	}
	return fromNumber(quat.Scale(1/n, q.number()))
}

// Dot returns the 4D inner product of q and o.
func (q Quaternion) Dot(o Quaternion) float64 {
	return q.W*o.W + q.X*o.X + q.Y*o.Y + q.Z*o.Z
}

func (q Quaternion) negate() Quaternion {
	return Quaternion{W: -q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

func (q Quaternion) isNaN() bool {
	return quat.IsNaN(q.number())
}

// Slerp interpolates from q to to along the shortest arc. The endpoints are returned
// verbatim: t <= 0 yields q and t >= 1 yields to.
func (q Quaternion) Slerp(to Quaternion, t float64) Quaternion {
	switch {
	case t <= 0:
		return q
	case t >= 1:
		return to
	}

	from := q.Normalized()
	target := to.Normalized()
	if from.Dot(target) < 0 {
		target = target.negate()
	}

	// from * (from^-1 * target)^t
	rel := quat.Mul(quat.Conj(from.number()), target.number())
	step := quat.Pow(rel, quat.Number{Real: t})
	out := fromNumber(quat.Mul(from.number(), step))
	if out.isNaN() {
		out = fromNumber(quat.Add(
			quat.Scale(1-t, from.number()),
			quat.Scale(t, target.number()),
		))
	}
	return out.Normalized()
}

// AngularDisplacement returns the rotation vector [rad] that carries from onto to,
// expressed in the base frame and taken along the shortest arc.
func AngularDisplacement(from, to Quaternion) Cartesian {
	rel := quat.Mul(to.Normalized().number(), quat.Conj(from.Normalized().number()))
	if rel.Real < 0 {
		rel = quat.Scale(-1, rel)
	}
	if rel.Imag == 0 && rel.Jmag == 0 && rel.Kmag == 0 {
		return Cartesian{}
	}
	l := quat.Log(rel)
	if quat.IsNaN(l) {
		return Cartesian{}
	}
	return Cartesian{X: 2 * l.Imag, Y: 2 * l.Jmag, Z: 2 * l.Kmag}
}

// Scale multiplies every component of c by f.
func (c Cartesian) Scale(f float64) Cartesian {
	return Cartesian{X: c.X * f, Y: c.Y * f, Z: c.Z * f}
}

// Sub returns c - o.
func (c Cartesian) Sub(o Cartesian) Cartesian {
	return Cartesian{X: c.X - o.X, Y: c.Y - o.Y, Z: c.Z - o.Z}
}

// Lerp interpolates linearly from c to o; the endpoints are returned verbatim.
func (c Cartesian) Lerp(o Cartesian, t float64) Cartesian {
	switch {
	case t <= 0:
		return c
	case t >= 1:
		return o
	}
	return Cartesian{
		X: c.X + (o.X-c.X)*t,
		Y: c.Y + (o.Y-c.Y)*t,
		Z: c.Z + (o.Z-c.Z)*t,
	}
}

// RadToDeg converts a rotation vector from radians to degrees.
func RadToDeg(c Cartesian) Cartesian {
	return c.Scale(180 / math.Pi)
}

package domain

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func axisAngle(x, y, z, deg float64) Quaternion {
	n := math.Sqrt(x*x + y*y + z*z)
	half := deg * math.Pi / 180 / 2
	s := math.Sin(half) / n
	return Quaternion{W: math.Cos(half), X: x * s, Y: y * s, Z: z * s}
}

// arc is the rotation angle [rad] between two orientations, ignoring the double cover.
func arc(a, b Quaternion) float64 {
	d := math.Abs(a.Normalized().Dot(b.Normalized()))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

func TestSlerpEndpoints(t *testing.T) {
	from := axisAngle(1, 0, 0, 30)
	to := axisAngle(0, 1, 1, 120)

	if got := from.Slerp(to, 0); got != from {
		t.Fatalf("t=0: got %+v, want %+v", got, from)
	}
	if got := from.Slerp(to, 1); got != to {
		t.Fatalf("t=1: got %+v, want %+v", got, to)
	}
	if got := from.Slerp(to, -3); got != from {
		t.Fatalf("t<0: got %+v", got)
	}
	if got := from.Slerp(to, 7); got != to {
		t.Fatalf("t>1: got %+v", got)
	}
}

func TestSlerpTakesShortArc(t *testing.T) {
	from := IdentityQuaternion
	// 170 deg about z written with a negative scalar, i.e. the 190 deg long way round.
	to := axisAngle(0, 0, 1, 170).negate()

	mid := from.Slerp(to, 0.5)
	if got := arc(from, mid) * 180 / math.Pi; math.Abs(got-85) > 1e-6 {
		t.Fatalf("midpoint is %.6f deg from start, want 85", got)
	}
}

func TestSlerpProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	unit := gen.Float64Range(-1, 1)
	properties.Property("slerp moves along the shortest arc at constant rate", prop.ForAll(
		func(ax, ay, az, bx, by, bz, deg, tt float64) bool {
			if ax*ax+ay*ay+az*az < 1e-3 || bx*bx+by*by+bz*bz < 1e-3 {
				return true
			}
			a := axisAngle(ax, ay, az, deg)
			b := axisAngle(bx, by, bz, 179-deg)
			total := arc(a, b)
			if total > math.Pi-1e-3 {
				return true
			}
			q := a.Slerp(b, tt)
			if math.Abs(q.Norm()-1) > 1e-9 {
				return false
			}
			return math.Abs(arc(a, q)-tt*total) < 1e-6
		},
		unit, unit, unit, unit, unit, unit,
		gen.Float64Range(0, 179),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func TestAngularDisplacement(t *testing.T) {
	from := axisAngle(0, 0, 1, 10)
	to := axisAngle(0, 0, 1, 40)

	got := RadToDeg(AngularDisplacement(from, to))
	if math.Abs(got.Z-30) > 1e-9 || math.Abs(got.X) > 1e-9 || math.Abs(got.Y) > 1e-9 {
		t.Fatalf("got %+v, want 30 deg about z", got)
	}

	if got := AngularDisplacement(to, to); got != (Cartesian{}) {
		t.Fatalf("no rotation: got %+v", got)
	}
	if got := RadToDeg(AngularDisplacement(from, to.negate())); math.Abs(got.Z-30) > 1e-9 {
		t.Fatalf("double cover: got %+v", got)
	}
}

func TestNormalizedDegenerate(t *testing.T) {
	if got := (Quaternion{}).Normalized(); got != IdentityQuaternion {
		t.Fatalf("zero quaternion: got %+v", got)
	}
	if got := (Quaternion{W: math.NaN()}).Normalized(); got != IdentityQuaternion {
		t.Fatalf("NaN quaternion: got %+v", got)
	}
	if got := (Quaternion{Z: 4}).Normalized(); got != (Quaternion{Z: 1}) {
		t.Fatalf("got %+v", got)
	}
}

func TestCartesianLerp(t *testing.T) {
	a, b := Cartesian{X: 1, Y: 2, Z: 3}, Cartesian{X: 11, Y: -2, Z: 3}
	if got := a.Lerp(b, 0); got != a {
		t.Fatalf("t=0: %+v", got)
	}
	if got := a.Lerp(b, 1); got != b {
		t.Fatalf("t=1: %+v", got)
	}
	if got := a.Lerp(b, 0.5); got != (Cartesian{X: 6, Y: 0, Z: 3}) {
		t.Fatalf("t=0.5: %+v", got)
	}
}

// Package spatialmath provides the rigid-transform algebra used throughout
// the tracker and optimizer: rotations as unit quaternions, translations as
// dual-quaternion-derived vectors, and the axis-angle retraction used to turn
// small tangent-space updates into new poses.
package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/dualquat"
	"gonum.org/v1/gonum/num/quat"
)

// SE3 is a rigid body transform: a rotation (unit quaternion) composed with
// a translation, stored as a dual quaternion so that composition is a single
// quaternion multiplication.
type SE3 struct {
	Quat dualquat.Number
}

// Identity returns the SE3 with no rotation and no translation.
func Identity() SE3 {
	return SE3{dualquat.Number{
		Real: quat.Number{Real: 1},
		Dual: quat.Number{},
	}}
}

// NewFromRotationTranslation builds an SE3 from a rotation quaternion and a
// translation vector.
func NewFromRotationTranslation(rot quat.Number, t r3.Vector) SE3 {
	if n := quat.Abs(rot); n != 0 && math.Abs(n-1) > 1e-12 {
		rot = quat.Scale(1/n, rot)
	}
	m := SE3{dualquat.Number{Real: rot}}
	m.SetTranslation(t)
	return m
}

// Rotation returns the rotation quaternion.
func (m SE3) Rotation() quat.Number {
	return m.Quat.Real
}

// Translation returns the translation component as an r3.Vector.
func (m SE3) Translation() r3.Vector {
	t := dualquat.Mul(m.Quat, dualquat.Conj(m.Quat))
	return r3.Vector{X: t.Dual.Imag, Y: t.Dual.Jmag, Z: t.Dual.Kmag}
}

// SetTranslation sets the translation against the current rotation.
func (m *SE3) SetTranslation(t r3.Vector) {
	m.Quat.Dual = quat.Number{Imag: t.X / 2, Jmag: t.Y / 2, Kmag: t.Z / 2}
	m.Quat.Dual = quat.Mul(m.Quat.Dual, m.Quat.Real)
}

// Compose returns m * other, i.e. applying other first, then m.
func (m SE3) Compose(other SE3) SE3 {
	return SE3{dualquat.Mul(m.Quat, other.Quat)}
}

// Inverse returns the SE3 that undoes m.
func (m SE3) Inverse() SE3 {
	// dualquat.Conj negates the conjugated dual part (r* - eps d*), which
	// would double the translation on composition; the inverse of a unit
	// dual quaternion is r* + eps d*.
	return SE3{dualquat.Number{Real: quat.Conj(m.Quat.Real), Dual: quat.Conj(m.Quat.Dual)}}
}

// Act applies the transform to a point, returning m.Rotation()*x + m.Translation().
func (m SE3) Act(x r3.Vector) r3.Vector {
	return RotateVector(m.Rotation(), x).Add(m.Translation())
}

// RotateVector rotates x by the unit quaternion q.
func RotateVector(q quat.Number, x r3.Vector) r3.Vector {
	p := quat.Number{Imag: x.X, Jmag: x.Y, Kmag: x.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// RetractRight applies a right tangent-space update: given a 6-vector
// [rx,ry,rz, tx,ty,tz] (rotation first, as in FrameParameterOrder), returns
// m composed on the right with exp(delta), i.e. m.Compose(Exp(delta)).
// This is the update used by Parameters.Update (spec I1/I2) and by
// FrameTracker's per-level pose refinement.
func (m SE3) RetractRight(delta [6]float64) SE3 {
	rot := AxisAngleToQuat(delta[0], delta[1], delta[2])
	step := NewFromRotationTranslation(rot, r3.Vector{X: delta[3], Y: delta[4], Z: delta[5]})
	return m.Compose(step)
}

// Log returns the tangent-space [rx,ry,rz, tx,ty,tz] vector between the
// identity and m, the inverse of RetractRight applied to Identity().
func (m SE3) Log() [6]float64 {
	aa := QuatToAxisAngle(m.Rotation())
	t := m.Translation()
	return [6]float64{aa[0], aa[1], aa[2], t.X, t.Y, t.Z}
}

// Mat4 exports m as a column-major 4x4 homogeneous transform matrix, for
// external debug/visualization consumers (trajectory export, gl-style
// viewers) that expect a plain matrix rather than this package's dual
// quaternion, mirroring the teacher's mgl64.Mat4 usage for the same purpose
// in its kinematics debug conversions.
func (m SE3) Mat4() mgl64.Mat4 {
	q := m.Rotation()
	rot := mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}.Mat4()
	t := m.Translation()
	return mgl64.Translate3D(t.X, t.Y, t.Z).Mul4(rot)
}

// Between returns the tangent-space difference other (⊖) m: the delta that,
// applied via m.RetractRight, yields other's rotation and whose translation
// difference is other.Translation()-m.Translation(). Used by tests to compare
// poses (e.g. I1 inverse/compose round-trips).
func Between(m, other SE3) [6]float64 {
	relRot := quat.Mul(quat.Conj(m.Quat.Real), other.Quat.Real)
	aa := QuatToAxisAngle(relRot)
	dt := other.Translation().Sub(m.Translation())
	return [6]float64{aa[0], aa[1], aa[2], dt.X, dt.Y, dt.Z}
}

// QuatToAxisAngle converts a quaternion to an R3 axis-angle vector, matching
// the convention used by the Eigen AngleAxis constructor.
func QuatToAxisAngle(q quat.Number) [3]float64 {
	denom := imagNorm(q)
	angle := 2 * math.Atan2(denom, math.Abs(q.Real))
	if q.Real < 0 {
		angle *= -1
	}
	if denom < 1e-9 {
		return [3]float64{angle, 0, 0}
	}
	return [3]float64{angle * q.Imag / denom, angle * q.Jmag / denom, angle * q.Kmag / denom}
}

// AxisAngleToQuat converts an R3 axis-angle vector to a unit quaternion.
func AxisAngleToQuat(x, y, z float64) quat.Number {
	angle := math.Sqrt(x*x + y*y + z*z)
	if angle < 1e-9 {
		return quat.Number{Real: 1}
	}
	sinA := math.Sin(angle / 2)
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: (x / angle) * sinA,
		Jmag: (y / angle) * sinA,
		Kmag: (z / angle) * sinA,
	}
}

func imagNorm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

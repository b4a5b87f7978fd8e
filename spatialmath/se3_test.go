package spatialmath

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestIdentityRoundTrip(t *testing.T) {
	id := Identity()
	test.That(t, id.Translation(), test.ShouldResemble, r3.Vector{})
	test.That(t, id.Rotation().Real, test.ShouldEqual, 1.0)
}

func TestComposeInverseIsIdentity(t *testing.T) {
	m := NewFromRotationTranslation(AxisAngleToQuat(0.1, -0.2, 0.3), r3.Vector{X: 1, Y: -2, Z: 0.5})
	roundTrip := m.Compose(m.Inverse())
	delta := Between(Identity(), roundTrip)
	for _, v := range delta {
		test.That(t, v, test.ShouldAlmostEqual, 0.0)
	}
}

func TestRetractRightSmallStepApproximatesTranslation(t *testing.T) {
	m := Identity()
	stepped := m.RetractRight([6]float64{0, 0, 0, 1, 2, 3})
	test.That(t, stepped.Translation(), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
}

func TestAxisAngleQuatRoundTrip(t *testing.T) {
	x, y, z := 0.2, 0.4, -0.1
	q := AxisAngleToQuat(x, y, z)
	aa := QuatToAxisAngle(q)
	test.That(t, aa[0], test.ShouldAlmostEqual, x)
	test.That(t, aa[1], test.ShouldAlmostEqual, y)
	test.That(t, aa[2], test.ShouldAlmostEqual, z)
}

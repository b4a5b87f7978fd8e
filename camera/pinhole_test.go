package camera

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPinholeMapUnmapRoundTrip(t *testing.T) {
	m, err := NewPinholeModel(PinholeIntrinsics{Width: 640, Height: 480, Fx: 400, Fy: 400, Cx: 320, Cy: 240}, nil)
	test.That(t, err, test.ShouldBeNil)

	x := r3.Vector{X: 0.3, Y: -0.2, Z: 2.0}
	u := m.Map(x)
	ray := m.Unmap(u)

	scaled := ray.Mul(x.Z / ray.Z)
	test.That(t, scaled.X, test.ShouldAlmostEqual, x.X)
	test.That(t, scaled.Y, test.ShouldAlmostEqual, x.Y)
}

func TestPinholeRejectsInvalidIntrinsics(t *testing.T) {
	_, err := NewPinholeModel(PinholeIntrinsics{Width: 0, Height: 480, Fx: 400, Fy: 400}, nil)
	test.That(t, err, test.ShouldEqual, ErrNonFiniteIntrinsics)
}

func TestBrownConradyUndistortInvertsDistort(t *testing.T) {
	bc := &BrownConrady{RadialK1: -0.1, RadialK2: 0.01, TangentialP1: 0.001, TangentialP2: -0.002}
	xu, yu := 0.25, -0.15
	xd, yd := bc.Distort(xu, yu)
	xu2, yu2 := bc.Undistort(xd, yd)
	test.That(t, xu2, test.ShouldAlmostEqual, xu)
	test.That(t, yu2, test.ShouldAlmostEqual, yu)
}

func TestIsOnImageRespectsBorder(t *testing.T) {
	m, err := NewPinholeModel(PinholeIntrinsics{Width: 100, Height: 100, Fx: 50, Fy: 50, Cx: 50, Cy: 50}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.IsOnImage(r2.Point{X: 5, Y: 5}, 10), test.ShouldBeFalse)
	test.That(t, m.IsOnImage(r2.Point{X: 50, Y: 50}, 10), test.ShouldBeTrue)
}

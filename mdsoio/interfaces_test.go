package mdsoio

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

func TestExportTrajectoryCarriesTranslation(t *testing.T) {
	poses := []spatialmath.SE3{
		spatialmath.Identity(),
		spatialmath.NewFromRotationTranslation(spatialmath.AxisAngleToQuat(0, 0, 0), r3.Vector{X: 1, Y: 2, Z: 3}),
	}
	out := ExportTrajectory(poses, []int64{0, 100})

	test.That(t, len(out), test.ShouldEqual, 2)
	test.That(t, out[1].TimestampNanos, test.ShouldEqual, int64(100))
	test.That(t, out[1].BodyToWorld.Col(3).X(), test.ShouldEqual, 1.0)
	test.That(t, out[1].BodyToWorld.Col(3).Y(), test.ShouldEqual, 2.0)
	test.That(t, out[1].BodyToWorld.Col(3).Z(), test.ShouldEqual, 3.0)
}

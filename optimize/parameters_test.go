package optimize

import (
	"testing"

	"go.viam.com/test"

	"github.com/yoshua-msc-thesis/mdso/camera"
	"github.com/yoshua-msc-thesis/mdso/mdsosettings"
	"github.com/yoshua-msc-thesis/mdso/photometry"
	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// TestUpdateClampsLogDepthAndAffineBounds realizes I4/I5 and spec.md
// section 7's "clamped in Parameters::update, no error surfaced" rule: a
// delta large enough to push a point's logDepth or a keyframe's affine
// light outside its configured bounds is silently clamped, not rejected.
func TestUpdateClampsLogDepthAndAffineBounds(t *testing.T) {
	bundle := testEnergyBundleNoTest()
	pose0 := spatialmath.Identity()
	pose1 := spatialmath.Identity()
	light0 := photometry.Identity()
	light1 := photometry.Identity()
	logDepth := 0.0

	depthBounds := mdsosettings.Depth{Min: 1e-3, Max: 1e3}
	affineBounds := mdsosettings.AffineLight{MinA: -0.5, MaxA: 0.5, MinB: -60, MaxB: 60, OptimizeAffine: true}

	params := NewParameters(bundle, 2,
		[]*spatialmath.SE3{&pose0, &pose1},
		[][]*photometry.AffLight{{&light0}, {&light1}},
		[]*float64{&logDepth},
		depthBounds, affineBounds)

	delta := NewDeltaParameterVector(params.Order(), 1)
	delta.Point[0] = 1e6   // would drive logDepth far past log(depthBounds.Max)
	affOff := params.Order().AffineOffset(1, 0)
	delta.Frame[affOff] = 10   // would drive a past MaxA
	delta.Frame[affOff+1] = -1000 // would drive b past MinB

	params.Update(delta)

	// Update only mutates Parameters' local state; the keyframe/point state
	// it was built from is untouched until Apply commits it.
	test.That(t, logDepth, test.ShouldEqual, 0.0)
	test.That(t, light1.A, test.ShouldEqual, 0.0)

	test.That(t, params.LogDepth(0), test.ShouldAlmostEqual, 6.907755278982137, 1e-6) // log(1000)
	test.That(t, params.Light(1, 0).A, test.ShouldAlmostEqual, affineBounds.MaxA)
	test.That(t, params.Light(1, 0).B, test.ShouldAlmostEqual, affineBounds.MinB)

	params.Apply()
	test.That(t, logDepth, test.ShouldAlmostEqual, 6.907755278982137, 1e-6)
	test.That(t, light1.A, test.ShouldAlmostEqual, affineBounds.MaxA)
	test.That(t, light1.B, test.ShouldAlmostEqual, affineBounds.MinB)
}

func testEnergyBundleNoTest() *camera.Bundle {
	model, _ := camera.NewPinholeModel(camera.PinholeIntrinsics{
		Width: 64, Height: 64, Fx: 80, Fy: 80, Cx: 32, Cy: 32,
	}, nil)
	bundle, _ := camera.NewBundle([]camera.RigCamera{
		{Model: model, ThisToBody: spatialmath.Identity(), BodyToThis: spatialmath.Identity()},
	})
	return bundle
}

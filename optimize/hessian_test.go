package optimize

import (
	"testing"

	"go.viam.com/test"
)

func diagonalHessian(order FrameParameterOrder, numPoints int, frameDiag, pointDiag, gf, gp float64) *Hessian {
	h := NewHessian(order, numPoints)
	f, _ := h.Hff.Dims()
	for i := 0; i < f; i++ {
		h.Hff.Set(i, i, frameDiag)
		h.Gf[i] = gf
	}
	for p := 0; p < numPoints; p++ {
		h.Hpp[p] = pointDiag
		h.Gp[p] = gp
	}
	return h
}

func TestHessianSolveDiagonalSystemMatchesClosedForm(t *testing.T) {
	order := NewFrameParameterOrder(2, 1) // one non-anchor keyframe, one camera
	h := diagonalHessian(order, 1, 2.0, 3.0, 1.0, 2.0)

	delta := h.Solve()
	for _, v := range delta.Frame {
		test.That(t, v, test.ShouldAlmostEqual, 0.5)
	}
	test.That(t, delta.Point[0], test.ShouldAlmostEqual, 2.0/3.0)
}

func TestHessianDampScalesDiagonalOnly(t *testing.T) {
	order := NewFrameParameterOrder(2, 1)
	h := diagonalHessian(order, 1, 2.0, 3.0, 1.0, 2.0)

	damped := h.Damp(1.0) // (1+lambda) = 2
	test.That(t, damped.Hff.At(0, 0), test.ShouldAlmostEqual, 4.0)
	test.That(t, damped.Hpp[0], test.ShouldAlmostEqual, 6.0)
	// the undamped accumulator is untouched
	test.That(t, h.Hff.At(0, 0), test.ShouldAlmostEqual, 2.0)
}

func TestHessianSolveWithNoFrameParametersFallsBackToPointsOnly(t *testing.T) {
	order := NewFrameParameterOrder(1, 1) // only the anchor keyframe: zero frame params
	h := diagonalHessian(order, 2, 0, 4.0, 0, 8.0)

	delta := h.Solve()
	test.That(t, len(delta.Frame), test.ShouldEqual, 0)
	for _, v := range delta.Point {
		test.That(t, v, test.ShouldAlmostEqual, 2.0)
	}
}

func TestPredictedEnergyReductionOfZeroDeltaIsZero(t *testing.T) {
	order := NewFrameParameterOrder(2, 1)
	h := diagonalHessian(order, 1, 2.0, 3.0, 1.0, 2.0)
	zero := NewDeltaParameterVector(order, 1)
	test.That(t, h.PredictedEnergyReduction(zero), test.ShouldEqual, 0.0)
}

package imagepyramid

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func flatImage(w, h int, v float64) []float64 {
	pix := make([]float64, w*h)
	for i := range pix {
		pix[i] = v
	}
	return pix
}

func TestBuildHalvesEachLevel(t *testing.T) {
	p := Build(32, 32, flatImage(32, 32, 100), 3, 1.0)
	test.That(t, len(p.Levels), test.ShouldEqual, 3)
	test.That(t, p.Levels[1].Width, test.ShouldEqual, 16)
	test.That(t, p.Levels[2].Width, test.ShouldEqual, 8)
}

func TestFlatImageInterpolatesToConstant(t *testing.T) {
	p := Build(16, 16, flatImage(16, 16, 42), 1, 1.0)
	interp := NewBiCubicInterpolator(p.Levels[0])
	test.That(t, interp.At(r2.Point{X: 5.5, Y: 5.5}), test.ShouldAlmostEqual, 42.0)
	g := interp.Gradient(r2.Point{X: 5.5, Y: 5.5})
	test.That(t, g.X, test.ShouldAlmostEqual, 0.0)
	test.That(t, g.Y, test.ShouldAlmostEqual, 0.0)
}

func TestOutOfBoundsReturnsInf(t *testing.T) {
	p := Build(8, 8, flatImage(8, 8, 1), 1, 1.0)
	interp := NewBiCubicInterpolator(p.Levels[0])
	v := interp.At(r2.Point{X: -5, Y: 0})
	test.That(t, v, test.ShouldEqual, interp.At(r2.Point{X: -5, Y: 0}))
	test.That(t, interp.At(r2.Point{X: 100, Y: 100}) > 1e300, test.ShouldBeTrue)
}

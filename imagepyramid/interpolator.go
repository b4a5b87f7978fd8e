package imagepyramid

import (
	"math"

	"github.com/golang/geo/r2"
)

// BiCubicInterpolator samples a Level with a 4x4 Catmull-Rom bicubic kernel,
// returning both the intensity and its spatial gradient. Out-of-bounds
// queries return +Inf rather than panicking, so residual construction can
// cheaply reject points that fall off a frame.
type BiCubicInterpolator struct {
	level *Level
}

// NewBiCubicInterpolator wraps a pyramid level for sub-pixel sampling.
func NewBiCubicInterpolator(level *Level) *BiCubicInterpolator {
	return &BiCubicInterpolator{level: level}
}

// At returns the interpolated intensity at u, or +Inf if u lies outside the
// valid sampling region [1, width-2) x [1, height-2) that the 4x4 kernel
// needs.
func (b *BiCubicInterpolator) At(u r2.Point) float64 {
	v, _ := b.sample(u)
	return v
}

// Gradient returns the analytic spatial gradient (d/dx, d/dy) of the cubic
// interpolant at u.
func (b *BiCubicInterpolator) Gradient(u r2.Point) r2.Point {
	_, g := b.sample(u)
	return g
}

func (b *BiCubicInterpolator) sample(u r2.Point) (float64, r2.Point) {
	x, y := u.X, u.Y
	if x < 1 || y < 1 || x >= float64(b.level.Width-2) || y >= float64(b.level.Height-2) {
		return math.Inf(1), r2.Point{X: math.Inf(1), Y: math.Inf(1)}
	}

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	var rows [4]float64
	var rowsDx [4]float64
	for j := -1; j <= 2; j++ {
		var p [4]float64
		for i := -1; i <= 2; i++ {
			p[i+1] = b.level.at(x0+i, y0+j)
		}
		rows[j+1] = cubicInterp(p, fx)
		rowsDx[j+1] = cubicDeriv(p, fx)
	}
	value := cubicInterp(rows, fy)
	dx := cubicInterp(rowsDx, fy)
	dy := cubicDeriv(rows, fy)
	return value, r2.Point{X: dx, Y: dy}
}

// cubicInterp evaluates the Catmull-Rom cubic through p[0..3] at fraction t
// in [0,1) between p[1] and p[2].
func cubicInterp(p [4]float64, t float64) float64 {
	a0 := -0.5*p[0] + 1.5*p[1] - 1.5*p[2] + 0.5*p[3]
	a1 := p[0] - 2.5*p[1] + 2*p[2] - 0.5*p[3]
	a2 := -0.5*p[0] + 0.5*p[2]
	a3 := p[1]
	return ((a0*t+a1)*t+a2)*t + a3
}

// cubicDeriv is the derivative of cubicInterp with respect to t.
func cubicDeriv(p [4]float64, t float64) float64 {
	a0 := -0.5*p[0] + 1.5*p[1] - 1.5*p[2] + 0.5*p[3]
	a1 := p[0] - 2.5*p[1] + 2*p[2] - 0.5*p[3]
	a2 := -0.5*p[0] + 0.5*p[2]
	return (3*a0*t+2*a1)*t + a2
}

package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// KannalaBrandtModel is the equidistant fisheye projection model, the
// second Model implementation alongside PinholeModel: the camera layer is
// polymorphic over lens families, and the core optimizer only ever depends
// on the Model interface, never on a concrete type.
type KannalaBrandtModel struct {
	Intrinsics PinholeIntrinsics
	K1, K2, K3, K4 float64
}

// NewKannalaBrandtModel validates the intrinsics and wraps the four
// polynomial distortion coefficients of the equidistant fisheye model.
func NewKannalaBrandtModel(intr PinholeIntrinsics, k1, k2, k3, k4 float64) (*KannalaBrandtModel, error) {
	if err := intr.CheckValid(); err != nil {
		return nil, err
	}
	return &KannalaBrandtModel{Intrinsics: intr, K1: k1, K2: k2, K3: k3, K4: k4}, nil
}

func (m *KannalaBrandtModel) Width() int  { return m.Intrinsics.Width }
func (m *KannalaBrandtModel) Height() int { return m.Intrinsics.Height }

func (m *KannalaBrandtModel) theta(rd float64) float64 {
	// Invert rd = theta*(1 + k1*theta^2 + k2*theta^4 + k3*theta^6 + k4*theta^8)
	// with a fixed number of Newton iterations; theta ~= rd is an excellent
	// initial guess for well-behaved fisheye calibrations.
	theta := rd
	for i := 0; i < 10; i++ {
		t2 := theta * theta
		poly := 1 + m.K1*t2 + m.K2*t2*t2 + m.K3*t2*t2*t2 + m.K4*t2*t2*t2*t2
		f := theta*poly - rd
		dPoly := m.K1*2*theta + m.K2*4*theta*t2 + m.K3*6*theta*t2*t2 + m.K4*8*theta*t2*t2*t2
		df := poly + theta*dPoly
		if df == 0 {
			break
		}
		theta -= f / df
	}
	return theta
}

func (m *KannalaBrandtModel) Unmap(u r2.Point) r3.Vector {
	xd := (u.X - m.Intrinsics.Cx) / m.Intrinsics.Fx
	yd := (u.Y - m.Intrinsics.Cy) / m.Intrinsics.Fy
	rd := math.Hypot(xd, yd)
	if rd < 1e-12 {
		return r3.Vector{X: 0, Y: 0, Z: 1}
	}
	theta := m.theta(rd)
	sinTheta := math.Sin(theta)
	return r3.Vector{X: sinTheta * xd / rd, Y: sinTheta * yd / rd, Z: math.Cos(theta)}
}

func (m *KannalaBrandtModel) Map(x r3.Vector) r2.Point {
	xn := x.Normalize()
	theta := math.Acos(clampUnit(xn.Z))
	r := math.Hypot(xn.X, xn.Y)
	if r < 1e-12 {
		return r2.Point{X: m.Intrinsics.Cx, Y: m.Intrinsics.Cy}
	}
	t2 := theta * theta
	rd := theta * (1 + m.K1*t2 + m.K2*t2*t2 + m.K3*t2*t2*t2 + m.K4*t2*t2*t2*t2)
	return r2.Point{
		X: m.Intrinsics.Fx*rd*xn.X/r + m.Intrinsics.Cx,
		Y: m.Intrinsics.Fy*rd*xn.Y/r + m.Intrinsics.Cy,
	}
}

// DiffMap is computed by central finite differences: the fisheye polynomial
// inverse has no closed analytic form as clean as the pinhole case, and
// FrameTracker/Residual only need a Jacobian accurate enough for Gauss-Newton
// steps, not bitwise-exact derivatives.
func (m *KannalaBrandtModel) DiffMap(x r3.Vector) (r2.Point, *mat.Dense) {
	const h = 1e-6
	u := m.Map(x)
	j := mat.NewDense(2, 3, nil)
	for col, axis := range []r3.Vector{{X: h}, {Y: h}, {Z: h}} {
		up := m.Map(x.Add(axis))
		down := m.Map(x.Sub(axis))
		j.Set(0, col, (up.X-down.X)/(2*h))
		j.Set(1, col, (up.Y-down.Y)/(2*h))
	}
	return u, j
}

func (m *KannalaBrandtModel) IsMappable(x r3.Vector) bool {
	xn := x.Normalize()
	return xn.Z > -0.2 // allow slightly-past-90-degree field of view
}

func (m *KannalaBrandtModel) IsOnImage(u r2.Point, border float64) bool {
	return u.X >= border && u.Y >= border &&
		u.X < float64(m.Intrinsics.Width)-border && u.Y < float64(m.Intrinsics.Height)-border
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

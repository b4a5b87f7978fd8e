package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// PinholeIntrinsics is the simple projection model fx,fy,cx,cy with json
// tags matching how rig calibrations are typically serialized.
type PinholeIntrinsics struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Cx     float64 `json:"cx"`
	Cy     float64 `json:"cy"`
}

// CheckValid validates the intrinsics are usable for projection.
func (p *PinholeIntrinsics) CheckValid() error {
	if p == nil || p.Width <= 0 || p.Height <= 0 || !isFinite(p.Fx) ||
		!isFinite(p.Fy) || p.Fx <= 0 || p.Fy <= 0 ||
		!isFinite(p.Cx) || !isFinite(p.Cy) {
		return ErrNonFiniteIntrinsics
	}
	return nil
}

// isFinite reports whether f is neither NaN nor an infinity.
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// PinholeModel is a pinhole camera composed with a Distorter; it implements
// Model.
type PinholeModel struct {
	Intrinsics PinholeIntrinsics
	Distortion Distorter
}

// NewPinholeModel validates the intrinsics and wraps them with a distortion
// model (nil Distortion is treated as the identity/no-distortion case).
func NewPinholeModel(intr PinholeIntrinsics, dist Distorter) (*PinholeModel, error) {
	if err := intr.CheckValid(); err != nil {
		return nil, err
	}
	return &PinholeModel{Intrinsics: intr, Distortion: dist}, nil
}

// Width implements Model.
func (m *PinholeModel) Width() int { return m.Intrinsics.Width }

// Height implements Model.
func (m *PinholeModel) Height() int { return m.Intrinsics.Height }

// Unmap implements Model: de-project a pixel to a unit bearing ray by
// undoing the principal-point/focal-length affine map, then the inverse of
// the distortion, matching InverseBrownConrady.Transform's Newton-Raphson
// scheme for the reverse direction.
func (m *PinholeModel) Unmap(u r2.Point) r3.Vector {
	xd := (u.X - m.Intrinsics.Cx) / m.Intrinsics.Fx
	yd := (u.Y - m.Intrinsics.Cy) / m.Intrinsics.Fy
	xu, yu := xd, yd
	if m.Distortion != nil {
		xu, yu = m.Distortion.Undistort(xd, yd)
	}
	v := r3.Vector{X: xu, Y: yu, Z: 1}
	return v.Normalize()
}

// Map implements Model: project a point in the camera frame to a pixel.
func (m *PinholeModel) Map(x r3.Vector) r2.Point {
	xn, yn := x.X/x.Z, x.Y/x.Z
	if m.Distortion != nil {
		xn, yn = m.Distortion.Distort(xn, yn)
	}
	return r2.Point{
		X: m.Intrinsics.Fx*xn + m.Intrinsics.Cx,
		Y: m.Intrinsics.Fy*yn + m.Intrinsics.Cy,
	}
}

// DiffMap implements Model: Map together with its analytic 2x3 Jacobian.
// The distortion Jacobian is folded in via the chain rule using the
// distorter's own 2x2 derivative with respect to the normalized coordinates.
func (m *PinholeModel) DiffMap(x r3.Vector) (r2.Point, *mat.Dense) {
	z := x.Z
	xn, yn := x.X/z, x.Y/z

	// d(xn,yn)/d(X,Y,Z)
	dNorm := mat.NewDense(2, 3, []float64{
		1 / z, 0, -x.X / (z * z),
		0, 1 / z, -x.Y / (z * z),
	})

	distortedX, distortedY := xn, yn
	dDistort := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	if m.Distortion != nil {
		distortedX, distortedY = m.Distortion.Distort(xn, yn)
		dDistort = m.Distortion.DDistort(xn, yn)
	}

	u := r2.Point{
		X: m.Intrinsics.Fx*distortedX + m.Intrinsics.Cx,
		Y: m.Intrinsics.Fy*distortedY + m.Intrinsics.Cy,
	}

	var dPixelDNorm mat.Dense
	dPixelDNorm.Mul(dDistort, dNorm)
	dPixelDNorm.Scale(1, &dPixelDNorm)
	dPixelDNorm.Set(0, 0, m.Intrinsics.Fx*dPixelDNorm.At(0, 0))
	dPixelDNorm.Set(0, 1, m.Intrinsics.Fx*dPixelDNorm.At(0, 1))
	dPixelDNorm.Set(0, 2, m.Intrinsics.Fx*dPixelDNorm.At(0, 2))
	dPixelDNorm.Set(1, 0, m.Intrinsics.Fy*dPixelDNorm.At(1, 0))
	dPixelDNorm.Set(1, 1, m.Intrinsics.Fy*dPixelDNorm.At(1, 1))
	dPixelDNorm.Set(1, 2, m.Intrinsics.Fy*dPixelDNorm.At(1, 2))

	return u, &dPixelDNorm
}

// IsMappable implements Model: the point must be in front of the camera.
func (m *PinholeModel) IsMappable(x r3.Vector) bool {
	return x.Z > 1e-6
}

// IsOnImage implements Model.
func (m *PinholeModel) IsOnImage(u r2.Point, border float64) bool {
	return u.X >= border && u.Y >= border &&
		u.X < float64(m.Intrinsics.Width)-border && u.Y < float64(m.Intrinsics.Height)-border
}

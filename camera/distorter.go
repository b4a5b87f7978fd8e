package camera

import "gonum.org/v1/gonum/mat"

// Distorter maps between normalized undistorted and distorted image
// coordinates. Distort is the forward model (used by Map); Undistort
// inverts it (used by Unmap); DDistort is the analytic Jacobian of Distort
// with respect to the undistorted coordinates, used by DiffMap.
type Distorter interface {
	Distort(xu, yu float64) (xd, yd float64)
	Undistort(xd, yd float64) (xu, yu float64)
	DDistort(xu, yu float64) *mat.Dense
}

// BrownConrady is the standard radial+tangential lens distortion model for
// narrow-field lenses.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// Distort applies the forward Brown-Conrady model:
//
//	x_d = x_u*(1 + k1*r2 + k2*r4 + k3*r6) + 2*p1*x_u*y_u + p2*(r2 + 2*x_u^2)
//	y_d = y_u*(1 + k1*r2 + k2*r4 + k3*r6) + 2*p2*x_u*y_u + p1*(r2 + 2*y_u^2)
func (bc *BrownConrady) Distort(xu, yu float64) (float64, float64) {
	r2 := xu*xu + yu*yu
	r4 := r2 * r2
	r6 := r4 * r2
	radial := 1 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6
	xd := xu*radial + 2*bc.TangentialP1*xu*yu + bc.TangentialP2*(r2+2*xu*xu)
	yd := yu*radial + 2*bc.TangentialP2*xu*yu + bc.TangentialP1*(r2+2*yu*yu)
	return xd, yd
}

// Undistort inverts Distort with a Newton-Raphson iteration, grounded on
// InverseBrownConrady.Transform.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	const maxIterations = 20
	const tolerance = 1e-10

	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		xdEst, ydEst := bc.Distort(xu, yu)
		errX, errY := xdEst-xd, ydEst-yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}
		j := bc.DDistort(xu, yu)
		a, b, c, d := j.At(0, 0), j.At(0, 1), j.At(1, 0), j.At(1, 1)
		det := a*d - b*c
		if det == 0 {
			break
		}
		xu -= (d*errX - b*errY) / det
		yu -= (-c*errX + a*errY) / det
	}
	return xu, yu
}

// DDistort returns the 2x2 Jacobian of Distort with respect to (xu, yu).
func (bc *BrownConrady) DDistort(xu, yu float64) *mat.Dense {
	r2 := xu*xu + yu*yu
	radial := 1 + bc.RadialK1*r2 + bc.RadialK2*r2*r2 + bc.RadialK3*r2*r2*r2
	dRadialDxu := 2 * xu * (bc.RadialK1 + 2*bc.RadialK2*r2 + 3*bc.RadialK3*r2*r2)
	dRadialDyu := 2 * yu * (bc.RadialK1 + 2*bc.RadialK2*r2 + 3*bc.RadialK3*r2*r2)

	dxdDxu := radial + xu*dRadialDxu + 2*bc.TangentialP1*yu + bc.TangentialP2*6*xu
	dxdDyu := xu*dRadialDyu + 2*bc.TangentialP1*xu + bc.TangentialP2*2*yu
	dydDxu := yu*dRadialDxu + 2*bc.TangentialP2*yu + bc.TangentialP1*2*xu
	dydDyu := radial + yu*dRadialDyu + 2*bc.TangentialP2*xu + bc.TangentialP1*6*yu

	return mat.NewDense(2, 2, []float64{dxdDxu, dxdDyu, dydDxu, dydDyu})
}

// Package photometry implements the per-frame affine brightness transform
// used to compensate for exposure/gain changes between host and target
// keyframes when comparing photometric intensities.
package photometry

import "math"

// AffLight is the affine brightness model: Apply(x) = exp(A)*(x - B).
type AffLight struct {
	A, B float64
}

// Identity is the no-op affine transform.
func Identity() AffLight {
	return AffLight{}
}

// Ea returns exp(A), the multiplicative gain.
func (l AffLight) Ea() float64 {
	return math.Exp(l.A)
}

// Apply maps a host intensity to its predicted target intensity.
func (l AffLight) Apply(x float64) float64 {
	return l.Ea() * (x - l.B)
}

// Inverse returns the affine transform that undoes l.
func (l AffLight) Inverse() AffLight {
	return AffLight{A: -l.A, B: -l.Ea() * l.B}
}

// Compose returns the transform equivalent to applying other then l:
// l.Compose(other).Apply(x) == l.Apply(other.Apply(x)).
func (l AffLight) Compose(other AffLight) AffLight {
	return AffLight{
		A: l.A + other.A,
		B: other.B + math.Exp(-other.A)*l.B,
	}
}

// DApplyDA is the analytic derivative of Apply(x) with respect to A.
func (l AffLight) DApplyDA(x float64) float64 {
	return l.Ea() * (x - l.B)
}

// DApplyDB is the analytic derivative of Apply(x) with respect to B.
func (l AffLight) DApplyDB() float64 {
	return -l.Ea()
}

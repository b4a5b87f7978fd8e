package optimize

import "math"

// Loss is the robust M-estimator applied to squared residual values. It
// returns rho(v2), rho'(v2), rho''(v2) -- the value and its first two
// derivatives with respect to v2 = value^2, matching getLoss's factory
// output in the original EnergyFunction.
type Loss interface {
	Eval(v2 float64) (rho0, rho1, rho2 float64)
}

// TrivialLoss is the identity loss: rho(v2) = v2.
type TrivialLoss struct{}

// Eval implements Loss.
func (TrivialLoss) Eval(v2 float64) (float64, float64, float64) {
	return v2, 1, 0
}

// HuberLoss is the classic Huber M-estimator with transition point C, used
// by default with C = settings.Intensity.OutlierDiff.
type HuberLoss struct {
	C float64
}

// Eval implements Loss.
func (h HuberLoss) Eval(v2 float64) (float64, float64, float64) {
	c2 := h.C * h.C
	if v2 <= c2 {
		return v2, 1, 0
	}
	sqrtV2 := math.Sqrt(v2)
	rho0 := 2*h.C*sqrtV2 - c2
	rho1 := h.C / sqrtV2
	rho2 := -0.5 * h.C / (v2 * sqrtV2)
	return rho0, rho1, rho2
}

// NewLoss builds the Loss named by settings; "huber" is the default used
// throughout the optimizer, "trivial" disables robustification (useful for
// the non-robust testable properties).
func NewLoss(name string, huberC float64) Loss {
	switch name {
	case "trivial":
		return TrivialLoss{}
	default:
		return HuberLoss{C: huberC}
	}
}

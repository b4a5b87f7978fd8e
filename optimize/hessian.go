package optimize

import (
	"gonum.org/v1/gonum/mat"
)

// Hessian is the block-structured Gauss-Newton normal-equations system
// accumulated over all residuals in a window: dense frame-frame and
// frame-point blocks (the window is small, so a dense gonum.mat.Dense
// backing is equivalent in practice to -- and much simpler than -- an
// explicit sparse block map), and a diagonal point-point block, since two
// residuals never share a point unless they also share its host frame's
// contribution, which is accumulated into the same diagonal entry.
type Hessian struct {
	order FrameParameterOrder
	Hff   *mat.Dense // F x F
	Hfp   *mat.Dense // F x P
	Hpp   []float64  // diagonal, length P
	Gf    []float64  // length F
	Gp    []float64  // length P
}

// NewHessian allocates a zeroed accumulator for the given layout and point
// count. Blocks with a zero dimension are left as empty matrices, since
// gonum rejects zero-sized dense allocations.
func NewHessian(order FrameParameterOrder, numPoints int) *Hessian {
	f := order.TotalFrameParameters()
	h := &Hessian{
		order: order,
		Hff:   &mat.Dense{},
		Hfp:   &mat.Dense{},
		Hpp:   make([]float64, numPoints),
		Gf:    make([]float64, f),
		Gp:    make([]float64, numPoints),
	}
	if f > 0 {
		h.Hff = mat.NewDense(f, f, nil)
		if numPoints > 0 {
			h.Hfp = mat.NewDense(f, numPoints, nil)
		}
	}
	return h
}

// frameRow builds the length-F contribution row for one pattern sample's
// Jacobian: nonzero only in the host frame's and target frame's own
// sub-blocks (keyframe 0, the anchor, contributes nothing).
func (h *Hessian) frameRow(hostInd, targetInd, hostCamInd, targetCamInd int, hostPoseJ, targetPoseJ [6]float64, hostAffJ, targetAffJ [2]float64) []float64 {
	row := make([]float64, h.order.TotalFrameParameters())
	if hostInd != 0 {
		off := h.order.PoseOffset(hostInd)
		copy(row[off:off+6], hostPoseJ[:])
		aoff := h.order.AffineOffset(hostInd, hostCamInd)
		row[aoff] += hostAffJ[0]
		row[aoff+1] += hostAffJ[1]
	}
	if targetInd != 0 {
		off := h.order.PoseOffset(targetInd)
		for k := 0; k < 6; k++ {
			row[off+k] += targetPoseJ[k]
		}
		aoff := h.order.AffineOffset(targetInd, targetCamInd)
		row[aoff] += targetAffJ[0]
		row[aoff+1] += targetAffJ[1]
	}
	return row
}

// AddResidual folds one Residual's weighted Jacobian outer products into
// the accumulator, matching getDeltaHessian's frame-frame/frame-point/
// point-point block assembly.
func (h *Hessian) AddResidual(res *Residual, values, weights []float64, jac Jacobian, globalPointInd int) {
	for i := range values {
		row := h.frameRow(res.HostInd, res.TargetInd, res.HostCamInd, res.TargetCamInd,
			jac.DrDHostPose[i], jac.DrDTargetPose[i], jac.DrDHostAffine[i], jac.DrDTargetAffine[i])
		dPoint := jac.DrDLogDepth[i]
		w := weights[i]
		v := values[i]

		for a, ra := range row {
			if ra == 0 {
				continue
			}
			h.Gf[a] += w * ra * v
			for b, rb := range row {
				if rb == 0 {
					continue
				}
				h.Hff.Set(a, b, h.Hff.At(a, b)+w*ra*rb)
			}
			h.Hfp.Set(a, globalPointInd, h.Hfp.At(a, globalPointInd)+w*ra*dPoint)
		}
		h.Hpp[globalPointInd] += w * dPoint * dPoint
		h.Gp[globalPointInd] += w * dPoint * v
	}
}

// Damp returns a new Hessian with Marquardt diagonal scaling applied:
// H_ff[k,k] += lambda*H_ff[k,k], H_pp[p] += lambda*H_pp[p].
func (h *Hessian) Damp(lambda float64) *Hessian {
	damped := &Hessian{
		order: h.order,
		Hff:   mat.DenseCopyOf(h.Hff),
		Hfp:   mat.DenseCopyOf(h.Hfp),
		Hpp:   append([]float64(nil), h.Hpp...),
		Gf:    h.Gf,
		Gp:    h.Gp,
	}
	f, _ := damped.Hff.Dims()
	for k := 0; k < f; k++ {
		damped.Hff.Set(k, k, damped.Hff.At(k, k)*(1+lambda))
	}
	for p := range damped.Hpp {
		damped.Hpp[p] *= 1 + lambda
	}
	return damped
}

// Solve forms the Schur complement over the point block and solves the
// resulting dense system for the frame delta, then back-substitutes for the
// point deltas. It tries a Cholesky factorization first (the common case
// for a damped, positive-definite system) and falls back to an LU solve --
// gonum has no general LDLT factorization, so LU is the substitute for the
// original's "Cholesky with fallback to LDLT on a non-positive-definite
// system" behavior.
func (h *Hessian) Solve() DeltaParameterVector {
	f := len(h.Gf)
	p := len(h.Gp)
	delta := NewDeltaParameterVector(h.order, p)
	if f == 0 {
		solvePointsOnly(h, delta)
		return delta
	}

	// Schur complement: S = Hff - Hfp * diag(1/Hpp) * Hfp^T
	// rhs = Gf - Hfp * diag(1/Hpp) * Gp
	invHppHfpT := mat.NewDense(p, f, nil)
	for pi := 0; pi < p; pi++ {
		invDiag := safeInv(h.Hpp[pi])
		for fi := 0; fi < f; fi++ {
			invHppHfpT.Set(pi, fi, invDiag*h.Hfp.At(fi, pi))
		}
	}
	var schurTerm mat.Dense
	schurTerm.Mul(h.Hfp, invHppHfpT)

	var s mat.Dense
	s.Sub(h.Hff, &schurTerm)

	rhsPoint := make([]float64, f)
	for fi := 0; fi < f; fi++ {
		var sum float64
		for pi := 0; pi < p; pi++ {
			sum += h.Hfp.At(fi, pi) * safeInv(h.Hpp[pi]) * h.Gp[pi]
		}
		rhsPoint[fi] = sum
	}
	rhs := mat.NewVecDense(f, nil)
	for fi := 0; fi < f; fi++ {
		rhs.SetVec(fi, h.Gf[fi]-rhsPoint[fi])
	}

	frameDelta := make([]float64, f)
	var chol mat.Cholesky
	if chol.Factorize(mat.NewSymDense(f, symData(&s, f))) {
		var x mat.VecDense
		if err := chol.SolveVecTo(&x, rhs); err == nil {
			for i := 0; i < f; i++ {
				frameDelta[i] = x.AtVec(i)
			}
		}
	} else {
		var lu mat.LU
		lu.Factorize(&s)
		var x mat.VecDense
		if err := lu.SolveVecTo(&x, false, rhs); err == nil {
			for i := 0; i < f; i++ {
				frameDelta[i] = x.AtVec(i)
			}
		}
	}
	copy(delta.Frame, frameDelta)

	for pi := 0; pi < p; pi++ {
		var htDelta float64
		for fi := 0; fi < f; fi++ {
			htDelta += h.Hfp.At(fi, pi) * frameDelta[fi]
		}
		delta.Point[pi] = safeInv(h.Hpp[pi]) * (h.Gp[pi] - htDelta)
	}
	return delta
}

func solvePointsOnly(h *Hessian, delta DeltaParameterVector) {
	for pi := range h.Gp {
		delta.Point[pi] = safeInv(h.Hpp[pi]) * h.Gp[pi]
	}
}

func safeInv(x float64) float64 {
	if x == 0 {
		return 0
	}
	return 1 / x
}

func symData(m *mat.Dense, n int) []float64 {
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data[i*n+j] = m.At(i, j)
		}
	}
	return data
}

// PredictedEnergyReduction returns 0.5*delta^T*H_damped*delta - delta^T*g,
// the predicted-energy tie-break resolved in favor of the damped Hessian
// (DESIGN.md / spec.md section 9).
func (h *Hessian) PredictedEnergyReduction(delta DeltaParameterVector) float64 {
	var quad float64
	f := len(delta.Frame)
	for a := 0; a < f; a++ {
		var hx float64
		for b := 0; b < f; b++ {
			hx += h.Hff.At(a, b) * delta.Frame[b]
		}
		quad += delta.Frame[a] * hx
	}
	for pi, d := range delta.Point {
		quad += d * h.Hpp[pi] * d
	}
	for a := 0; a < f; a++ {
		for pi, d := range delta.Point {
			quad += 2 * delta.Frame[a] * h.Hfp.At(a, pi) * d
		}
	}
	linear := 0.0
	for a, d := range delta.Frame {
		linear += d * h.Gf[a]
	}
	for pi, d := range delta.Point {
		linear += d * h.Gp[pi]
	}
	return 0.5*quad - linear
}

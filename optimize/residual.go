package optimize

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/yoshua-msc-thesis/mdso/camera"
	"github.com/yoshua-msc-thesis/mdso/imagepyramid"
	"github.com/yoshua-msc-thesis/mdso/keyframe"
	"github.com/yoshua-msc-thesis/mdso/mdsosettings"
	"github.com/yoshua-msc-thesis/mdso/photometry"
	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// residualParamDim is the width of the per-sample Jacobian's full parameter
// vector: host pose (6), target pose (6), host affine (2), target affine
// (2), log depth (1).
const residualParamDim = 17

// Jacobian holds, per pattern sample, the partial derivatives of that
// sample's residual value with respect to every parameter block touching
// it. Every block is closed-form: the pose blocks are chained through a
// MotionDerivatives and the camera's analytic DiffMap, the affine blocks
// through AffLight.DApplyDA/DApplyDB, and the log-depth partial through
// DiffMap alone.
type Jacobian struct {
	DrDHostPose     [][6]float64
	DrDTargetPose   [][6]float64
	DrDHostAffine   [][2]float64
	DrDTargetAffine [][2]float64
	DrDLogDepth     []float64
}

// Residual is a single host-point -> target-frame photometric patch
// residual: one value per pattern sample, with cached host-side quantities
// that do not change across LM trial steps within one outer iteration.
type Residual struct {
	HostInd, HostCamInd   int
	TargetInd, TargetCamInd int
	PointInd              int

	pattern         keyframe.Pattern
	hostRays        []r3.Vector // bearing ray of hostPixel+pattern[i], cached
	hostIntensities []float64   // host intensity at hostPixel+pattern[i], cached
	gradWeights     []float64   // gradient-magnitude down-weight, cached

	hostCam   camera.Model
	targetCam camera.Model
}

// NewResidual constructs a residual and precomputes its host-side caches:
// per-pattern bearing rays (via the unmapped ray of the offset pixel, not a
// linear approximation of it), host intensities, and gradient-based sample
// weights, all sampled once from the host's level-0 interpolator. Per-sample
// gradient weights follow w_i = c / sqrt(c^2 + ||grad I_host||^2), using
// weighting.C, when weighting.UseGradientWeights is set; otherwise every
// sample gets weight 1.
func NewResidual(
	hostInd, hostCamInd, targetInd, targetCamInd, pointInd int,
	hostPixel r2.Point,
	pattern keyframe.Pattern,
	hostCam, targetCam camera.Model,
	hostInterp *imagepyramid.BiCubicInterpolator,
	weighting mdsosettings.ResidualWeighting,
) (*Residual, bool) {
	r := &Residual{
		HostInd: hostInd, HostCamInd: hostCamInd,
		TargetInd: targetInd, TargetCamInd: targetCamInd,
		PointInd:  pointInd,
		pattern:   pattern,
		hostCam:   hostCam,
		targetCam: targetCam,
	}
	r.hostRays = make([]r3.Vector, len(pattern))
	r.hostIntensities = make([]float64, len(pattern))
	r.gradWeights = make([]float64, len(pattern))

	for i, offset := range pattern {
		u := r2.Point{X: hostPixel.X + float64(offset.X), Y: hostPixel.Y + float64(offset.Y)}
		r.hostRays[i] = hostCam.Unmap(u)
		intensity := hostInterp.At(u)
		if math.IsInf(intensity, 0) {
			return nil, false
		}
		r.hostIntensities[i] = intensity
		if weighting.UseGradientWeights {
			g := hostInterp.Gradient(u)
			gradMag2 := g.X*g.X + g.Y*g.Y
			c := weighting.C
			r.gradWeights[i] = c / math.Sqrt(c*c+gradMag2)
		} else {
			r.gradWeights[i] = 1.0
		}
	}
	return r, true
}

// projectSample reprojects pattern sample i of the point (bearing ray
// hostRays[i], depth shared across the pattern) through hostToTarget and
// returns the resulting pixel and its photometric value given the current
// lightHostToTarget and the target interpolator. ok is false if the sample
// left the mappable region, the target image, or hit a pyramid border.
func (r *Residual) projectSample(i int, hostToTarget spatialmath.SE3, depth float64, lightHostToTarget photometry.AffLight, targetInterp *imagepyramid.BiCubicInterpolator) (value float64, u r2.Point, ok bool) {
	var hostPoint r3.Vector
	if depth > 1e50 {
		hostPoint = r.hostRays[i]
	} else {
		hostPoint = r.hostRays[i].Mul(depth)
	}
	targetPoint := hostToTarget.Act(hostPoint)
	if !r.targetCam.IsMappable(targetPoint) {
		return 0, r2.Point{}, false
	}
	u = r.targetCam.Map(targetPoint)
	if !r.targetCam.IsOnImage(u, 2) {
		return 0, r2.Point{}, false
	}
	targetIntensity := targetInterp.At(u)
	if math.IsInf(targetIntensity, 0) {
		return 0, r2.Point{}, false
	}
	predicted := lightHostToTarget.Apply(r.hostIntensities[i])
	return predicted - targetIntensity, u, true
}

// GetValues evaluates every pattern sample's residual at the current
// parameters, returning ok=false if any sample is unusable (caller should
// treat the whole residual as OOB, per I3).
func (r *Residual) GetValues(hostToTarget spatialmath.SE3, depth float64, lightHostToTarget photometry.AffLight, targetInterp *imagepyramid.BiCubicInterpolator) (values []float64, ok bool) {
	values = make([]float64, len(r.pattern))
	for i := range r.pattern {
		v, _, sampleOK := r.projectSample(i, hostToTarget, depth, lightHostToTarget, targetInterp)
		if !sampleOK {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// GetWeights computes the combined Huber-robust and gradient-magnitude
// weight for each already-evaluated residual value.
func (r *Residual) GetWeights(values []float64, loss Loss, lossEps float64) []float64 {
	weights := make([]float64, len(values))
	for i, v := range values {
		v2 := v * v
		_, rho1, rho2 := loss.Eval(v2)
		w := rho1 + 2*rho2*v2
		if w < lossEps*rho1 {
			w = lossEps * rho1
		}
		weights[i] = w * r.gradWeights[i]
	}
	return weights
}

// GetJacobian computes the per-sample Jacobian at the current parameters.
// hostPoseFixed/targetPoseFixed suppress the corresponding pose block (the
// window's anchor keyframe, index 0, never has pose derivatives). md is the
// host/target frame pair's precomputed MotionDerivatives, shared by every
// residual reprojecting between the same two frames.
func (r *Residual) GetJacobian(
	hostToTarget spatialmath.SE3, depth float64, lightHostToTarget photometry.AffLight,
	targetInterp *imagepyramid.BiCubicInterpolator,
	md MotionDerivatives,
	hostToBodyCam, targetToBodyCam camera.RigCamera,
	targetLight photometry.AffLight,
	hostPoseFixed, targetPoseFixed bool,
) Jacobian {
	n := len(r.pattern)
	j := Jacobian{
		DrDHostPose:     make([][6]float64, n),
		DrDTargetPose:   make([][6]float64, n),
		DrDHostAffine:   make([][2]float64, n),
		DrDTargetAffine: make([][2]float64, n),
		DrDLogDepth:     make([]float64, n),
	}

	for i := 0; i < n; i++ {
		var hostPoint r3.Vector
		if depth > 1e50 {
			hostPoint = r.hostRays[i]
		} else {
			hostPoint = r.hostRays[i].Mul(depth)
		}
		targetPoint := hostToTarget.Act(hostPoint)
		if !r.targetCam.IsMappable(targetPoint) {
			continue
		}
		u, dPixelDPoint := r.targetCam.DiffMap(targetPoint)
		if !r.targetCam.IsOnImage(u, 2) {
			continue
		}
		g := targetInterp.Gradient(u)

		toPixel := func(v r3.Vector) float64 {
			dU := dPixelDPoint.At(0, 0)*v.X + dPixelDPoint.At(0, 1)*v.Y + dPixelDPoint.At(0, 2)*v.Z
			dV := dPixelDPoint.At(1, 0)*v.X + dPixelDPoint.At(1, 1)*v.Y + dPixelDPoint.At(1, 2)*v.Z
			return -(g.X*dU + g.Y*dV)
		}

		if !hostPoseFixed {
			hostPointBody := hostToBodyCam.ThisToBody.Act(hostPoint)
			dRot := md.DActionDRotHost(hostPointBody)
			dTrans := md.DActionDTransHost()
			for k := 0; k < 3; k++ {
				j.DrDHostPose[i][k] = toPixel(dRot[k])
				j.DrDHostPose[i][k+3] = toPixel(dTrans[k])
			}
		}
		if !targetPoseFixed {
			targetPointBody := targetToBodyCam.ThisToBody.Act(targetPoint)
			dRot := md.DActionDRotTarget(targetPointBody)
			dTrans := md.DActionDTransTarget()
			for k := 0; k < 3; k++ {
				j.DrDTargetPose[i][k] = toPixel(dRot[k])
				j.DrDTargetPose[i][k+3] = toPixel(dTrans[k])
			}
		}

		// Affine partials are closed-form through AffLight's own derivative
		// methods: the host intensity sample is unaffected by either side's
		// affine parameters, so only the composed light's effect on
		// predicted intensity needs differentiating.
		j.DrDHostAffine[i][0] = -lightHostToTarget.Ea() * r.hostIntensities[i]
		j.DrDHostAffine[i][1] = -targetLight.DApplyDB()
		j.DrDTargetAffine[i][0] = lightHostToTarget.DApplyDA(r.hostIntensities[i])
		j.DrDTargetAffine[i][1] = targetLight.DApplyDB()

		// Log-depth partial: d(targetPoint)/dlogDepth = depth * R_hostToTarget(hostRay).
		dTargetPointDLogDepth := spatialmath.RotateVector(hostToTarget.Rotation(), r.hostRays[i]).Mul(depth)
		j.DrDLogDepth[i] = toPixel(dTargetPointDLogDepth)
	}

	return j
}

func recomposeHostToTarget(hostBodyToWorld, targetBodyToWorld spatialmath.SE3, hostCam, targetCam camera.RigCamera) spatialmath.SE3 {
	targetWorldToBody := targetBodyToWorld.Inverse()
	return targetCam.BodyToThis.Compose(targetWorldToBody).Compose(hostBodyToWorld).Compose(hostCam.ThisToBody)
}

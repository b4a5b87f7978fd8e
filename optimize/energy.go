package optimize

import (
	"context"

	"github.com/pkg/errors"

	"github.com/yoshua-msc-thesis/mdso/camera"
	"github.com/yoshua-msc-thesis/mdso/keyframe"
	"github.com/yoshua-msc-thesis/mdso/mdsolog"
	"github.com/yoshua-msc-thesis/mdso/mdsosettings"
	"github.com/yoshua-msc-thesis/mdso/photometry"
	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// ErrTooFewKeyFrames is returned when EnergyFunction is constructed with
// fewer than two keyframes (I1: a window needs at least one non-anchor
// keyframe to have anything to optimize).
var ErrTooFewKeyFrames = errors.New("energy function requires at least two keyframes")

// ErrEmptyPattern is returned when the sampling pattern has no offsets.
var ErrEmptyPattern = errors.New("residual pattern must not be empty")

// pointRef is an EnergyFunction-internal handle back to the OptimizedPoint
// owning one residual's depth parameter, resolved to a single contiguous
// global index at construction time (see the point re-indexing decision in
// DESIGN.md).
type pointRef struct {
	keyFrameInd, camInd, localInd int
	point                         *keyframe.OptimizedPoint
}

// EnergyFunction owns the full residual set for one optimization window: it
// builds residuals and the point index remap in a single pass (resolving
// the point re-indexing question), then repeatedly forms H/g and solves for
// as many LM iterations as StepController allows.
type EnergyFunction struct {
	bundle    *camera.Bundle
	keyFrames []*keyframe.KeyFrame
	pattern   keyframe.Pattern
	settings  mdsosettings.Settings
	logger    mdsolog.Logger

	residuals []*Residual
	points    []pointRef
	params    *Parameters
	loss      Loss

	hostToTargetCache map[frameKey]spatialmath.SE3
	motionDerivCache  map[frameKey]MotionDerivatives
	lightCache        map[frameKey]photometry.AffLight
}

// frameKey identifies one (host keyframe, host camera, target keyframe,
// target camera) pair: every residual sharing a key also shares the same
// hostToTarget transform, MotionDerivatives, and composed light, so they are
// computed once per pass and reused, matching PrecomputedHostToTarget /
// PrecomputedMotionDerivatives / PrecomputedLightHostToTarget in
// EnergyFunction::getHessian and EnergyFunction::optimize.
type frameKey struct {
	hostInd, hostCamInd, targetInd, targetCamInd int
}

// NewEnergyFunction builds the residual set for keyFrames (index 0 is the
// gauge anchor). Candidate (host,target) pairs are pre-filtered by Reproject
// -- one call per target frame, against every other keyframe's active
// points -- so residual construction only runs on points Reproject already
// confirmed land inside the target image; NewResidual/GetValues then apply
// the remaining per-sample checks (I3). Points are appended to the
// contiguous, construction-order point index space as their first residual
// is built, exactly as EnergyFunction::EnergyFunction does in the original.
func NewEnergyFunction(bundle *camera.Bundle, keyFrames []*keyframe.KeyFrame, pattern keyframe.Pattern, settings mdsosettings.Settings, logger mdsolog.Logger) (*EnergyFunction, error) {
	if len(keyFrames) < 2 {
		return nil, ErrTooFewKeyFrames
	}
	if len(pattern) == 0 {
		return nil, ErrEmptyPattern
	}
	if logger == nil {
		logger = mdsolog.NewNop()
	}

	ef := &EnergyFunction{
		bundle:    bundle,
		keyFrames: keyFrames,
		pattern:   pattern,
		settings:  settings,
		logger:    logger,
		loss:      NewLoss("huber", settings.Intensity.OutlierDiff),
	}

	pointIndex := make(map[*keyframe.OptimizedPoint]int)
	borderSize := float64(settings.PatternBorderSize)

	for targetInd, target := range keyFrames {
		var hostFrames []ReprojectorFrame[*keyframe.OptimizedPoint]
		var hostActualInd []int
		var hostOrigLocalInd [][][]int

		for hostInd, host := range keyFrames {
			if hostInd == targetInd {
				continue
			}
			pointsByCam := make([][]*keyframe.OptimizedPoint, len(host.Entries))
			origInd := make([][]int, len(host.Entries))
			for camInd, entry := range host.Entries {
				for localInd, point := range entry.OptimizedPoints {
					if point.State != keyframe.Active {
						continue
					}
					pointsByCam[camInd] = append(pointsByCam[camInd], point)
					origInd[camInd] = append(origInd[camInd], localInd)
				}
			}
			hostFrames = append(hostFrames, ReprojectorFrame[*keyframe.OptimizedPoint]{BodyToWorld: host.BodyToWorld, PointsByCam: pointsByCam})
			hostActualInd = append(hostActualInd, hostInd)
			hostOrigLocalInd = append(hostOrigLocalInd, origInd)
		}

		for _, rp := range Reproject(bundle, hostFrames, target.BodyToWorld, borderSize) {
			hostInd := hostActualInd[rp.HostInd]
			host := keyFrames[hostInd]
			hostEntry := host.Entries[rp.HostCamInd]
			hostCam := bundle.Camera(rp.HostCamInd)
			targetCam := bundle.Camera(rp.TargetCamInd)
			targetEntry := target.Entries[rp.TargetCamInd]

			localInd := hostOrigLocalInd[rp.HostInd][rp.HostCamInd][rp.PointInd]
			point := hostEntry.OptimizedPoints[localInd]

			hostToTarget := recomposeHostToTarget(host.BodyToWorld, target.BodyToWorld, hostCam, targetCam)
			res, ok := NewResidual(hostInd, rp.HostCamInd, targetInd, rp.TargetCamInd, 0,
				point.P, pattern, hostCam.Model, targetCam.Model, hostEntry.Interpolator,
				settings.ResidualWeighting)
			if !ok {
				continue
			}
			lightHostToTarget := targetEntry.LightWorldToThis.Compose(hostEntry.LightWorldToThis.Inverse())
			if _, ok := res.GetValues(hostToTarget, point.Depth(), lightHostToTarget, targetEntry.Interpolator); !ok {
				continue
			}

			gi, known := pointIndex[point]
			if !known {
				gi = len(ef.points)
				pointIndex[point] = gi
				ef.points = append(ef.points, pointRef{keyFrameInd: hostInd, camInd: rp.HostCamInd, localInd: localInd, point: point})
			}
			res.PointInd = gi
			ef.residuals = append(ef.residuals, res)
		}
	}

	bodyToWorld := make([]*spatialmath.SE3, len(keyFrames))
	light := make([][]*photometry.AffLight, len(keyFrames))
	for i, kf := range keyFrames {
		bodyToWorld[i] = &kf.BodyToWorld
		light[i] = make([]*photometry.AffLight, len(kf.Entries))
		for c, e := range kf.Entries {
			light[i][c] = &e.LightWorldToThis
		}
	}
	pointDepths := make([]*float64, len(ef.points))
	for i, ref := range ef.points {
		pointDepths[i] = &ref.point.LogDepth
	}
	ef.params = NewParameters(bundle, len(keyFrames), bodyToWorld, light, pointDepths, settings.Depth, settings.AffineLight)
	return ef, nil
}

// Params returns the parameter view the step controller mutates.
func (ef *EnergyFunction) Params() *Parameters {
	return ef.params
}

// frameQuantities returns the hostToTarget transform, MotionDerivatives, and
// composed light for res's (host,target) frame pair, building and caching
// them on first use within the current pass. Every residual sharing the
// pair reuses the same values, matching PrecomputedHostToTarget /
// PrecomputedMotionDerivatives / PrecomputedLightHostToTarget.
func (ef *EnergyFunction) frameQuantities(res *Residual) (spatialmath.SE3, MotionDerivatives, photometry.AffLight) {
	key := frameKey{res.HostInd, res.HostCamInd, res.TargetInd, res.TargetCamInd}
	if hostToTarget, ok := ef.hostToTargetCache[key]; ok {
		return hostToTarget, ef.motionDerivCache[key], ef.lightCache[key]
	}

	hostBodyToWorld := ef.params.BodyToWorld(res.HostInd)
	targetBodyToWorld := ef.params.BodyToWorld(res.TargetInd)
	hostLight := ef.params.Light(res.HostInd, res.HostCamInd)
	targetLight := ef.params.Light(res.TargetInd, res.TargetCamInd)
	hostRig := ef.bundle.Camera(res.HostCamInd)
	targetRig := ef.bundle.Camera(res.TargetCamInd)

	hostToTarget := recomposeHostToTarget(hostBodyToWorld, targetBodyToWorld, hostRig, targetRig)
	md := NewMotionDerivatives(hostBodyToWorld, targetBodyToWorld, hostRig, targetRig)
	lightHostToTarget := targetLight.Compose(hostLight.Inverse())

	ef.hostToTargetCache[key] = hostToTarget
	ef.motionDerivCache[key] = md
	ef.lightCache[key] = lightHostToTarget
	return hostToTarget, md, lightHostToTarget
}

// resetFrameCache clears the per-pass PrecomputedHostToTarget /
// PrecomputedMotionDerivatives / PrecomputedLightHostToTarget caches; it
// must run before each fresh energy/Hessian pass since the cached values
// are only valid for the Parameters state they were built against.
func (ef *EnergyFunction) resetFrameCache() {
	ef.hostToTargetCache = make(map[frameKey]spatialmath.SE3)
	ef.motionDerivCache = make(map[frameKey]MotionDerivatives)
	ef.lightCache = make(map[frameKey]photometry.AffLight)
}

// evalResidual re-evaluates one cached residual against the energy
// function's current (live) parameters, returning its sample values,
// weights, and Jacobian. ok is false if the point has left the mappable
// region of the target frame since construction (I3), in which case the
// residual contributes nothing to this iteration's Hessian/gradient/energy.
func (ef *EnergyFunction) evalResidual(res *Residual) (values, weights []float64, jac Jacobian, ok bool) {
	targetEntry := ef.keyFrames[res.TargetInd].Entries[res.TargetCamInd]
	hostRig := ef.bundle.Camera(res.HostCamInd)
	targetRig := ef.bundle.Camera(res.TargetCamInd)

	depth := keyframe.DepthFromLogDepth(ef.params.LogDepth(res.PointInd))

	hostToTarget, md, lightHostToTarget := ef.frameQuantities(res)

	values, ok = res.GetValues(hostToTarget, depth, lightHostToTarget, targetEntry.Interpolator)
	if !ok {
		return nil, nil, Jacobian{}, false
	}
	weights = res.GetWeights(values, ef.loss, ef.settings.Intensity.Eps)
	targetLight := ef.params.Light(res.TargetInd, res.TargetCamInd)
	jac = res.GetJacobian(hostToTarget, depth, lightHostToTarget, targetEntry.Interpolator,
		md, hostRig, targetRig, targetLight,
		res.HostInd == 0, res.TargetInd == 0)
	return values, weights, jac, true
}

// GetResidualValues returns the sample values of residual i at the current
// parameters, or ok=false if the point has gone out of bounds.
func (ef *EnergyFunction) GetResidualValues(i int) (values []float64, ok bool) {
	ef.resetFrameCache()
	values, _, _, ok = ef.evalResidual(ef.residuals[i])
	return values, ok
}

// TotalEnergy sums the robust loss over every still-usable residual's
// pattern samples, matching EnergyFunction::getEnergy's outlier-skipping
// accumulation.
func (ef *EnergyFunction) TotalEnergy() float64 {
	ef.resetFrameCache()
	var energy float64
	for _, res := range ef.residuals {
		values, _, _, ok := ef.evalResidual(res)
		if !ok {
			continue
		}
		for _, v := range values {
			rho0, _, _ := ef.loss.Eval(v * v)
			energy += rho0
		}
	}
	return energy
}

// GetHessian re-evaluates every residual and accumulates the full,
// undamped Gauss-Newton normal-equations system over the current window.
func (ef *EnergyFunction) GetHessian() *Hessian {
	ef.resetFrameCache()
	h := NewHessian(ef.params.Order(), ef.params.NumPoints())
	for _, res := range ef.residuals {
		values, weights, jac, ok := ef.evalResidual(res)
		if !ok {
			continue
		}
		h.AddResidual(res, values, weights, jac, res.PointInd)
	}
	return h
}

// GetGradient returns the same gradient accumulated by GetHessian, as a
// standalone parameter-shaped vector, for callers that only need it (the
// step controller instead uses GetHessian's Gf/Gp directly to avoid a
// second residual pass).
func (ef *EnergyFunction) GetGradient() DeltaParameterVector {
	h := ef.GetHessian()
	g := NewDeltaParameterVector(ef.params.Order(), ef.params.NumPoints())
	copy(g.Frame, h.Gf)
	copy(g.Point, h.Gp)
	return g
}

// Optimize runs the windowed Levenberg-Marquardt loop for up to
// settings.Optimization.MaxIterations trial steps, stopping early if ctx is
// canceled between iterations. Each iteration forms the damped Hessian,
// solves for a tangent-space delta (after clamping the depth step per I4
// and freezing the affine block when the affine light step is disabled),
// tentatively applies the descent step -delta to Parameters' local state
// (the step PredictedEnergyReduction models), and asks the step
// controller whether to keep it; rejected steps are rolled back via
// Parameters.SaveState/RecoverState (testable property 3). The local state
// is only committed into the live keyframe/point window once, via
// Parameters.Apply after the loop exits, matching
// EnergyFunction::optimize's single apply() call at the end of its LM loop.
// A window that produced no residuals is left untouched.
func (ef *EnergyFunction) Optimize(ctx context.Context) error {
	if len(ef.residuals) == 0 {
		return nil
	}
	sc := NewStepController(ef.settings.Optimization, ef.logger)
	numCameras := ef.bundle.NumCameras()

	for iter := 0; iter < ef.settings.Optimization.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			ef.params.Apply()
			return ctx.Err()
		default:
		}

		oldEnergy := ef.TotalEnergy()
		hessian := ef.GetHessian()
		damped := hessian.Damp(sc.Lambda())
		delta := damped.Solve()
		delta.ConstraintDepths(ef.settings.Optimization.MaxAbsDeltaD)
		if !ef.settings.AffineLight.OptimizeAffine {
			delta.SetAffineZero(numCameras)
		}

		saved := ef.params.SaveState()
		ef.params.Update(delta.Scale(-1))
		newEnergy := ef.TotalEnergy()
		predictedEnergy := oldEnergy + damped.PredictedEnergyReduction(delta)

		if !sc.NewStep(oldEnergy, newEnergy, predictedEnergy) {
			ef.params.RecoverState(saved)
			ef.logger.Debugf("lm iteration %d rejected, energy %v -> %v (predicted %v)", iter, oldEnergy, newEnergy, predictedEnergy)
			continue
		}
		ef.logger.Debugf("lm iteration %d accepted, energy %v -> %v (predicted %v)", iter, oldEnergy, newEnergy, predictedEnergy)
	}
	ef.params.Apply()
	return nil
}

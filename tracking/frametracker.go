// Package tracking implements the per-frame coarse-to-fine photometric pose
// tracker: given a depth-seeded base keyframe and an incoming frame's image
// pyramid, it refines a coarse motion/affine-light guess into a precise
// estimate, level by level from coarsest to finest.
package tracking

import (
	"context"
	"math"

	"github.com/go-nlopt/nlopt"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/yoshua-msc-thesis/mdso/camera"
	"github.com/yoshua-msc-thesis/mdso/imagepyramid"
	"github.com/yoshua-msc-thesis/mdso/mdsolog"
	"github.com/yoshua-msc-thesis/mdso/mdsosettings"
	"github.com/yoshua-msc-thesis/mdso/optimize"
	"github.com/yoshua-msc-thesis/mdso/photometry"
	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// ErrTrackingFailed is returned when a pyramid level has no base points to
// refine against.
var ErrTrackingFailed = errors.New("frame tracker: no trackable points at this pyramid level")

const gradientJump = 1e-6

// BasePoint is one depth-seeded sample carried from the base keyframe's
// pyramid level into the tracking loop: an already-metric 3D point in the
// base camera frame (bearing ray scaled by its optimized depth) and the
// base image's intensity there.
type BasePoint struct {
	Point     r3.Vector
	Intensity float64
}

// level pairs one pyramid level's camera model (intrinsics already scaled
// to that level's resolution) with its depth-seeded base points.
type level struct {
	cam    camera.Model
	points []BasePoint
}

// FrameTracker aligns an incoming frame's image pyramid against a
// depth-seeded base keyframe by direct photometric minimization,
// coarse-to-fine, grounded on FrameTracker::trackFrame/trackPyrLevel.
// Unlike the bundle-adjustment EnergyFunction, it tracks a single primary
// rig camera: the original system does the same, driving multi-camera
// rigs off of one designated tracking camera per frame.
type FrameTracker struct {
	levels   []level
	settings mdsosettings.Settings
	logger   mdsolog.Logger
}

// NewFrameTracker builds a tracker from one camera model per pyramid level
// and the base keyframe's depth-seeded points at each level, both ordered
// finest-first (index 0 is full resolution).
func NewFrameTracker(camPerLevel []camera.Model, basePointsPerLevel [][]BasePoint, settings mdsosettings.Settings, logger mdsolog.Logger) *FrameTracker {
	if logger == nil {
		logger = mdsolog.NewNop()
	}
	levels := make([]level, len(camPerLevel))
	for i := range camPerLevel {
		levels[i] = level{cam: camPerLevel[i], points: basePointsPerLevel[i]}
	}
	return &FrameTracker{levels: levels, settings: settings, logger: logger}
}

// TrackFrame refines coarseMotion/coarseAffLight (base-to-target pose and
// light) against targetPyramid, working from the coarsest level to the
// finest, exactly the order trackFrame iterates camPyr/baseFrame levels in.
func (ft *FrameTracker) TrackFrame(ctx context.Context, targetPyramid *imagepyramid.Pyramid, coarseMotion spatialmath.SE3, coarseAffLight photometry.AffLight) (spatialmath.SE3, photometry.AffLight, error) {
	motion := coarseMotion
	affLight := coarseAffLight

	for i := len(ft.levels) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			return motion, affLight, ctx.Err()
		default:
		}
		var err error
		targetInterp := imagepyramid.NewBiCubicInterpolator(targetPyramid.Levels[i])
		motion, affLight, err = ft.trackLevel(ft.levels[i], targetInterp, motion, affLight)
		if err != nil {
			return motion, affLight, errors.Wrapf(err, "tracking pyramid level %d", i)
		}
		ft.logger.Debugf("tracked level %d: motion=%v affLight=%+v", i, motion.Log(), affLight)
	}
	return motion, affLight, nil
}

// trackLevel runs one bound-constrained LD_SLSQP solve over the 8-dim
// [rotation(3), translation(3), affine a, affine b] delta from coarseMotion/
// coarseAffLight, minimizing the Huber-robust sum of photometric residuals
// between lvl's depth-seeded base points and targetInterp, matching
// trackPyrLevel's ceres problem but re-targeted to nlopt (see SPEC_FULL.md
// 4.10 on this substitution).
func (ft *FrameTracker) trackLevel(lvl level, targetInterp *imagepyramid.BiCubicInterpolator, coarseMotion spatialmath.SE3, coarseAffLight photometry.AffLight) (spatialmath.SE3, photometry.AffLight, error) {
	if len(lvl.points) == 0 {
		return coarseMotion, coarseAffLight, ErrTrackingFailed
	}
	usable := lvl.points

	loss := optimize.HuberLoss{C: ft.settings.Intensity.OutlierDiff}

	evaluate := func(x []float64) float64 {
		var step [6]float64
		copy(step[:], x[:6])
		motion := coarseMotion.RetractRight(step)
		affLight := photometry.AffLight{A: coarseAffLight.A + x[6], B: coarseAffLight.B + x[7]}

		var total float64
		for _, p := range usable {
			targetPoint := motion.Act(p.Point)
			if !lvl.cam.IsMappable(targetPoint) {
				continue
			}
			u := lvl.cam.Map(targetPoint)
			if !lvl.cam.IsOnImage(u, 2) {
				continue
			}
			targetIntensity := targetInterp.At(u)
			if math.IsInf(targetIntensity, 0) {
				continue
			}
			residual := affLight.Apply(p.Intensity) - targetIntensity
			rho0, _, _ := loss.Eval(residual * residual)
			total += rho0
		}
		return total
	}

	objective := func(x, gradient []float64) float64 {
		base := evaluate(x)
		for i := range gradient {
			if i >= 6 && !ft.settings.AffineLight.OptimizeAffine {
				gradient[i] = 0
				continue
			}
			orig := x[i]
			x[i] = orig + gradientJump
			perturbed := evaluate(x)
			x[i] = orig
			gradient[i] = (perturbed - base) / gradientJump
		}
		return base
	}

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, 8)
	if err != nil {
		return coarseMotion, coarseAffLight, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	lower := make([]float64, 8)
	upper := make([]float64, 8)
	for i := 0; i < 6; i++ {
		lower[i] = -math.MaxFloat64
		upper[i] = math.MaxFloat64
	}
	lower[6] = ft.settings.AffineLight.MinA - coarseAffLight.A
	upper[6] = ft.settings.AffineLight.MaxA - coarseAffLight.A
	lower[7] = ft.settings.AffineLight.MinB - coarseAffLight.B
	upper[7] = ft.settings.AffineLight.MaxB - coarseAffLight.B
	if !ft.settings.AffineLight.OptimizeAffine {
		lower[6], upper[6] = 0, 0
		lower[7], upper[7] = 0, 0
	}

	const epsilon = 1e-8
	if err := opt.SetLowerBounds(lower); err != nil {
		return coarseMotion, coarseAffLight, errors.Wrap(err, "nlopt set lower bounds")
	}
	if err := opt.SetUpperBounds(upper); err != nil {
		return coarseMotion, coarseAffLight, errors.Wrap(err, "nlopt set upper bounds")
	}
	if err := opt.SetMinObjective(objective); err != nil {
		return coarseMotion, coarseAffLight, errors.Wrap(err, "nlopt set objective")
	}
	if err := opt.SetFtolRel(epsilon); err != nil {
		return coarseMotion, coarseAffLight, errors.Wrap(err, "nlopt set ftol")
	}
	if err := opt.SetXtolRel(epsilon); err != nil {
		return coarseMotion, coarseAffLight, errors.Wrap(err, "nlopt set xtol")
	}
	if err := opt.SetMaxEval(ft.settings.Optimization.MaxIterations * 200); err != nil {
		return coarseMotion, coarseAffLight, errors.Wrap(err, "nlopt set max eval")
	}

	x := make([]float64, 8)
	_, _, err = opt.Optimize(x)
	if err != nil {
		return coarseMotion, coarseAffLight, errors.Wrap(err, "nlopt solve error")
	}

	var step [6]float64
	copy(step[:], x[:6])
	motion := coarseMotion.RetractRight(step)
	affLight := photometry.AffLight{A: coarseAffLight.A + x[6], B: coarseAffLight.B + x[7]}
	return motion, affLight, nil
}

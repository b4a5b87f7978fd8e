// Package optimize implements the windowed photometric bundle-adjustment
// backend: the parameter store, reprojector, residual construction, the
// block-sparse Hessian/gradient accumulation with Schur-complement point
// elimination, the energy function tying them together, and the
// Levenberg-Marquardt step controller that drives convergence.
package optimize

import (
	"math"

	"github.com/yoshua-msc-thesis/mdso/camera"
	"github.com/yoshua-msc-thesis/mdso/mdsosettings"
	"github.com/yoshua-msc-thesis/mdso/photometry"
	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// poseParamsPerFrame is the tangent-space dimension of one keyframe's pose
// block, [rx,ry,rz, tx,ty,tz] (matching SE3.RetractRight's parameter order),
// shared across the keyframe's cameras; affineParamsPerCamera is the [a,b]
// pair each camera adds.
const poseParamsPerFrame = 6
const affineParamsPerCamera = 2

// FrameParameterOrder computes the contiguous index layout of the frame
// parameter block: keyframe 0 is the gauge anchor and owns no parameters;
// every keyframe k>=1 owns one 6-dim pose block plus one 2-dim affine block
// per rig camera.
type FrameParameterOrder struct {
	numKeyFrames int
	numCameras   int
}

// NewFrameParameterOrder builds the layout for a window of numKeyFrames
// keyframes and a rig of numCameras cameras.
func NewFrameParameterOrder(numKeyFrames, numCameras int) FrameParameterOrder {
	return FrameParameterOrder{numKeyFrames: numKeyFrames, numCameras: numCameras}
}

// perFrameWidth is the number of scalars owned by one non-anchor keyframe:
// the shared pose plus one affine pair per camera.
func (o FrameParameterOrder) perFrameWidth() int {
	return poseParamsPerFrame + affineParamsPerCamera*o.numCameras
}

// TotalFrameParameters is the total width of the frame parameter block.
func (o FrameParameterOrder) TotalFrameParameters() int {
	if o.numKeyFrames <= 1 {
		return 0
	}
	return (o.numKeyFrames - 1) * o.perFrameWidth()
}

// PoseOffset returns the offset of keyframe frameInd's 6-dim pose block.
// frameInd must be >= 1; keyframe 0 is the gauge anchor and is never
// addressed here.
func (o FrameParameterOrder) PoseOffset(frameInd int) int {
	return (frameInd - 1) * o.perFrameWidth()
}

// AffineOffset returns the offset of keyframe frameInd's camInd-th 2-dim
// affine block.
func (o FrameParameterOrder) AffineOffset(frameInd, camInd int) int {
	return o.PoseOffset(frameInd) + poseParamsPerFrame + affineParamsPerCamera*camInd
}

// DeltaParameterVector is one Gauss-Newton/LM step: a dense tangent-space
// update over the frame block plus one scalar per tracked point.
type DeltaParameterVector struct {
	order FrameParameterOrder
	Frame []float64
	Point []float64
}

// NewDeltaParameterVector allocates a zeroed delta for the given layout and
// point count.
func NewDeltaParameterVector(order FrameParameterOrder, numPoints int) DeltaParameterVector {
	return DeltaParameterVector{
		order: order,
		Frame: make([]float64, order.TotalFrameParameters()),
		Point: make([]float64, numPoints),
	}
}

// Scale returns factor*d, leaving d unmodified.
func (d DeltaParameterVector) Scale(factor float64) DeltaParameterVector {
	out := NewDeltaParameterVector(d.order, len(d.Point))
	for i, v := range d.Frame {
		out.Frame[i] = factor * v
	}
	for i, v := range d.Point {
		out.Point[i] = factor * v
	}
	return out
}

// Dot returns the inner product of d and other over both blocks.
func (d DeltaParameterVector) Dot(other DeltaParameterVector) float64 {
	var sum float64
	for i := range d.Frame {
		sum += d.Frame[i] * other.Frame[i]
	}
	for i := range d.Point {
		sum += d.Point[i] * other.Point[i]
	}
	return sum
}

// SetAffineZero zeroes the affine sub-block of every non-anchor keyframe,
// used when the affine light step is frozen for a trial iteration.
func (d DeltaParameterVector) SetAffineZero(numCameras int) {
	for frameInd := 1; frameInd < d.order.numKeyFrames; frameInd++ {
		for camInd := 0; camInd < numCameras; camInd++ {
			off := d.order.AffineOffset(frameInd, camInd)
			d.Frame[off] = 0
			d.Frame[off+1] = 0
		}
	}
}

// ConstraintDepths zeroes any point delta whose magnitude exceeds
// maxAbsDeltaD (I4), matching DeltaParameterVector::constraintDepths.
func (d DeltaParameterVector) ConstraintDepths(maxAbsDeltaD float64) {
	for i, v := range d.Point {
		if v > maxAbsDeltaD || v < -maxAbsDeltaD {
			d.Point[i] = 0
		}
	}
}

// State is a deep, independent snapshot of Parameters, used by
// SaveState/RecoverState for exact LM step rejection rollback.
type State struct {
	bodyToWorld []spatialmath.SE3
	light       [][]photometry.AffLight
	logDepth    []float64
}

// Parameters owns the optimizer's mutable state: per-keyframe body pose,
// per-(keyframe,camera) affine light, and per-point log depth, addressed
// through FrameParameterOrder. Points are addressed through a single flat
// slice whose order is exactly the global point-index space EnergyFunction
// assigns at residual-construction time (see DESIGN.md's point re-indexing
// resolution) -- Update and DeltaParameterVector.Point must walk the same
// order, so Parameters never re-groups points by keyframe internally.
//
// Parameters keeps its own local copy of this state, separate from the
// keyframe/point state it was built from; Update, SaveState, and
// RecoverState all act on the local copy only. The constructor's
// bodyToWorld/light/points pointers are kept solely as the commit target
// for Apply, matching Parameters::setPoints seeding local state once at
// construction and Parameters::apply being the only method that writes
// back into the live window (see EnergyFunction::optimize, which calls
// apply() exactly once, after its LM loop finishes).
type Parameters struct {
	order     FrameParameterOrder
	bundle    *camera.Bundle
	keyFrames []keyframeView
	points    []float64 // local log-depth copy, in global index order

	extBodyToWorld []*spatialmath.SE3
	extLight       [][]*photometry.AffLight
	extPoints      []*float64

	minLogDepth, maxLogDepth float64
	affineLight              mdsosettings.AffineLight
}

// keyframeView is one keyframe's local, optimizer-owned pose and affine
// light state.
type keyframeView struct {
	bodyToWorld spatialmath.SE3
	light       []photometry.AffLight
}

// NewParameters builds a Parameters view over the active optimization
// window, copying the caller's current bodyToWorld/light/points values into
// local state; the caller's pointers are retained only so a later Apply can
// write the optimized result back. points must be ordered to match the
// residual set's global point indices.
func NewParameters(bundle *camera.Bundle, numKeyFrames int, bodyToWorld []*spatialmath.SE3, light [][]*photometry.AffLight, points []*float64, depthBounds mdsosettings.Depth, affineLight mdsosettings.AffineLight) *Parameters {
	order := NewFrameParameterOrder(numKeyFrames, bundle.NumCameras())
	views := make([]keyframeView, numKeyFrames)
	for i := range views {
		lights := make([]photometry.AffLight, len(light[i]))
		for j, l := range light[i] {
			lights[j] = *l
		}
		views[i] = keyframeView{bodyToWorld: *bodyToWorld[i], light: lights}
	}
	localPoints := make([]float64, len(points))
	for i, d := range points {
		localPoints[i] = *d
	}
	return &Parameters{
		order: order, bundle: bundle, keyFrames: views, points: localPoints,
		extBodyToWorld: bodyToWorld, extLight: light, extPoints: points,
		minLogDepth: math.Log(depthBounds.Min), maxLogDepth: math.Log(depthBounds.Max),
		affineLight: affineLight,
	}
}

// Order returns the frame parameter layout.
func (p *Parameters) Order() FrameParameterOrder {
	return p.order
}

// NumPoints returns the total number of tracked points in the window.
func (p *Parameters) NumPoints() int {
	return len(p.points)
}

// BodyToWorld returns keyframe frameInd's current local pose.
func (p *Parameters) BodyToWorld(frameInd int) spatialmath.SE3 {
	return p.keyFrames[frameInd].bodyToWorld
}

// Light returns keyframe frameInd's current local affine light transform
// for camera camInd.
func (p *Parameters) Light(frameInd, camInd int) photometry.AffLight {
	return p.keyFrames[frameInd].light[camInd]
}

// LogDepth returns tracked point pointInd's current local log-depth.
func (p *Parameters) LogDepth(pointInd int) float64 {
	return p.points[pointInd]
}

// SaveState deep-copies the current local state for later rollback.
func (p *Parameters) SaveState() State {
	s := State{
		bodyToWorld: make([]spatialmath.SE3, len(p.keyFrames)),
		light:       make([][]photometry.AffLight, len(p.keyFrames)),
		logDepth:    make([]float64, len(p.points)),
	}
	for i, kf := range p.keyFrames {
		s.bodyToWorld[i] = kf.bodyToWorld
		s.light[i] = append([]photometry.AffLight(nil), kf.light...)
	}
	copy(s.logDepth, p.points)
	return s
}

// RecoverState restores a previously saved snapshot, undoing a rejected LM
// step byte-for-byte (testable property 3).
func (p *Parameters) RecoverState(s State) {
	for i := range p.keyFrames {
		p.keyFrames[i].bodyToWorld = s.bodyToWorld[i]
		copy(p.keyFrames[i].light, s.light[i])
	}
	copy(p.points, s.logDepth)
}

// Update applies a tangent-space delta to the local state only: I2's
// right-multiplicative pose retraction, additive affine update, and
// additive log-depth update with the I4 magnitude clamp already applied by
// the caller via DeltaParameterVector.ConstraintDepths. The live
// keyframe/point state Parameters was built from is untouched until Apply
// is called.
func (p *Parameters) Update(delta DeltaParameterVector) {
	for frameInd := 1; frameInd < len(p.keyFrames); frameInd++ {
		kf := &p.keyFrames[frameInd]
		poseOff := p.order.PoseOffset(frameInd)
		var step [6]float64
		copy(step[:], delta.Frame[poseOff:poseOff+poseParamsPerFrame])
		kf.bodyToWorld = kf.bodyToWorld.RetractRight(step)

		for camInd := range kf.light {
			off := p.order.AffineOffset(frameInd, camInd)
			l := &kf.light[camInd]
			l.A = clamp(l.A+delta.Frame[off], p.affineLight.MinA, p.affineLight.MaxA)
			l.B = clamp(l.B+delta.Frame[off+1], p.affineLight.MinB, p.affineLight.MaxB)
		}
	}

	for i := range p.points {
		p.points[i] = clamp(p.points[i]+delta.Point[i], p.minLogDepth, p.maxLogDepth)
	}
}

// Apply commits the local optimizer state into the live keyframe/point
// state Parameters was constructed from. This is the only method that
// writes back into the window; a rejected-and-rolled-back sequence of
// Update calls that never reaches Apply leaves the live state untouched,
// matching Parameters::apply being called exactly once, after
// EnergyFunction::optimize's LM loop finishes.
func (p *Parameters) Apply() {
	for i, kf := range p.keyFrames {
		*p.extBodyToWorld[i] = kf.bodyToWorld
		for j, l := range kf.light {
			*p.extLight[i][j] = l
		}
	}
	for i, v := range p.points {
		*p.extPoints[i] = v
	}
}

// clamp restricts x to [lo, hi], matching Parameters::update's bound
// enforcement on affine and log-depth parameters (I4, I5); bound violations
// are silently clamped, never surfaced as an error (spec.md section 7).
func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

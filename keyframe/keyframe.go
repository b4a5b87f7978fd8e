package keyframe

import (
	"github.com/yoshua-msc-thesis/mdso/imagepyramid"
	"github.com/yoshua-msc-thesis/mdso/photometry"
	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// Entry is one rig camera's data within a keyframe: its immutable image
// pyramid/interpolator, its mutable affine light transform against the
// world, and the points hosted by this camera.
type Entry struct {
	Pyramid          *imagepyramid.Pyramid
	Interpolator     *imagepyramid.BiCubicInterpolator // level 0
	LightWorldToThis photometry.AffLight
	OptimizedPoints  []*OptimizedPoint
}

// KeyFrame is one rig-wide snapshot: a shared body pose plus one Entry per
// rig camera.
type KeyFrame struct {
	BodyToWorld    spatialmath.SE3
	TimestampNanos int64
	Entries        []*Entry
}

// NewKeyFrame builds a keyframe with one Entry per rig camera; entries'
// pyramids/interpolators must already be constructed by the caller since
// pyramid-building parameters (levels, sigma) are a Settings concern.
func NewKeyFrame(bodyToWorld spatialmath.SE3, timestampNanos int64, entries []*Entry) *KeyFrame {
	return &KeyFrame{BodyToWorld: bodyToWorld, TimestampNanos: timestampNanos, Entries: entries}
}

// RemoveMarginalizedPoints drops points whose state is Marginalized from
// every entry's tracked-point list, trimming the keyframe once it has left
// the optimization window and its surviving points have been folded into
// output but no longer need per-iteration bookkeeping.
func (k *KeyFrame) RemoveMarginalizedPoints() {
	for _, e := range k.Entries {
		kept := e.OptimizedPoints[:0]
		for _, p := range e.OptimizedPoints {
			if p.State != Marginalized {
				kept = append(kept, p)
			}
		}
		e.OptimizedPoints = kept
	}
}

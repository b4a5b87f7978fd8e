package keyframe

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// PointState is the lifecycle state of a tracked point, mirroring
// OptimizedPoint::state in the original KeyFrame header: a point starts
// Active, and is retired to Outlier/OOB when a residual judges it
// unreliable, or to Marginalized when its host keyframe leaves the window.
type PointState int

const (
	// Active points participate in residual construction and optimization.
	Active PointState = iota
	// OOB points reprojected outside every target frame's image bounds.
	OOB
	// Outlier points were rejected by robust-loss residual statistics.
	Outlier
	// Marginalized points' host keyframe left the optimization window; they
	// are retained for trajectory output but no longer optimized.
	Marginalized
)

// MaxLogDepth bounds the representable depth: log depths beyond
// +/-MaxLogDepth are clamped to it when converted to a depth (I5).
const MaxLogDepth = 1e2

// OptimizedPoint is a single tracked point anchored to its host keyframe.
type OptimizedPoint struct {
	P        r2.Point   // host pixel
	Dir      r3.Vector  // unit bearing ray in the host camera frame
	LogDepth float64    // optimized parameter: log(depth)
	State    PointState
}

// DepthFromLogDepth converts a log-depth optimizer parameter into a depth,
// clamping against MaxLogDepth and treating NaN as point-at-infinity (I5).
// Exported so callers holding a log-depth value outside an OptimizedPoint
// (e.g. the optimizer's own local Parameters copy) can apply the same
// conversion.
func DepthFromLogDepth(logDepth float64) float64 {
	if math.IsNaN(logDepth) {
		return math.Inf(1)
	}
	if logDepth > MaxLogDepth {
		logDepth = MaxLogDepth
	}
	if logDepth < -MaxLogDepth {
		logDepth = -MaxLogDepth
	}
	return math.Exp(logDepth)
}

// Depth returns 1/exp(-LogDepth) clamped against MaxLogDepth, so a log depth
// of +/-inf yields a finite depth; only a NaN log depth is returned as +Inf
// (point-at-infinity).
func (p *OptimizedPoint) Depth() float64 {
	return DepthFromLogDepth(p.LogDepth)
}

// HostPixel implements optimize.Point.
func (p *OptimizedPoint) HostPixel() r2.Point { return p.P }

// BearingDir implements optimize.Point.
func (p *OptimizedPoint) BearingDir() r3.Vector { return p.Dir }

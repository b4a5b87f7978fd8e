// Package mdsoio declares the narrow interfaces this module consumes from
// external collaborators that are explicitly out of scope (dataset I/O,
// stereo-based initialization, pixel selection). No concrete implementation
// lives here; these contracts exist so optimize/tracking can depend on a
// stable shape without importing a dataset reader or visualizer.
package mdsoio

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// DatasetReader supplies raw per-camera grayscale frames and timestamps;
// decoding image formats and synchronizing multi-camera captures is an
// external collaborator's responsibility.
type DatasetReader interface {
	NumCameras() int
	NextFrame() (images [][]float64, width, height int, timestampNanos int64, ok bool)
}

// CalibrationSource supplies the fixed camera bundle geometry read from
// whatever calibration file format the deployment uses.
type CalibrationSource interface {
	Load() (intrinsicsPerCamera []any, extrinsicsPerCamera []spatialmath.SE3, err error)
}

// InitializedFrame is one frame's pose and seeded depthed points returned by
// an Initializer, mirroring include/system/DsoInitializer.h's
// InitializedFrame.
type InitializedFrame struct {
	ThisToWorld    spatialmath.SE3
	DepthedPoints  []DepthedPoint
	TimestampNanos int64
}

// DepthedPoint is a single seed point with an initial inverse-depth guess.
type DepthedPoint struct {
	Pixel    r2.Point
	Dir      r3.Vector
	LogDepth float64
}

// Initializer bootstraps the first keyframe window from stereo-matched
// feature correspondences; not implemented here (out of scope).
type Initializer interface {
	AddMultiFrame(frames [][]float64, timestampsNanos []int64) bool
	Initialize() ([]InitializedFrame, error)
}

// PixelSelector chooses which pixels of a new keyframe become tracked
// points; not implemented here (explicitly out of scope).
type PixelSelector interface {
	Select(image []float64, width, height int) []r2.Point
}

// TrajectoryPose is one exported keyframe pose, in the plain 4x4-matrix
// form an external trajectory writer (not implemented in this module)
// would serialize, rather than this module's own dual-quaternion SE3.
type TrajectoryPose struct {
	TimestampNanos int64
	BodyToWorld    mgl64.Mat4
}

// ExportTrajectory converts a window's keyframe poses into the flat matrix
// form external trajectory/cloud writers consume, decoupling them from
// this module's internal spatialmath representation.
func ExportTrajectory(bodyToWorld []spatialmath.SE3, timestampsNanos []int64) []TrajectoryPose {
	out := make([]TrajectoryPose, len(bodyToWorld))
	for i, p := range bodyToWorld {
		out[i] = TrajectoryPose{TimestampNanos: timestampsNanos[i], BodyToWorld: p.Mat4()}
	}
	return out
}

// Reprojection is the debug/visualization payload for one surviving
// host-to-target projection, matching include/system/Reprojector.h's
// Reprojection struct.
type Reprojection struct {
	HostInd          int
	HostCamInd       int
	TargetCamInd     int
	PointInd         int
	Reprojected      r2.Point
	ReprojectedDepth float64
}

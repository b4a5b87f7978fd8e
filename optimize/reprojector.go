package optimize

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/yoshua-msc-thesis/mdso/camera"
	"github.com/yoshua-msc-thesis/mdso/mdsoio"
	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// Point is the constraint a tracked point must satisfy to be reprojected;
// monomorphizing over this constraint at compile time is the Go analogue of
// the original's template<typename PointType> specialization.
type Point interface {
	HostPixel() r2.Point
	BearingDir() r3.Vector
	Depth() float64
}

// ReprojectorFrame is one host keyframe's rig-wide pose and per-camera point
// set, the minimal shape Reproject needs from a keyframe.
type ReprojectorFrame[P Point] struct {
	BodyToWorld spatialmath.SE3
	PointsByCam [][]P // indexed by camera
}

// Reproject projects every tracked point hosted by hostFrames into every
// camera of the target frame at targetBodyToWorld, in the deterministic
// order target-camera outer, host-frame, host-camera, point, matching
// Reprojector::reproject. Points whose projection is unmappable or falls
// within borderSize of the target image edge are skipped.
func Reproject[P Point](bundle *camera.Bundle, hostFrames []ReprojectorFrame[P], targetBodyToWorld spatialmath.SE3, borderSize float64) []mdsoio.Reprojection {
	targetWorldToBody := targetBodyToWorld.Inverse()

	var out []mdsoio.Reprojection
	for targetCamInd := 0; targetCamInd < bundle.NumCameras(); targetCamInd++ {
		targetCam := bundle.Camera(targetCamInd)
		for hostInd, host := range hostFrames {
			for hostCamInd, points := range host.PointsByCam {
				hostCam := bundle.Camera(hostCamInd)
				hostToTarget := targetCam.BodyToThis.Compose(targetWorldToBody).Compose(host.BodyToWorld).Compose(hostCam.ThisToBody)

				for pointInd, p := range points {
					depth := p.Depth()
					hostVec := p.BearingDir()
					var hostPoint r3.Vector
					if depthIsInfinite(depth) {
						hostPoint = hostVec
					} else {
						hostPoint = hostVec.Mul(depth)
					}
					targetPoint := hostToTarget.Act(hostPoint)
					if !targetCam.Model.IsMappable(targetPoint) {
						continue
					}
					u := targetCam.Model.Map(targetPoint)
					if !targetCam.Model.IsOnImage(u, borderSize) {
						continue
					}
					out = append(out, mdsoio.Reprojection{
						HostInd:          hostInd,
						HostCamInd:       hostCamInd,
						TargetCamInd:     targetCamInd,
						PointInd:         pointInd,
						Reprojected:      u,
						ReprojectedDepth: targetPoint.Z,
					})
				}
			}
		}
	}
	return out
}

func depthIsInfinite(depth float64) bool {
	return depth > 1e50 || depth != depth
}

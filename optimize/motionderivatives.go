package optimize

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/yoshua-msc-thesis/mdso/camera"
	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// MotionDerivatives differentiates the host-to-target rig chain
// targetCam.BodyToThis * targetBodyToWorld^-1 * hostBodyToWorld * hostCam.ThisToBody
// with respect to the host and target keyframes' right tangent-space pose
// parameters, evaluated once per (host,target) frame pair and shared across
// every pattern sample of every residual between them.
//
// Grounded on Residual::getJacobian's use of a MotionDerivatives built from
// daction_dq_host/daction_dt_host/daction_dq_target/daction_dt_target
// (original_source/source/optimize/Residual.cpp:117-160); the type's own
// definition isn't present in the retrieved sources, so its algebra is
// rederived here from SE3.RetractRight's right-multiplicative convention
// and recomposeHostToTarget's composition order rather than transcribed.
type MotionDerivatives struct {
	rotHostChain quat.Number // rotation of targetCam.BodyToThis * targetBodyToWorld^-1 * hostBodyToWorld
	rotTargetCam quat.Number // rotation of targetCam.BodyToThis
}

// NewMotionDerivatives builds the chain rotations needed to differentiate
// one host/target frame pair's reprojection; hostCam/targetCam are the rig
// mounts of the cameras the residual actually uses.
func NewMotionDerivatives(hostBodyToWorld, targetBodyToWorld spatialmath.SE3, hostCam, targetCam camera.RigCamera) MotionDerivatives {
	hostChain := targetCam.BodyToThis.Compose(targetBodyToWorld.Inverse()).Compose(hostBodyToWorld)
	return MotionDerivatives{
		rotHostChain: hostChain.Rotation(),
		rotTargetCam: targetCam.BodyToThis.Rotation(),
	}
}

// tangentBasis is the standard R3 basis, indexed the same way
// FrameParameterOrder indexes a pose block's rotation/translation triples.
var tangentBasis = [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}

// DActionDRotHost returns d(targetPoint)/dω_host_k for k=0,1,2, evaluated at
// hostPointBody, the residual's point expressed in the host body frame
// (hostCam.ThisToBody.Act(hostPointCamFrame)).
func (md MotionDerivatives) DActionDRotHost(hostPointBody r3.Vector) [3]r3.Vector {
	var cols [3]r3.Vector
	for k, e := range tangentBasis {
		cols[k] = spatialmath.RotateVector(md.rotHostChain, e.Cross(hostPointBody))
	}
	return cols
}

// DActionDTransHost returns d(targetPoint)/dt_host_k for k=0,1,2.
func (md MotionDerivatives) DActionDTransHost() [3]r3.Vector {
	var cols [3]r3.Vector
	for k, e := range tangentBasis {
		cols[k] = spatialmath.RotateVector(md.rotHostChain, e)
	}
	return cols
}

// DActionDRotTarget returns d(targetPoint)/dω_target_k for k=0,1,2,
// evaluated at targetPointBody, the point expressed in the target body frame
// (targetCam.ThisToBody.Act(targetPointCamFrame)).
func (md MotionDerivatives) DActionDRotTarget(targetPointBody r3.Vector) [3]r3.Vector {
	var cols [3]r3.Vector
	for k, e := range tangentBasis {
		cols[k] = spatialmath.RotateVector(md.rotTargetCam, targetPointBody.Cross(e))
	}
	return cols
}

// DActionDTransTarget returns d(targetPoint)/dt_target_k for k=0,1,2.
func (md MotionDerivatives) DActionDTransTarget() [3]r3.Vector {
	var cols [3]r3.Vector
	for k, e := range tangentBasis {
		cols[k] = spatialmath.RotateVector(md.rotTargetCam, e).Mul(-1)
	}
	return cols
}

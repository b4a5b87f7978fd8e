// Package camera implements the projection/unprojection geometry consumed by
// the reprojector, residual, and frame tracker: pinhole projection with
// Brown-Conrady distortion, a fisheye Kannala-Brandt alternative, and the
// rigid rig of one or more such cameras.
package camera

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/yoshua-msc-thesis/mdso/spatialmath"
)

// ErrNonFiniteIntrinsics is returned when a camera is constructed with
// non-finite or non-positive focal length / principal point parameters.
var ErrNonFiniteIntrinsics = errors.New("camera intrinsics must be finite, with positive focal length")

// Model is the camera contract the optimizer core requires: mapping between
// bearing rays in the camera frame and pixel coordinates, plus the analytic
// Jacobian of that mapping. Implementations are fisheye/polynomial or
// pinhole/Brown-Conrady; the core only depends on this interface.
type Model interface {
	// Unmap converts a pixel to a unit-norm bearing ray in the camera frame.
	Unmap(u r2.Point) r3.Vector
	// Map projects a 3D point in the camera frame to a pixel.
	Map(x r3.Vector) r2.Point
	// DiffMap is Map together with the 2x3 Jacobian d(pixel)/d(x).
	DiffMap(x r3.Vector) (r2.Point, *mat.Dense)
	// IsMappable reports whether x lies in the projectable region (e.g. not
	// behind the camera, not beyond a fisheye's field of view).
	IsMappable(x r3.Vector) bool
	// IsOnImage reports whether u lies within [border, width-border) x
	// [border, height-border).
	IsOnImage(u r2.Point, border float64) bool
	// Width and Height are the pixel dimensions of the imaging sensor.
	Width() int
	Height() int
}

// RigCamera is one camera mounted on the rig: its model, and the rigid
// transform between the rig body frame and this camera's frame.
type RigCamera struct {
	Model      Model
	ThisToBody spatialmath.SE3
	BodyToThis spatialmath.SE3
}

// Bundle is the fixed, ordered set of cameras rigidly mounted on the body.
// Constructed once via NewBundle and never resized afterward (I2 of the
// parameter-layout invariants depends on a stable camera count).
type Bundle struct {
	cameras []RigCamera
}

// NewBundle validates and wraps a non-empty, ordered list of rig cameras.
func NewBundle(cameras []RigCamera) (*Bundle, error) {
	if len(cameras) == 0 {
		return nil, errors.New("camera bundle must contain at least one camera")
	}
	return &Bundle{cameras: cameras}, nil
}

// NumCameras returns the fixed number of cameras in the rig.
func (b *Bundle) NumCameras() int {
	return len(b.cameras)
}

// Camera returns the i-th rig camera.
func (b *Bundle) Camera(i int) RigCamera {
	return b.cameras[i]
}

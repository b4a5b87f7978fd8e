package keyframe

import "image"

// MaxPatternSize bounds the fixed sampling pattern so per-residual arrays
// can be stack-allocated rather than heap-sliced.
const MaxPatternSize = 8

// Pattern is the fixed set of pixel offsets sampled around a point's host
// pixel to build one residual per host/target/camera combination.
type Pattern []image.Point

// DefaultPattern is the spread-out 8-point pattern used unless a settings
// override specifies otherwise.
func DefaultPattern() Pattern {
	return Pattern{
		{X: 0, Y: 0},
		{X: 2, Y: 0},
		{X: -2, Y: 0},
		{X: 0, Y: 2},
		{X: 0, Y: -2},
		{X: 1, Y: 1},
		{X: -1, Y: -1},
		{X: -2, Y: -2},
	}
}

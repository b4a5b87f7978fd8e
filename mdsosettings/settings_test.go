package mdsosettings

import (
	"testing"

	"go.viam.com/test"
)

func TestDefaultValidates(t *testing.T) {
	s := Default()
	test.That(t, s.Validate(), test.ShouldBeNil)
}

func TestValidateRejectsZeroIterations(t *testing.T) {
	s := Default()
	s.Optimization.MaxIterations = 0
	test.That(t, s.Validate(), test.ShouldNotBeNil)
}

func TestValidateRejectsOutOfRangeQuality(t *testing.T) {
	s := Default()
	s.Optimization.AcceptedQuality = 1.5
	test.That(t, s.Validate(), test.ShouldNotBeNil)
}

func TestValidateRejectsInvertedDepthBounds(t *testing.T) {
	s := Default()
	s.Depth.Min = 10
	s.Depth.Max = 1
	test.That(t, s.Validate(), test.ShouldNotBeNil)
}

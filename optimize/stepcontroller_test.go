package optimize

import (
	"testing"

	"go.viam.com/test"

	"github.com/yoshua-msc-thesis/mdso/mdsosettings"
)

func testOptimizationSettings() mdsosettings.Optimization {
	return mdsosettings.Optimization{
		InitialLambda:            1e-1,
		AcceptedQuality:          0.25,
		MinLambdaMultiplier:      1.0 / 3.0,
		InitialFailMultiplier:    2.0,
		FailMultiplierMultiplier: 2.0,
		MaxAbsDeltaD:             3.0,
		MaxIterations:            6,
	}
}

func TestStepControllerAcceptsGoodQualityStep(t *testing.T) {
	sc := NewStepController(testOptimizationSettings(), nil)
	initialLambda := sc.Lambda()

	accepted := sc.NewStep(100, 55, 50) // actualDiff=45, predictedDiff=50, quality=0.9
	test.That(t, accepted, test.ShouldBeTrue)
	test.That(t, sc.Lambda(), test.ShouldBeLessThan, initialLambda)
}

func TestStepControllerRejectsWorseningStep(t *testing.T) {
	sc := NewStepController(testOptimizationSettings(), nil)
	initialLambda := sc.Lambda()

	accepted := sc.NewStep(100, 110, 50) // energy increased despite a predicted decrease
	test.That(t, accepted, test.ShouldBeFalse)
	test.That(t, sc.Lambda(), test.ShouldBeGreaterThan, initialLambda)
}

func TestStepControllerRepeatedFailuresEscalateLambdaFaster(t *testing.T) {
	sc := NewStepController(testOptimizationSettings(), nil)

	sc.NewStep(100, 110, 50)
	afterFirstFail := sc.Lambda()
	sc.NewStep(100, 120, 50)
	afterSecondFail := sc.Lambda()

	// failMultiplier itself grows on each consecutive failure, so the
	// second jump in lambda is larger than the first.
	test.That(t, afterSecondFail-afterFirstFail, test.ShouldBeGreaterThan, afterFirstFail-1e-1)
}

func TestStepControllerResetsFailMultiplierOnAccept(t *testing.T) {
	sc := NewStepController(testOptimizationSettings(), nil)

	sc.NewStep(100, 110, 50) // fail once, failMultiplier doubles internally
	sc.NewStep(100, 55, 50)  // then accept; failMultiplier should reset

	lambdaAfterAccept := sc.Lambda()
	sc.NewStep(100, 200, 50) // fail again -- should scale by the reset (initial) fail multiplier
	test.That(t, sc.Lambda(), test.ShouldEqual, lambdaAfterAccept*testOptimizationSettings().InitialFailMultiplier)
}

package optimize

import (
	"math"

	"github.com/yoshua-msc-thesis/mdso/mdsolog"
	"github.com/yoshua-msc-thesis/mdso/mdsosettings"
	"github.com/yoshua-msc-thesis/mdso/metrics"
)

// StepController runs the Levenberg-Marquardt damping-factor schedule,
// grounded on StepController::newStep: it never touches the Hessian or
// Parameters directly, only the scalar triple (oldEnergy, newEnergy,
// predictedEnergy) each trial step reports back.
type StepController struct {
	settings       mdsosettings.Optimization
	lambda         float64
	failMultiplier float64
	logger         mdsolog.Logger
}

// NewStepController builds a controller seeded from settings.InitialLambda
// and settings.InitialFailMultiplier.
func NewStepController(settings mdsosettings.Optimization, logger mdsolog.Logger) *StepController {
	if logger == nil {
		logger = mdsolog.NewNop()
	}
	return &StepController{
		settings:       settings,
		lambda:         settings.InitialLambda,
		failMultiplier: settings.InitialFailMultiplier,
		logger:         logger,
	}
}

// Lambda returns the current damping factor.
func (sc *StepController) Lambda() float64 {
	return sc.lambda
}

// NewStep reports the outcome of one trial step -- the energy before the
// step, the energy actually measured after applying it, and the energy the
// quadratic model predicted for it -- and returns whether the step is
// accepted. It updates lambda by Nielsen's rule on acceptance and by the
// geometric fail-multiplier schedule on rejection, exactly as
// StepController::newStep does.
func (sc *StepController) NewStep(oldEnergy, newEnergy, predictedEnergy float64) bool {
	predictedDiff := oldEnergy - predictedEnergy
	actualDiff := oldEnergy - newEnergy
	if predictedDiff < 0 {
		predictedDiff *= -1
		actualDiff *= -1
	}

	oldLambda := sc.lambda
	predictionQuality := actualDiff / predictedDiff
	q2m1 := 2*predictionQuality - 1
	accepted := predictionQuality > sc.settings.AcceptedQuality

	if accepted {
		sc.lambda *= math.Max(sc.settings.MinLambdaMultiplier, 1-q2m1*q2m1*q2m1)
		sc.failMultiplier = sc.settings.InitialFailMultiplier
	} else {
		sc.lambda *= sc.failMultiplier
		sc.failMultiplier *= sc.settings.FailMultiplierMultiplier
	}

	sc.logger.Debugf("lm step: actualDiff=%v predictedDiff=%v quality=%v lambda %v -> %v accepted=%v",
		actualDiff, predictedDiff, predictionQuality, oldLambda, sc.lambda, accepted)
	metrics.ObserveLambda(sc.lambda)
	metrics.ObserveEnergy(newEnergy)
	metrics.ObserveStep(accepted)
	return accepted
}

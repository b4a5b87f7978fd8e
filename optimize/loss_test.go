package optimize

import (
	"testing"

	"go.viam.com/test"
)

func TestTrivialLossIsIdentity(t *testing.T) {
	rho0, rho1, rho2 := TrivialLoss{}.Eval(4.0)
	test.That(t, rho0, test.ShouldEqual, 4.0)
	test.That(t, rho1, test.ShouldEqual, 1.0)
	test.That(t, rho2, test.ShouldEqual, 0.0)
}

func TestHuberLossIsIdentityBelowThreshold(t *testing.T) {
	l := HuberLoss{C: 9.0}
	v2 := 1.5
	rho0, rho1, rho2 := l.Eval(v2)
	test.That(t, rho0, test.ShouldEqual, v2)
	test.That(t, rho1, test.ShouldEqual, 1.0)
	test.That(t, rho2, test.ShouldEqual, 0.0)
}

func TestHuberLossDampsAboveThreshold(t *testing.T) {
	l := HuberLoss{C: 2.0}
	v2 := 100.0 // |v| = 10, well past C=2
	rho0, rho1, _ := l.Eval(v2)
	test.That(t, rho0, test.ShouldBeLessThan, v2)
	test.That(t, rho1, test.ShouldBeLessThan, 1.0)
}

func TestNewLossSelectsByName(t *testing.T) {
	_, ok := NewLoss("trivial", 9.0).(TrivialLoss)
	test.That(t, ok, test.ShouldBeTrue)
	_, ok = NewLoss("huber", 9.0).(HuberLoss)
	test.That(t, ok, test.ShouldBeTrue)
	_, ok = NewLoss("unknown-default", 9.0).(HuberLoss)
	test.That(t, ok, test.ShouldBeTrue)
}

package photometry

import (
	"testing"

	"go.viam.com/test"
)

func TestIdentityIsNoOp(t *testing.T) {
	l := Identity()
	test.That(t, l.Apply(5), test.ShouldEqual, 5.0)
}

func TestInverseRoundTrip(t *testing.T) {
	l := AffLight{A: 0.3, B: 10}
	inv := l.Inverse()
	test.That(t, inv.Apply(l.Apply(42)), test.ShouldAlmostEqual, 42.0)
}

func TestComposeMatchesSequentialApply(t *testing.T) {
	a := AffLight{A: 0.1, B: 5}
	b := AffLight{A: -0.2, B: 2}
	composed := a.Compose(b)
	test.That(t, composed.Apply(30), test.ShouldAlmostEqual, a.Apply(b.Apply(30)))
}

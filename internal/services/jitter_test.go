package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJitterDeterministic(t *testing.T) {
	a := jitterUnit("AK-47 | Redline|21.5|48:ps", 0.010)
	b := jitterUnit("AK-47 | Redline|21.5|48:ps", 0.010)
	assert.Equal(t, a, b)

	// Different sub-keys move independently.
	c := jitterUnit("AK-47 | Redline|21.5|48:ph", 0.010)
	assert.NotEqual(t, a, c)
}

func TestJitterBounded(t *testing.T) {
	for i := 0; i < 200; i++ {
		u := jitterUnit(fmt.Sprintf("key-%d", i), 0.010)
		assert.LessOrEqual(t, u, 0.010)
		assert.GreaterOrEqual(t, u, -0.010)
	}
}

func TestJitterProbStaysInUnitInterval(t *testing.T) {
	assert.GreaterOrEqual(t, jitterProb(0.001, "k1", 0.010), 0.0)
	assert.LessOrEqual(t, jitterProb(0.999, "k2", 0.010), 1.0)
}

func TestClampSym(t *testing.T) {
	assert.Equal(t, 0.5, clampSym(0.7))
	assert.Equal(t, -0.5, clampSym(-0.7))
	assert.Equal(t, 0.12, clampSym(0.12))
}

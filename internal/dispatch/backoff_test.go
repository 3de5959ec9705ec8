package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	p := &backoffPolicy{
		Initial: time.Second,
		Max:     30 * time.Second,
		Factor:  2.0,
	}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
}

func TestBackoffPolicy_CapsAtMax(t *testing.T) {
	p := &backoffPolicy{
		Initial: time.Second,
		Max:     5 * time.Second,
		Factor:  2.0,
	}

	assert.Equal(t, 5*time.Second, p.Delay(10))
}

func TestBackoffPolicy_JitterStaysNearBase(t *testing.T) {
	p := &backoffPolicy{
		Initial: time.Second,
		Max:     30 * time.Second,
		Factor:  2.0,
		Jitter:  0.1,
	}

	for i := 0; i < 50; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestDefaultBackoffPolicy(t *testing.T) {
	p := defaultBackoffPolicy()
	assert.Equal(t, time.Second, p.Initial)
	assert.Equal(t, 30*time.Second, p.Max)
}

package dispatch

import (
	"math"
	"math/rand"
	"time"
)

// backoffPolicy computes the delay between consecutive poll failures.
// Exponential with jitter; reset on the first successful poll.
type backoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64
}

func defaultBackoffPolicy() *backoffPolicy {
	return &backoffPolicy{
		Initial: 1 * time.Second,
		Max:     30 * time.Second,
		Factor:  2.0,
		Jitter:  0.1,
	}
}

// Delay returns the backoff for the given consecutive-failure count,
// starting at 1.
func (p *backoffPolicy) Delay(failures int) time.Duration {
	if failures <= 1 {
		return p.Initial
	}

	backoff := float64(p.Initial) * math.Pow(p.Factor, float64(failures-1))
	if backoff > float64(p.Max) {
		backoff = float64(p.Max)
	}

	if p.Jitter > 0 {
		backoff += backoff * p.Jitter * (rand.Float64()*2 - 1)
	}
	if backoff < 0 {
		backoff = float64(p.Initial)
	}

	return time.Duration(backoff)
}

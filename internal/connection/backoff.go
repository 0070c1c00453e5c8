package connection

import (
	"math"
	"math/rand"
	"time"
)

// Jitter bounds applied to every computed backoff delay.
const (
	jitterMin = 0.85
	jitterMax = 1.15
)

// backoffBase returns the pre-jitter delay for reconnect attempt n (1-based):
// min(max, base * 2^(n-1)).
func backoffBase(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

// backoffDelay returns the jittered delay for reconnect attempt n.
// Jitter spreads simultaneous clients so they do not redial in lockstep.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := float64(backoffBase(base, max, attempt))
	jitter := jitterMin + (jitterMax-jitterMin)*rand.Float64()
	return time.Duration(d * jitter)
}

package queue

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// nextBackoff computes the exponential, jittered, capped retry delay for
// the Nth failed attempt (1-indexed), per spec §4.4 "exponential base 2,
// jittered, capped".
func nextBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.3
	bo.MaxInterval = max

	var d time.Duration
	for i := 0; i < attempt; i++ {
		result := bo.NextBackOff()
		d = result
	}
	if d > max {
		d = max
	}
	return d
}

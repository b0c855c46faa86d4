package api

import "time"

// Backoff returns the delay before retry attempt n (n >= 1):
// base * 2^(n-1), capped at max, plus uniform jitter in [0, jitterFrac*delay).
// rnd must return a value in [0, 1); pass nil to disable jitter.
//
// Pure function so the growth curve is testable without any I/O; the
// client's retry loop is a thin driver around it.
func Backoff(attempt int, base time.Duration, jitterFrac float64, max time.Duration, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay < 0 { // overflow guard
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}

	if jitterFrac > 0 && rnd != nil {
		delay += time.Duration(rnd() * jitterFrac * float64(delay))
	}

	return delay
}

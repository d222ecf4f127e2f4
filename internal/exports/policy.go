package exports

import "time"

// Backoff is the delay after the given failed attempt: 1, 4, 16 ... minutes.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Minute
	for i := 1; i < attempts; i++ {
		d *= 4
	}
	return d
}

// Package backoff computes retry delays for failed deliveries.
package backoff

import "time"

// Exponential doubles the delay for every recorded attempt:
// Delay(n) = Base * 2^(n-1). Attempt 1 is the first failed delivery.
type Exponential struct {
	Base time.Duration
}

// Delay returns how long a job stays ineligible after its nth failed
// attempt. Non-positive attempts return Base.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

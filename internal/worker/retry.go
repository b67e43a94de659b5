package worker

import "time"

// RetryPolicy governs how many times a sync task is retried and how the
// delay grows between attempts. Zero values fall back to sane defaults so
// a partially filled policy still behaves.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Exhausted reports whether the task has burned all its attempts and
// should go to the dead letter queue instead of being rescheduled.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// NextDelay returns the wait before the given attempt (1-based). The delay
// grows by BackoffFactor per attempt and never exceeds MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := float64(initial)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if r.MaxDelay > 0 && delay >= float64(r.MaxDelay) {
			return r.MaxDelay
		}
	}

	d := time.Duration(delay)
	if d <= 0 {
		d = time.Second
	}
	return d
}

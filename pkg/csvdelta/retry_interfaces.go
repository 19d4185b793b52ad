package csvdelta

import "time"

// ErrorClassifier determines whether an error is transient (retryable) or fatal.
type ErrorClassifier interface {
	// IsTransient returns true if the error is temporary and the operation should be retried.
	IsTransient(err error) bool
}

// BackoffStrategy calculates the delay before the next retry attempt.
type BackoffStrategy interface {
	// NextDelay returns the duration to wait before retry number attempt.
	// attempt is one-indexed (1 = first retry, 2 = second retry, etc.)
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the total number of attempts, including the first.
	MaxAttempts() int
}

// RetryPolicy is the immutable retry configuration shared by one run.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per operation (>= 1).
	MaxAttempts int

	// BaseBackoff is the wait before the first retry; retry n waits BaseBackoff * 2^(n-1).
	BaseBackoff time.Duration

	// MaxBackoff caps a single wait. Zero means DefaultRetryMaxBackoff.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultRetryMaxAttempts,
		BaseBackoff: DefaultRetryBaseBackoff,
		MaxBackoff:  DefaultRetryMaxBackoff,
	}
}

package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// ExponentialBackoff implements exponential backoff with optional jitter.
type ExponentialBackoff struct {
	// initialDelay is the delay before the first retry
	initialDelay time.Duration
	// maxDelay is the maximum delay between attempts
	maxDelay time.Duration
	// multiplier is the factor by which delay increases (typically 2.0)
	multiplier float64
	// maxAttempts is the total number of attempts, the first call included
	maxAttempts int
	// jitter adds randomness to prevent thundering herd (0.0-1.0)
	// Jitter of 0.1 means +/- 10% randomness
	jitter float64
	// jitterFunc provides random values [0, 1) for jitter calculation
	jitterFunc func() float64
}

// BackoffOption is a functional option for configuring ExponentialBackoff.
type BackoffOption func(*ExponentialBackoff)

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.initialDelay = d
	}
}

// WithMaxDelay sets the maximum delay between retry attempts.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.maxDelay = d
	}
}

// WithMultiplier sets the factor by which delay increases between attempts.
func WithMultiplier(m float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.multiplier = m
	}
}

// WithJitter sets the jitter factor (0.0-1.0) to add randomness to delays.
func WithJitter(j float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitter = j
	}
}

// WithJitterFunc sets a custom function for generating random jitter values.
func WithJitterFunc(f func() float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitterFunc = f
	}
}

// NewExponentialBackoff creates a new exponential backoff strategy.
// Defaults follow csvdelta.DefaultRetryPolicy with no jitter, so the wait
// before retry n is exactly initialDelay * 2^(n-1).
//
// Example:
//
//	backoff := retry.NewExponentialBackoff(5,
//	    retry.WithInitialDelay(500 * time.Millisecond),
//	    retry.WithMaxDelay(30 * time.Second),
//	)
func NewExponentialBackoff(maxAttempts int, opts ...BackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: csvdelta.DefaultRetryBaseBackoff,
		maxDelay:     csvdelta.DefaultRetryMaxBackoff,
		multiplier:   2.0,
		maxAttempts:  maxAttempts,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// FromPolicy builds the backoff strategy described by a RetryPolicy.
func FromPolicy(p csvdelta.RetryPolicy, opts ...BackoffOption) *ExponentialBackoff {
	maxDelay := p.MaxBackoff
	if maxDelay <= 0 {
		maxDelay = csvdelta.DefaultRetryMaxBackoff
	}
	base := []BackoffOption{
		WithInitialDelay(p.BaseBackoff),
		WithMaxDelay(maxDelay),
	}
	return NewExponentialBackoff(p.MaxAttempts, append(base, opts...)...)
}

// NextDelay calculates the delay before retry number attempt (one-indexed).
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))

	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	}

	if b.jitter > 0 {
		jitterFunc := b.jitterFunc
		if jitterFunc == nil {
			jitterFunc = rand.Float64
		}
		// Map [0,1) to [-1,1) then scale: delay * (1 +/- jitter)
		randomOffset := (jitterFunc() - 0.5) * 2.0
		delay *= 1.0 + (b.jitter * randomOffset)
	}

	return time.Duration(delay)
}

// MaxAttempts returns the total number of attempts.
func (b *ExponentialBackoff) MaxAttempts() int {
	return b.maxAttempts
}

// InitialDelay returns the initial delay for tests and debugging.
func (b *ExponentialBackoff) InitialDelay() time.Duration {
	return b.initialDelay
}

// MaxDelay returns the maximum delay for tests and debugging.
func (b *ExponentialBackoff) MaxDelay() time.Duration {
	return b.maxDelay
}

// Multiplier returns the backoff multiplier for tests and debugging.
func (b *ExponentialBackoff) Multiplier() float64 {
	return b.multiplier
}

// Jitter returns the jitter factor for tests and debugging.
func (b *ExponentialBackoff) Jitter() float64 {
	return b.jitter
}

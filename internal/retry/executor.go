package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// RetryFunc is notified before each backoff wait.
// attempt is the one-indexed number of the retry about to happen.
type RetryFunc func(attempt int, err error, delay time.Duration)

// Executor orchestrates retry attempts with backoff and error classification.
//
// Thread Safety:
// The Executor itself is safe for concurrent use when calling Execute().
// WithOnRetry() and WithWait() return NEW instances; the original is unchanged.
type Executor struct {
	classifier csvdelta.ErrorClassifier
	strategy   csvdelta.BackoffStrategy
	onRetry    RetryFunc
	wait       func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates a new retry executor with the given configuration.
// Panics if classifier or strategy is nil.
func NewExecutor(
	classifier csvdelta.ErrorClassifier,
	strategy csvdelta.BackoffStrategy,
) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if strategy == nil {
		panic("strategy cannot be nil")
	}
	return &Executor{
		classifier: classifier,
		strategy:   strategy,
		wait:       sleepContext,
	}
}

// WithOnRetry returns a new Executor with the specified retry callback.
//
// Example:
//
//	executor := retry.NewExecutor(classifier, strategy)
//	logged := executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
//	    logger.Warn("retry %d in %s: %v", attempt, delay, err)
//	})
func (e *Executor) WithOnRetry(callback RetryFunc) *Executor {
	clone := *e
	clone.onRetry = callback
	return &clone
}

// WithWait returns a new Executor that uses wait for backoff pauses.
// Tests use it to record delays without sleeping.
func (e *Executor) WithWait(wait func(ctx context.Context, d time.Duration) error) *Executor {
	clone := *e
	clone.wait = wait
	return &clone
}

// WithClassifier returns a new Executor that classifies errors with classifier.
func (e *Executor) WithClassifier(classifier csvdelta.ErrorClassifier) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	clone := *e
	clone.classifier = classifier
	return &clone
}

// Strategy returns the backoff strategy.
func (e *Executor) Strategy() csvdelta.BackoffStrategy {
	return e.strategy
}

// Execute runs the operation until it succeeds, fails fatally, or the
// strategy's MaxAttempts consecutive transient failures have happened.
//
// Return values:
//   - nil on success
//   - the operation's error unchanged when it is not transient
//   - *csvdelta.MaxRetriesError when attempts are exhausted
//   - an error matching csvdelta.ErrCancelled when ctx is done
func (e *Executor) Execute(ctx context.Context, name string, operation func(ctx context.Context) error) error {
	maxAttempts := e.strategy.MaxAttempts()
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelled(name, err)
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			return nil
		}

		// A failure caused by the caller aborting is not a transport problem
		if err := ctx.Err(); err != nil {
			return cancelled(name, err)
		}

		if !e.classifier.IsTransient(lastErr) {
			return lastErr
		}

		if attempt >= maxAttempts {
			return &csvdelta.MaxRetriesError{
				Operation: name,
				Attempts:  attempt,
				Last:      lastErr,
			}
		}

		delay := e.strategy.NextDelay(attempt)

		if e.onRetry != nil {
			e.onRetry(attempt, lastErr, delay)
		}

		if err := e.wait(ctx, delay); err != nil {
			return cancelled(name, err)
		}
	}
}

// sleepContext waits for d, returning early if ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cancelled(name string, cause error) error {
	return fmt.Errorf("%s: %w: %w", name, csvdelta.ErrCancelled, cause)
}

// Package retry provides automatic retry logic with exponential backoff
// for transient remote-session failures.
//
// The package supports pluggable error classification and backoff strategies.
// The resilient session client composes an Executor with a reconnect hook;
// the Executor itself knows nothing about sessions.
//
// # Example Usage
//
//	classifier := retry.NewSFTPErrorClassifier()
//	strategy := retry.NewExponentialBackoff(3, retry.WithInitialDelay(2*time.Second))
//	executor := retry.NewExecutor(classifier, strategy)
//
//	err := executor.Execute(ctx, "stat a.csv", func(ctx context.Context) error {
//	    _, err := session.Stat(ctx, "a.csv")
//	    return err
//	})
//
// # Error Classification
//
// The ErrorClassifier interface determines which errors are transient (retryable)
// versus fatal (non-retryable). The SFTPErrorClassifier treats transport,
// end-of-stream and protocol-channel failures as transient, and never retries
// csvdelta.ErrNotFound or csvdelta.ErrAuthentication.
//
// # Backoff Strategies
//
// ExponentialBackoff waits initialDelay * multiplier^(n-1) before retry n,
// capped at a maximum delay, with optional jitter.
//
// # Attempt Counting
//
// MaxAttempts counts every call, including the first one. After MaxAttempts
// consecutive transient failures Execute returns a *csvdelta.MaxRetriesError.
package retry

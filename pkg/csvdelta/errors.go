package csvdelta

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure taxonomy.
// Callers distinguish them with errors.Is(); transport-level errors are
// always wrapped into one of these before they reach the comparator.
//
// Example usage:
//
//	report, err := comparator.Run(ctx)
//	if errors.Is(err, csvdelta.ErrAuthentication) {
//	    // Credentials were rejected, retrying will not help
//	}
var (
	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAuthentication indicates the remote store rejected the credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrConnectivity indicates a network, transport or protocol-channel failure.
	ErrConnectivity = errors.New("connectivity failure")

	// ErrNotFound indicates the remote path does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMaxRetriesExceeded indicates an operation kept failing transiently
	// until the retry policy gave up.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrCancelled indicates the caller cancelled the run.
	ErrCancelled = errors.New("cancelled")

	// ErrNoBaseline indicates yesterday's archive directory does not exist.
	ErrNoBaseline = errors.New("no baseline directory")

	// ErrPartialResults indicates the run completed but some files errored.
	ErrPartialResults = errors.New("some files could not be compared")
)

// MaxRetriesError is returned when an operation exhausted its attempts.
// It matches ErrMaxRetriesExceeded and unwraps to the last failure.
type MaxRetriesError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempts: %v", e.Operation, ErrMaxRetriesExceeded, e.Attempts, e.Last)
}

// Unwrap exposes both the sentinel and the last cause to errors.Is/As.
func (e *MaxRetriesError) Unwrap() []error {
	return []error{ErrMaxRetriesExceeded, e.Last}
}

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, ErrAuthentication):
		return ExitAuthError
	case errors.Is(err, ErrNoBaseline):
		return ExitNoBaseline
	case errors.Is(err, ErrCancelled):
		return ExitCancelled
	case errors.Is(err, ErrPartialResults):
		return ExitPartialResults
	case errors.Is(err, ErrConnectivity), errors.Is(err, ErrMaxRetriesExceeded):
		return ExitConnectionError
	}

	// cobra reports flag problems as plain strings
	errStr := err.Error()
	if strings.Contains(errStr, "unknown flag") ||
		strings.Contains(errStr, "unknown shorthand flag") ||
		strings.Contains(errStr, "required flag") ||
		strings.Contains(errStr, "invalid argument") ||
		strings.Contains(errStr, "accepts ") {
		return ExitUsageError
	}

	return ExitGeneralError
}

package csvdelta

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Comparison completed for every file
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid or incomplete configuration
	ExitConnectionError = 11 // Remote store unreachable or kept dropping
	ExitAuthError       = 12 // Credentials rejected
	ExitNoBaseline      = 13 // Yesterday's directory is missing
	ExitCancelled       = 14 // Run interrupted by the user
	ExitPartialResults  = 15 // Some files could not be compared
)

const (
	// DefaultPort is the standard SSH/SFTP port.
	DefaultPort = 22

	// DefaultChunkSize is the read size used when streaming remote files.
	DefaultChunkSize = 128 * 1024

	// DefaultRetryMaxAttempts is the default number of attempts per operation.
	DefaultRetryMaxAttempts = 3

	// DefaultRetryBaseBackoff is the wait before the first retry; it doubles per retry.
	DefaultRetryBaseBackoff = 2 * time.Second

	// DefaultRetryMaxBackoff caps a single backoff wait.
	DefaultRetryMaxBackoff = 1 * time.Minute

	// DefaultKeepaliveInterval is how often a long read probes the session.
	DefaultKeepaliveInterval = 35 * time.Second

	// DefaultDialTimeout bounds the TCP connect and SSH handshake.
	DefaultDialTimeout = 30 * time.Second

	// BaselineDateLayout names yesterday's archive directory (YYYY-MM-DD).
	BaselineDateLayout = "2006-01-02"

	// CSVSuffix selects the files to compare, matched case-insensitively.
	CSVSuffix = ".csv"
)

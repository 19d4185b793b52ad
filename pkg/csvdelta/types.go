package csvdelta

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConnectionParameters identify and authenticate against the remote store.
// They are supplied once and never mutated afterwards.
type ConnectionParameters struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Validate checks that every required field is present.
// It returns a multi-error if multiple fields are missing.
func (p ConnectionParameters) Validate() error {
	var errs []error

	if p.Host == "" {
		errs = append(errs, fmt.Errorf("host is required: %w", ErrInvalidConfig))
	}
	if p.Port <= 0 || p.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d: %w", p.Port, ErrInvalidConfig))
	}
	if p.Username == "" {
		errs = append(errs, fmt.Errorf("username is required: %w", ErrInvalidConfig))
	}
	if p.Password == "" {
		errs = append(errs, fmt.Errorf("password is required: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// Address returns host:port for dialing.
func (p ConnectionParameters) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// String never includes the password.
func (p ConnectionParameters) String() string {
	return fmt.Sprintf("%s@%s", p.Username, p.Address())
}

// RemoteFileStat is one stat result. It is produced fresh on every call.
type RemoteFileStat struct {
	Path  string
	Name  string
	Size  int64
	IsDir bool
}

// FileSnapshot is one directory's view of one file.
// Rows is nil when the rows were not counted or the file is absent.
type FileSnapshot struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size_bytes"`
	Rows     *int64 `json:"row_count"`
}

// ComparisonResult pairs today's snapshot with yesterday's baseline.
// Deltas are set only when both snapshots exist; positive means growth.
type ComparisonResult struct {
	Filename  string        `json:"filename"`
	Today     FileSnapshot  `json:"today"`
	Yesterday *FileSnapshot `json:"yesterday"`
	SizeDelta *int64        `json:"size_delta"`
	RowDelta  *int64        `json:"row_delta"`
}

// HasBaseline reports whether yesterday's copy existed.
func (r *ComparisonResult) HasBaseline() bool {
	return r.Yesterday != nil
}

// ErrorEntry records a file that could not be compared.
type ErrorEntry struct {
	Filename string `json:"filename"`
	Message  string `json:"error"`
}

// Entry is one output record per today-file: exactly one of Result or Error is set.
type Entry struct {
	Result *ComparisonResult `json:"result,omitempty"`
	Error  *ErrorEntry       `json:"error,omitempty"`
}

// Filename returns the file the entry describes.
func (e Entry) Filename() string {
	if e.Result != nil {
		return e.Result.Filename
	}
	if e.Error != nil {
		return e.Error.Filename
	}
	return ""
}

// RunStatus represents the overall result of a comparison run.
type RunStatus string

const (
	// StatusSuccess indicates every file was compared
	StatusSuccess RunStatus = "success"
	// StatusPartial indicates some files errored
	StatusPartial RunStatus = "partial"
	// StatusFailed indicates a structural error stopped the run
	StatusFailed RunStatus = "failed"
	// StatusCancelled indicates the run was interrupted
	StatusCancelled RunStatus = "cancelled"
)

// Report is the output contract consumed by the display layer.
type Report struct {
	RunID       uuid.UUID
	Root        string
	BaselineDir string
	StartedAt   time.Time
	FinishedAt  time.Time

	// Entries holds one record per today-file, in listing order.
	Entries []Entry

	// StructuralError short-circuits per-file output (e.g. no baseline).
	StructuralError error

	// Cancelled is set when the caller aborted; Entries holds what finished.
	Cancelled bool
}

// NewReport creates an empty report with a fresh run ID.
func NewReport(root, baselineDir string, started time.Time) *Report {
	return &Report{
		RunID:       uuid.New(),
		Root:        root,
		BaselineDir: baselineDir,
		StartedAt:   started,
		Entries:     make([]Entry, 0),
	}
}

// ErrorCount returns the number of per-file error entries.
func (r *Report) ErrorCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Error != nil {
			n++
		}
	}
	return n
}

// Status summarizes the run.
func (r *Report) Status() RunStatus {
	switch {
	case r.StructuralError != nil:
		return StatusFailed
	case r.Cancelled:
		return StatusCancelled
	case r.ErrorCount() > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

// Err converts the report status into an error suitable for ExitCodeForError.
func (r *Report) Err() error {
	switch r.Status() {
	case StatusFailed:
		return r.StructuralError
	case StatusCancelled:
		return ErrCancelled
	case StatusPartial:
		return fmt.Errorf("%d of %d files: %w", r.ErrorCount(), len(r.Entries), ErrPartialResults)
	default:
		return nil
	}
}

// ProgressFunc receives (files processed, files total, current filename).
// A nil ProgressFunc is valid and ignored.
type ProgressFunc func(processed, total int, current string)

// Report calls the sink if it is set.
func (f ProgressFunc) Report(processed, total int, current string) {
	if f != nil {
		f(processed, total, current)
	}
}

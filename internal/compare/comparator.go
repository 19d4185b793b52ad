// Package compare pairs today's CSV files with yesterday's archived copies
// and computes size and row deltas.
package compare

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/vvka-141/csvdelta/internal/logging"
	"github.com/vvka-141/csvdelta/internal/rowcount"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// Remote is the resilient view of the file store the comparator needs.
type Remote interface {
	Connect(ctx context.Context) error
	ListDirectory(ctx context.Context, path string) ([]csvdelta.RemoteFileStat, error)
	Stat(ctx context.Context, path string) (csvdelta.RemoteFileStat, error)
	rowcount.Streamer
	Close() error
}

// Options configures a Comparator. The zero value compares the session's
// working directory against yesterday in local time.
type Options struct {
	// Root is the directory holding today's files. Defaults to ".".
	Root string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Location decides which calendar day "yesterday" is. Defaults to time.Local.
	Location *time.Location

	// Progress receives one call per finished file. May be nil.
	Progress csvdelta.ProgressFunc

	Logger csvdelta.Logger
}

// Comparator runs one comparison over a Remote.
type Comparator struct {
	remote Remote
	opts   Options
}

// New creates a Comparator. Missing options get their defaults.
func New(remote Remote, opts Options) *Comparator {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNullLogger()
	}
	return &Comparator{remote: remote, opts: opts}
}

// YesterdayDir names the archive directory for the day before now in loc.
func YesterdayDir(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).AddDate(0, 0, -1).Format(csvdelta.BaselineDateLayout)
}

// IsCSV reports whether name has the .csv suffix, ignoring case.
func IsCSV(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), csvdelta.CSVSuffix)
}

// Run compares every CSV in the root with its copy in yesterday's directory.
//
// The returned report is never nil. Per-file failures become error entries
// and the run continues. A missing baseline directory, a connection that
// cannot be established or rejected credentials stop the run and are
// recorded as the report's structural error, which is also returned.
// Cancellation keeps the entries finished so far and returns an error
// matching csvdelta.ErrCancelled.
func (c *Comparator) Run(ctx context.Context) (*csvdelta.Report, error) {
	now := c.opts.Now()
	baseline := YesterdayDir(now, c.opts.Location)
	report := csvdelta.NewReport(c.opts.Root, baseline, now)
	log := c.opts.Logger

	defer func() {
		report.FinishedAt = c.opts.Now()
	}()
	defer func() {
		if err := c.remote.Close(); err != nil {
			log.Verbose("Closing session: %v", err)
		}
	}()

	log.Verbose("Run %s: comparing %s against %s", report.RunID, c.opts.Root, baseline)

	if err := c.remote.Connect(ctx); err != nil {
		return c.stop(report, err)
	}

	entries, err := c.remote.ListDirectory(ctx, c.opts.Root)
	if err != nil {
		return c.stop(report, fmt.Errorf("list %s: %w", c.opts.Root, err))
	}
	files := csvFiles(entries)
	log.Verbose("Found %d CSV files in %s", len(files), c.opts.Root)

	baselinePath := path.Join(c.opts.Root, baseline)
	if _, err := c.remote.ListDirectory(ctx, baselinePath); err != nil {
		if errors.Is(err, csvdelta.ErrNotFound) {
			err = fmt.Errorf("%s: %w", baselinePath, csvdelta.ErrNoBaseline)
		}
		return c.stop(report, err)
	}

	c.opts.Progress.Report(0, len(files), "")
	for i, file := range files {
		log.Verbose("Comparing %s", file.Name)

		result, err := c.compareFile(ctx, file, baselinePath)
		switch {
		case err == nil:
			report.Entries = append(report.Entries, csvdelta.Entry{Result: result})
		case isCancelled(ctx, err):
			return c.stop(report, err)
		case errors.Is(err, csvdelta.ErrAuthentication):
			return c.stop(report, err)
		default:
			log.Error("%s: %v", file.Name, err)
			report.Entries = append(report.Entries, csvdelta.Entry{
				Error: &csvdelta.ErrorEntry{Filename: file.Name, Message: err.Error()},
			})
		}

		c.opts.Progress.Report(i+1, len(files), file.Name)
	}

	return report, nil
}

// stop ends the run early, recording why.
func (c *Comparator) stop(report *csvdelta.Report, err error) (*csvdelta.Report, error) {
	if isCancelledErr(err) {
		report.Cancelled = true
		c.opts.Logger.Info("Run cancelled after %d files", len(report.Entries))
		if !errors.Is(err, csvdelta.ErrCancelled) {
			err = fmt.Errorf("%w: %w", csvdelta.ErrCancelled, err)
		}
		return report, err
	}
	report.StructuralError = err
	return report, err
}

func isCancelledErr(err error) bool {
	return errors.Is(err, csvdelta.ErrCancelled) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || isCancelledErr(err)
}

func csvFiles(entries []csvdelta.RemoteFileStat) []csvdelta.RemoteFileStat {
	files := make([]csvdelta.RemoteFileStat, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir && IsCSV(e.Name) {
			files = append(files, e)
		}
	}
	return files
}

func (c *Comparator) compareFile(ctx context.Context, today csvdelta.RemoteFileStat, baselinePath string) (*csvdelta.ComparisonResult, error) {
	todayPath := path.Join(c.opts.Root, today.Name)
	yesterdayPath := path.Join(baselinePath, today.Name)

	result := &csvdelta.ComparisonResult{
		Filename: today.Name,
		Today:    csvdelta.FileSnapshot{Filename: today.Name, Size: today.Size},
	}

	yStat, err := c.remote.Stat(ctx, yesterdayPath)
	if errors.Is(err, csvdelta.ErrNotFound) {
		c.opts.Logger.Verbose("%s has no copy in %s", today.Name, baselinePath)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	tStat, err := c.remote.Stat(ctx, todayPath)
	if err != nil {
		return nil, err
	}

	tRows, err := rowcount.Count(ctx, c.remote, todayPath)
	if err != nil {
		return nil, err
	}
	yRows, err := rowcount.Count(ctx, c.remote, yesterdayPath)
	if err != nil {
		return nil, err
	}

	result.Today = csvdelta.FileSnapshot{Filename: today.Name, Size: tStat.Size, Rows: &tRows}
	result.Yesterday = &csvdelta.FileSnapshot{Filename: today.Name, Size: yStat.Size, Rows: &yRows}

	sizeDelta := tStat.Size - yStat.Size
	rowDelta := tRows - yRows
	result.SizeDelta = &sizeDelta
	result.RowDelta = &rowDelta
	return result, nil
}

// Package rowcount counts newline-delimited rows in a remote file without
// holding more than one chunk in memory.
package rowcount

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// State is the phase of a Counter.
type State int

const (
	// Accumulating accepts chunks.
	Accumulating State = iota
	// Flushing means the stream ended and the total is final.
	Flushing
)

func (s State) String() string {
	if s == Flushing {
		return "flushing"
	}
	return "accumulating"
}

// ErrFinished is returned by Feed after Finish.
var ErrFinished = errors.New("row counter already finished")

// Counter counts rows across chunk boundaries. A row is a run of bytes ended
// by '\n', or a non-empty run at the end of the stream with no terminator.
//
// The only state carried between chunks is whether the last byte seen was
// part of an unterminated row, so the result does not depend on how the
// stream was split.
type Counter struct {
	state   State
	lines   int64
	pending bool
	total   int64
}

// NewCounter returns a counter in the Accumulating state.
func NewCounter() *Counter {
	return &Counter{}
}

// Feed counts the newlines in chunk.
func (c *Counter) Feed(chunk []byte) error {
	if c.state != Accumulating {
		return ErrFinished
	}
	if len(chunk) == 0 {
		return nil
	}
	c.lines += int64(bytes.Count(chunk, []byte{'\n'}))
	c.pending = chunk[len(chunk)-1] != '\n'
	return nil
}

// Finish ends the stream and returns the row count. Calling it again returns
// the same total.
func (c *Counter) Finish() int64 {
	if c.state == Flushing {
		return c.total
	}
	c.state = Flushing
	c.total = c.lines
	if c.pending {
		c.total++
	}
	return c.total
}

// State returns the current phase.
func (c *Counter) State() State {
	return c.state
}

// Reset returns the counter to an empty Accumulating state.
func (c *Counter) Reset() {
	*c = Counter{}
}

// Streamer opens a remote file and feeds it to consume, restarting consume
// from the first byte if the transfer has to be retried.
type Streamer interface {
	Stream(ctx context.Context, path string, consume func(ctx context.Context, r csvdelta.ChunkReader) error) error
}

// Count returns the number of rows in the remote file at path.
// Each attempt the streamer makes starts from a fresh Counter.
func Count(ctx context.Context, streamer Streamer, path string) (int64, error) {
	var rows int64
	err := streamer.Stream(ctx, path, func(ctx context.Context, r csvdelta.ChunkReader) error {
		counter := NewCounter()
		for {
			chunk, err := r.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if err := counter.Feed(chunk); err != nil {
				return err
			}
		}
		rows = counter.Finish()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

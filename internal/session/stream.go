package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// chunkReader reads a remote file in bounded chunks through one reused buffer.
type chunkReader struct {
	src      io.ReadCloser
	path     string
	buf      []byte
	read     int64
	expected int64 // size at open time, -1 when unknown
	done     bool
	closed   bool
	// abandoned is set when a read was left running after cancellation;
	// that read still owns buf.
	abandoned bool
}

type readResult struct {
	n   int
	err error
}

func newChunkReader(src io.ReadCloser, path string, chunkSize int, expected int64) *chunkReader {
	return &chunkReader{
		src:      src,
		path:     path,
		buf:      make([]byte, chunkSize),
		expected: expected,
	}
}

func (r *chunkReader) Next(ctx context.Context) ([]byte, error) {
	if r.closed {
		return nil, fmt.Errorf("read %s: stream closed", r.path)
	}
	if r.done {
		return nil, io.EOF
	}
	if r.abandoned {
		return nil, fmt.Errorf("read %s: %w: an earlier read was abandoned", r.path, csvdelta.ErrConnectivity)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for {
		n, err := r.readContext(ctx)
		if r.abandoned {
			return nil, err
		}
		r.read += int64(n)

		if errors.Is(err, io.EOF) {
			r.done = true
			if r.expected >= 0 && r.read < r.expected {
				return nil, fmt.Errorf("read %s: %w: stream ended at %d of %d bytes",
					r.path, csvdelta.ErrConnectivity, r.read, r.expected)
			}
			if n > 0 {
				return r.buf[:n], nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, translate("read", r.path, err)
		}
		if n > 0 {
			return r.buf[:n], nil
		}
	}
}

// readContext reads one buffer, returning ctx.Err() as soon as ctx is done.
// The sftp read itself does not watch ctx; it is left to finish when the
// session is torn down.
func (r *chunkReader) readContext(ctx context.Context) (int, error) {
	result := make(chan readResult, 1)
	go func() {
		n, err := r.src.Read(r.buf)
		result <- readResult{n: n, err: err}
	}()

	select {
	case res := <-result:
		return res.n, res.err
	case <-ctx.Done():
		r.abandoned = true
		return 0, ctx.Err()
	}
}

// Close is idempotent.
func (r *chunkReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.abandoned {
		// The pending read holds the handle; closing in the background avoids
		// waiting for it.
		go func() { _ = r.src.Close() }()
		return nil
	}
	if err := r.src.Close(); err != nil && !isClosedError(err) {
		return fmt.Errorf("close %s: %w", r.path, err)
	}
	return nil
}

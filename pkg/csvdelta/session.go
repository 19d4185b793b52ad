package csvdelta

import "context"

// SessionState is the lifecycle position of a Session.
type SessionState int

const (
	StateClosed SessionState = iota
	StateConnecting
	StateOpen
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Session is one authenticated connection plus its file-protocol channel.
//
// Thread-Safety: NOT safe for concurrent use, except that Keepalive and
// IsAlive may run while a stream is being read. Other operations on one
// Session execute sequentially; the resilient client is the single owner.
//
// Lifecycle:
//  1. Created by a Dialer (closed -> connecting -> open)
//  2. Used for list/stat/stream operations
//  3. Released via Close() (idempotent, innermost layer first)
type Session interface {
	// State reports the lifecycle position.
	State() SessionState

	// IsAlive is a cheap liveness probe. It never fails; ambiguity means false.
	IsAlive() bool

	// Keepalive sends a lightweight request to keep idle timers from firing.
	Keepalive(ctx context.Context) error

	// ListDirectory returns the entries of path in server order.
	// Returns ErrNotFound if the directory does not exist.
	ListDirectory(ctx context.Context, path string) ([]RemoteFileStat, error)

	// Stat returns fresh metadata for path. Returns ErrNotFound if absent.
	Stat(ctx context.Context, path string) (RemoteFileStat, error)

	// OpenReadStream opens path for chunked reading.
	// Returns ErrNotFound if the file does not exist at call time.
	OpenReadStream(ctx context.Context, path string) (ChunkReader, error)

	// Close releases the protocol and transport layers. Safe to call repeatedly.
	Close() error
}

// ChunkReader is a lazy, finite, non-restartable sequence of byte chunks.
// Each chunk is at most the configured chunk size; the slice is only valid
// until the next call to Next.
type ChunkReader interface {
	// Next returns the next chunk, or io.EOF when the stream is exhausted.
	Next(ctx context.Context) ([]byte, error)

	// Close releases the remote file handle.
	Close() error
}

// Dialer opens new sessions. The resilient client calls it on every (re)connect.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Session, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Session, error) {
	return f(ctx)
}

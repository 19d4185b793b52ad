package resilient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/csvdelta/internal/session/memstore"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

func noWait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newClient(store *memstore.Store, maxAttempts int, opts ...Option) *Client {
	policy := csvdelta.RetryPolicy{MaxAttempts: maxAttempts, BaseBackoff: time.Second}
	opts = append([]Option{WithWait(noWait), WithKeepaliveInterval(0)}, opts...)
	return New(store, policy, opts...)
}

func readInto(buf *bytes.Buffer) func(ctx context.Context, r csvdelta.ChunkReader) error {
	return func(ctx context.Context, r csvdelta.ChunkReader) error {
		buf.Reset()
		for {
			chunk, err := r.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			buf.Write(chunk)
		}
	}
}

func TestClient_ReusesLiveSession(t *testing.T) {
	store := memstore.New()
	store.AddFile("a.csv", "x\n")
	client := newClient(store, 3)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	_, err := client.Stat(ctx, "a.csv")
	require.NoError(t, err)
	_, err = client.ListDirectory(ctx, ".")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Stats().Dials)
	assert.Equal(t, Stats{Dials: 1}, client.Stats())
}

func TestClient_Stream_RestartsFromFirstByteAfterDisconnect(t *testing.T) {
	store := memstore.New()
	store.SetChunkSize(2)
	store.AddFile("a.csv", "a\nb\nc\n")
	store.BreakStreams("a.csv", 1, 2)
	client := newClient(store, 3)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, client.Stream(ctx, "a.csv", readInto(&buf)))

	assert.Equal(t, "a\nb\nc\n", buf.String())
	assert.Equal(t, int64(1), client.Stats().Retries)
	assert.Equal(t, int64(1), client.Stats().Reconnects)
	assert.Equal(t, 2, store.Stats().StreamsOpened)

	require.NoError(t, client.Close())
	stats := store.Stats()
	assert.Equal(t, 0, stats.OpenHandles, "every opened stream must be closed")
	assert.Equal(t, 0, stats.OpenSessions, "stale session must be closed before reconnecting")
}

func TestClient_ReplacesDeadSessionBeforeAttempt(t *testing.T) {
	store := memstore.New()
	store.AddFile("a.csv", "x\n")
	client := newClient(store, 3)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	store.DropConnections()

	stat, err := client.Stat(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stat.Size)

	assert.Equal(t, 2, store.Stats().Dials)
	assert.Equal(t, int64(1), client.Stats().Reconnects)
	assert.Equal(t, int64(0), client.Stats().Retries, "a dead session is replaced without spending an attempt")
	assert.Equal(t, 1, store.Stats().OpenSessions)
}

func TestClient_AuthenticationIsNotRetried(t *testing.T) {
	store := memstore.New()
	store.FailDials(5, fmt.Errorf("connect h:22: %w", csvdelta.ErrAuthentication))
	client := newClient(store, 5)

	err := client.Connect(context.Background())

	assert.ErrorIs(t, err, csvdelta.ErrAuthentication)
	assert.NotErrorIs(t, err, csvdelta.ErrMaxRetriesExceeded)
	assert.Equal(t, 1, store.Stats().Dials)
}

func TestClient_TransientDialFailuresRecover(t *testing.T) {
	store := memstore.New()
	store.FailDials(2, fmt.Errorf("connect h:22: %w", csvdelta.ErrConnectivity))
	client := newClient(store, 3)
	defer client.Close()

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, 3, store.Stats().Dials)
	assert.Equal(t, int64(2), client.Stats().Retries)
}

func TestClient_NotFoundIsReturnedImmediately(t *testing.T) {
	store := memstore.New()
	client := newClient(store, 5)
	defer client.Close()

	_, err := client.Stat(context.Background(), "2026-10-18/missing.csv")

	assert.ErrorIs(t, err, csvdelta.ErrNotFound)
	assert.NotErrorIs(t, err, csvdelta.ErrMaxRetriesExceeded)
	assert.Equal(t, int64(0), client.Stats().Retries)
	assert.Equal(t, 1, store.Stats().Dials, "a missing file must not cost the session")
}

func TestClient_MaxRetriesExceededAfterExactlyMaxAttempts(t *testing.T) {
	store := memstore.New()
	store.AddFile("a.csv", "x")
	store.FailStats("a.csv", 10, fmt.Errorf("stat a.csv: %w", csvdelta.ErrConnectivity))
	client := newClient(store, 3)
	defer client.Close()

	_, err := client.Stat(context.Background(), "a.csv")

	require.ErrorIs(t, err, csvdelta.ErrMaxRetriesExceeded)
	var mre *csvdelta.MaxRetriesError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, 3, mre.Attempts)
	assert.Equal(t, "stat a.csv", mre.Operation)
	assert.ErrorIs(t, err, csvdelta.ErrConnectivity)

	assert.Equal(t, int64(2), client.Stats().Retries)
	assert.Equal(t, 3, store.Stats().Dials, "each transient failure discards the session")
}

func TestClient_Cancelled(t *testing.T) {
	store := memstore.New()
	client := newClient(store, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListDirectory(ctx, ".")

	assert.ErrorIs(t, err, csvdelta.ErrCancelled)
	assert.Equal(t, 0, store.Stats().Dials)
}

func TestClient_CancelledMidStreamDropsSession(t *testing.T) {
	store := memstore.New()
	store.AddFile("a.csv", "a\nb\nc\n")
	client := newClient(store, 3)
	ctx, cancel := context.WithCancel(context.Background())

	err := client.Stream(ctx, "a.csv", func(ctx context.Context, r csvdelta.ChunkReader) error {
		if _, err := r.Next(ctx); err != nil {
			return err
		}
		cancel()
		_, err := r.Next(ctx)
		return err
	})

	assert.ErrorIs(t, err, csvdelta.ErrCancelled)
	stats := store.Stats()
	assert.Equal(t, 0, stats.OpenHandles)
	assert.Equal(t, 0, stats.OpenSessions)
}

func TestClient_KeepaliveFailuresDoNotAbortStream(t *testing.T) {
	store := memstore.New()
	store.AddFile("a.csv", "a\nb\n")
	store.FailKeepalives(1000)
	client := newClient(store, 1, WithKeepaliveInterval(time.Millisecond))
	defer client.Close()

	var buf bytes.Buffer
	consume := readInto(&buf)
	err := client.Stream(context.Background(), "a.csv", func(ctx context.Context, r csvdelta.ChunkReader) error {
		time.Sleep(30 * time.Millisecond)
		return consume(ctx, r)
	})

	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", buf.String())
	assert.Positive(t, store.Stats().Keepalives)
	assert.Positive(t, client.Stats().KeepaliveFailures)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	store := memstore.New()
	client := newClient(store, 3)
	require.NoError(t, client.Connect(context.Background()))

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.Equal(t, 0, store.Stats().OpenSessions)
}

func TestNew_PanicsOnNilDialer(t *testing.T) {
	assert.Panics(t, func() {
		New(nil, csvdelta.DefaultRetryPolicy())
	})
}

// stalledSession hands out readers that ignore ctx and block until the
// session is closed.
type stalledSession struct {
	closed chan struct{}
	once   sync.Once
	closes atomic.Int32
}

func newStalledSession() *stalledSession {
	return &stalledSession{closed: make(chan struct{})}
}

func (s *stalledSession) State() csvdelta.SessionState { return csvdelta.StateOpen }
func (s *stalledSession) IsAlive() bool                { return true }

func (s *stalledSession) Keepalive(context.Context) error { return nil }

func (s *stalledSession) ListDirectory(context.Context, string) ([]csvdelta.RemoteFileStat, error) {
	return nil, nil
}

func (s *stalledSession) Stat(_ context.Context, p string) (csvdelta.RemoteFileStat, error) {
	return csvdelta.RemoteFileStat{Path: p}, nil
}

func (s *stalledSession) OpenReadStream(context.Context, string) (csvdelta.ChunkReader, error) {
	return &stalledReader{session: s}, nil
}

func (s *stalledSession) Close() error {
	s.closes.Add(1)
	s.once.Do(func() { close(s.closed) })
	return nil
}

type stalledReader struct {
	session *stalledSession
}

func (r *stalledReader) Next(context.Context) ([]byte, error) {
	<-r.session.closed
	return nil, fmt.Errorf("read: %w: session closed", csvdelta.ErrConnectivity)
}

func (r *stalledReader) Close() error { return nil }

func TestClient_CancelClosesSessionUnderBlockedRead(t *testing.T) {
	sess := newStalledSession()
	dialer := csvdelta.DialerFunc(func(context.Context) (csvdelta.Session, error) {
		return sess, nil
	})
	policy := csvdelta.RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Second}
	client := New(dialer, policy, WithWait(noWait), WithKeepaliveInterval(0))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Stream(ctx, "big.csv", func(ctx context.Context, r csvdelta.ChunkReader) error {
			_, err := r.Next(ctx)
			return err
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, csvdelta.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("Stream still blocked after cancellation")
	}

	assert.Positive(t, sess.closes.Load(), "session should be closed")
	assert.Equal(t, Stats{Dials: 1}, client.Stats(), "a cancelled read is not retried")
}

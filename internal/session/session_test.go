package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    error
		notWant error
	}{
		{"not exist", os.ErrNotExist, csvdelta.ErrNotFound, csvdelta.ErrConnectivity},
		{"sftp no such file", &sftp.StatusError{Code: uint32(sftp.ErrSSHFxNoSuchFile)}, csvdelta.ErrNotFound, csvdelta.ErrConnectivity},
		{"sftp connection lost", &sftp.StatusError{Code: uint32(sftp.ErrSSHFxConnectionLost)}, csvdelta.ErrConnectivity, csvdelta.ErrNotFound},
		{"eof", io.EOF, csvdelta.ErrConnectivity, csvdelta.ErrNotFound},
		{"unexpected eof", io.ErrUnexpectedEOF, csvdelta.ErrConnectivity, csvdelta.ErrNotFound},
		{"connection lost text", errors.New("sftp: connection lost"), csvdelta.ErrConnectivity, csvdelta.ErrNotFound},
		{"already classified", fmt.Errorf("x: %w", csvdelta.ErrNotFound), csvdelta.ErrNotFound, csvdelta.ErrConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translate("stat", "a.csv", tt.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.NotErrorIs(t, err, tt.notWant)
			assert.True(t, strings.HasPrefix(err.Error(), "stat a.csv: "), err.Error())
		})
	}
}

func TestTranslate_PermissionDeniedStaysUnclassified(t *testing.T) {
	err := translate("open", "a.csv", os.ErrPermission)

	assert.ErrorIs(t, err, os.ErrPermission)
	assert.NotErrorIs(t, err, csvdelta.ErrNotFound)
	assert.NotErrorIs(t, err, csvdelta.ErrConnectivity)
}

func TestTranslate_Nil(t *testing.T) {
	assert.NoError(t, translate("stat", "a.csv", nil))
}

func TestTranslateDial(t *testing.T) {
	authErr := translateDial("h:22", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain"))
	assert.ErrorIs(t, authErr, csvdelta.ErrAuthentication)
	assert.NotErrorIs(t, authErr, csvdelta.ErrConnectivity)

	netErr := translateDial("h:22", errors.New("dial tcp 10.0.0.1:22: connect: connection refused"))
	assert.ErrorIs(t, netErr, csvdelta.ErrConnectivity)
	assert.NotErrorIs(t, netErr, csvdelta.ErrAuthentication)
}

func TestOpen_ValidatesBeforeDialing(t *testing.T) {
	_, err := Open(context.Background(), csvdelta.ConnectionParameters{Host: "example.invalid", Port: 22})

	require.Error(t, err)
	assert.ErrorIs(t, err, csvdelta.ErrInvalidConfig)
}

func TestOpen_KnownHostsFileMissing(t *testing.T) {
	params := csvdelta.ConnectionParameters{Host: "127.0.0.1", Port: 22, Username: "u", Password: "p"}

	_, err := Open(context.Background(), params, WithKnownHostsFile(filepath.Join(t.TempDir(), "missing")))

	assert.ErrorIs(t, err, csvdelta.ErrInvalidConfig)
}

func TestOpen_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	params := csvdelta.ConnectionParameters{Host: "127.0.0.1", Port: 1, Username: "u", Password: "p"}

	_, err := Open(ctx, params, WithDialTimeout(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptions(t *testing.T) {
	o := defaultOptions()
	assert.Equal(t, csvdelta.DefaultChunkSize, o.chunkSize)
	assert.Equal(t, csvdelta.DefaultDialTimeout, o.dialTimeout)

	WithChunkSize(0)(&o)
	WithDialTimeout(-1)(&o)
	assert.Equal(t, csvdelta.DefaultChunkSize, o.chunkSize, "non-positive values are ignored")
	assert.Equal(t, csvdelta.DefaultDialTimeout, o.dialTimeout)

	WithChunkSize(16)(&o)
	WithDialTimeout(time.Second)(&o)
	assert.Equal(t, 16, o.chunkSize)
	assert.Equal(t, time.Second, o.dialTimeout)

	cb, err := o.resolveHostKeyCallback()
	require.NoError(t, err)
	assert.NotNil(t, cb)
}

func TestClientConfig_KeyboardInteractiveAnswersWithPassword(t *testing.T) {
	cfg := clientConfig(csvdelta.ConnectionParameters{Username: "u", Password: "secret"}, nil, time.Second)

	assert.Equal(t, "u", cfg.User)
	assert.Len(t, cfg.Auth, 2)
}

func TestSFTPSession_ClosedSessionIsNotAlive(t *testing.T) {
	s := &SFTPSession{addr: "h:22", state: csvdelta.StateClosed}

	assert.False(t, s.IsAlive())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	_, err := s.Stat(context.Background(), "a.csv")
	assert.ErrorIs(t, err, csvdelta.ErrConnectivity)
	assert.ErrorIs(t, s.Keepalive(context.Background()), csvdelta.ErrConnectivity)
}

func TestSFTPSession_NilIsNotAlive(t *testing.T) {
	var s *SFTPSession
	assert.False(t, s.IsAlive())
}

// fakeFile returns scripted reads.
type fakeFile struct {
	reads  []fakeRead
	closed int
}

type fakeRead struct {
	data string
	err  error
}

func (f *fakeFile) Read(p []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, io.EOF
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	n := copy(p, r.data)
	return n, r.err
}

func (f *fakeFile) Close() error {
	f.closed++
	return nil
}

func collect(t *testing.T, r *chunkReader) (string, error) {
	t.Helper()
	var sb strings.Builder
	for {
		chunk, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.Write(chunk)
	}
}

func TestChunkReader_ReadsToEOF(t *testing.T) {
	src := &fakeFile{reads: []fakeRead{{data: "a\nb"}, {data: "\nc", err: io.EOF}}}
	r := newChunkReader(src, "a.csv", 8, 5)

	content, err := collect(t, r)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc", content)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, src.closed)
}

func TestChunkReader_ShortStreamIsConnectivityFailure(t *testing.T) {
	src := &fakeFile{reads: []fakeRead{{data: "a\n"}}}
	r := newChunkReader(src, "a.csv", 8, 10)

	_, err := collect(t, r)

	assert.ErrorIs(t, err, csvdelta.ErrConnectivity)
}

func TestChunkReader_TranslatesReadErrors(t *testing.T) {
	src := &fakeFile{reads: []fakeRead{{data: "a\n"}, {err: io.ErrUnexpectedEOF}}}
	r := newChunkReader(src, "a.csv", 8, -1)

	content, err := collect(t, r)

	assert.Equal(t, "a\n", content)
	assert.ErrorIs(t, err, csvdelta.ErrConnectivity)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestChunkReader_RespectsChunkSize(t *testing.T) {
	src := &fakeFile{reads: []fakeRead{{data: "abcdefgh"}}}
	r := newChunkReader(src, "a.csv", 3, -1)

	chunk, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(chunk))
}

func TestChunkReader_CancelledContext(t *testing.T) {
	r := newChunkReader(&fakeFile{reads: []fakeRead{{data: "a"}}}, "a.csv", 8, -1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// stalledFile blocks every Read until Close, like an sftp read on a dead transport.
type stalledFile struct {
	release chan struct{}
	once    sync.Once
}

func newStalledFile() *stalledFile {
	return &stalledFile{release: make(chan struct{})}
}

func (f *stalledFile) Read(p []byte) (int, error) {
	<-f.release
	return 0, io.ErrUnexpectedEOF
}

func (f *stalledFile) Close() error {
	f.once.Do(func() { close(f.release) })
	return nil
}

func (f *stalledFile) isClosed() bool {
	select {
	case <-f.release:
		return true
	default:
		return false
	}
}

func TestChunkReader_CancelAbandonsBlockedRead(t *testing.T) {
	src := newStalledFile()
	r := newChunkReader(src, "big.csv", 16, -1)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Next(ctx)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next still blocked after cancellation")
	}

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, csvdelta.ErrConnectivity, "a reader with an abandoned read cannot continue")

	require.NoError(t, r.Close())
	assert.Eventually(t, src.isClosed, time.Second, 10*time.Millisecond)
}

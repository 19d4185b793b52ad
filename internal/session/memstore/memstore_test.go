package memstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

func readAll(t *testing.T, r csvdelta.ChunkReader) (string, []int, error) {
	t.Helper()
	var out []byte
	var sizes []int
	for {
		chunk, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return string(out), sizes, nil
		}
		if err != nil {
			return string(out), sizes, err
		}
		out = append(out, chunk...)
		sizes = append(sizes, len(chunk))
	}
}

func TestStore_ListDirectory_PreservesInsertionOrder(t *testing.T) {
	store := New()
	store.AddFile("b.csv", "1\n")
	store.AddFile("a.csv", "1\n2\n")
	store.AddFile("2026-10-18/a.csv", "1\n")

	sess, err := store.Dial(context.Background())
	require.NoError(t, err)

	entries, err := sess.ListDirectory(context.Background(), ".")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "b.csv", entries[0].Name)
	assert.Equal(t, "a.csv", entries[1].Name)
	assert.Equal(t, int64(4), entries[1].Size)
	assert.Equal(t, "2026-10-18", entries[2].Name)
	assert.True(t, entries[2].IsDir)
}

func TestStore_MissingPathsReportNotFound(t *testing.T) {
	store := New()
	sess, err := store.Dial(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = sess.ListDirectory(ctx, "2026-10-18")
	assert.ErrorIs(t, err, csvdelta.ErrNotFound)

	_, err = sess.Stat(ctx, "a.csv")
	assert.ErrorIs(t, err, csvdelta.ErrNotFound)

	_, err = sess.OpenReadStream(ctx, "a.csv")
	assert.ErrorIs(t, err, csvdelta.ErrNotFound)
}

func TestStore_StreamChunksAreBounded(t *testing.T) {
	store := New()
	store.SetChunkSize(3)
	store.AddFile("a.csv", "abcdefgh")

	sess, err := store.Dial(context.Background())
	require.NoError(t, err)
	r, err := sess.OpenReadStream(context.Background(), "a.csv")
	require.NoError(t, err)
	defer r.Close()

	content, sizes, err := readAll(t, r)
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", content)
	assert.Equal(t, []int{3, 3, 2}, sizes)
}

func TestStore_BreakStreams(t *testing.T) {
	store := New()
	store.SetChunkSize(2)
	store.AddFile("a.csv", "a\nb\nc\n")
	store.BreakStreams("a.csv", 1, 1)

	sess, err := store.Dial(context.Background())
	require.NoError(t, err)

	r, err := sess.OpenReadStream(context.Background(), "a.csv")
	require.NoError(t, err)
	content, _, err := readAll(t, r)
	require.NoError(t, r.Close())

	assert.ErrorIs(t, err, csvdelta.ErrConnectivity)
	assert.Equal(t, "a\n", content)
	assert.False(t, sess.IsAlive(), "broken stream must kill its session")

	// The next session streams normally
	sess2, err := store.Dial(context.Background())
	require.NoError(t, err)
	r2, err := sess2.OpenReadStream(context.Background(), "a.csv")
	require.NoError(t, err)
	content, _, err = readAll(t, r2)
	require.NoError(t, err)
	require.NoError(t, r2.Close())
	assert.Equal(t, "a\nb\nc\n", content)
}

func TestStore_FaultsAreConsumed(t *testing.T) {
	store := New()
	store.AddFile("a.csv", "x")
	store.FailDials(1, csvdelta.ErrConnectivity)
	store.FailStats("a.csv", 2, csvdelta.ErrConnectivity)
	ctx := context.Background()

	_, err := store.Dial(ctx)
	require.ErrorIs(t, err, csvdelta.ErrConnectivity)

	sess, err := store.Dial(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = sess.Stat(ctx, "a.csv")
		assert.ErrorIs(t, err, csvdelta.ErrConnectivity)
	}
	stat, err := sess.Stat(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stat.Size)
	assert.Equal(t, 2, store.Stats().Dials)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	store := New()
	sess, err := store.Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	assert.Equal(t, csvdelta.StateClosed, sess.State())
	assert.False(t, sess.IsAlive())
	assert.Equal(t, 1, store.Stats().Closes)
	assert.Equal(t, 0, store.Stats().OpenSessions)

	_, err = sess.Stat(context.Background(), ".")
	assert.ErrorIs(t, err, csvdelta.ErrConnectivity)
}

func TestStore_DropConnections(t *testing.T) {
	store := New()
	sess, err := store.Dial(context.Background())
	require.NoError(t, err)
	require.True(t, sess.IsAlive())

	store.DropConnections()

	assert.False(t, sess.IsAlive())
	assert.ErrorIs(t, sess.Keepalive(context.Background()), csvdelta.ErrConnectivity)
}

func TestStore_OpenHandlesTracked(t *testing.T) {
	store := New()
	store.AddFile("a.csv", "x")
	sess, err := store.Dial(context.Background())
	require.NoError(t, err)

	r, err := sess.OpenReadStream(context.Background(), "a.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Stats().OpenHandles)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 0, store.Stats().OpenHandles)
}

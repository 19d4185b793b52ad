package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/csvdelta/internal/compare"
	"github.com/vvka-141/csvdelta/internal/config"
	"github.com/vvka-141/csvdelta/internal/session/memstore"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// executeCommand runs the root command with args from a clean working directory.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	compareFlags = compareOptions{format: "table"}
	configInitForce = false
	for _, name := range []string{"config", "env-file"} {
		require.NoError(t, rootCmd.PersistentFlags().Set(name, ""))
	}
	require.NoError(t, rootCmd.PersistentFlags().Set("verbose", "false"))

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), err
}

// useStore routes compare through an in-memory store.
func useStore(t *testing.T, store *memstore.Store) {
	t.Helper()
	original := newDialer
	newDialer = func(*config.Settings, csvdelta.Logger) csvdelta.Dialer { return store }
	t.Cleanup(func() { newDialer = original })

	t.Setenv(config.EnvHost, "sftp.test")
	t.Setenv(config.EnvUsername, "reports")
	t.Setenv(config.EnvPassword, "secret")
	t.Setenv("CSVDELTA_NON_INTERACTIVE", "1")
}

func yesterday() string {
	return compare.YesterdayDir(time.Now(), time.Local)
}

type jsonOutput struct {
	Status string `json:"status"`
	Files  []struct {
		Filename string `json:"filename"`
		RowDelta *int64 `json:"row_delta"`
		Error    string `json:"error"`
	} `json:"files"`
}

func TestCompare_JSON(t *testing.T) {
	store := memstore.New()
	store.AddFile("a.csv", "h\n1\n2\n")
	store.AddFile("b.csv", "h\n")
	store.AddFile(yesterday()+"/a.csv", "h\n1\n")
	useStore(t, store)

	out, err := executeCommand(t, "compare", "--format", "json")
	require.NoError(t, err)

	var doc jsonOutput
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "success", doc.Status)
	require.Len(t, doc.Files, 2)
	assert.Equal(t, "a.csv", doc.Files[0].Filename)
	require.NotNil(t, doc.Files[0].RowDelta)
	assert.Equal(t, int64(1), *doc.Files[0].RowDelta)
	assert.Nil(t, doc.Files[1].RowDelta)
}

func TestCompare_Table(t *testing.T) {
	store := memstore.New()
	store.AddFile("a.csv", "h\n1\n")
	store.AddFile(yesterday()+"/a.csv", "h\n")
	useStore(t, store)

	out, err := executeCommand(t, "compare")
	require.NoError(t, err)

	assert.Contains(t, out, "a.csv")
	assert.Contains(t, out, "1 file(s) compared")
}

func TestCompare_MissingBaseline(t *testing.T) {
	store := memstore.New()
	store.AddFile("a.csv", "h\n")
	useStore(t, store)

	_, err := executeCommand(t, "compare", "--format", "json")

	require.ErrorIs(t, err, csvdelta.ErrNoBaseline)
	assert.Equal(t, csvdelta.ExitNoBaseline, csvdelta.ExitCodeForError(err))
}

func TestCompare_PartialResults(t *testing.T) {
	store := memstore.New()
	store.AddFile("a.csv", "h\n")
	store.AddFile("b.csv", "h\n")
	store.AddFile(yesterday()+"/a.csv", "h\n")
	store.AddFile(yesterday()+"/b.csv", "h\n")
	store.FailStats(yesterday()+"/a.csv", 1, os.ErrPermission)
	useStore(t, store)

	out, err := executeCommand(t, "compare", "--format", "json")

	require.ErrorIs(t, err, csvdelta.ErrPartialResults)
	assert.Equal(t, csvdelta.ExitPartialResults, csvdelta.ExitCodeForError(err))

	var doc jsonOutput
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "partial", doc.Status)
	require.Len(t, doc.Files, 2)
	assert.Contains(t, doc.Files[0].Error, "permission denied")
	assert.Empty(t, doc.Files[1].Error)
}

func TestCompare_MissingPassword(t *testing.T) {
	useStore(t, memstore.New())
	require.NoError(t, os.Unsetenv(config.EnvPassword))

	_, err := executeCommand(t, "compare")

	require.ErrorIs(t, err, csvdelta.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "password is required")
	assert.Equal(t, csvdelta.ExitConfigError, csvdelta.ExitCodeForError(err))
}

func TestCompare_InvalidFormat(t *testing.T) {
	useStore(t, memstore.New())

	_, err := executeCommand(t, "compare", "--format", "xml")

	assert.Equal(t, csvdelta.ExitConfigError, csvdelta.ExitCodeForError(err))
}

func TestCompare_UnknownFlag(t *testing.T) {
	_, err := executeCommand(t, "compare", "--bogus")

	assert.Equal(t, csvdelta.ExitUsageError, csvdelta.ExitCodeForError(err))
}

func TestCompare_FlagsOverrideConfigFile(t *testing.T) {
	store := memstore.New()
	store.AddFile("exports/a.csv", "h\n1\n")
	store.AddFile("exports/"+yesterday()+"/a.csv", "h\n")
	useStore(t, store)

	var seen *config.Settings
	newDialer = func(s *config.Settings, _ csvdelta.Logger) csvdelta.Dialer {
		seen = s
		return store
	}

	cfgPath := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("connection:\n  host: file-host\n  port: 2222\nroot: elsewhere\n"), 0644))

	out, err := executeCommand(t, "compare", "--config", cfgPath, "--root", "exports", "--format", "json")
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "sftp.test", seen.Params.Host, "env beats file")
	assert.Equal(t, 2222, seen.Params.Port)
	assert.Equal(t, "exports", seen.Root, "flag beats file")
	assert.Contains(t, out, `"root": "exports"`)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()

	out, err := executeCommand(t, "config", "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, config.ConfigFileName)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, csvdelta.DefaultPort, cfg.Connection.Port)
	assert.Equal(t, csvdelta.DefaultRetryMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, "35s", cfg.Transfer.KeepaliveInterval)

	_, err = executeCommand(t, "config", "init", dir)
	assert.ErrorIs(t, err, csvdelta.ErrInvalidConfig, "existing file is not overwritten")

	_, err = executeCommand(t, "config", "init", dir, "--force")
	assert.NoError(t, err)
}

func TestConfigShow_MasksPassword(t *testing.T) {
	useStore(t, memstore.New())

	out, err := executeCommand(t, "config", "show")
	require.NoError(t, err)

	assert.Contains(t, out, "host: sftp.test")
	assert.Contains(t, out, "max_attempts: 3")
	assert.Contains(t, out, "keepalive_interval: 35s")
	assert.NotContains(t, out, "secret")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "csvdelta ")
}

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vvka-141/csvdelta/internal/compare"
	"github.com/vvka-141/csvdelta/internal/config"
	"github.com/vvka-141/csvdelta/internal/logging"
	"github.com/vvka-141/csvdelta/internal/report"
	"github.com/vvka-141/csvdelta/internal/resilient"
	"github.com/vvka-141/csvdelta/internal/session"
	"github.com/vvka-141/csvdelta/internal/tui"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

type compareOptions struct {
	host        string
	port        int
	username    string
	root        string
	knownHosts  string
	maxAttempts int
	format      string
	noProgress  bool
}

var compareFlags compareOptions

// newDialer builds the session factory; tests replace it with an in-memory store.
var newDialer = func(s *config.Settings, logger csvdelta.Logger) csvdelta.Dialer {
	opts := []session.Option{
		session.WithChunkSize(s.ChunkSize),
		session.WithDialTimeout(s.DialTimeout),
		session.WithLogger(logger),
	}
	if s.KnownHostsFile != "" {
		opts = append(opts, session.WithKnownHostsFile(s.KnownHostsFile))
	}
	return session.Dialer(s.Params, opts...)
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare today's CSV files with yesterday's archived copies",
	Long: `Compare every *.csv file in the remote root directory with the file of the
same name in the <root>/YYYY-MM-DD directory for yesterday's local date.

Connection settings come from flags, then CSVDELTA_SFTP_* environment
variables, then csvdelta.yaml. The password is only read from
CSVDELTA_SFTP_PASSWORD (a .env file is loaded if present).

Examples:
  # Compare the login directory
  CSVDELTA_SFTP_PASSWORD=secret csvdelta compare --host sftp.example.com --user reports

  # Compare a sub-directory and emit JSON
  csvdelta compare --root exports --format json`,
	Args: cobra.NoArgs,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	f := compareCmd.Flags()
	f.StringVar(&compareFlags.host, "host", "", "SFTP server host")
	f.IntVarP(&compareFlags.port, "port", "p", 0, "SFTP server port (default 22)")
	f.StringVarP(&compareFlags.username, "user", "U", "", "SFTP username")
	f.StringVar(&compareFlags.root, "root", "", "Remote directory holding today's files (default \".\")")
	f.StringVar(&compareFlags.knownHosts, "known-hosts", "", "Verify the server key against this known_hosts file")
	f.IntVar(&compareFlags.maxAttempts, "max-attempts", 0, "Attempts per remote operation, including the first (default 3)")
	f.StringVarP(&compareFlags.format, "format", "o", string(report.FormatTable), "Output format: table or json")
	f.BoolVar(&compareFlags.noProgress, "no-progress", false, "Disable the progress bar")
}

func runCompare(cmd *cobra.Command, args []string) error {
	verbose := getVerboseFlag(cmd)
	logger := logging.NewConsoleLoggerTo(cmd.ErrOrStderr(), verbose)
	defer func() { _ = logger.Sync() }()

	format, err := report.ParseFormat(compareFlags.format)
	if err != nil {
		return err
	}

	settings, err := resolveSettings(cmd, config.Overrides{
		Host:        compareFlags.host,
		Port:        compareFlags.port,
		Username:    compareFlags.username,
		Root:        compareFlags.root,
		KnownHosts:  compareFlags.knownHosts,
		MaxAttempts: compareFlags.maxAttempts,
	})
	if err != nil {
		return err
	}
	logger.Verbose("Connection resolved: %s, root %q, %d attempts per operation",
		settings.Params, settings.Root, settings.Retry.MaxAttempts)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := resilient.New(newDialer(settings, logger), settings.Retry,
		resilient.WithLogger(logger),
		resilient.WithKeepaliveInterval(settings.KeepaliveInterval),
	)

	live := format == report.FormatTable && !compareFlags.noProgress && tui.IsInteractive()
	progress := report.NewProgress(cmd.ErrOrStderr(), live, logger)

	comparator := compare.New(client, compare.Options{
		Root:     settings.Root,
		Progress: progress.Func(),
		Logger:   logger,
	})

	result, runErr := comparator.Run(ctx)
	progress.Finish()

	stats := client.Stats()
	logger.Verbose("Run %s finished: %d dials, %d reconnects, %d retries, %d keepalive failures",
		result.RunID, stats.Dials, stats.Reconnects, stats.Retries, stats.KeepaliveFailures)

	if err := report.Render(cmd.OutOrStdout(), result, format); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if runErr != nil {
		return runErr
	}
	return result.Err()
}

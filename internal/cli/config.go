package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vvka-141/csvdelta/internal/config"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create csvdelta.yaml",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration after merging all sources",
	Long: `Print the configuration compare would use, after applying defaults,
csvdelta.yaml, CSVDELTA_SFTP_* environment variables and .env. The password
is never printed.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter csvdelta.yaml",
	Long: `Write csvdelta.yaml with every setting at its default value.

The password is not stored in the file; set CSVDELTA_SFTP_PASSWORD or put it
in a .env file next to it.

Examples:
  csvdelta config init
  csvdelta config init ./jobs/daily --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing csvdelta.yaml")
}

// effectiveConfig is what `config show` prints.
type effectiveConfig struct {
	Connection struct {
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		KnownHosts string `yaml:"known_hosts,omitempty"`
	} `yaml:"connection"`
	Root  string `yaml:"root"`
	Retry struct {
		MaxAttempts int    `yaml:"max_attempts"`
		BaseBackoff string `yaml:"base_backoff"`
		MaxBackoff  string `yaml:"max_backoff"`
	} `yaml:"retry"`
	Transfer struct {
		ChunkSize         int    `yaml:"chunk_size"`
		KeepaliveInterval string `yaml:"keepalive_interval"`
		DialTimeout       string `yaml:"dial_timeout"`
	} `yaml:"transfer"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	s, err := resolveSettings(cmd, config.Overrides{})
	if err != nil {
		return err
	}

	var out effectiveConfig
	out.Connection.Host = s.Params.Host
	out.Connection.Port = s.Params.Port
	out.Connection.Username = s.Params.Username
	out.Connection.Password = "********"
	out.Connection.KnownHosts = s.KnownHostsFile
	out.Root = s.Root
	out.Retry.MaxAttempts = s.Retry.MaxAttempts
	out.Retry.BaseBackoff = s.Retry.BaseBackoff.String()
	out.Retry.MaxBackoff = s.Retry.MaxBackoff.String()
	out.Transfer.ChunkSize = s.ChunkSize
	out.Transfer.KeepaliveInterval = s.KeepaliveInterval.String()
	out.Transfer.DialTimeout = s.DialTimeout.String()

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	existing := filepath.Join(targetDir, config.ConfigFileName)
	if _, err := os.Stat(existing); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite): %w", existing, csvdelta.ErrInvalidConfig)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := &config.ProjectConfig{
		Connection: config.ConnectionConfig{
			Host:     "sftp.example.com",
			Port:     csvdelta.DefaultPort,
			Username: "reports",
		},
		Root: ".",
		Retry: config.RetryConfig{
			MaxAttempts: csvdelta.DefaultRetryMaxAttempts,
			BaseBackoff: csvdelta.DefaultRetryBaseBackoff.String(),
			MaxBackoff:  csvdelta.DefaultRetryMaxBackoff.String(),
		},
		Transfer: config.TransferConfig{
			ChunkSize:         csvdelta.DefaultChunkSize,
			KeepaliveInterval: csvdelta.DefaultKeepaliveInterval.String(),
			DialTimeout:       csvdelta.DefaultDialTimeout.String(),
		},
	}

	if err := config.Save(targetDir, cfg); err != nil {
		return fmt.Errorf("write %s: %w", existing, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", existing)
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s in the environment or a .env file before running compare.\n", config.EnvPassword)
	return nil
}

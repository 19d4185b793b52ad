package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// Environment variables read by Resolve.
const (
	EnvHost     = "CSVDELTA_SFTP_HOST"
	EnvPort     = "CSVDELTA_SFTP_PORT"
	EnvUsername = "CSVDELTA_SFTP_USERNAME"
	EnvPassword = "CSVDELTA_SFTP_PASSWORD"
)

// Settings is the fully resolved configuration for one run.
type Settings struct {
	Params            csvdelta.ConnectionParameters
	KnownHostsFile    string
	Root              string
	Retry             csvdelta.RetryPolicy
	ChunkSize         int
	KeepaliveInterval time.Duration
	DialTimeout       time.Duration
}

// Overrides are values given on the command line. Zero values are unset.
type Overrides struct {
	Host        string
	Port        int
	Username    string
	Root        string
	KnownHosts  string
	MaxAttempts int
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing default
// ".env" is not an error; a missing explicit path is.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w: %w", path, csvdelta.ErrInvalidConfig, err)
	}
	return nil
}

// Resolve merges defaults, the project file, the environment and flags, in
// increasing order of precedence, and validates the result.
// file may be nil. The password is only taken from the environment.
func Resolve(file *ProjectConfig, lookup LookupFunc, flags Overrides) (*Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	s := &Settings{
		Params:            csvdelta.ConnectionParameters{Port: csvdelta.DefaultPort},
		Root:              ".",
		Retry:             csvdelta.DefaultRetryPolicy(),
		ChunkSize:         csvdelta.DefaultChunkSize,
		KeepaliveInterval: csvdelta.DefaultKeepaliveInterval,
		DialTimeout:       csvdelta.DefaultDialTimeout,
	}

	var errs []error

	if file != nil {
		errs = append(errs, s.applyFile(file)...)
	}

	if v, ok := lookup(EnvHost); ok && v != "" {
		s.Params.Host = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q is not a number: %w", EnvPort, v, csvdelta.ErrInvalidConfig))
		} else {
			s.Params.Port = port
		}
	}
	if v, ok := lookup(EnvUsername); ok && v != "" {
		s.Params.Username = v
	}
	if v, ok := lookup(EnvPassword); ok {
		s.Params.Password = v
	}

	s.applyFlags(flags)

	if err := s.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d: %w", s.Retry.MaxAttempts, csvdelta.ErrInvalidConfig))
	}
	if s.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("transfer.chunk_size must be positive, got %d: %w", s.ChunkSize, csvdelta.ErrInvalidConfig))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyFile(file *ProjectConfig) []error {
	var errs []error

	if file.Connection.Host != "" {
		s.Params.Host = file.Connection.Host
	}
	if file.Connection.Port != 0 {
		s.Params.Port = file.Connection.Port
	}
	if file.Connection.Username != "" {
		s.Params.Username = file.Connection.Username
	}
	if file.Connection.KnownHosts != "" {
		s.KnownHostsFile = file.Connection.KnownHosts
	}
	if file.Root != "" {
		s.Root = file.Root
	}
	if file.Retry.MaxAttempts != 0 {
		s.Retry.MaxAttempts = file.Retry.MaxAttempts
	}
	if file.Transfer.ChunkSize != 0 {
		s.ChunkSize = file.Transfer.ChunkSize
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"retry.base_backoff", file.Retry.BaseBackoff, &s.Retry.BaseBackoff},
		{"retry.max_backoff", file.Retry.MaxBackoff, &s.Retry.MaxBackoff},
		{"transfer.keepalive_interval", file.Transfer.KeepaliveInterval, &s.KeepaliveInterval},
		{"transfer.dial_timeout", file.Transfer.DialTimeout, &s.DialTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil || parsed < 0 {
			errs = append(errs, fmt.Errorf("invalid %s %q in %s: %w", d.key, d.value, ConfigFileName, csvdelta.ErrInvalidConfig))
			continue
		}
		*d.dst = parsed
	}

	return errs
}

func (s *Settings) applyFlags(flags Overrides) {
	if flags.Host != "" {
		s.Params.Host = flags.Host
	}
	if flags.Port != 0 {
		s.Params.Port = flags.Port
	}
	if flags.Username != "" {
		s.Params.Username = flags.Username
	}
	if flags.Root != "" {
		s.Root = flags.Root
	}
	if flags.KnownHosts != "" {
		s.KnownHostsFile = flags.KnownHosts
	}
	if flags.MaxAttempts != 0 {
		s.Retry.MaxAttempts = flags.MaxAttempts
	}
}

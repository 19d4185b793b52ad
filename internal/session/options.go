package session

import (
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/vvka-141/csvdelta/internal/logging"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

type options struct {
	chunkSize       int
	dialTimeout     time.Duration
	hostKeyCallback ssh.HostKeyCallback
	knownHostsFile  string
	logger          csvdelta.Logger
}

// Option configures Open.
type Option func(*options)

func defaultOptions() options {
	return options{
		chunkSize:   csvdelta.DefaultChunkSize,
		dialTimeout: csvdelta.DefaultDialTimeout,
		logger:      logging.NewNullLogger(),
	}
}

// WithChunkSize sets the maximum size of chunks returned by read streams.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithDialTimeout bounds the TCP dial and the SSH handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithHostKeyCallback verifies server host keys with cb.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(o *options) {
		o.hostKeyCallback = cb
	}
}

// WithKnownHostsFile verifies server host keys against an OpenSSH known_hosts file.
// It takes precedence over WithHostKeyCallback.
func WithKnownHostsFile(path string) Option {
	return func(o *options) {
		o.knownHostsFile = path
	}
}

// WithLogger sets the logger for connection diagnostics.
func WithLogger(l csvdelta.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// resolveHostKeyCallback picks the host key policy.
// Without explicit verification every key is accepted.
func (o *options) resolveHostKeyCallback() (ssh.HostKeyCallback, error) {
	if o.knownHostsFile != "" {
		cb, err := knownhosts.New(o.knownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %s: %w: %w", o.knownHostsFile, csvdelta.ErrInvalidConfig, err)
		}
		return cb, nil
	}
	if o.hostKeyCallback != nil {
		return o.hostKeyCallback, nil
	}
	o.logger.Verbose("Host key verification disabled, accepting any server key")
	return ssh.InsecureIgnoreHostKey(), nil
}

func clientConfig(params csvdelta.ConnectionParameters, hostKey ssh.HostKeyCallback, timeout time.Duration) *ssh.ClientConfig {
	password := params.Password
	return &ssh.ClientConfig{
		User: params.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			// Servers that only offer keyboard-interactive still want the password
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}
}

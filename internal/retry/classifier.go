package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// SFTPErrorClassifier implements ErrorClassifier for SSH/SFTP sessions.
type SFTPErrorClassifier struct{}

// NewSFTPErrorClassifier creates a new SFTP error classifier.
func NewSFTPErrorClassifier() *SFTPErrorClassifier {
	return &SFTPErrorClassifier{}
}

// IsTransient determines if an error is temporary and retryable.
func (c *SFTPErrorClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Semantic failures never recover by reconnecting
	if c.isFatal(err) {
		return false
	}

	if errors.Is(err, csvdelta.ErrConnectivity) {
		return true
	}

	// Unexpected end of stream: the channel went away mid-read
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}

	if c.isProtocolError(err) {
		return true
	}

	if c.isNetworkError(err) {
		return true
	}

	return c.matchesTransientMessage(err)
}

// isFatal reports errors that must propagate immediately.
func (c *SFTPErrorClassifier) isFatal(err error) bool {
	return errors.Is(err, csvdelta.ErrNotFound) ||
		errors.Is(err, csvdelta.ErrAuthentication) ||
		errors.Is(err, csvdelta.ErrInvalidConfig) ||
		errors.Is(err, csvdelta.ErrCancelled) ||
		errors.Is(err, context.Canceled)
}

// isProtocolError checks SFTP status codes and SSH channel failures.
func (c *SFTPErrorClassifier) isProtocolError(err error) bool {
	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case uint32(sftp.ErrSSHFxConnectionLost),
			uint32(sftp.ErrSSHFxNoConnection),
			uint32(sftp.ErrSSHFxEOF):
			return true
		}
		return false
	}

	// Server refused to open the session/subsystem channel (resource shortage etc.)
	var chanErr *ssh.OpenChannelError
	return errors.As(err, &chanErr)
}

// isNetworkError checks for network-level errors.
func (c *SFTPErrorClassifier) isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ETIMEDOUT)
}

// matchesTransientMessage is the last resort for errors that lost their type
// while crossing the ssh/sftp layers.
func (c *SFTPErrorClassifier) matchesTransientMessage(err error) bool {
	errMsg := strings.ToLower(err.Error())

	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection lost",
		"connection timed out",
		"no connection",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"use of closed network connection",
		"unexpected eof",
		"handshake failed: eof",
		"channel closed",
		"session closed",
		"client is closed",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

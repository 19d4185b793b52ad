package session

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"

	"github.com/pkg/sftp"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// translate maps SFTP and transport errors onto the csvdelta taxonomy.
// The original error stays in the chain.
func translate(op, path string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, csvdelta.ErrNotFound) || errors.Is(err, csvdelta.ErrConnectivity) ||
		errors.Is(err, csvdelta.ErrAuthentication) {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}

	if isNotExist(err) {
		return fmt.Errorf("%s %s: %w: %w", op, path, csvdelta.ErrNotFound, err)
	}

	if isConnectionFailure(err) {
		return fmt.Errorf("%s %s: %w: %w", op, path, csvdelta.ErrConnectivity, err)
	}

	return fmt.Errorf("%s %s: %w", op, path, err)
}

func isNotExist(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var statusErr *sftp.StatusError
	return errors.As(err, &statusErr) && statusErr.Code == uint32(sftp.ErrSSHFxNoSuchFile)
}

func isConnectionFailure(err error) bool {
	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == uint32(sftp.ErrSSHFxConnectionLost) ||
			statusErr.Code == uint32(sftp.ErrSSHFxNoConnection)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, sftp.ErrSSHFxConnectionLost) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection lost") || strings.Contains(msg, "broken pipe")
}

// translateDial separates rejected credentials from everything else that can
// go wrong while dialing.
func translateDial(addr string, err error) error {
	if err == nil {
		return nil
	}
	if isAuthFailure(err) {
		return fmt.Errorf("connect %s: %w: %w", addr, csvdelta.ErrAuthentication, err)
	}
	return fmt.Errorf("connect %s: %w: %w", addr, csvdelta.ErrConnectivity, err)
}

func isAuthFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain")
}

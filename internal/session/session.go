// Package session implements csvdelta.Session over SSH using the SFTP subsystem.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

const keepaliveRequest = "keepalive@openssh.com"

// SFTPSession is one SSH connection with one SFTP channel.
//
// Thread-Safety: follows csvdelta.Session. IsAlive and Keepalive may be
// called while a stream is being read.
type SFTPSession struct {
	addr      string
	chunkSize int
	logger    csvdelta.Logger

	mu    sync.Mutex
	state csvdelta.SessionState
	ssh   *ssh.Client
	sftp  *sftp.Client

	// connDone is set once the SSH transport has terminated.
	connDone atomic.Bool
}

var _ csvdelta.Session = (*SFTPSession)(nil)

// Open dials params, authenticates with the password and starts the SFTP
// subsystem. Rejected credentials return csvdelta.ErrAuthentication; every
// other failure returns csvdelta.ErrConnectivity.
func Open(ctx context.Context, params csvdelta.ConnectionParameters, opts ...Option) (*SFTPSession, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	hostKey, err := o.resolveHostKeyCallback()
	if err != nil {
		return nil, err
	}

	s := &SFTPSession{
		addr:      params.Address(),
		chunkSize: o.chunkSize,
		logger:    o.logger,
		state:     csvdelta.StateConnecting,
	}

	o.logger.Verbose("Connecting to %s", params)

	dialer := net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		s.state = csvdelta.StateClosed
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, translateDial(s.addr, err)
	}

	// The handshake has no context of its own; bound it with a deadline
	deadline := time.Now().Add(o.dialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, s.addr, clientConfig(params, hostKey, o.dialTimeout))
	if err != nil {
		_ = conn.Close()
		s.state = csvdelta.StateClosed
		return nil, translateDial(s.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	s.ssh = ssh.NewClient(sshConn, chans, reqs)
	go func() {
		_ = s.ssh.Wait()
		s.connDone.Store(true)
	}()

	s.sftp, err = sftp.NewClient(s.ssh)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start sftp subsystem on %s: %w: %w", s.addr, csvdelta.ErrConnectivity, err)
	}

	s.mu.Lock()
	s.state = csvdelta.StateOpen
	s.mu.Unlock()

	o.logger.Verbose("Connected to %s", params)
	return s, nil
}

// Dialer returns a csvdelta.Dialer that opens a new SFTPSession per call.
func Dialer(params csvdelta.ConnectionParameters, opts ...Option) csvdelta.Dialer {
	return csvdelta.DialerFunc(func(ctx context.Context) (csvdelta.Session, error) {
		s, err := Open(ctx, params, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func (s *SFTPSession) State() csvdelta.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAlive never blocks on the network. It reports false once the session is
// closed or the SSH transport has terminated.
func (s *SFTPSession) IsAlive() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == csvdelta.StateOpen && s.ssh != nil && s.sftp != nil && !s.connDone.Load()
}

// Keepalive sends an OpenSSH keepalive global request. Servers that reject
// global requests are probed with a working-directory query instead.
func (s *SFTPSession) Keepalive(ctx context.Context) error {
	sshClient, sftpClient, err := s.clients()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		_, _, reqErr := sshClient.SendRequest(keepaliveRequest, true, nil)
		if reqErr == nil {
			errCh <- nil
			return
		}
		_, wdErr := sftpClient.Getwd()
		errCh <- wdErr
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return translate("keepalive", s.addr, err)
	}
}

func (s *SFTPSession) clients() (*ssh.Client, *sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != csvdelta.StateOpen || s.sftp == nil {
		return nil, nil, fmt.Errorf("session %s: %w: session closed", s.addr, csvdelta.ErrConnectivity)
	}
	return s.ssh, s.sftp, nil
}

func (s *SFTPSession) ListDirectory(ctx context.Context, dir string) ([]csvdelta.RemoteFileStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, client, err := s.clients()
	if err != nil {
		return nil, err
	}

	infos, err := client.ReadDir(dir)
	if err != nil {
		return nil, translate("list", dir, err)
	}

	out := make([]csvdelta.RemoteFileStat, 0, len(infos))
	for _, info := range infos {
		out = append(out, toStat(path.Join(dir, info.Name()), info))
	}
	return out, nil
}

func (s *SFTPSession) Stat(ctx context.Context, p string) (csvdelta.RemoteFileStat, error) {
	if err := ctx.Err(); err != nil {
		return csvdelta.RemoteFileStat{}, err
	}
	_, client, err := s.clients()
	if err != nil {
		return csvdelta.RemoteFileStat{}, err
	}

	info, err := client.Stat(p)
	if err != nil {
		return csvdelta.RemoteFileStat{}, translate("stat", p, err)
	}
	return toStat(p, info), nil
}

func (s *SFTPSession) OpenReadStream(ctx context.Context, p string) (csvdelta.ChunkReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, client, err := s.clients()
	if err != nil {
		return nil, err
	}

	f, err := client.Open(p)
	if err != nil {
		return nil, translate("open", p, err)
	}

	expected := int64(-1)
	if info, statErr := f.Stat(); statErr == nil {
		expected = info.Size()
	}

	return newChunkReader(f, p, s.chunkSize, expected), nil
}

// Close closes the SFTP client and then the SSH client. It is idempotent and
// safe on a session that never finished opening.
func (s *SFTPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == csvdelta.StateClosed && s.ssh == nil && s.sftp == nil {
		return nil
	}
	s.state = csvdelta.StateClosed

	var errs []error
	if s.sftp != nil {
		if err := s.sftp.Close(); err != nil && !isClosedError(err) {
			errs = append(errs, fmt.Errorf("close sftp: %w", err))
		}
		s.sftp = nil
	}
	if s.ssh != nil {
		if err := s.ssh.Close(); err != nil && !isClosedError(err) {
			errs = append(errs, fmt.Errorf("close ssh: %w", err))
		}
		s.ssh = nil
	}

	s.logger.Verbose("Closed session to %s", s.addr)
	return errors.Join(errs...)
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) || isConnectionFailure(err)
}

func toStat(p string, info os.FileInfo) csvdelta.RemoteFileStat {
	return csvdelta.RemoteFileStat{
		Path:  p,
		Name:  info.Name(),
		Size:  info.Size(),
		IsDir: info.IsDir(),
	}
}

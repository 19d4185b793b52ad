// Package resilient keeps one remote session usable across transient
// transport failures.
//
// Every remote call goes through Client.Do. Before an attempt, a missing or
// dead session is closed and replaced by a fresh one from the Dialer. After a
// transient failure the stale session is closed, and the retry executor waits
// out the backoff before the next attempt. Semantic failures (missing paths,
// rejected credentials) and cancellation are returned without retrying.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vvka-141/csvdelta/internal/logging"
	"github.com/vvka-141/csvdelta/internal/retry"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// Stats counts client activity over its lifetime.
type Stats struct {
	Dials             int64
	Reconnects        int64
	Retries           int64
	KeepaliveFailures int64
}

// Client owns at most one open session at a time.
// Calls are serialized; the mutex only guards the session handle.
type Client struct {
	dialer            csvdelta.Dialer
	classifier        csvdelta.ErrorClassifier
	executor          *retry.Executor
	logger            csvdelta.Logger
	keepaliveInterval time.Duration

	mu      sync.Mutex
	session csvdelta.Session

	dials             atomic.Int64
	reconnects        atomic.Int64
	retries           atomic.Int64
	keepaliveFailures atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for reconnect, retry and keepalive messages.
func WithLogger(l csvdelta.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithKeepaliveInterval sets how often keepalives are sent while a stream is
// being consumed. Zero disables them.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(c *Client) {
		c.keepaliveInterval = d
	}
}

// WithClassifier replaces the default SFTP error classifier.
func WithClassifier(classifier csvdelta.ErrorClassifier) Option {
	return func(c *Client) {
		if classifier != nil {
			c.classifier = classifier
		}
	}
}

// WithWait replaces the backoff sleep. Tests use it to avoid real delays.
func WithWait(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.executor = c.executor.WithWait(wait)
	}
}

// New creates a client that dials through dialer and retries per policy.
// No connection is made until Connect or the first operation.
func New(dialer csvdelta.Dialer, policy csvdelta.RetryPolicy, opts ...Option) *Client {
	if dialer == nil {
		panic("dialer cannot be nil")
	}

	c := &Client{
		dialer:            dialer,
		classifier:        retry.NewSFTPErrorClassifier(),
		logger:            logging.NewNullLogger(),
		keepaliveInterval: csvdelta.DefaultKeepaliveInterval,
	}
	c.executor = retry.NewExecutor(c.classifier, retry.FromPolicy(policy))

	for _, opt := range opts {
		opt(c)
	}
	// Rebuild so WithClassifier applies; keep any replaced wait function
	c.executor = c.executor.WithClassifier(c.classifier)
	return c
}

// Connect opens the session, retrying transient failures.
func (c *Client) Connect(ctx context.Context) error {
	return c.Do(ctx, "connect", func(context.Context, csvdelta.Session) error {
		return nil
	})
}

// Do runs op against a live session, reconnecting and retrying as needed.
// op must be safe to run from scratch on each attempt.
func (c *Client) Do(ctx context.Context, name string, op func(ctx context.Context, s csvdelta.Session) error) error {
	executor := c.executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		c.retries.Add(1)
		c.logger.Warn("%s failed (attempt %d/%d), retrying in %s: %v",
			name, attempt, c.executor.Strategy().MaxAttempts(), delay, err)
	})

	return executor.Execute(ctx, name, func(ctx context.Context) error {
		s, err := c.ensureSession(ctx)
		if err != nil {
			return err
		}

		err = op(ctx, s)
		if err == nil {
			return nil
		}

		// An interrupted read leaves the channel in an unknown state
		if ctx.Err() != nil || c.classifier.IsTransient(err) {
			c.dropSession(s)
		}
		return err
	})
}

// ensureSession returns the current session, replacing it if it is missing or dead.
func (c *Client) ensureSession(ctx context.Context) (csvdelta.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		if c.session.IsAlive() {
			return c.session, nil
		}
		c.logger.Verbose("Session is no longer alive, reconnecting")
		c.closeLocked()
		c.reconnects.Add(1)
	} else if c.dials.Load() > 0 {
		c.reconnects.Add(1)
	}

	c.dials.Add(1)
	s, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	c.session = s
	return s, nil
}

// dropSession closes s if it is still the current session.
func (c *Client) dropSession(s csvdelta.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		c.closeLocked()
	}
}

func (c *Client) closeLocked() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.logger.Verbose("Closing stale session: %v", err)
	}
	c.session = nil
}

// ListDirectory lists path with retries.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]csvdelta.RemoteFileStat, error) {
	var entries []csvdelta.RemoteFileStat
	err := c.Do(ctx, "list "+path, func(ctx context.Context, s csvdelta.Session) error {
		var err error
		entries, err = s.ListDirectory(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stat fetches fresh metadata for path with retries.
func (c *Client) Stat(ctx context.Context, path string) (csvdelta.RemoteFileStat, error) {
	var stat csvdelta.RemoteFileStat
	err := c.Do(ctx, "stat "+path, func(ctx context.Context, s csvdelta.Session) error {
		var err error
		stat, err = s.Stat(ctx, path)
		return err
	})
	return stat, err
}

// Stream opens path and hands the reader to consume. If the transfer fails
// transiently, the file is reopened on a fresh session and consume runs again
// from the first byte, so consume must reset any state it accumulates.
// Keepalives are sent on the session while consume runs. Cancelling ctx
// closes the session, abandoning any read in flight.
func (c *Client) Stream(ctx context.Context, path string, consume func(ctx context.Context, r csvdelta.ChunkReader) error) error {
	return c.Do(ctx, "stream "+path, func(ctx context.Context, s csvdelta.Session) error {
		r, err := s.OpenReadStream(ctx, path)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := r.Close(); cerr != nil {
				c.logger.Verbose("Closing %s: %v", path, cerr)
			}
		}()

		// A blocked read does not watch ctx; closing the session unblocks it
		stopDrop := context.AfterFunc(ctx, func() { c.dropSession(s) })
		defer stopDrop()

		stop := c.startKeepalive(ctx, s)
		defer stop()

		return consume(ctx, r)
	})
}

// startKeepalive pings s every keepaliveInterval until the returned stop is called.
// Failures are logged and counted; they never interrupt the caller.
func (c *Client) startKeepalive(ctx context.Context, s csvdelta.Session) (stop func()) {
	if c.keepaliveInterval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.keepaliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Keepalive(ctx); err != nil {
					if errors.Is(err, context.Canceled) && ctx.Err() != nil {
						return
					}
					c.keepaliveFailures.Add(1)
					c.logger.Warn("Keepalive failed: %v", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// Close releases the current session, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the activity counters.
func (c *Client) Stats() Stats {
	return Stats{
		Dials:             c.dials.Load(),
		Reconnects:        c.reconnects.Load(),
		Retries:           c.retries.Load(),
		KeepaliveFailures: c.keepaliveFailures.Load(),
	}
}

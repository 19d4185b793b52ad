// Package memstore provides an in-memory csvdelta.Session implementation
// with fault injection. Tests use it in place of a real SFTP server.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// DefaultChunkSize is small so tests cross chunk boundaries with short content.
const DefaultChunkSize = 4

// errConnectionLost is what injected transport faults look like to callers.
var errConnectionLost = fmt.Errorf("%w: connection lost", csvdelta.ErrConnectivity)

type node struct {
	name     string
	isDir    bool
	content  []byte
	children []string // insertion order, used as listing order
}

// fault fails the next `remaining` matching calls with err.
type fault struct {
	remaining int
	err       error
}

func (f *fault) take() error {
	if f == nil || f.remaining <= 0 {
		return nil
	}
	f.remaining--
	return f.err
}

// streamFault breaks the next `remaining` streams of a path after `after` chunks.
type streamFault struct {
	remaining int
	after     int
}

// Stats counts what happened against the store.
type Stats struct {
	Dials         int
	Closes        int
	OpenSessions  int
	OpenHandles   int
	StreamsOpened int
	Keepalives    int
}

// Store is a directory tree shared by every session it dials.
// Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	nodes     map[string]*node
	chunkSize int

	dialFault      *fault
	keepaliveFault *fault
	statFaults     map[string]*fault
	listFaults     map[string]*fault
	streamFaults   map[string]*streamFault

	sessions []*Session
	stats    Stats
}

// New creates an empty store whose root directory is ".".
func New() *Store {
	return &Store{
		nodes: map[string]*node{
			".": {name: ".", isDir: true},
		},
		chunkSize:    DefaultChunkSize,
		statFaults:   make(map[string]*fault),
		listFaults:   make(map[string]*fault),
		streamFaults: make(map[string]*streamFault),
	}
}

func clean(p string) string {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	if p == "" {
		return "."
	}
	return p
}

// SetChunkSize changes the maximum chunk size handed out by streams.
func (s *Store) SetChunkSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.chunkSize = n
	}
}

// AddDir creates a directory and any missing parents.
func (s *Store) AddDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDir(clean(p))
}

func (s *Store) ensureDir(p string) *node {
	if n, ok := s.nodes[p]; ok {
		return n
	}
	parent := s.ensureDir(path.Dir(p))
	n := &node{name: path.Base(p), isDir: true}
	s.nodes[p] = n
	parent.children = append(parent.children, n.name)
	return n
}

// AddFile creates or replaces a file, creating parent directories as needed.
// New files are appended to their directory listing.
func (s *Store) AddFile(p, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	if existing, ok := s.nodes[p]; ok && !existing.isDir {
		existing.content = []byte(content)
		return
	}
	parent := s.ensureDir(path.Dir(p))
	s.nodes[p] = &node{name: path.Base(p), content: []byte(content)}
	parent.children = append(parent.children, path.Base(p))
}

// Remove deletes a file or an empty directory.
func (s *Store) Remove(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	if _, ok := s.nodes[p]; !ok {
		return
	}
	delete(s.nodes, p)
	if parent, ok := s.nodes[path.Dir(p)]; ok {
		name := path.Base(p)
		for i, child := range parent.children {
			if child == name {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
	}
}

// FailDials makes the next n dials fail with err.
func (s *Store) FailDials(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialFault = &fault{remaining: n, err: err}
}

// FailStats makes the next n stats of p fail with err.
func (s *Store) FailStats(p string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statFaults[clean(p)] = &fault{remaining: n, err: err}
}

// FailLists makes the next n listings of p fail with err.
func (s *Store) FailLists(p string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listFaults[clean(p)] = &fault{remaining: n, err: err}
}

// FailKeepalives makes the next n keepalives fail.
func (s *Store) FailKeepalives(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepaliveFault = &fault{remaining: n, err: errConnectionLost}
}

// BreakStreams drops the connection of the next n streams of p after they
// have delivered `after` chunks. The broken session reports not alive.
func (s *Store) BreakStreams(p string, n, after int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamFaults[clean(p)] = &streamFault{remaining: n, after: after}
}

// DropConnections marks every open session as dead, as if the server
// silently went away.
func (s *Store) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.alive = false
	}
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Dial opens a new session against the store. Store implements csvdelta.Dialer.
func (s *Store) Dial(ctx context.Context) (csvdelta.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Dials++
	if err := s.dialFault.take(); err != nil {
		return nil, err
	}

	sess := &Session{store: s, state: csvdelta.StateOpen, alive: true}
	s.sessions = append(s.sessions, sess)
	s.stats.OpenSessions++
	return sess, nil
}

// Session is one connection to a Store.
type Session struct {
	store *Store
	state csvdelta.SessionState
	alive bool
}

var _ csvdelta.Session = (*Session)(nil)

// usable must be called with the store lock held.
func (m *Session) usable() error {
	if m.state != csvdelta.StateOpen {
		return fmt.Errorf("%w: session closed", csvdelta.ErrConnectivity)
	}
	if !m.alive {
		return errConnectionLost
	}
	return nil
}

func (m *Session) State() csvdelta.SessionState {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.state
}

func (m *Session) IsAlive() bool {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.state == csvdelta.StateOpen && m.alive
}

func (m *Session) Keepalive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	m.store.stats.Keepalives++
	if err := m.usable(); err != nil {
		return err
	}
	return m.store.keepaliveFault.take()
}

func (m *Session) ListDirectory(ctx context.Context, p string) ([]csvdelta.RemoteFileStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if err := m.usable(); err != nil {
		return nil, err
	}
	p = clean(p)
	if err := m.store.listFaults[p].take(); err != nil {
		return nil, err
	}

	dir, ok := m.store.nodes[p]
	if !ok {
		return nil, fmt.Errorf("list %s: %w", p, csvdelta.ErrNotFound)
	}
	if !dir.isDir {
		return nil, fmt.Errorf("list %s: not a directory", p)
	}

	out := make([]csvdelta.RemoteFileStat, 0, len(dir.children))
	for _, name := range dir.children {
		out = append(out, m.store.statLocked(path.Join(p, name)))
	}
	return out, nil
}

func (s *Store) statLocked(p string) csvdelta.RemoteFileStat {
	n := s.nodes[p]
	return csvdelta.RemoteFileStat{
		Path:  p,
		Name:  n.name,
		Size:  int64(len(n.content)),
		IsDir: n.isDir,
	}
}

func (m *Session) Stat(ctx context.Context, p string) (csvdelta.RemoteFileStat, error) {
	if err := ctx.Err(); err != nil {
		return csvdelta.RemoteFileStat{}, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if err := m.usable(); err != nil {
		return csvdelta.RemoteFileStat{}, err
	}
	p = clean(p)
	if err := m.store.statFaults[p].take(); err != nil {
		return csvdelta.RemoteFileStat{}, err
	}
	if _, ok := m.store.nodes[p]; !ok {
		return csvdelta.RemoteFileStat{}, fmt.Errorf("stat %s: %w", p, csvdelta.ErrNotFound)
	}
	return m.store.statLocked(p), nil
}

func (m *Session) OpenReadStream(ctx context.Context, p string) (csvdelta.ChunkReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if err := m.usable(); err != nil {
		return nil, err
	}
	p = clean(p)
	n, ok := m.store.nodes[p]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, csvdelta.ErrNotFound)
	}
	if n.isDir {
		return nil, fmt.Errorf("open %s: is a directory", p)
	}

	r := &chunkReader{
		session:   m,
		content:   n.content,
		chunkSize: m.store.chunkSize,
		breakAt:   -1,
	}
	if f := m.store.streamFaults[p]; f != nil && f.remaining > 0 {
		f.remaining--
		r.breakAt = f.after
	}

	m.store.stats.StreamsOpened++
	m.store.stats.OpenHandles++
	return r, nil
}

// Close is idempotent.
func (m *Session) Close() error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if m.state == csvdelta.StateClosed {
		return nil
	}
	m.state = csvdelta.StateClosed
	m.alive = false
	m.store.stats.Closes++
	m.store.stats.OpenSessions--
	return nil
}

type chunkReader struct {
	session   *Session
	content   []byte
	offset    int
	chunkSize int
	delivered int
	breakAt   int // -1 means never
	closed    bool
}

func (r *chunkReader) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store := r.session.store
	store.mu.Lock()
	defer store.mu.Unlock()

	if r.closed {
		return nil, errors.New("read on closed stream")
	}
	if err := r.session.usable(); err != nil {
		return nil, err
	}
	if r.breakAt >= 0 && r.delivered >= r.breakAt {
		r.session.alive = false
		return nil, fmt.Errorf("read chunk: %w", errConnectionLost)
	}
	if r.offset >= len(r.content) {
		return nil, io.EOF
	}

	end := r.offset + r.chunkSize
	if end > len(r.content) {
		end = len(r.content)
	}
	chunk := r.content[r.offset:end]
	r.offset = end
	r.delivered++
	return chunk, nil
}

func (r *chunkReader) Close() error {
	store := r.session.store
	store.mu.Lock()
	defer store.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	store.stats.OpenHandles--
	return nil
}

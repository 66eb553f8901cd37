// Package conncache gives each worker its own set of backend connections,
// rebuilt only when the shared cluster view advances, so the hot request
// path never synchronizes across workers. A WorkerConn is an explicit
// per-goroutine handle obtained via Cache.ForWorker, reclaimed by the
// garbage collector when the caller drops it, with Close exposed for
// eager teardown.
package conncache

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/vshard/pkg/backend"
	"github.com/cuemby/vshard/pkg/view"
)

// ErrNoView is returned when a worker asks for replicas before any view
// has been installed.
var ErrNoView = errors.New("conncache: no view installed")

// DialFunc connects to a single backend server address with the given
// timeout. Production code passes backend.DialTCP; tests pass a fake.
type DialFunc func(addr string, timeout time.Duration) (backend.Conn, error)

// Config controls connect-timeout policy.
type Config struct {
	// DialTimeout bounds connection attempts to ordinary (local) servers.
	DialTimeout time.Duration
	// RequestTimeout is exposed through Cache.RequestTimeout. Neither
	// conncache nor pkg/replicated applies it to backend calls; those are
	// bounded only by the deadline of the caller's context.
	RequestTimeout time.Duration
	// RemoteSiteTimeout, if non-zero, replaces DialTimeout for any
	// server address present in RemoteServers, so cross-site servers can
	// be given a looser budget than local ones.
	RemoteSiteTimeout time.Duration
	// RemoteServers marks addresses as remote-site for timeout purposes.
	RemoteServers map[string]bool
}

// DefaultConfig returns conservative local-store connect latencies.
func DefaultConfig() Config {
	return Config{
		DialTimeout:       50 * time.Millisecond,
		RequestTimeout:    250 * time.Millisecond,
		RemoteSiteTimeout: 250 * time.Millisecond,
		RemoteServers:     map[string]bool{},
	}
}

// Cache holds the single shared view that every worker rebuilds against.
// Install is called once per new view (by the config Updater, or once by a
// one-shot CLI client); workers only ever read via ForWorker's handles, so
// the lock is taken for writing far less often than it's taken for
// reading.
type Cache struct {
	cfg  Config
	dial DialFunc
	log  zerolog.Logger

	mu sync.RWMutex
	v  *view.View
}

// NewCache creates a Cache with no view installed yet; ForWorker calls
// will fail with ErrNoView until the first Install.
func NewCache(cfg Config, dial DialFunc, log zerolog.Logger) *Cache {
	if cfg.RemoteServers == nil {
		cfg.RemoteServers = map[string]bool{}
	}
	return &Cache{
		cfg:  cfg,
		dial: dial,
		log:  log.With().Str("component", "conncache").Logger(),
	}
}

// Install publishes a new view. Workers observe it on their next
// operation; in-flight operations against the prior view are unaffected.
func (c *Cache) Install(v *view.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}

func (c *Cache) currentView() *view.View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// RequestTimeout exposes the configured per-attempt backend timeout.
func (c *Cache) RequestTimeout() time.Duration {
	return c.cfg.RequestTimeout
}

// ForWorker returns a new per-worker connection handle. id is used only
// for logging; if empty, a random one is generated.
func (c *Cache) ForWorker(id string) *WorkerConn {
	if id == "" {
		id = uuid.NewString()
	}
	return &WorkerConn{
		id:    id,
		cache: c,
		conns: make(map[string]backend.Conn),
	}
}

// WorkerConn is a worker's private table of backend connections, rebuilt
// whenever the cache's view number advances past the one this handle last
// saw.
type WorkerConn struct {
	id    string
	cache *Cache

	viewNumber uint64
	conns      map[string]backend.Conn
}

// refresh rebuilds the connection table if the cache's view has advanced,
// dereferencing server identities into live connections.
func (w *WorkerConn) refresh() (*view.View, error) {
	v := w.cache.currentView()
	if v == nil {
		return nil, ErrNoView
	}
	if v.ViewNumber == w.viewNumber && len(w.conns) > 0 {
		return v, nil
	}

	for _, c := range w.conns {
		_ = c.Close()
	}

	next := make(map[string]backend.Conn, len(v.Servers))
	for _, addr := range v.Servers {
		timeout := w.cache.cfg.DialTimeout
		if w.cache.cfg.RemoteServers[addr] && w.cache.cfg.RemoteSiteTimeout != 0 {
			timeout = w.cache.cfg.RemoteSiteTimeout
		}
		conn, err := w.cache.dial(addr, timeout)
		if err != nil {
			w.cache.log.Warn().Str("server", addr).Err(err).Msg("failed to connect to backend server")
			continue
		}
		next[addr] = conn
	}

	w.conns = next
	w.viewNumber = v.ViewNumber
	return v, nil
}

// ReadReplicas returns the live connections for vbucket's read replica
// list, in order, alongside their server addresses. A nil entry marks a
// replica this worker could not connect to; callers treat that the same
// as a connection failure on first use.
func (w *WorkerConn) ReadReplicas(vbucket int) ([]backend.Conn, []string, error) {
	v, err := w.refresh()
	if err != nil {
		return nil, nil, err
	}
	addrs := v.ReadReplicas(vbucket)
	return w.resolve(addrs), addrs, nil
}

// WriteReplicas returns the live connections for vbucket's write replica
// list, in order, alongside their server addresses.
func (w *WorkerConn) WriteReplicas(vbucket int) ([]backend.Conn, []string, error) {
	v, err := w.refresh()
	if err != nil {
		return nil, nil, err
	}
	addrs := v.WriteReplicas(vbucket)
	return w.resolve(addrs), addrs, nil
}

func (w *WorkerConn) resolve(addrs []string) []backend.Conn {
	conns := make([]backend.Conn, len(addrs))
	for i, a := range addrs {
		conns[i] = w.conns[a]
	}
	return conns
}

// Close tears down every connection this worker currently holds.
func (w *WorkerConn) Close() error {
	var firstErr error
	for _, c := range w.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.conns = make(map[string]backend.Conn)
	return firstErr
}

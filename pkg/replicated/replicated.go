// Package replicated implements the replicated key/value client: the
// add-overwrite-tombstone write loop, the single-replica-retry-twice
// rule, CAS-forcing on an earlier miss, and tombstone-aware deletes, all
// fanned out across the read/write replica sets a conncache.Cache
// resolves per vbucket.
package replicated

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/vshard/pkg/backend"
	"github.com/cuemby/vshard/pkg/commmonitor"
	"github.com/cuemby/vshard/pkg/conncache"
	"github.com/cuemby/vshard/pkg/stats"
	"github.com/cuemby/vshard/pkg/store"
	"github.com/cuemby/vshard/pkg/view"
)

// Config controls client-wide behavior shared by every worker.
type Config struct {
	// Vbuckets is the number of vbuckets keys are sharded across; must
	// match the value the installed view was built with.
	Vbuckets int
	// TombstoneLifetime is the expiry, in seconds, applied to a
	// tombstone written by Delete. Zero means delete records outright
	// instead of writing a tombstone.
	TombstoneLifetime int
}

// Client is the topology-aware replicated client: it resolves replicas
// from a shared cluster view via a connection cache and speaks the
// backend wire protocol directly to each one.
type Client struct {
	cache   *conncache.Cache
	monitor *commmonitor.Monitor
	stats   *stats.Engine
	cfg     Config
	log     zerolog.Logger

	ops     *stats.CounterTable
	latency *stats.AccumulatorTable
}

// NewClient creates a topology-aware Client. statsEngine may be nil to
// disable metrics collection.
func NewClient(cache *conncache.Cache, monitor *commmonitor.Monitor, statsEngine *stats.Engine, cfg Config, log zerolog.Logger) *Client {
	c := &Client{
		cache:   cache,
		monitor: monitor,
		stats:   statsEngine,
		cfg:     cfg,
		log:     log.With().Str("component", "replicated").Logger(),
	}
	if statsEngine != nil {
		c.ops = statsEngine.CounterTable("replicated_client_ops", true)
		c.latency = statsEngine.AccumulatorTable("replicated_client_latency_us", true)
	}
	return c
}

// ForWorker returns a per-worker handle backed by its own connection
// table; see pkg/conncache for the rebuild-on-view-change semantics.
func (c *Client) ForWorker(id string) *Worker {
	return &Worker{client: c, conn: c.cache.ForWorker(id)}
}

func (c *Client) recordOp(op, outcome string, start time.Time) {
	if c.stats == nil {
		return
	}
	if row, ok := c.ops.Row(op + ":" + outcome); ok {
		row.Increment()
	}
	if row, ok := c.latency.Row(op); ok {
		row.Accumulate(uint64(time.Since(start).Microseconds()))
	}
}

// Worker performs Get/Set/Delete using its own connection table. It
// satisfies store.Store so application code can use it interchangeably
// with store.LocalStore.
type Worker struct {
	client *Client
	conn   *conncache.WorkerConn
}

var _ store.Store = (*Worker)(nil)

func (w *Worker) vbucketFor(fqkey string) int {
	return view.VBucketForKey(fqkey, w.client.cfg.Vbuckets)
}

// Get fetches the record at (table, key). It walks the read replica
// list, stopping at the first replica that returns data. A miss on an
// earlier replica followed by a hit on a later one forces the returned
// CAS to zero, so a subsequent Set targets the earlier, out-of-date
// replica rather than failing spuriously against it.
func (w *Worker) Get(ctx context.Context, table, key string) (store.Outcome, error) {
	start := time.Now()
	fqkey, err := store.NewKey(table, key)
	if err != nil {
		return store.Outcome{Status: store.StatusError}, err
	}
	vb := w.vbucketFor(fqkey)

	conns, _, err := w.conn.ReadReplicas(vb)
	if err != nil {
		w.client.monitor.ReportFailure()
		w.client.recordOp("get", "error", start)
		return store.Outcome{Status: store.StatusError}, err
	}

	attempts := len(conns)
	if attempts == 1 {
		attempts = 2
	}

	var (
		result         backend.Result
		lastStatus     = backend.StatusConnectionFailure
		found          bool
		sawNotFound    bool
		activeNotFound bool
	)

	for ii := 0; ii < attempts; ii++ {
		idx := ii
		if len(conns) == 1 && ii == 1 {
			if lastStatus != backend.StatusConnectionFailure {
				break
			}
			idx = 0
			w.client.log.Warn().Str("key", fqkey).Msg("failed to read from sole replica: retrying once")
		}

		conn := conns[idx]
		if conn == nil {
			lastStatus = backend.StatusConnectionFailure
			continue
		}

		r, err := conn.GetCas(ctx, uint16(vb), fqkey)
		if err != nil {
			lastStatus = backend.StatusConnectionFailure
			continue
		}
		lastStatus = r.Status

		switch r.Status {
		case backend.StatusStored:
			result = r
			found = true
		case backend.StatusNotFound:
			sawNotFound = true
			activeNotFound = true
			continue
		default:
			continue
		}
		break
	}

	if found {
		w.client.monitor.ReportSuccess()
		if store.IsTombstone(result.Data) {
			w.client.recordOp("get", "not_found", start)
			return store.Outcome{Status: store.StatusNotFound}, nil
		}
		cas := result.CAS
		if activeNotFound {
			cas = 0
		}
		w.client.recordOp("get", "ok", start)
		return store.Outcome{Status: store.StatusOK, Data: result.Data, CAS: cas}, nil
	}

	if sawNotFound {
		w.client.monitor.ReportSuccess()
		w.client.recordOp("get", "not_found", start)
		return store.Outcome{Status: store.StatusNotFound}, nil
	}

	w.client.monitor.ReportFailure()
	w.client.recordOp("get", "error", start)
	return store.Outcome{Status: store.StatusError}, nil
}

// Set writes data at (table, key). cas == 0 adds the record, overwriting
// any tombstone found in its place; a non-zero cas performs a
// compare-and-swap. On success, the write is fanned out best-effort
// (no-reply) to the remaining write replicas.
func (w *Worker) Set(ctx context.Context, table, key string, data []byte, cas uint64, expirySeconds int) (store.Outcome, error) {
	start := time.Now()
	fqkey, err := store.NewKey(table, key)
	if err != nil {
		return store.Outcome{Status: store.StatusError}, err
	}
	vb := w.vbucketFor(fqkey)

	conns, _, err := w.conn.WriteReplicas(vb)
	if err != nil {
		w.client.monitor.ReportFailure()
		w.client.recordOp("set", "error", start)
		return store.Outcome{Status: store.StatusError}, err
	}

	flags := flagsNow()
	expiry := backend.ExpirySeconds(expirySeconds)

	attempts := len(conns)
	if attempts == 1 {
		attempts = 2
	}

	status := store.StatusError
	successIdx := -1
	lastStatus := backend.StatusConnectionFailure

	for ii := 0; ii < attempts; ii++ {
		idx := ii
		if len(conns) == 1 && ii == 1 {
			if lastStatus != backend.StatusConnectionFailure {
				break
			}
			idx = 0
			w.client.log.Warn().Str("key", fqkey).Msg("failed to write to sole replica: retrying once")
		}

		conn := conns[idx]
		if conn == nil {
			lastStatus = backend.StatusConnectionFailure
			continue
		}

		var r backend.Result
		if cas == 0 {
			r, err = addOverwritingTombstone(ctx, conn, uint16(vb), fqkey, data, flags, expiry)
		} else {
			r, err = conn.Cas(ctx, uint16(vb), fqkey, data, flags, expiry, cas)
		}
		if err != nil {
			lastStatus = backend.StatusConnectionFailure
			continue
		}
		lastStatus = r.Status

		switch r.Status {
		case backend.StatusStored:
			status = store.StatusOK
			successIdx = idx
		case backend.StatusNotStored, backend.StatusExists:
			status = store.StatusDataContention
		default:
			continue
		}
		break
	}

	switch status {
	case store.StatusOK:
		for jj := successIdx + 1; jj < len(conns); jj++ {
			if conns[jj] == nil {
				continue
			}
			_, _ = conns[jj].Set(ctx, uint16(vb), fqkey, data, flags, expiry, true)
		}
		w.client.monitor.ReportSuccess()
		w.client.recordOp("set", "ok", start)
		return store.Outcome{Status: store.StatusOK}, nil
	case store.StatusDataContention:
		w.client.monitor.ReportSuccess()
		w.client.recordOp("set", "contention", start)
		return store.Outcome{Status: store.StatusDataContention}, nil
	default:
		w.client.monitor.ReportFailure()
		w.client.recordOp("set", "error", start)
		return store.Outcome{Status: store.StatusError}, nil
	}
}

// addOverwritingTombstone attempts an unconditional add, falling back to
// a CAS loop whenever the add is blocked by an existing record that
// turns out to be a tombstone (or has expired out from under us),
// retrying until it either wins or finds real, live data blocking it.
func addOverwritingTombstone(ctx context.Context, conn backend.Conn, vbucket uint16, key string, data []byte, flags, expiry uint32) (backend.Result, error) {
	var cas uint64

	for {
		var (
			result backend.Result
			err    error
		)
		if cas == 0 {
			result, err = conn.Add(ctx, vbucket, key, data, flags, expiry)
		} else {
			result, err = conn.Cas(ctx, vbucket, key, data, flags, expiry, cas)
		}
		if err != nil {
			return result, err
		}

		if result.Status != backend.StatusExists && result.Status != backend.StatusNotStored {
			return result, nil
		}

		existing, err := conn.GetCas(ctx, vbucket, key)
		if err != nil {
			return result, nil
		}

		switch existing.Status {
		case backend.StatusStored:
			if !store.IsTombstone(existing.Data) {
				return result, nil
			}
			cas = existing.CAS
		case backend.StatusNotFound:
			cas = 0
		default:
			return result, nil
		}
	}
}

// Delete removes the record at (table, key): it writes a tombstone with
// the configured lifetime if tombstoning is enabled, or issues a direct
// delete otherwise, to every read replica (a superset of the write
// replicas). Partial or total replica unreachability is logged, but the
// call still reports OK: the caller issued an unconditional delete and
// has nothing useful to retry against, so there is no outcome other
// than OK worth surfacing to it.
func (w *Worker) Delete(ctx context.Context, table, key string) (store.Outcome, error) {
	start := time.Now()
	fqkey, err := store.NewKey(table, key)
	if err != nil {
		return store.Outcome{Status: store.StatusError}, err
	}
	vb := w.vbucketFor(fqkey)

	conns, addrs, err := w.conn.ReadReplicas(vb)
	if err != nil {
		w.client.recordOp("delete", "error", start)
		return store.Outcome{Status: store.StatusError}, err
	}

	flags := flagsNow()
	reachable := 0
	for i, conn := range conns {
		if conn == nil {
			continue
		}

		var (
			result backend.Result
			err    error
		)
		if w.client.cfg.TombstoneLifetime == 0 {
			result, err = conn.Delete(ctx, uint16(vb), fqkey)
		} else {
			result, err = conn.Set(ctx, uint16(vb), fqkey, store.TombstoneValue, flags, uint32(w.client.cfg.TombstoneLifetime), false)
		}
		if err != nil || result.Status == backend.StatusConnectionFailure {
			w.client.log.Warn().Str("key", fqkey).Str("server", addrs[i]).Msg("delete failed against replica")
			continue
		}
		reachable++
	}

	if reachable == 0 && len(conns) > 0 {
		w.client.log.Warn().Str("key", fqkey).Msg("delete reached no replica, returning OK regardless")
	}

	w.client.recordOp("delete", "ok", start)
	return store.Outcome{Status: store.StatusOK}, nil
}

// flagsNow packs the low 32 bits of the current time in milliseconds
// into the flags field, used by the external cache fleet to resolve
// conflicts when resynchronizing servers out of band.
func flagsNow() uint32 {
	return uint32(time.Now().UnixMilli())
}

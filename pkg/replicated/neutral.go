package replicated

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/vshard/pkg/backend"
	"github.com/cuemby/vshard/pkg/commmonitor"
	"github.com/cuemby/vshard/pkg/resolver"
	"github.com/cuemby/vshard/pkg/stats"
	"github.com/cuemby/vshard/pkg/store"
	"github.com/cuemby/vshard/pkg/view"
)

// NeutralClient is the topology-neutral replicated client: rather than
// owning a cluster view, it resolves a small number of dial targets per
// call from an external name resolver and relies on the target service
// to replicate internally. There is no fan-out write here: each call
// walks the resolved target list trying one at a time, the same
// failover behavior Client applies per replica, without Client's
// multi-replica write propagation (the target service already owns
// that).
type NeutralClient struct {
	resolver resolver.Resolver
	domain   string
	dial     func(addr string, timeout time.Duration) (backend.Conn, error)
	timeout  time.Duration
	monitor  *commmonitor.Monitor
	stats    *stats.Engine
	cfg      Config
	log      zerolog.Logger

	ops     *stats.CounterTable
	latency *stats.AccumulatorTable
}

var _ store.Store = (*NeutralClient)(nil)

// NewNeutralClient creates a topology-neutral client resolving domain
// via r and dialing targets with dial, bounding each connection attempt
// by timeout.
func NewNeutralClient(r resolver.Resolver, domain string, dial func(addr string, timeout time.Duration) (backend.Conn, error), timeout time.Duration, monitor *commmonitor.Monitor, statsEngine *stats.Engine, cfg Config, log zerolog.Logger) *NeutralClient {
	c := &NeutralClient{
		resolver: r,
		domain:   domain,
		dial:     dial,
		timeout:  timeout,
		monitor:  monitor,
		stats:    statsEngine,
		cfg:      cfg,
		log:      log.With().Str("component", "replicated_neutral").Logger(),
	}
	if statsEngine != nil {
		c.ops = statsEngine.CounterTable("replicated_neutral_ops", true)
		c.latency = statsEngine.AccumulatorTable("replicated_neutral_latency_us", true)
	}
	return c
}

func (c *NeutralClient) recordOp(op, outcome string, start time.Time) {
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

func (c *NeutralClient) targets(ctx context.Context) ([]string, error) {
	return c.resolver.Targets(ctx, c.domain)
}

// Get fetches the record at (table, key), trying each resolved target in
// turn until one returns data or a definitive miss.
func (c *NeutralClient) Get(ctx context.Context, table, key string) (store.Outcome, error) {
	start := time.Now()
	fqkey, err := store.NewKey(table, key)
	if err != nil {
		return store.Outcome{Status: store.StatusError}, err
	}
	vb := view.VBucketForKey(fqkey, c.cfg.Vbuckets)

	targets, err := c.targets(ctx)
	if err != nil {
		c.monitor.ReportFailure()
		c.recordOp("get", "error", start)
		return store.Outcome{Status: store.StatusError}, err
	}

	var result backend.Result
	lastStatus := backend.StatusConnectionFailure

	for _, addr := range targets {
		conn, dialErr := c.dial(addr, c.timeout)
		if dialErr != nil {
			lastStatus = backend.StatusConnectionFailure
			continue
		}
		r, callErr := conn.GetCas(ctx, uint16(vb), fqkey)
		_ = conn.Close()
		if callErr != nil {
			lastStatus = backend.StatusConnectionFailure
			continue
		}
		result = r
		lastStatus = r.Status
		if lastStatus == backend.StatusStored || lastStatus == backend.StatusNotFound {
			break
		}
	}

	switch lastStatus {
	case backend.StatusStored:
		c.monitor.ReportSuccess()
		if store.IsTombstone(result.Data) {
			c.recordOp("get", "not_found", start)
			return store.Outcome{Status: store.StatusNotFound}, nil
		}
		c.recordOp("get", "ok", start)
		return store.Outcome{Status: store.StatusOK, Data: result.Data, CAS: result.CAS}, nil
	case backend.StatusNotFound:
		c.monitor.ReportSuccess()
		c.recordOp("get", "not_found", start)
		return store.Outcome{Status: store.StatusNotFound}, nil
	default:
		c.monitor.ReportFailure()
		c.recordOp("get", "error", start)
		return store.Outcome{Status: store.StatusError}, nil
	}
}

// Set writes data at (table, key) to the first reachable resolved
// target, using the same add-overwrite-tombstone/CAS rule as Client.
func (c *NeutralClient) Set(ctx context.Context, table, key string, data []byte, cas uint64, expirySeconds int) (store.Outcome, error) {
	start := time.Now()
	fqkey, err := store.NewKey(table, key)
	if err != nil {
		return store.Outcome{Status: store.StatusError}, err
	}
	vb := view.VBucketForKey(fqkey, c.cfg.Vbuckets)

	targets, err := c.targets(ctx)
	if err != nil {
		c.monitor.ReportFailure()
		c.recordOp("set", "error", start)
		return store.Outcome{Status: store.StatusError}, err
	}

	flags := flagsNow()
	expiry := backend.ExpirySeconds(expirySeconds)

	for _, addr := range targets {
		conn, dialErr := c.dial(addr, c.timeout)
		if dialErr != nil {
			continue
		}

		var r backend.Result
		if cas == 0 {
			r, err = addOverwritingTombstone(ctx, conn, uint16(vb), fqkey, data, flags, expiry)
		} else {
			r, err = conn.Cas(ctx, uint16(vb), fqkey, data, flags, expiry, cas)
		}
		_ = conn.Close()
		if err != nil {
			continue
		}

		switch r.Status {
		case backend.StatusStored:
			c.monitor.ReportSuccess()
			c.recordOp("set", "ok", start)
			return store.Outcome{Status: store.StatusOK}, nil
		case backend.StatusNotStored, backend.StatusExists:
			c.monitor.ReportSuccess()
			c.recordOp("set", "contention", start)
			return store.Outcome{Status: store.StatusDataContention}, nil
		}
	}

	c.monitor.ReportFailure()
	c.recordOp("set", "error", start)
	return store.Outcome{Status: store.StatusError}, nil
}

// Delete removes the record at (table, key) from every resolved target.
// Partial or total target unreachability is logged, but the call still
// reports OK: the delete was issued unconditionally and the caller has
// nothing useful to retry against.
func (c *NeutralClient) Delete(ctx context.Context, table, key string) (store.Outcome, error) {
	start := time.Now()
	fqkey, err := store.NewKey(table, key)
	if err != nil {
		return store.Outcome{Status: store.StatusError}, err
	}
	vb := view.VBucketForKey(fqkey, c.cfg.Vbuckets)

	targets, err := c.targets(ctx)
	if err != nil {
		c.recordOp("delete", "error", start)
		return store.Outcome{Status: store.StatusError}, err
	}

	flags := flagsNow()
	reachable := 0
	for _, addr := range targets {
		conn, dialErr := c.dial(addr, c.timeout)
		if dialErr != nil {
			c.log.Warn().Str("key", fqkey).Str("target", addr).Err(dialErr).Msg("delete failed to dial target")
			continue
		}

		var result backend.Result
		if c.cfg.TombstoneLifetime == 0 {
			result, err = conn.Delete(ctx, uint16(vb), fqkey)
		} else {
			result, err = conn.Set(ctx, uint16(vb), fqkey, store.TombstoneValue, flags, uint32(c.cfg.TombstoneLifetime), false)
		}
		_ = conn.Close()
		if err != nil || result.Status == backend.StatusConnectionFailure {
			c.log.Warn().Str("key", fqkey).Str("target", addr).Msg("delete failed against target")
			continue
		}
		reachable++
	}

	if reachable == 0 && len(targets) > 0 {
		c.log.Warn().Str("key", fqkey).Msg("delete reached no target, returning OK regardless")
	}

	c.recordOp("delete", "ok", start)
	return store.Outcome{Status: store.StatusOK}, nil
}

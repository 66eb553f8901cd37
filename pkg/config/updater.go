package config

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cuemby/vshard/pkg/metrics"
	"github.com/cuemby/vshard/pkg/view"
)

// Target receives a freshly built cluster view whenever the membership
// file is reloaded. *conncache.Cache satisfies this.
type Target interface {
	Install(v *view.View)
}

// UpdaterConfig controls how a loaded Config is turned into a view.
type UpdaterConfig struct {
	Replicas int
	Vbuckets int
}

// Updater loads a membership file once at startup and again every time
// its signal waiter fires, installing the resulting view into Target.
// A single goroutine reads from a channel and is stopped by closing
// stopCh, rather than one thread per watched function.
type Updater struct {
	reader *Reader
	target Target
	cfg    UpdaterConfig
	waiter chan struct{}
	log    zerolog.Logger

	viewNumber uint64
	stopCh     chan struct{}

	mu           sync.Mutex
	latestView   *view.View
	latestConfig Config
}

// NewUpdater creates an Updater. waiter is typically a SignalDispatcher's
// Waiter() channel; tests can pass their own channel to trigger reloads
// without touching process signals.
func NewUpdater(reader *Reader, target Target, cfg UpdaterConfig, waiter chan struct{}, log zerolog.Logger) *Updater {
	return &Updater{
		reader: reader,
		target: target,
		cfg:    cfg,
		waiter: waiter,
		log:    log.With().Str("component", "config").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start loads the configuration once immediately, then spawns the
// reload loop. A failure on this initial load is returned directly
// rather than only logged, since there is no previous view to fall
// back to.
func (u *Updater) Start() error {
	if err := u.reload(); err != nil {
		return err
	}
	go u.run()
	return nil
}

func (u *Updater) run() {
	for {
		select {
		case <-u.waiter:
			if err := u.reload(); err != nil {
				u.log.Error().Err(err).Msg("failed to reload configuration, keeping previous view")
			}
		case <-u.stopCh:
			return
		}
	}
}

// Stop terminates the reload loop. It does not unregister the waiter
// channel from any SignalDispatcher; callers that own the dispatcher
// should call Forget themselves.
func (u *Updater) Stop() {
	close(u.stopCh)
}

// View returns the most recently installed view, or nil before the first
// successful load.
func (u *Updater) View() *view.View {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.latestView
}

// Config returns the most recently parsed configuration.
func (u *Updater) Config() Config {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.latestConfig
}

func (u *Updater) reload() error {
	cfg, err := u.reader.Read()
	if err != nil {
		metrics.ConfigReloadsTotal.WithLabelValues("parse_error").Inc()
		metrics.UpdateComponent("config", false, err.Error())
		return err
	}

	n := atomic.AddUint64(&u.viewNumber, 1)
	v := view.Build(cfg.Servers, cfg.NewServers, u.cfg.Replicas, u.cfg.Vbuckets).WithViewNumber(n)

	u.mu.Lock()
	u.latestView = v
	u.latestConfig = cfg
	u.mu.Unlock()

	u.target.Install(v)
	metrics.ConfigReloadsTotal.WithLabelValues("ok").Inc()
	metrics.UpdateComponent("config", true, "")

	logEvent := u.log.Info().
		Uint64("view_number", n).
		Int("servers", len(cfg.Servers)).
		Int("new_servers", len(cfg.NewServers)).
		Int("tombstone_lifetime", cfg.TombstoneLifetime)
	if v.InTransition() {
		logEvent.Msg("reloaded configuration, view is transitional")
	} else {
		logEvent.Msg("reloaded configuration")
	}

	return nil
}

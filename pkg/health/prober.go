package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sink receives the aggregate result of one probe round across every
// server currently in view. It is an injected interface so the prober
// does not need to know about metrics, logging, or any particular
// component-registry; cmd/vshard wires it to the package's component
// registry, a test can wire it to a recorder.
type Sink interface {
	UpdateComponent(name string, healthy bool, message string)
}

// ViewServers returns the current set of backend server addresses to
// probe. cmd/vshard wires this to a config Updater's installed view.
type ViewServers func() []string

// Prober periodically TCP-dials every server address returned by its
// ViewServers function and reports the aggregate result to a Sink under
// a fixed component name. Each server address gets its own Status so a
// single flaky server does not flap the aggregate result; a server is
// counted unhealthy only once its own consecutive-failure count
// crosses Config.Retries.
type Prober struct {
	servers     ViewServers
	sink        Sink
	component   string
	cfg         Config
	log         zerolog.Logger
	dialTimeout time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	mu       sync.Mutex
	statuses map[string]*Status
}

// NewProber creates a Prober that reports to sink under component,
// probing the addresses servers returns every cfg.Interval.
func NewProber(servers ViewServers, sink Sink, component string, cfg Config, log zerolog.Logger) *Prober {
	return &Prober{
		servers:     servers,
		sink:        sink,
		component:   component,
		cfg:         cfg,
		log:         log.With().Str("component", "health.prober").Logger(),
		dialTimeout: cfg.Timeout,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		statuses:    make(map[string]*Status),
	}
}

// Start runs one probe round immediately and then every cfg.Interval
// until Stop is called.
func (p *Prober) Start() {
	p.round()
	go p.run()
}

func (p *Prober) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.round()
		case <-p.stopCh:
			return
		}
	}
}

// Stop ends the probe loop and waits for the in-flight round, if any,
// to finish.
func (p *Prober) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Prober) round() {
	addrs := p.servers()
	if len(addrs) == 0 {
		p.sink.UpdateComponent(p.component, false, "no backend servers in view")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	var unhealthy []string
	for _, addr := range addrs {
		checker := NewTCPChecker(addr).WithTimeout(p.dialTimeout)
		result := checker.Check(ctx)

		p.mu.Lock()
		st, ok := p.statuses[addr]
		if !ok {
			st = NewStatus()
			p.statuses[addr] = st
		}
		st.Update(result, p.cfg)
		healthy := st.Healthy
		p.mu.Unlock()

		if !healthy {
			unhealthy = append(unhealthy, addr)
		}
	}

	p.report(len(addrs), unhealthy)
}

func (p *Prober) report(total int, unhealthy []string) {
	if len(unhealthy) == 0 {
		p.sink.UpdateComponent(p.component, true, fmt.Sprintf("%d/%d backend servers reachable", total, total))
		return
	}

	sort.Strings(unhealthy)
	msg := fmt.Sprintf("%d/%d backend servers unreachable: %s", len(unhealthy), total, strings.Join(unhealthy, ", "))

	// A minority of unreachable servers still leaves the fleet able to
	// serve, since reads and writes fan out across replicas; only mark
	// the component unhealthy once at least half are down.
	healthy := len(unhealthy)*2 < total
	if healthy {
		p.log.Warn().Strs("servers", unhealthy).Msg("some backend servers unreachable")
	} else {
		p.log.Error().Strs("servers", unhealthy).Msg("majority of backend servers unreachable")
	}
	p.sink.UpdateComponent(p.component, healthy, msg)
}

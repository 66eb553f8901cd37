/*
Package health probes backend server reachability and turns per-server
results into a single, hysteresis-smoothed readiness signal for the
cluster fleet.

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                        Prober                                 │
	│  ViewServers() → [addr, addr, ...]                            │
	└────────┬───────────────────────────────────────┬─────────────┘
	         │ every Config.Interval                  │
	         ▼                                        ▼
	   TCPChecker.Check(ctx)                    per-addr Status
	   (dial, measure, close)                   (hysteresis)
	         │                                        │
	         └──────────────► aggregate ◄─────────────┘
	                              │
	                              ▼
	                      Sink.UpdateComponent(
	                        "backend", healthy, message)

A Checker performs one health check and returns a Result; Status
accumulates a consecutive-failure/success streak per target and applies
Config.Retries as a hysteresis threshold before flipping Healthy, the
same pattern pkg/commmonitor uses for replicated-client communication
failures. Prober composes many per-server Status values into one
fleet-wide signal: the aggregate is reported unhealthy only once at
least half the servers in view are individually unhealthy, so a single
flaky server does not flap cluster readiness.

# Usage

	prober := health.NewProber(
		func() []string { return updater.View().Servers },
		sink, // e.g. an adapter calling metrics.UpdateComponent
		"backend",
		health.Config{Interval: 10 * time.Second, Timeout: 2 * time.Second, Retries: 3},
		logger,
	)
	prober.Start()
	defer prober.Stop()

cmd/vshard's serve subcommand runs exactly this, feeding the result into
the same component registry pkg/metrics exposes over /health and
/ready.
*/
package health

/*
Package log provides structured logging via zerolog: a single global
logger configured once at process startup by cmd/vshard, plus a
WithComponent helper for callers that only have that global to start
from. Every other component in this module (pkg/replicated,
pkg/commmonitor, pkg/conncache, pkg/config, ...) takes its own
zerolog.Logger at construction time instead and scopes it with its own
field set there, so library code never reaches for the package global
directly.

# Usage

Initializing the logger:

	import "github.com/cuemby/vshard/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output, useful during development
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Simple logging:

	log.Info("view updated")
	log.Warn("backend dial failed")
	log.Errorf("config reload failed: %v", err)

Structured and component loggers:

	log.Logger.Info().
		Uint64("view_number", v.ViewNumber).
		Int("servers", len(v.Servers)).
		Msg("installed new view")

	workerLog := log.WithComponent("cmd.worker")
	workerLog.Warn().Err(err).Msg("backend connection failed")

Constructing an injected, pre-scoped logger for a component, the way
every other package in this module does:

	replicatedLog := log.Logger.With().Str("component", "replicated").Logger()
	client := replicated.NewClient(cache, monitor, stats, cfg, replicatedLog)

# Levels

  - Debug: per-request tracing, development only
  - Info: lifecycle events (view installed, config reloaded, server started)
  - Warn: a single replica or server unreachable, retried automatically
  - Error: an operation exhausted retries with no authoritative result
  - Fatal: the process cannot continue (bad flags, unreadable config at startup)
*/
package log

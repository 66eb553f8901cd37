package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/vshard/pkg/backend"
	"github.com/cuemby/vshard/pkg/commmonitor"
	"github.com/cuemby/vshard/pkg/config"
	"github.com/cuemby/vshard/pkg/conncache"
	"github.com/cuemby/vshard/pkg/health"
	"github.com/cuemby/vshard/pkg/log"
	"github.com/cuemby/vshard/pkg/metrics"
	"github.com/cuemby/vshard/pkg/replicated"
	"github.com/cuemby/vshard/pkg/stats"
	"github.com/cuemby/vshard/pkg/view"
)

// metricsSink adapts the metrics package's free functions to
// health.Sink so a Prober can report into the component registry
// without depending on it directly.
type metricsSink struct{}

func (metricsSink) UpdateComponent(name string, healthy bool, message string) {
	metrics.UpdateComponent(name, healthy, message)
}

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vshard",
	Short:   "A topology-aware, replicated key/value client for an external cache fleet",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("vshard version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "/etc/vshard/cluster_settings", "Path to the cluster membership file")
	rootCmd.PersistentFlags().Int("replicas", 2, "Replication factor")
	rootCmd.PersistentFlags().Int("vbuckets", 128, "Number of vbuckets keys are sharded across (power of two)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Reload the cluster membership file on a signal and serve Prometheus metrics and health endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		replicas, _ := cmd.Flags().GetInt("replicas")
		vbuckets, _ := cmd.Flags().GetInt("vbuckets")
		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		reloadSignal, _ := cmd.Flags().GetString("reload-signal")

		sig, err := parseSignal(reloadSignal)
		if err != nil {
			return err
		}

		cache := conncache.NewCache(conncache.DefaultConfig(), dialTCP, log.Logger)
		monitor := commmonitor.New(commmonitor.NopAlarmSink{}, commmonitor.DefaultConfig(), log.Logger)
		engine := stats.NewEngine()

		dispatcher := config.NewSignalDispatcher(sig)
		defer dispatcher.Stop()
		waiter := dispatcher.Waiter()
		defer dispatcher.Forget(waiter)

		updater := config.NewUpdater(
			config.NewReader(configPath),
			cache,
			config.UpdaterConfig{Replicas: replicas, Vbuckets: vbuckets},
			waiter,
			log.Logger,
		)
		if err := updater.Start(); err != nil {
			return fmt.Errorf("failed to load initial configuration: %w", err)
		}
		defer updater.Stop()

		collector := metrics.NewCollector(engine, monitor, func() *view.View { return updater.View() })
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("backend", false, "not yet probed")

		prober := health.NewProber(
			func() []string {
				v := updater.View()
				if v == nil {
					return nil
				}
				return v.Servers
			},
			metricsSink{},
			"backend",
			health.Config{Interval: 10 * time.Second, Timeout: 2 * time.Second, Retries: 3},
			log.Logger,
		)
		prober.Start()
		defer prober.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())

		srv := &http.Server{Addr: listenAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		log.Logger.Info().Str("addr", listenAddr).Msg("serving metrics and health endpoints")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Logger.Info().Msg("shutting down")
		case err := <-errCh:
			return fmt.Errorf("metrics server error: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen-addr", "127.0.0.1:9090", "Address to serve /metrics and health endpoints on")
	serveCmd.Flags().String("reload-signal", "SIGHUP", "Signal that triggers a configuration reload")
}

var getCmd = &cobra.Command{
	Use:   "get <table> <key>",
	Short: "Fetch a single record (one-shot, does not watch for config changes)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := oneShotClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outcome, err := client.ForWorker("").Get(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("status=%s cas=%d data=%q\n", outcome.Status, outcome.CAS, outcome.Data)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <table> <key> <value>",
	Short: "Write a record (one-shot, does not watch for config changes)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := oneShotClient(cmd)
		if err != nil {
			return err
		}
		cas, _ := cmd.Flags().GetUint64("cas")
		expiry, _ := cmd.Flags().GetInt("expiry")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outcome, err := client.ForWorker("").Set(ctx, args[0], args[1], []byte(args[2]), cas, expiry)
		if err != nil {
			return err
		}
		fmt.Printf("status=%s cas=%d\n", outcome.Status, outcome.CAS)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <table> <key>",
	Short: "Delete a record (one-shot, does not watch for config changes)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := oneShotClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outcome, err := client.ForWorker("").Delete(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("status=%s\n", outcome.Status)
		return nil
	},
}

func init() {
	setCmd.Flags().Uint64("cas", 0, "Compare-and-swap token (0 creates or overwrites a tombstone)")
	setCmd.Flags().Int("expiry", 0, "Relative expiry in seconds (0 expires immediately)")
}

// oneShotClient loads the membership file once and builds a client
// against it, without starting a background reload loop. It is meant for
// single-command CLI invocations, not long-running processes; use serve
// for those.
func oneShotClient(cmd *cobra.Command) (*replicated.Client, error) {
	configPath, _ := cmd.Flags().GetString("config")
	replicas, _ := cmd.Flags().GetInt("replicas")
	vbuckets, _ := cmd.Flags().GetInt("vbuckets")

	cfg, err := config.NewReader(configPath).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cache := conncache.NewCache(conncache.DefaultConfig(), dialTCP, log.Logger)
	cache.Install(view.Build(cfg.Servers, cfg.NewServers, replicas, vbuckets).WithViewNumber(1))

	monitor := commmonitor.New(commmonitor.NopAlarmSink{}, commmonitor.DefaultConfig(), log.Logger)
	engine := stats.NewEngine()

	return replicated.NewClient(cache, monitor, engine, replicated.Config{
		Vbuckets:          vbuckets,
		TombstoneLifetime: cfg.TombstoneLifetime,
	}, log.Logger), nil
}

func dialTCP(addr string, timeout time.Duration) (backend.Conn, error) {
	return backend.DialTCP(addr, timeout)
}

func parseSignal(name string) (os.Signal, error) {
	switch name {
	case "SIGHUP":
		return syscall.SIGHUP, nil
	case "SIGUSR1":
		return syscall.SIGUSR1, nil
	case "SIGUSR2":
		return syscall.SIGUSR2, nil
	default:
		return nil, fmt.Errorf("unsupported reload signal %q", name)
	}
}

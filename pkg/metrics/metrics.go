// Package metrics exposes the service's Prometheus metrics: a handful of
// package-level vars for state that isn't already tracked by a
// stats.Engine (view membership, the communication alarm, config
// reloads), plus a Collector that walks a stats.Engine to mirror its
// rolling-window rows without hand-declaring a metric per row.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ViewNumber is the currently installed cluster view's monotonic
	// sequence number.
	ViewNumber = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vshard_view_number",
			Help: "Sequence number of the currently installed cluster view",
		},
	)

	// ViewInTransition mirrors View.InTransition for the installed view:
	// 1 when at least one vbucket's replica set changes between the
	// current and new server lists, 0 otherwise.
	ViewInTransition = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vshard_view_in_transition",
			Help: "Whether the cluster is mid scale-up/down (1) or stable (0)",
		},
	)

	// ViewServers mirrors the server count in the currently installed view.
	ViewServers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vshard_view_servers",
			Help: "Number of distinct servers in the currently installed cluster view",
		},
	)

	// CommAlarmActive reports whether the communication monitor's
	// hysteresis alarm is currently raised.
	CommAlarmActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vshard_comm_alarm_active",
			Help: "Whether the backend communication alarm is currently raised",
		},
	)

	// ConfigReloadsTotal counts configuration reload attempts by outcome.
	ConfigReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vshard_config_reloads_total",
			Help: "Total number of configuration reload attempts by result",
		},
		[]string{"result"},
	)

	// BackendDialFailuresTotal counts failed dial attempts to backend
	// servers, labeled by server address.
	BackendDialFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vshard_backend_dial_failures_total",
			Help: "Total number of failed dial attempts to a backend server",
		},
		[]string{"server"},
	)

	// StatAccumulatorCount, StatAccumulatorAvg, StatAccumulatorHWM, and
	// StatAccumulatorLWM mirror a stats.AccumulatorTable's rows, one
	// gauge series per (table, index) pair, read from the live
	// 5-second window.
	StatAccumulatorCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vshard_stat_accumulator_count",
			Help: "Sample count in a stats accumulator row's current 5-second window",
		},
		[]string{"table", "index"},
	)
	StatAccumulatorAvg = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vshard_stat_accumulator_avg",
			Help: "Sample average in a stats accumulator row's current 5-second window",
		},
		[]string{"table", "index"},
	)
	StatAccumulatorHWM = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vshard_stat_accumulator_hwm",
			Help: "High watermark in a stats accumulator row's current 5-second window",
		},
		[]string{"table", "index"},
	)
	StatAccumulatorLWM = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vshard_stat_accumulator_lwm",
			Help: "Low watermark in a stats accumulator row's current 5-second window",
		},
		[]string{"table", "index"},
	)

	// StatCounterCount mirrors a stats.CounterTable row's current
	// 5-second window count.
	StatCounterCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vshard_stat_counter_count",
			Help: "Count in a stats counter row's current 5-second window",
		},
		[]string{"table", "index"},
	)
)

func init() {
	prometheus.MustRegister(ViewNumber)
	prometheus.MustRegister(ViewInTransition)
	prometheus.MustRegister(ViewServers)
	prometheus.MustRegister(CommAlarmActive)
	prometheus.MustRegister(ConfigReloadsTotal)
	prometheus.MustRegister(BackendDialFailuresTotal)
	prometheus.MustRegister(StatAccumulatorCount)
	prometheus.MustRegister(StatAccumulatorAvg)
	prometheus.MustRegister(StatAccumulatorHWM)
	prometheus.MustRegister(StatAccumulatorLWM)
	prometheus.MustRegister(StatCounterCount)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Package commmonitor tracks communication health with a peer (a backend
// replica, in this module's case) via simple success/failure counters and
// raises or clears an alarm once a consecutive streak crosses a
// hysteresis threshold.
package commmonitor

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// AlarmSink receives alarm transitions. It is an injected interface
// rather than a global, so callers can wire it to logging, Prometheus, or
// nothing at all.
type AlarmSink interface {
	SetAlarm()
	ClearAlarm()
}

// NopAlarmSink discards alarm transitions. Useful where the caller only
// wants to read the counters and hysteresis state directly.
type NopAlarmSink struct{}

func (NopAlarmSink) SetAlarm()   {}
func (NopAlarmSink) ClearAlarm() {}

// Config controls the hysteresis thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures needed to
	// raise the alarm.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes needed to
	// clear a raised alarm.
	SuccessThreshold int
}

// DefaultConfig returns conservative default hysteresis thresholds.
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, SuccessThreshold: 3}
}

// Monitor counts success and failure reports and drives alarm
// transitions. Counters are lock-free atomics; the hysteresis decision
// itself is serialized by a short mutex since it must observe and update
// consecutive-streak state consistently.
type Monitor struct {
	succeeded atomic.Int64
	failed    atomic.Int64

	mu                    sync.Mutex
	consecutiveFailures   int
	consecutiveSuccesses  int
	alarmActive           bool
	cfg                   Config
	sink                  AlarmSink
	log                   zerolog.Logger
}

// New creates a Monitor reporting alarm transitions to sink.
func New(sink AlarmSink, cfg Config, log zerolog.Logger) *Monitor {
	if sink == nil {
		sink = NopAlarmSink{}
	}
	return &Monitor{
		cfg:  cfg,
		sink: sink,
		log:  log.With().Str("component", "commmonitor").Logger(),
	}
}

// ReportSuccess records a successful communication. For the replicated
// client, a reachable replica counts as success even on a miss or a
// contention response: only total unreachability is a failure.
func (m *Monitor) ReportSuccess() {
	m.succeeded.Add(1)
	m.trackChanges(true)
}

// ReportFailure records a failed communication (every replica in a
// replica list was unreachable).
func (m *Monitor) ReportFailure() {
	m.failed.Add(1)
	m.trackChanges(false)
}

func (m *Monitor) trackChanges(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.consecutiveSuccesses++
		m.consecutiveFailures = 0
		if m.alarmActive && m.consecutiveSuccesses >= m.cfg.SuccessThreshold {
			m.alarmActive = false
			m.sink.ClearAlarm()
			m.log.Info().Msg("communication alarm cleared")
		}
		return
	}

	m.consecutiveFailures++
	m.consecutiveSuccesses = 0
	if !m.alarmActive && m.consecutiveFailures >= m.cfg.FailureThreshold {
		m.alarmActive = true
		m.sink.SetAlarm()
		m.log.Warn().Msg("communication alarm raised")
	}
}

// Succeeded returns the lifetime success count.
func (m *Monitor) Succeeded() int64 { return m.succeeded.Load() }

// Failed returns the lifetime failure count.
func (m *Monitor) Failed() int64 { return m.failed.Load() }

// AlarmActive reports whether the alarm is currently raised.
func (m *Monitor) AlarmActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alarmActive
}

package metrics

import (
	"time"

	"github.com/cuemby/vshard/pkg/commmonitor"
	"github.com/cuemby/vshard/pkg/stats"
	"github.com/cuemby/vshard/pkg/view"
)

// ViewSource supplies the currently installed cluster view. conncache.Cache
// doesn't expose one directly (workers only see it through ForWorker), so
// callers wire a small accessor closure in rather than this package
// depending on pkg/conncache.
type ViewSource func() *view.View

// Collector periodically snapshots a stats.Engine, a commmonitor.Monitor,
// and the current cluster view into the package's gauges.
type Collector struct {
	engine  *stats.Engine
	monitor *commmonitor.Monitor
	view    ViewSource
	stopCh  chan struct{}
}

// NewCollector creates a Collector. monitor and view may be nil if the
// caller has nothing to report for that dimension yet.
func NewCollector(engine *stats.Engine, monitor *commmonitor.Monitor, view ViewSource) *Collector {
	return &Collector{
		engine:  engine,
		monitor: monitor,
		view:    view,
		stopCh:  make(chan struct{}),
	}
}

// Start begins periodic collection on a 5-second tick, matching the
// stats engine's fastest rolling window.
func (c *Collector) Start() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectView()
	c.collectCommMonitor()
	c.collectStats()
}

func (c *Collector) collectView() {
	if c.view == nil {
		return
	}
	v := c.view()
	if v == nil {
		return
	}
	ViewNumber.Set(float64(v.ViewNumber))
	ViewServers.Set(float64(len(v.Servers)))
	if v.InTransition() {
		ViewInTransition.Set(1)
	} else {
		ViewInTransition.Set(0)
	}
}

func (c *Collector) collectCommMonitor() {
	if c.monitor == nil {
		return
	}
	if c.monitor.AlarmActive() {
		CommAlarmActive.Set(1)
	} else {
		CommAlarmActive.Set(0)
	}
}

func (c *Collector) collectStats() {
	if c.engine == nil {
		return
	}
	for _, name := range c.engine.AccumulatorTableNames() {
		table := c.engine.AccumulatorTable(name, true)
		for _, key := range table.Keys() {
			row, ok := table.Row(key)
			if !ok {
				continue
			}
			cols := row.CurrentFiveSecond()
			StatAccumulatorCount.WithLabelValues(name, key).Set(float64(cols.Count))
			StatAccumulatorAvg.WithLabelValues(name, key).Set(float64(cols.Avg))
			StatAccumulatorHWM.WithLabelValues(name, key).Set(float64(cols.HWM))
			StatAccumulatorLWM.WithLabelValues(name, key).Set(float64(cols.LWM))
		}
	}
	for _, name := range c.engine.CounterTableNames() {
		table := c.engine.CounterTable(name, true)
		for _, key := range table.Keys() {
			row, ok := table.Row(key)
			if !ok {
				continue
			}
			StatCounterCount.WithLabelValues(name, key).Set(float64(row.CurrentFiveSecond()))
		}
	}
}

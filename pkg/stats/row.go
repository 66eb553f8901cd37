package stats

import "time"

// Standard time-period intervals, in seconds.
const (
	FiveSeconds = int64(5)
	FiveMinutes = int64(5 * 60)
)

// now returns the current unix time in seconds. Rollover only needs
// second resolution; this is the single place that calls time.Now so
// rows stay trivially easy to drive from tests with an injected clock if
// ever needed.
func now() int64 {
	return time.Now().Unix()
}

// AccumulatorRow tracks count/sum/sum-of-squares/hwm/lwm across both
// standard windows. Index identifies the row within its table (a
// node-type, a free-form integer, or a string key).
type AccumulatorRow struct {
	Index   string
	fiveSec *Window
	fiveMin *Window
}

// NewAccumulatorRow creates a row indexed by index.
func NewAccumulatorRow(index string) *AccumulatorRow {
	return &AccumulatorRow{
		Index:   index,
		fiveSec: NewWindow(FiveSeconds),
		fiveMin: NewWindow(FiveMinutes),
	}
}

// Accumulate folds a new sample into both windows.
func (r *AccumulatorRow) Accumulate(sample uint64) {
	n := now()
	r.fiveSec.Accumulate(sample, n)
	r.fiveMin.Accumulate(sample, n)
}

// CurrentFiveSecond returns the live 5-second window.
func (r *AccumulatorRow) CurrentFiveSecond() AccumulatorColumns { return r.fiveSec.Current(now()) }

// PreviousFiveSecond returns the prior, now-frozen 5-second window.
func (r *AccumulatorRow) PreviousFiveSecond() AccumulatorColumns { return r.fiveSec.Previous(now()) }

// CurrentFiveMinute returns the live 5-minute window.
func (r *AccumulatorRow) CurrentFiveMinute() AccumulatorColumns { return r.fiveMin.Current(now()) }

// PreviousFiveMinute returns the prior, now-frozen 5-minute window.
func (r *AccumulatorRow) PreviousFiveMinute() AccumulatorColumns { return r.fiveMin.Previous(now()) }

// CounterRow tracks a simple monotonic-within-window count across both
// standard windows.
type CounterRow struct {
	Index   string
	fiveSec *Window
	fiveMin *Window
}

// NewCounterRow creates a row indexed by index.
func NewCounterRow(index string) *CounterRow {
	return &CounterRow{
		Index:   index,
		fiveSec: NewWindow(FiveSeconds),
		fiveMin: NewWindow(FiveMinutes),
	}
}

// Increment bumps the row's count in both windows by one.
func (r *CounterRow) Increment() {
	n := now()
	r.fiveSec.Accumulate(0, n)
	r.fiveMin.Accumulate(0, n)
}

func (r *CounterRow) CurrentFiveSecond() uint64  { return r.fiveSec.CurrentCount(now()) }
func (r *CounterRow) PreviousFiveSecond() uint64 { return r.fiveSec.PreviousCount(now()) }
func (r *CounterRow) CurrentFiveMinute() uint64  { return r.fiveMin.CurrentCount(now()) }
func (r *CounterRow) PreviousFiveMinute() uint64 { return r.fiveMin.PreviousCount(now()) }

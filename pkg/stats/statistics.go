// Package stats implements the rolling statistics framework: accumulator
// and counter rows, double-buffered across 5-second and 5-minute windows.
package stats

import (
	"math"
	"sync/atomic"
)

// AccumulatorColumns is the atomically-materialized snapshot of one
// accumulator row, safe to read even while another goroutine continues
// accumulating into the same underlying Statistics.
type AccumulatorColumns struct {
	Count    uint64
	Avg      uint64
	Variance uint64
	HWM      uint64
	LWM      uint64
}

// Statistics holds the atomics backing one accumulator column set: a
// running count, sum, and sum-of-squares, plus high/low water marks
// updated via compare-and-swap loops so concurrent writers never lose an
// extreme value.
type Statistics struct {
	count atomic.Uint64
	sum   atomic.Uint64
	sqsum atomic.Uint64
	hwm   atomic.Uint64
	lwm   atomic.Uint64
}

func (s *Statistics) reset() {
	s.count.Store(0)
	s.sum.Store(0)
	s.sqsum.Store(0)
	s.hwm.Store(0)
	s.lwm.Store(math.MaxUint64)
}

// accumulate folds sample into the running count/sum/sum-of-squares and
// updates the water marks.
func (s *Statistics) accumulate(sample uint64) {
	s.count.Add(1)
	s.sum.Add(sample)
	s.sqsum.Add(sample * sample)

	for {
		lwm := s.lwm.Load()
		if sample >= lwm {
			break
		}
		if s.lwm.CompareAndSwap(lwm, sample) {
			break
		}
	}
	for {
		hwm := s.hwm.Load()
		if sample <= hwm {
			break
		}
		if s.hwm.CompareAndSwap(hwm, sample) {
			break
		}
	}
}

// columns materializes a consistent-enough snapshot: avg and variance are
// derived from the same count/sum/sqsum read, matching the original's
// "avg = sum/count, variance = sumsq/count - avg^2" formula. Reading
// count==0 returns the zero value rather than dividing by zero.
func (s *Statistics) columns() AccumulatorColumns {
	count := s.count.Load()
	if count == 0 {
		return AccumulatorColumns{}
	}
	sum := s.sum.Load()
	sqsum := s.sqsum.Load()
	avg := sum / count
	variance := sqsum/count - avg*avg
	return AccumulatorColumns{
		Count:    count,
		Avg:      avg,
		Variance: variance,
		HWM:      s.hwm.Load(),
		LWM:      s.lwm.Load(),
	}
}

// countOnly reports just the count column, for CounterRow's narrower export.
func (s *Statistics) countOnly() uint64 {
	return s.count.Load()
}

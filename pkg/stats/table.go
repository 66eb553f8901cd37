package stats

import "sync"

// AccumulatorTable is an indexed collection of AccumulatorRows. A fixed
// table is fully enumerated at construction; a managed table creates rows
// lazily on first access, for indices not known ahead of time (e.g. one
// row per backend server address discovered at runtime).
type AccumulatorTable struct {
	mu      sync.RWMutex
	rows    map[string]*AccumulatorRow
	managed bool
}

// NewFixedAccumulatorTable creates a table with one row per key,
// pre-created.
func NewFixedAccumulatorTable(keys ...string) *AccumulatorTable {
	t := &AccumulatorTable{rows: make(map[string]*AccumulatorRow, len(keys))}
	for _, k := range keys {
		t.rows[k] = NewAccumulatorRow(k)
	}
	return t
}

// NewManagedAccumulatorTable creates a table that creates rows on first
// access to an unseen key.
func NewManagedAccumulatorTable() *AccumulatorTable {
	return &AccumulatorTable{rows: make(map[string]*AccumulatorRow), managed: true}
}

// Row returns the row for key. For a fixed table, ok is false if key was
// not enumerated at construction. For a managed table, the row is created
// on first access and ok is always true.
func (t *AccumulatorTable) Row(key string) (*AccumulatorRow, bool) {
	t.mu.RLock()
	r, ok := t.rows[key]
	t.mu.RUnlock()
	if ok || !t.managed {
		return r, ok
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok = t.rows[key]; ok {
		return r, true
	}
	r = NewAccumulatorRow(key)
	t.rows[key] = r
	return r, true
}

// Keys returns the currently enumerated row keys.
func (t *AccumulatorTable) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	return keys
}

// CounterTable is the CounterRow equivalent of AccumulatorTable.
type CounterTable struct {
	mu      sync.RWMutex
	rows    map[string]*CounterRow
	managed bool
}

func NewFixedCounterTable(keys ...string) *CounterTable {
	t := &CounterTable{rows: make(map[string]*CounterRow, len(keys))}
	for _, k := range keys {
		t.rows[k] = NewCounterRow(k)
	}
	return t
}

func NewManagedCounterTable() *CounterTable {
	return &CounterTable{rows: make(map[string]*CounterRow), managed: true}
}

func (t *CounterTable) Row(key string) (*CounterRow, bool) {
	t.mu.RLock()
	r, ok := t.rows[key]
	t.mu.RUnlock()
	if ok || !t.managed {
		return r, ok
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok = t.rows[key]; ok {
		return r, true
	}
	r = NewCounterRow(key)
	t.rows[key] = r
	return r, true
}

func (t *CounterTable) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	return keys
}

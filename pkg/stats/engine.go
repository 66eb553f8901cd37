package stats

import "sync"

// Engine is the top-level registry of named accumulator and counter
// tables. Components (pkg/replicated's Client and NeutralClient) register
// their tables here once at construction; pkg/metrics later walks the engine to
// mirror every row as a Prometheus gauge.
type Engine struct {
	mu                sync.Mutex
	accumulatorTables map[string]*AccumulatorTable
	counterTables     map[string]*CounterTable
}

// NewEngine creates an empty Engine.
func NewEngine() *Engine {
	return &Engine{
		accumulatorTables: make(map[string]*AccumulatorTable),
		counterTables:     make(map[string]*CounterTable),
	}
}

// AccumulatorTable returns the named table, creating it on first call:
// managed if managed is true (keys is then ignored), otherwise fixed with
// the given keys pre-enumerated.
func (e *Engine) AccumulatorTable(name string, managed bool, keys ...string) *AccumulatorTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.accumulatorTables[name]; ok {
		return t
	}
	var t *AccumulatorTable
	if managed {
		t = NewManagedAccumulatorTable()
	} else {
		t = NewFixedAccumulatorTable(keys...)
	}
	e.accumulatorTables[name] = t
	return t
}

// CounterTable returns the named table, creating it on first call.
func (e *Engine) CounterTable(name string, managed bool, keys ...string) *CounterTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.counterTables[name]; ok {
		return t
	}
	var t *CounterTable
	if managed {
		t = NewManagedCounterTable()
	} else {
		t = NewFixedCounterTable(keys...)
	}
	e.counterTables[name] = t
	return t
}

// AccumulatorTableNames lists the registered accumulator table names, for
// pkg/metrics to enumerate when exporting.
func (e *Engine) AccumulatorTableNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.accumulatorTables))
	for n := range e.accumulatorTables {
		names = append(names, n)
	}
	return names
}

// CounterTableNames lists the registered counter table names.
func (e *Engine) CounterTableNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.counterTables))
	for n := range e.counterTables {
		names = append(names, n)
	}
	return names
}

// Package monitor keeps the append-only statistic history a training loop
// reports into.
package monitor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"hypersched/internal/model"
)

var ErrStatNotFound = errors.New("statistic not found in monitor history")

type Monitor struct {
	mu      sync.RWMutex
	history map[string][]float64
	order   []string
}

func New() *Monitor {
	return &Monitor{history: make(map[string][]float64)}
}

// Put appends one value to the named statistic.
func (m *Monitor) Put(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.history[name]; !ok {
		m.order = append(m.order, name)
	}
	m.history[name] = append(m.history[name], value)
}

// PutAll appends every entry of stats, in name order.
func (m *Monitor) PutAll(stats map[string]float64) {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.Put(name, stats[name])
	}
}

// History returns a copy of the named statistic's values, oldest first.
func (m *Monitor) History(name string) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values, ok := m.history[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStatNotFound, name)
	}
	return append([]float64(nil), values...), nil
}

// Latest returns the most recent value of the named statistic.
func (m *Monitor) Latest(name string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := m.history[name]
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// Snapshot returns every series in first-reported order.
func (m *Monitor) Snapshot() []model.StatSeries {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.StatSeries, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, model.StatSeries{Name: name, Values: append([]float64(nil), m.history[name]...)})
	}
	return out
}

// Restore replaces the history with previously persisted series.
func (m *Monitor) Restore(series []model.StatSeries) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = make(map[string][]float64, len(series))
	m.order = m.order[:0]
	for _, s := range series {
		if _, ok := m.history[s.Name]; !ok {
			m.order = append(m.order, s.Name)
		}
		m.history[s.Name] = append(m.history[s.Name], s.Values...)
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"hypersched/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	variables   map[string]float64
	history     map[string][]model.StatSeries
	changes     map[string][]model.ParamChange
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.variables = make(map[string]float64)
	s.history = make(map[string][]model.StatSeries)
	s.changes = make(map[string][]model.ParamChange)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) DefineVariable(_ context.Context, name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if name == "" {
		return errors.New("variable name is required")
	}
	s.variables[name] = value
	return nil
}

func (s *MemoryStore) ListVariables(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	names := make([]string, 0, len(s.variables))
	for name := range s.variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) GetVariable(_ context.Context, name string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.variables[name]
	return value, ok, nil
}

func (s *MemoryStore) SetVariable(_ context.Context, name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.variables[name]; !ok {
		return fmt.Errorf("variable %s is not defined", name)
	}
	s.variables[name] = value
	return nil
}

func (s *MemoryStore) SaveStatHistory(_ context.Context, runID string, series []model.StatSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = cloneSeries(series)
	return nil
}

func (s *MemoryStore) GetStatHistory(_ context.Context, runID string) ([]model.StatSeries, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneSeries(series), true, nil
}

func (s *MemoryStore) SaveParamChanges(_ context.Context, runID string, changes []model.ParamChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.changes[runID] = append([]model.ParamChange(nil), changes...)
	return nil
}

func (s *MemoryStore) GetParamChanges(_ context.Context, runID string) ([]model.ParamChange, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes, ok := s.changes[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.ParamChange(nil), changes...), true, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

// ListRuns returns runs newest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func sortRunsNewestFirst(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}

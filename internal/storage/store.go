package storage

import (
	"context"

	"hypersched/internal/model"
)

// VariableStore is the scalar variable surface a variable-backed param
// resolves against.
type VariableStore interface {
	ListVariables(ctx context.Context) ([]string, error)
	GetVariable(ctx context.Context, name string) (float64, bool, error)
	SetVariable(ctx context.Context, name string, value float64) error
}

// Store defines persistence operations for variables and run bookkeeping.
type Store interface {
	VariableStore
	Init(ctx context.Context) error
	DefineVariable(ctx context.Context, name string, value float64) error
	SaveStatHistory(ctx context.Context, runID string, series []model.StatSeries) error
	GetStatHistory(ctx context.Context, runID string) ([]model.StatSeries, bool, error)
	SaveParamChanges(ctx context.Context, runID string, changes []model.ParamChange) error
	GetParamChanges(ctx context.Context, runID string) ([]model.ParamChange, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}

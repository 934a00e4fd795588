package storage

import (
	"context"
	"testing"
	"time"

	"hypersched/internal/model"
)

func TestMemoryStoreVariables(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := store.DefineVariable(ctx, "momentum", 0.9); err != nil {
		t.Fatalf("define momentum: %v", err)
	}
	if err := store.DefineVariable(ctx, "learning_rate", 0.1); err != nil {
		t.Fatalf("define learning_rate: %v", err)
	}

	names, err := store.ListVariables(ctx)
	if err != nil {
		t.Fatalf("list variables: %v", err)
	}
	if len(names) != 2 || names[0] != "learning_rate" || names[1] != "momentum" {
		t.Fatalf("unexpected variable names: %v", names)
	}

	if err := store.SetVariable(ctx, "learning_rate", 0.01); err != nil {
		t.Fatalf("set learning_rate: %v", err)
	}
	value, ok, err := store.GetVariable(ctx, "learning_rate")
	if err != nil || !ok {
		t.Fatalf("get learning_rate: ok=%t err=%v", ok, err)
	}
	if value != 0.01 {
		t.Fatalf("expected learning_rate=0.01, got=%f", value)
	}

	if err := store.SetVariable(ctx, "missing", 1); err == nil {
		t.Fatal("expected error setting undefined variable")
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.DefineVariable(context.Background(), "x", 1); err == nil {
		t.Fatal("expected uninitialized store error")
	}
}

func TestMemoryStoreStatHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.StatSeries{{Name: "val-error", Values: []float64{0.5, 0.4}}}
	if err := store.SaveStatHistory(ctx, "run-1", input); err != nil {
		t.Fatalf("save history: %v", err)
	}
	input[0].Values[0] = 99

	output, ok, err := store.GetStatHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted history")
	}
	if len(output) != 1 || output[0].Values[0] != 0.5 {
		t.Fatalf("unexpected history: %+v", output)
	}

	if _, ok, _ := store.GetStatHistory(ctx, "run-2"); ok {
		t.Fatal("expected missing history for unknown run")
	}
}

func TestMemoryStoreParamChangesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.ParamChange{{
		VersionedRecord: CurrentVersion(),
		Epoch:           30,
		GlobalStep:      3000,
		Param:           "learning_rate",
		Setter:          "schedule",
		Value:           0.01,
	}}
	if err := store.SaveParamChanges(ctx, "run-1", input); err != nil {
		t.Fatalf("save changes: %v", err)
	}

	output, ok, err := store.GetParamChanges(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get changes: ok=%t err=%v", ok, err)
	}
	if len(output) != 1 || output[0].Epoch != 30 || output[0].Value != 0.01 {
		t.Fatalf("unexpected changes: %+v", output)
	}
}

func TestMemoryStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		run := model.RunRecord{
			VersionedRecord: CurrentVersion(),
			ID:              id,
			CreatedAt:       base.Add(time.Duration(i) * time.Hour),
			FinalValues:     map[string]float64{"learning_rate": 0.1},
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "old" {
		t.Fatalf("unexpected run order: %+v", runs)
	}

	runs[0].FinalValues["learning_rate"] = 5
	stored, ok, err := store.GetRun(ctx, "new")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if stored.FinalValues["learning_rate"] != 0.1 {
		t.Fatalf("expected stored run to be isolated from caller mutation, got=%v", stored.FinalValues)
	}
}

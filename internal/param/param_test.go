package param

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypersched/internal/storage"
)

func newStore(t *testing.T, vars map[string]float64) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(ctx))
	for name, v := range vars {
		require.NoError(t, store.DefineVariable(ctx, name, v))
	}
	return store
}

func TestReadableName(t *testing.T) {
	cases := map[string]string{
		"learning_rate":       "learning_rate",
		"learning_rate:0":     "learning_rate",
		"tower/lr:12":         "tower/lr",
		"odd:name":            "odd:name",
		"trailing:":           "trailing:",
		":0":                  ":0",
		"opt/momentum:beta:1": "opt/momentum:beta",
	}
	for raw, want := range cases {
		assert.Equal(t, want, ReadableName(raw), raw)
	}
}

func TestVarParamRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, map[string]float64{"learning_rate": 0.1})

	p := NewVarParam("learning_rate:0", store)
	assert.Equal(t, "learning_rate", p.ReadableName())
	require.NoError(t, p.Setup(ctx))

	v, err := p.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.1, v)

	require.NoError(t, p.SetValue(ctx, 0.01))
	stored, ok, err := store.GetVariable(ctx, "learning_rate")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.01, stored)

	v, err = p.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.01, v)
}

func TestVarParamResolutionError(t *testing.T) {
	store := newStore(t, map[string]float64{"momentum": 0.9})

	p := NewVarParam("learning_rate", store)
	err := p.Setup(context.Background())
	require.ErrorIs(t, err, ErrResolution)
	assert.Contains(t, err.Error(), "learning_rate")

	// Setup is resolved once; a later definition does not change the outcome.
	require.NoError(t, store.DefineVariable(context.Background(), "learning_rate", 1))
	require.ErrorIs(t, p.Setup(context.Background()), ErrResolution)
}

func TestVarParamBeforeSetup(t *testing.T) {
	store := newStore(t, map[string]float64{"learning_rate": 0.1})
	p := NewVarParam("learning_rate", store)

	_, err := p.Value(context.Background())
	require.ErrorIs(t, err, ErrBackingUnavailable)
	require.ErrorIs(t, p.SetValue(context.Background(), 1), ErrBackingUnavailable)
}

func TestFuncParam(t *testing.T) {
	ctx := context.Background()
	host := struct{ Dropout float64 }{Dropout: 0.5}

	p := NewFuncParam("Dropout", "", func() float64 { return host.Dropout }, func(v float64) { host.Dropout = v })
	assert.Equal(t, "Dropout", p.ReadableName())
	require.NoError(t, p.Setup(ctx))
	require.NoError(t, p.SetValue(ctx, 0.25))
	assert.Equal(t, 0.25, host.Dropout)

	v, err := p.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	named := NewFuncParam("Dropout", "drop_prob", nil, nil)
	assert.Equal(t, "drop_prob", named.ReadableName())
	require.ErrorIs(t, named.Setup(ctx), ErrResolution)
}

func TestFloat64Param(t *testing.T) {
	ctx := context.Background()
	wd := 1e-4
	p := Float64("weight_decay", &wd)
	require.NoError(t, p.SetValue(ctx, 5e-5))
	assert.Equal(t, 5e-5, wd)
}

package trainer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuadraticConvergesWithoutNoise(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, map[string]float64{"learning_rate": 0.5})

	q, err := NewQuadratic(QuadraticConfig{Dim: 2, Curvature: 1, Start: 2}, store)
	require.NoError(t, err)

	before, err := q.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, before["val-error"])

	stats, err := q.Step(ctx)
	require.NoError(t, err)
	// w = 2 - 0.5*2 = 1 in both coordinates.
	assert.Equal(t, 1.0, stats["train-loss"])
}

func TestQuadraticRequiresLearningRate(t *testing.T) {
	store := newStore(t, nil)
	q, err := NewQuadratic(QuadraticConfig{}, store)
	require.NoError(t, err)

	_, err = q.Step(context.Background())
	require.Error(t, err)

	_, err = NewQuadratic(QuadraticConfig{}, nil)
	require.Error(t, err)
	_, err = NewQuadratic(QuadraticConfig{Noise: -1}, store)
	require.Error(t, err)
}

package humanfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	values, err := Parse(strings.NewReader("learning_rate:0.001\n\n momentum : 0.9 \n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"learning_rate": 0.001, "momentum": 0.9}, values)
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{
		"learning_rate=0.1\n",
		"learning_rate:abc\n",
		"a:b:c\n",
		":0.1\n",
	} {
		_, err := Parse(strings.NewReader(input))
		assert.Error(t, err, input)
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), DefaultFileName))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadWhileWriterHoldsLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("learning_rate:0.1\n"), 0o644))

	writer := flock.New(lockPath(path))
	locked, err := writer.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = writer.Unlock() })

	_, err = Read(path)
	require.ErrorIs(t, err, ErrLocked)
}

func TestUpdatePreservesOtherKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "logs", DefaultFileName)

	require.NoError(t, Update(ctx, path, "momentum", 0.9))
	require.NoError(t, Update(ctx, path, "learning_rate", 0.1))
	require.NoError(t, Update(ctx, path, "learning_rate", 0.001))

	values, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"learning_rate": 0.001, "momentum": 0.9}, values)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "learning_rate:0.001\nmomentum:0.9\n", string(data))
}

func TestUpdateRejectsColonKey(t *testing.T) {
	err := Update(context.Background(), filepath.Join(t.TempDir(), DefaultFileName), "a:b", 1)
	require.Error(t, err)
}

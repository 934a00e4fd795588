package setter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hypersched/internal/model"
	"hypersched/internal/monitor"
	"hypersched/internal/param"
	"hypersched/internal/storage"
)

type fakeLoop struct {
	epoch int
	step  int64
	mon   *monitor.Monitor
}

func (l *fakeLoop) EpochNum() int     { return l.epoch }
func (l *fakeLoop) GlobalStep() int64 { return l.step }

func (l *fakeLoop) History(name string) ([]float64, error) {
	if l.mon == nil {
		return nil, fmt.Errorf("%w: %s", monitor.ErrStatNotFound, name)
	}
	return l.mon.History(name)
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&c.buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (c *logCapture) count(msg string) int {
	return strings.Count(c.buf.String(), "msg=\""+msg+"\"")
}

func newVarParam(t *testing.T, name string, initial float64) (*param.VarParam, *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.DefineVariable(ctx, name, initial))
	p := param.NewVarParam(name, store)
	require.NoError(t, p.Setup(ctx))
	return p, store
}

type changeLog struct {
	changes []model.ParamChange
}

func (c *changeLog) record(change model.ParamChange) {
	c.changes = append(c.changes, change)
}

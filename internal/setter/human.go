package setter

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"hypersched/internal/humanfile"
	"hypersched/internal/param"
)

// HumanPolicy re-reads a key:value tuning file on every trigger so a person
// can adjust a param without interrupting the run.
type HumanPolicy struct {
	path string
}

// NewHumanPolicy resolves fileName inside logDir. An empty fileName selects
// humanfile.DefaultFileName.
func NewHumanPolicy(logDir, fileName string) *HumanPolicy {
	if fileName == "" {
		fileName = humanfile.DefaultFileName
	}
	return &HumanPolicy{path: filepath.Join(logDir, fileName)}
}

func NewHumanSetter(p param.Param, logDir, fileName string, opts Options) (*Setter, error) {
	policy := NewHumanPolicy(logDir, fileName)
	s, err := New(p, policy, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("using tuning file", "file", policy.path, "param", p.ReadableName())
	return s, nil
}

func (*HumanPolicy) Name() string     { return "human" }
func (*HumanPolicy) Cadence() Cadence { return CadenceEpoch }
func (p *HumanPolicy) Path() string   { return p.path }

func (p *HumanPolicy) ValueToSet(_ context.Context, env Env) (float64, bool, error) {
	name := env.Param.ReadableName()
	values, err := humanfile.Read(p.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return 0, false, nil
	case errors.Is(err, humanfile.ErrLocked):
		env.Logger.Debug("tuning file busy, skipping", "file", p.path, "param", name)
		return 0, false, nil
	case err != nil:
		env.Logger.Warn("cannot read tuning file", "file", p.path, "param", name, "error", err)
		return 0, false, nil
	}

	v, ok := values[name]
	if !ok {
		env.Logger.Warn("param not found in tuning file", "file", p.path, "param", name)
		return 0, false, nil
	}
	return v, true, nil
}

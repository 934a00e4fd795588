package config

import (
	"fmt"

	"hypersched/internal/setter"
	"hypersched/internal/storage"
)

// Build turns the setter configuration into setters over variable-backed
// params. Human setters resolve their file inside logDir.
func (s SetterConfig) Build(store storage.VariableStore, logDir string, opts setter.Options) (*setter.Setter, error) {
	p := setter.ParamFor(s.Param, store)
	switch NormalizeKind(s.Kind) {
	case KindSchedule:
		schedule := make([]setter.Checkpoint, len(s.Schedule))
		for i, c := range s.Schedule {
			schedule[i] = setter.Checkpoint{At: c.At, Value: c.Value}
		}
		return setter.NewScheduledSetter(p, schedule, s.Interp, s.StepBased, opts)
	case KindHuman:
		return setter.NewHumanSetter(p, logDir, s.File, opts)
	case KindFunc:
		fn, err := setter.EpochFuncFromConfig(s.Func, s.FuncParam, s.FuncEvery)
		if err != nil {
			return nil, err
		}
		return setter.NewFuncSetter(p, fn, opts)
	case KindStatMonitor:
		fn, err := setter.ValueFuncFromConfig(s.Func, s.FuncParam)
		if err != nil {
			return nil, err
		}
		return setter.NewStatMonitorSetter(p, setter.StatMonitorConfig{
			Stat:      s.Stat,
			ValueFunc: fn,
			Threshold: s.Threshold,
			LastK:     s.LastK,
			Reverse:   s.Reverse,
		}, opts)
	default:
		return nil, fmt.Errorf("unsupported setter kind: %s", s.Kind)
	}
}

// BuildSetters builds every configured setter in order.
func (c Config) BuildSetters(store storage.VariableStore, opts setter.Options) ([]*setter.Setter, error) {
	out := make([]*setter.Setter, 0, len(c.Setters))
	for i, sc := range c.Setters {
		s, err := sc.Build(store, c.LogDir, opts)
		if err != nil {
			return nil, fmt.Errorf("setter %d (%s): %w", i, sc.Kind, err)
		}
		out = append(out, s)
	}
	return out, nil
}

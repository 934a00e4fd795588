package setter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"hypersched/internal/monitor"
	"hypersched/internal/param"
)

// ValueFunc maps the current value of a param to its next value.
type ValueFunc func(current float64) float64

type StatMonitorConfig struct {
	Stat      string
	ValueFunc ValueFunc
	Threshold float64
	// LastK is the window size excluding the anchor.
	LastK int
	// Reverse fires when the statistic did not increase enough instead of
	// when it did not decrease enough.
	Reverse bool
}

// StatMonitorPolicy changes a param when a monitored statistic stagnated
// over the last LastK epochs. After firing it stays quiet for LastK epochs.
type StatMonitorPolicy struct {
	cfg              StatMonitorConfig
	lastChangedEpoch int
}

func NewStatMonitorPolicy(cfg StatMonitorConfig) (*StatMonitorPolicy, error) {
	if cfg.Stat == "" {
		return nil, errors.New("stat name is required")
	}
	if cfg.ValueFunc == nil {
		return nil, errors.New("value func is required")
	}
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("threshold must be >= 0, got %g", cfg.Threshold)
	}
	if cfg.LastK <= 0 {
		return nil, fmt.Errorf("last_k must be > 0, got %d", cfg.LastK)
	}
	return &StatMonitorPolicy{cfg: cfg}, nil
}

func NewStatMonitorSetter(p param.Param, cfg StatMonitorConfig, opts Options) (*Setter, error) {
	policy, err := NewStatMonitorPolicy(cfg)
	if err != nil {
		return nil, err
	}
	return New(p, policy, opts)
}

func (*StatMonitorPolicy) Name() string     { return "stat_monitor" }
func (*StatMonitorPolicy) Cadence() Cadence { return CadenceEpoch }

// LastChangedEpoch is the epoch of the most recent fire, 0 if none.
func (p *StatMonitorPolicy) LastChangedEpoch() int { return p.lastChangedEpoch }

func (p *StatMonitorPolicy) ValueToSet(ctx context.Context, env Env) (float64, bool, error) {
	hist, err := env.Loop.History(p.cfg.Stat)
	if err != nil {
		if errors.Is(err, monitor.ErrStatNotFound) {
			env.Logger.Warn("stat not found in monitor history, ignoring", "stat", p.cfg.Stat)
			return 0, false, nil
		}
		return 0, false, err
	}

	epoch := env.Loop.EpochNum()
	if len(hist) < p.cfg.LastK+1 || epoch-p.lastChangedEpoch < p.cfg.LastK {
		return 0, false, nil
	}
	window := hist[len(hist)-p.cfg.LastK-1:]
	if !p.stagnated(window) {
		return 0, false, nil
	}

	current, err := env.Param.Value(ctx)
	if err != nil {
		return 0, false, err
	}
	p.lastChangedEpoch = epoch
	env.Logger.Info("stat monitor triggered", "stat", p.cfg.Stat, "history", joinFloats(window))
	return p.cfg.ValueFunc(current), true, nil
}

// stagnated reports whether window failed to improve on its anchor (the
// first entry) by more than the threshold.
func (p *StatMonitorPolicy) stagnated(window []float64) bool {
	anchor := window[0]
	if p.cfg.Reverse {
		return !(slices.Max(window) > anchor+p.cfg.Threshold)
	}
	return !(slices.Min(window) < anchor-p.cfg.Threshold)
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

package setter

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"hypersched/internal/param"
)

const (
	InterpNone   = "none"
	InterpLinear = "linear"
)

// Checkpoint sets the param to Value once the reference counter reaches At.
type Checkpoint struct {
	At    int64
	Value float64
}

// ScheduledPolicy follows a sorted list of checkpoints keyed by epoch or by
// global step.
type ScheduledPolicy struct {
	schedule  []Checkpoint
	interp    string
	stepBased bool
}

func NewScheduledPolicy(schedule []Checkpoint, interp string, stepBased bool) (*ScheduledPolicy, error) {
	interp = NormalizeInterp(interp)
	if interp != InterpNone && interp != InterpLinear {
		return nil, fmt.Errorf("unsupported interpolation: %s", interp)
	}
	if len(schedule) == 0 {
		return nil, fmt.Errorf("schedule requires at least one checkpoint")
	}

	sorted := append([]Checkpoint(nil), schedule...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })
	for i, c := range sorted {
		if c.At < 0 {
			return nil, fmt.Errorf("schedule checkpoint must be >= 0, got %d", c.At)
		}
		if i > 0 && sorted[i-1].At == c.At {
			return nil, fmt.Errorf("duplicate schedule checkpoint %d", c.At)
		}
	}

	return &ScheduledPolicy{schedule: sorted, interp: interp, stepBased: stepBased}, nil
}

func NewScheduledSetter(p param.Param, schedule []Checkpoint, interp string, stepBased bool, opts Options) (*Setter, error) {
	policy, err := NewScheduledPolicy(schedule, interp, stepBased)
	if err != nil {
		return nil, err
	}
	return New(p, policy, opts)
}

func (*ScheduledPolicy) Name() string { return "schedule" }

func (p *ScheduledPolicy) Cadence() Cadence {
	if p.stepBased {
		return CadenceStep
	}
	return CadenceEpoch
}

func (p *ScheduledPolicy) Schedule() []Checkpoint {
	return append([]Checkpoint(nil), p.schedule...)
}

func (p *ScheduledPolicy) Interp() string  { return p.interp }
func (p *ScheduledPolicy) StepBased() bool { return p.stepBased }

func (p *ScheduledPolicy) ValueToSet(_ context.Context, env Env) (float64, bool, error) {
	ref := int64(env.Loop.EpochNum())
	if p.stepBased {
		ref = env.Loop.GlobalStep()
	}
	v, ok := p.ValueAt(ref)
	return v, ok, nil
}

// ValueAt returns the scheduled value at reference count ref. An exact
// checkpoint hit always wins. Before the first checkpoint and after the last
// one there is no value.
func (p *ScheduledPolicy) ValueAt(ref int64) (float64, bool) {
	var (
		last   Checkpoint
		passed bool
		next   Checkpoint
		found  bool
	)
	for _, c := range p.schedule {
		if c.At == ref {
			return c.Value, true
		}
		if c.At > ref {
			next, found = c, true
			break
		}
		last, passed = c, true
	}
	if !passed || !found {
		return 0, false
	}
	if p.interp == InterpLinear {
		return last.Value + float64(ref-last.At)/float64(next.At-last.At)*(next.Value-last.Value), true
	}
	return last.Value, true
}

// NormalizeInterp maps accepted spellings onto InterpNone/InterpLinear.
func NormalizeInterp(interp string) string {
	switch strings.ToLower(strings.TrimSpace(interp)) {
	case "", "none", "off":
		return InterpNone
	case "linear":
		return InterpLinear
	default:
		return interp
	}
}

// ParseSchedule reads "at:value" pairs separated by commas, e.g.
// "0:0.1,30:0.01,60:0.001". Checkpoints given as reals are truncated.
func ParseSchedule(s string) ([]Checkpoint, error) {
	var out []Checkpoint
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		at, value, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("schedule entry %q: expected at:value", item)
		}
		atF, err := strconv.ParseFloat(strings.TrimSpace(at), 64)
		if err != nil {
			return nil, fmt.Errorf("schedule entry %q: %w", item, err)
		}
		if math.IsNaN(atF) || math.IsInf(atF, 0) || atF >= math.MaxInt64 || atF <= math.MinInt64 {
			return nil, fmt.Errorf("schedule entry %q: checkpoint out of range", item)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("schedule entry %q: %w", item, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("schedule entry %q: value must be finite", item)
		}
		out = append(out, Checkpoint{At: int64(atF), Value: v})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty schedule")
	}
	return out, nil
}

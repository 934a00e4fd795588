package setter

import (
	"context"
	"errors"

	"hypersched/internal/param"
)

// EpochFunc computes a new value from the number of finished epochs and the
// param's current value.
type EpochFunc func(epoch int, current float64) (float64, error)

// FuncPolicy delegates every decision to an externally supplied function.
// Errors from the function are returned unchanged.
type FuncPolicy struct {
	fn EpochFunc
}

func NewFuncPolicy(fn EpochFunc) (*FuncPolicy, error) {
	if fn == nil {
		return nil, errors.New("func is required")
	}
	return &FuncPolicy{fn: fn}, nil
}

func NewFuncSetter(p param.Param, fn EpochFunc, opts Options) (*Setter, error) {
	policy, err := NewFuncPolicy(fn)
	if err != nil {
		return nil, err
	}
	return New(p, policy, opts)
}

func (*FuncPolicy) Name() string     { return "func" }
func (*FuncPolicy) Cadence() Cadence { return CadenceEpoch }

func (p *FuncPolicy) ValueToSet(ctx context.Context, env Env) (float64, bool, error) {
	current, err := env.Param.Value(ctx)
	if err != nil {
		return 0, false, err
	}
	v, err := p.fn(env.Loop.EpochNum(), current)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

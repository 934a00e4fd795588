// Package setter decides when and to what value a hyperparameter changes
// during a training loop.
package setter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hypersched/internal/callback"
	"hypersched/internal/model"
	"hypersched/internal/param"
	"hypersched/internal/storage"
)

// Cadence selects which periodic trigger a setter reacts to.
type Cadence int

const (
	CadenceEpoch Cadence = iota
	CadenceStep
)

func (c Cadence) String() string {
	if c == CadenceStep {
		return "step"
	}
	return "epoch"
}

// Env is what a policy sees when asked for a value.
type Env struct {
	Loop   callback.Loop
	Param  param.Param
	Logger *slog.Logger
}

// Policy decides the next value of a param. ok=false means "no change".
type Policy interface {
	Name() string
	Cadence() Cadence
	ValueToSet(ctx context.Context, env Env) (value float64, ok bool, err error)
}

type Options struct {
	Logger *slog.Logger
	// OnChange is called after a value different from the previous decision
	// has been written to the param.
	OnChange func(model.ParamChange)
}

// Setter owns one param and applies the decisions of one policy to it.
type Setter struct {
	param    param.Param
	policy   Policy
	logger   *slog.Logger
	onChange func(model.ParamChange)

	lastValue    float64
	hasLast      bool
	lastEpochSet int
}

var _ callback.Callback = (*Setter)(nil)

func New(p param.Param, policy Policy, opts Options) (*Setter, error) {
	if p == nil {
		return nil, errors.New("param is required")
	}
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Setter{
		param:        p,
		policy:       policy,
		logger:       logger,
		onChange:     opts.OnChange,
		lastEpochSet: -1,
	}, nil
}

// ParamFor treats a bare name as a variable-backed param.
func ParamFor(name string, store storage.VariableStore) param.Param {
	return param.NewVarParam(name, store)
}

func (s *Setter) Param() param.Param { return s.param }
func (s *Setter) Policy() Policy     { return s.policy }
func (s *Setter) Cadence() Cadence   { return s.policy.Cadence() }

// Name identifies the setter as policy/param.
func (s *Setter) Name() string {
	return s.policy.Name() + "/" + s.param.ReadableName()
}

func (s *Setter) Setup(ctx context.Context) error {
	if err := s.param.Setup(ctx); err != nil {
		return fmt.Errorf("setup %s: %w", s.Name(), err)
	}
	return nil
}

// BeforeTrain applies a value before the first epoch so that a checkpoint at
// 0 takes effect immediately.
func (s *Setter) BeforeTrain(ctx context.Context, loop callback.Loop) error {
	return s.apply(ctx, loop)
}

// Trigger runs the decide-and-apply routine regardless of cadence.
func (s *Setter) Trigger(ctx context.Context, loop callback.Loop) error {
	return s.apply(ctx, loop)
}

func (s *Setter) TriggerEpoch(ctx context.Context, loop callback.Loop) error {
	if s.policy.Cadence() != CadenceEpoch {
		return nil
	}
	return s.apply(ctx, loop)
}

func (s *Setter) TriggerStep(ctx context.Context, loop callback.Loop) error {
	if s.policy.Cadence() != CadenceStep {
		return nil
	}
	return s.apply(ctx, loop)
}

// CurrentValue reads the param's value from its backing store.
func (s *Setter) CurrentValue(ctx context.Context) (float64, error) {
	return s.param.Value(ctx)
}

// ValueToSet asks the policy for a value and updates the bookkeeping,
// announcing a change at most once per epoch. It does not write the param.
func (s *Setter) ValueToSet(ctx context.Context, loop callback.Loop) (float64, bool, error) {
	v, ok, _, err := s.decide(ctx, loop)
	return v, ok, err
}

func (s *Setter) decide(ctx context.Context, loop callback.Loop) (float64, bool, bool, error) {
	v, ok, err := s.policy.ValueToSet(ctx, Env{Loop: loop, Param: s.param, Logger: s.logger})
	if err != nil {
		return 0, false, false, fmt.Errorf("%s: %w", s.Name(), err)
	}

	changed := ok && (!s.hasLast || v != s.lastValue)
	if changed {
		epoch := loop.EpochNum()
		if epoch != s.lastEpochSet {
			s.logger.Info("hyperparam will change",
				"global_step", loop.GlobalStep(),
				"param", s.param.ReadableName(),
				"value", fmt.Sprintf("%.8f", v),
			)
		}
		s.lastEpochSet = epoch
	}
	s.lastValue, s.hasLast = v, ok
	return v, ok, changed, nil
}

func (s *Setter) apply(ctx context.Context, loop callback.Loop) error {
	v, ok, changed, err := s.decide(ctx, loop)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := s.param.SetValue(ctx, v); err != nil {
		return fmt.Errorf("set %s: %w", s.param.ReadableName(), err)
	}
	if changed && s.onChange != nil {
		s.onChange(model.ParamChange{
			VersionedRecord: storage.CurrentVersion(),
			Epoch:           loop.EpochNum(),
			GlobalStep:      loop.GlobalStep(),
			Param:           s.param.ReadableName(),
			Setter:          s.policy.Name(),
			Value:           v,
		})
	}
	return nil
}

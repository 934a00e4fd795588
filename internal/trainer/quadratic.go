package trainer

import (
	"context"
	"fmt"
	"math/rand"

	"hypersched/internal/storage"
)

type QuadraticConfig struct {
	Dim       int
	Curvature float64
	Noise     float64
	Start     float64
	Seed      int64
	// LearningRateVar names the store variable read before every step.
	LearningRateVar string
	// MomentumVar is optional; an undefined variable means no momentum.
	MomentumVar string
}

// Quadratic minimises 0.5*c*|w|^2 with noisy gradient descent. Its
// hyperparameters live in a variable store so setters can change them
// between steps.
type Quadratic struct {
	cfg  QuadraticConfig
	vars storage.VariableStore
	rng  *rand.Rand
	w    []float64
	vel  []float64
}

func NewQuadratic(cfg QuadraticConfig, vars storage.VariableStore) (*Quadratic, error) {
	if vars == nil {
		return nil, fmt.Errorf("variable store is required")
	}
	if cfg.Dim <= 0 {
		cfg.Dim = 8
	}
	if cfg.Curvature <= 0 {
		cfg.Curvature = 1
	}
	if cfg.Noise < 0 {
		return nil, fmt.Errorf("noise must be >= 0")
	}
	if cfg.Start == 0 {
		cfg.Start = 1
	}
	if cfg.LearningRateVar == "" {
		cfg.LearningRateVar = "learning_rate"
	}

	q := &Quadratic{
		cfg:  cfg,
		vars: vars,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		w:    make([]float64, cfg.Dim),
		vel:  make([]float64, cfg.Dim),
	}
	for i := range q.w {
		q.w[i] = cfg.Start
	}
	return q, nil
}

func (q *Quadratic) Step(ctx context.Context) (map[string]float64, error) {
	lr, ok, err := q.vars.GetVariable(ctx, q.cfg.LearningRateVar)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("variable %s is not defined", q.cfg.LearningRateVar)
	}
	momentum := 0.0
	if q.cfg.MomentumVar != "" {
		if m, ok, err := q.vars.GetVariable(ctx, q.cfg.MomentumVar); err != nil {
			return nil, err
		} else if ok {
			momentum = m
		}
	}

	for i := range q.w {
		grad := q.cfg.Curvature*q.w[i] + q.cfg.Noise*q.rng.NormFloat64()
		q.vel[i] = momentum*q.vel[i] - lr*grad
		q.w[i] += q.vel[i]
	}
	return map[string]float64{"train-loss": q.loss()}, nil
}

func (q *Quadratic) Evaluate(context.Context) (map[string]float64, error) {
	return map[string]float64{"val-error": q.loss()}, nil
}

func (q *Quadratic) loss() float64 {
	sum := 0.0
	for _, v := range q.w {
		sum += v * v
	}
	return 0.5 * q.cfg.Curvature * sum
}

// Package trainer drives an iterative workload epoch by epoch and invokes
// callbacks at the documented points of the loop.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"hypersched/internal/callback"
	"hypersched/internal/model"
	"hypersched/internal/monitor"
)

// Workload is one trainable process. Step runs a single optimisation step
// and Evaluate runs once at the end of every epoch. Both report statistics
// by name.
type Workload interface {
	Step(ctx context.Context) (map[string]float64, error)
	Evaluate(ctx context.Context) (map[string]float64, error)
}

type Config struct {
	Epochs        int
	StepsPerEpoch int
	Workload      Workload
	Callbacks     []callback.Callback
	Monitor       *monitor.Monitor
	Logger        *slog.Logger
}

type Result struct {
	Epochs     int
	GlobalStep int64
	History    []model.StatSeries
}

// Trainer runs the loop on the calling goroutine; callbacks are invoked
// sequentially and never concurrently.
type Trainer struct {
	cfg        Config
	epoch      int
	globalStep int64
}

var _ callback.Loop = (*Trainer)(nil)

func New(cfg Config) (*Trainer, error) {
	if cfg.Workload == nil {
		return nil, fmt.Errorf("workload is required")
	}
	if cfg.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be > 0")
	}
	if cfg.StepsPerEpoch <= 0 {
		return nil, fmt.Errorf("steps per epoch must be > 0")
	}
	for i, cb := range cfg.Callbacks {
		if cb == nil {
			return nil, fmt.Errorf("callback is required at index %d", i)
		}
	}
	if cfg.Monitor == nil {
		cfg.Monitor = monitor.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Trainer{cfg: cfg}, nil
}

func (t *Trainer) EpochNum() int                          { return t.epoch }
func (t *Trainer) GlobalStep() int64                      { return t.globalStep }
func (t *Trainer) History(name string) ([]float64, error) { return t.cfg.Monitor.History(name) }
func (t *Trainer) Monitor() *monitor.Monitor              { return t.cfg.Monitor }

func (t *Trainer) Run(ctx context.Context) (Result, error) {
	for _, cb := range t.cfg.Callbacks {
		if err := cb.Setup(ctx); err != nil {
			return Result{}, err
		}
	}
	for _, cb := range t.cfg.Callbacks {
		if err := cb.BeforeTrain(ctx, t); err != nil {
			return Result{}, fmt.Errorf("before train: %w", err)
		}
	}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := t.runEpoch(ctx, epoch); err != nil {
			return Result{}, fmt.Errorf("epoch %d: %w", epoch, err)
		}
	}

	return Result{
		Epochs:     t.epoch,
		GlobalStep: t.globalStep,
		History:    t.cfg.Monitor.Snapshot(),
	}, nil
}

func (t *Trainer) runEpoch(ctx context.Context, epoch int) error {
	sums := map[string]float64{}
	for i := 0; i < t.cfg.StepsPerEpoch; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := t.cfg.Workload.Step(ctx)
		if err != nil {
			return fmt.Errorf("step %d: %w", t.globalStep+1, err)
		}
		for name, v := range stats {
			sums[name] += v
		}
		t.globalStep++
		for _, cb := range t.cfg.Callbacks {
			if err := cb.TriggerStep(ctx, t); err != nil {
				return err
			}
		}
	}

	evalStats, err := t.cfg.Workload.Evaluate(ctx)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	epochStats := make(map[string]float64, len(sums)+len(evalStats))
	for name, sum := range sums {
		epochStats[name] = sum / float64(t.cfg.StepsPerEpoch)
	}
	for name, v := range evalStats {
		epochStats[name] = v
	}
	t.cfg.Monitor.PutAll(epochStats)
	t.epoch = epoch
	t.cfg.Logger.Info("epoch finished", append([]any{"epoch", epoch, "global_step", t.globalStep}, statAttrs(epochStats)...)...)

	for _, cb := range t.cfg.Callbacks {
		if err := cb.TriggerEpoch(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func statAttrs(stats map[string]float64) []any {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := make([]any, 0, len(names)*2)
	for _, name := range names {
		attrs = append(attrs, name, stats[name])
	}
	return attrs
}

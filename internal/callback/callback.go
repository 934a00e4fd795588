// Package callback defines the hooks a training loop invokes and the loop
// state those hooks can observe.
package callback

import "context"

// Loop is the read-only view of a running training loop.
//
// EpochNum is the number of completed epochs: 0 before training, 1 after
// the first epoch. GlobalStep counts completed steps across all epochs.
// History returns the recorded values of a statistic, oldest first, and
// fails with monitor.ErrStatNotFound for unknown names.
type Loop interface {
	EpochNum() int
	GlobalStep() int64
	History(name string) ([]float64, error)
}

// Callback is invoked by the loop in this order: Setup once, BeforeTrain
// once, then TriggerStep after every step and TriggerEpoch after every
// epoch.
type Callback interface {
	Setup(ctx context.Context) error
	BeforeTrain(ctx context.Context, loop Loop) error
	TriggerStep(ctx context.Context, loop Loop) error
	TriggerEpoch(ctx context.Context, loop Loop) error
}

// Base is a no-op Callback for embedding.
type Base struct{}

func (Base) Setup(context.Context) error              { return nil }
func (Base) BeforeTrain(context.Context, Loop) error  { return nil }
func (Base) TriggerStep(context.Context, Loop) error  { return nil }
func (Base) TriggerEpoch(context.Context, Loop) error { return nil }

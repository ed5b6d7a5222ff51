package ser

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// StepStats is reported to an Observer after every snapshot the simulator
// produces, including the initial one.
type StepStats struct {
	Step     int
	Recorded bool
	Counts   Counts
}

// Observer receives per-step statistics. Implementations must not block for
// long; they run on the simulation goroutine.
type Observer interface {
	ObserveStep(StepStats)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(StepStats)

// ObserveStep calls f.
func (f ObserverFunc) ObserveStep(s StepStats) { f(s) }

type options struct {
	observers []Observer
	workers   int
}

// Option configures a Simulator or Run.
type Option func(*options)

// WithObserver registers an observer. Nil observers are ignored.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observers = append(opts.observers, o)
		}
	}
}

// WithWorkers switches stepping to the sub-stream mode with k goroutines.
// k <= 0 keeps the sequential single-stream mode.
func WithWorkers(k int) Option {
	return func(opts *options) {
		opts.workers = k
	}
}

// Simulator owns the state of one run: the current snapshot, the step index
// and the generator. It holds exactly one snapshot at a time.
type Simulator struct {
	conn    Connectome
	params  Params
	rng     *rand.Rand
	opts    options
	current Snapshot
	step    int
}

// NewSimulator validates p and c and builds the initial snapshot. All
// configuration and numeric errors are reported here, before any step.
func NewSimulator(c Connectome, p Params, opts ...Option) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := CheckConnectome(c); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rng := NewRand(p.Seed)
	s := &Simulator{
		conn:    c,
		params:  p,
		rng:     rng,
		opts:    o,
		current: Initialize(c.Size(), p.PropActive, rng),
	}
	s.notify()
	return s, nil
}

// Current returns a copy of the current snapshot.
func (s *Simulator) Current() Snapshot {
	return s.current.Clone()
}

// StepIndex returns the index of the current snapshot; the initial snapshot
// is step 0.
func (s *Simulator) StepIndex() int {
	return s.step
}

// Params returns the run parameters.
func (s *Simulator) Params() Params {
	return s.params
}

// Advance replaces the current snapshot with the next one.
func (s *Simulator) Advance(ctx context.Context) error {
	var next Snapshot
	if s.opts.workers > 0 {
		var err error
		next, err = StepParallel(ctx, s.current, s.conn, s.params, s.step, s.opts.workers)
		if err != nil {
			return fmt.Errorf("step %d: %w", s.step+1, err)
		}
	} else {
		next = Step(s.current, s.conn, s.params, s.rng)
	}
	s.current = next
	s.step++
	s.notify()
	return nil
}

func (s *Simulator) notify() {
	if len(s.opts.observers) == 0 {
		return
	}
	stats := StepStats{
		Step:     s.step,
		Recorded: s.step >= s.params.Transient,
		Counts:   s.current.Counts(),
	}
	for _, o := range s.opts.observers {
		o.ObserveStep(stats)
	}
}

// Run simulates p.Steps snapshots on c and returns the recorded ones.
// Snapshot t is recorded when t >= p.Transient, so the matrix has
// p.Steps-p.Transient rows and c.Size() columns. Cancelling ctx aborts the
// run and returns ctx's error with no matrix.
func Run(ctx context.Context, p Params, c Connectome, opts ...Option) (*ActivationMatrix, error) {
	sim, err := NewSimulator(c, p, opts...)
	if err != nil {
		return nil, err
	}

	m := NewActivationMatrix(p.RecordedSteps(), c.Size())
	for t := 0; t < p.Steps; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t > 0 {
			if err := sim.Advance(ctx); err != nil {
				return nil, err
			}
		}
		if t >= p.Transient {
			m.setRow(t-p.Transient, sim.current)
		}
	}
	return m, nil
}

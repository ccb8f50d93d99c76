package ew

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"reflect"
)

// Result is the immutable record of a finished (or failed) run.
type Result struct {
	// Seed is the seed of the run's random source, if known.
	Seed int64
	Best Point
	// Trace holds the best value so far after each iteration.
	Trace      []float64
	Evals      int
	Iterations int
	State      State
	Err        error
}

func (r Result) Failed() bool { return r.State == Failed }

type Option func(*Optimizer)

func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) {
		o.log = l
	}
}

// Optimizer runs a Method iteration by iteration until its StopChecker
// fires.  An Optimizer owns its random source and must only be used from a
// single goroutine.
type Optimizer struct {
	method Method
	goal   *Goal
	rng    *rand.Rand
	stop   StopChecker
	log    *slog.Logger
	state  State
	iter   int
	best   Point
	trace  []float64
	err    error
}

func NewOptimizer(m Method, goal *Goal, rng *rand.Rand, stop StopChecker, opts ...Option) (*Optimizer, error) {
	var errs []error
	for name, v := range map[string]any{"method": m, "goal": goal, "rng": rng, "stop": stop} {
		if isNil(v) {
			errs = append(errs, &ConfigError{Kind: ErrInvalidParameter, Field: name, Value: nil, Rule: "required"})
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	o := &Optimizer{
		method: m,
		goal:   goal,
		rng:    rng,
		stop:   stop,
		log:    slog.Default(),
		best:   Point{Val: math.Inf(1)},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Init builds the initial population.  Calling Init on a running optimizer
// does nothing.
func (o *Optimizer) Init() error {
	switch {
	case o.state.Terminal():
		return ErrAlreadyFinished
	case o.state == Running:
		return nil
	}

	best, err := o.method.Init(o.goal, o.rng)
	if err != nil {
		return o.fail(fmt.Errorf("init: %w", err))
	}
	o.best = best
	o.state = Running
	o.log.Debug("optimizer initialized", "best", best.Val, "evals", o.goal.Count())
	return nil
}

// Step runs a single iteration, initializing the optimizer first if
// necessary.  Stepping a finished optimizer fails with ErrAlreadyFinished.
func (o *Optimizer) Step() (IterationState, error) {
	if o.state.Terminal() {
		return o.iterState(), ErrAlreadyFinished
	} else if o.state == Initialized {
		if err := o.Init(); err != nil {
			return o.iterState(), err
		}
	}

	o.iter++
	best, err := o.method.Iterate(o.iter, o.goal, o.rng)
	if err != nil {
		return o.iterState(), o.fail(fmt.Errorf("iteration %v: %w", o.iter, err))
	}
	if best.Val < o.best.Val {
		o.best = best
	}
	o.trace = append(o.trace, o.best.Val)

	s := o.iterState()
	o.log.Debug("iteration finished", "iter", o.iter, "best", o.best.Val, "evals", s.Evals)
	if next := o.stop.Check(s); next.Terminal() {
		o.state = next
		s.State = next
		o.log.Debug("optimizer finished", "state", next, "iter", o.iter, "best", o.best.Val, "evals", s.Evals)
	}
	return s, nil
}

// Next steps the optimizer and reports whether another step may follow.
// Check Err once Next returns false.
func (o *Optimizer) Next() bool {
	if o.state.Terminal() {
		return false
	}
	_, err := o.Step()
	return err == nil && !o.state.Terminal()
}

// Run steps the optimizer until it finishes and returns its result.
func (o *Optimizer) Run() (Result, error) {
	for o.Next() {
	}
	return o.Result(), o.err
}

// Stop ends a running optimizer with state StoppedExternally.
func (o *Optimizer) Stop() {
	if !o.state.Terminal() {
		o.state = StoppedExternally
	}
}

func (o *Optimizer) fail(err error) error {
	o.state = Failed
	o.err = err
	o.log.Debug("optimizer failed", "iter", o.iter, "error", err)
	return err
}

func (o *Optimizer) iterState() IterationState {
	return IterationState{Iter: o.iter, Best: o.best.Val, Evals: o.goal.Count(), State: o.state}
}

func (o *Optimizer) Finished() bool { return o.state.Terminal() }

func (o *Optimizer) State() State { return o.state }

func (o *Optimizer) Best() Point { return o.best }

// Err returns the error that made the run fail, if any.
func (o *Optimizer) Err() error { return o.err }

func (o *Optimizer) Niter() int { return o.iter }

func (o *Optimizer) Neval() int { return o.goal.Count() }

// Trace returns a copy of the per-iteration best values.
func (o *Optimizer) Trace() []float64 { return append([]float64(nil), o.trace...) }

func (o *Optimizer) Result() Result {
	return Result{
		Best:       o.best,
		Trace:      o.Trace(),
		Evals:      o.goal.Count(),
		Iterations: o.iter,
		State:      o.state,
		Err:        o.err,
	}
}

package ew

import "math/rand"

// Method is a population-based search strategy.  Optimizer drives any Method
// the same way: Init once, then Iterate until a stop condition fires.
type Method interface {
	// Init builds and evaluates the initial population using rng for every
	// random decision.  It returns the best point of that population.
	Init(goal *Goal, rng *rand.Rand) (best Point, err error)

	// Iterate runs iteration iter (starting at 1) and returns the best point
	// found so far.  Shared state (global best, next generation) must be
	// committed only after every member of the population was processed.
	Iterate(iter int, goal *Goal, rng *rand.Rand) (best Point, err error)
}

type State int

const (
	Initialized State = iota
	Running
	Converged
	MaxIterationsReached
	StoppedExternally
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max-iterations"
	case StoppedExternally:
		return "stopped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further iterations may run in state s.
func (s State) Terminal() bool { return s >= Converged }

// IterationState summarizes a run after an iteration.
type IterationState struct {
	Iter  int
	Best  float64
	Evals int
	State State
}

package ew

import "math"

// StopChecker decides when a run ends.  Check returns the terminal state to
// enter, or Running to continue.  Checkers may keep state and must not be
// shared between runs.
type StopChecker interface {
	Check(s IterationState) State
}

// MaxIterations stops a run once it has performed n iterations.
type MaxIterations int

func (n MaxIterations) Check(s IterationState) State {
	if s.Iter >= int(n) {
		return MaxIterationsReached
	}
	return Running
}

// Threshold stops a run once the best value is within Tolerance of (or
// below) Target.
type Threshold struct {
	Target    float64
	Tolerance float64
}

func (t Threshold) Check(s IterationState) State {
	if s.Best-t.Target <= t.Tolerance {
		return Converged
	}
	return Running
}

// NoImprovement stops a run when the best value has not decreased by more
// than Delta for Iterations consecutive iterations.
type NoImprovement struct {
	Iterations int
	Delta      float64
	best       float64
	count      int
	seen       bool
}

func (c *NoImprovement) Check(s IterationState) State {
	if !c.seen || c.best-s.Best > c.Delta {
		c.best = s.Best
		c.count = 0
		c.seen = true
		return Running
	}

	c.count++
	if c.count >= c.Iterations {
		return Converged
	}
	return Running
}

type anyChecker []StopChecker

// Any combines checkers; the first one requesting a stop wins.
func Any(checkers ...StopChecker) StopChecker { return anyChecker(checkers) }

func (a anyChecker) Check(s IterationState) State {
	for _, c := range a {
		if st := c.Check(s); st.Terminal() {
			return st
		}
	}
	return Running
}

// StopConfig is the declarative form of the usual stop conditions.  Target
// is optional, as is NoImprovement (zero disables it).
type StopConfig struct {
	MaxIterations      int      `validate:"gt=0"`
	Target             *float64 `validate:"-"`
	Tolerance          float64  `validate:"gte=0"`
	NoImprovement      int      `validate:"gte=0"`
	NoImprovementDelta float64  `validate:"gte=0"`
}

var stopKinds = map[string]error{
	"MaxIterations": ErrInvalidIterations,
	"NoImprovement": ErrInvalidIterations,
}

// Checker validates c and builds a fresh composite checker from it.
func (c StopConfig) Checker() (StopChecker, error) {
	var extra error
	if c.Target != nil && (math.IsNaN(*c.Target) || math.IsInf(*c.Target, 0)) {
		extra = &ConfigError{Kind: ErrInvalidParameter, Field: "StopConfig.Target", Value: *c.Target, Rule: "finite"}
	}
	if err := Validate(c, stopKinds, extra); err != nil {
		return nil, err
	}

	checkers := []StopChecker{MaxIterations(c.MaxIterations)}
	if c.Target != nil {
		checkers = append(checkers, Threshold{Target: *c.Target, Tolerance: c.Tolerance})
	}
	if c.NoImprovement > 0 {
		checkers = append(checkers, &NoImprovement{Iterations: c.NoImprovement, Delta: c.NoImprovementDelta})
	}
	return Any(checkers...), nil
}

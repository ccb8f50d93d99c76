package stats

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/yuulive/ew"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoResults is returned by aggregates of a collection without a single
// successful run.
var ErrNoResults = errors.New("no successful runs")

// Statistics is a read-only view over the results of a collection.  Failed
// runs are kept and counted but never enter an aggregate.
type Statistics struct {
	id      string
	results []ew.Result
	align   Align
}

// FromResults builds statistics over already collected results.
func FromResults(results []ew.Result, align Align) *Statistics {
	st := &Statistics{id: uuid.NewString(), align: align}
	st.results = copyResults(results)
	return st
}

func copyResults(results []ew.Result) []ew.Result {
	dup := make([]ew.Result, len(results))
	for i, r := range results {
		r.Trace = append([]float64(nil), r.Trace...)
		dup[i] = r
	}
	return dup
}

// ID identifies the collection in written records.
func (s *Statistics) ID() string { return s.id }

func (s *Statistics) Results() []ew.Result { return copyResults(s.results) }

func (s *Statistics) RunCount() int { return len(s.results) }

func (s *Statistics) FailedCount() int {
	n := 0
	for _, r := range s.results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Valid returns the results of the runs that did not fail.
func (s *Statistics) Valid() []ew.Result {
	var valid []ew.Result
	for _, r := range s.results {
		if !r.Failed() {
			valid = append(valid, r)
		}
	}
	return copyResults(valid)
}

func (s *Statistics) valid() ([]ew.Result, error) {
	var valid []ew.Result
	for _, r := range s.results {
		if !r.Failed() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoResults
	}
	return valid, nil
}

// AverageConvergence returns the mean best value at each iteration.  Traces
// of different lengths are aligned according to the collection's Align
// policy.
func (s *Statistics) AverageConvergence() ([]float64, error) {
	valid, err := s.valid()
	if err != nil {
		return nil, err
	}

	traces := make([][]float64, len(valid))
	n := -1
	for i, r := range valid {
		traces[i] = r.Trace
		if len(traces[i]) == 0 {
			traces[i] = []float64{r.Best.Val}
		}
		switch {
		case n < 0:
			n = len(traces[i])
		case s.align == Truncate:
			n = min(n, len(traces[i]))
		default:
			n = max(n, len(traces[i]))
		}
	}

	avg := make([]float64, n)
	col := make([]float64, len(traces))
	for k := range avg {
		for i, tr := range traces {
			col[i] = tr[min(k, len(tr)-1)]
		}
		avg[k] = stat.Mean(col, nil)
	}
	return avg, nil
}

func (s *Statistics) goals() ([]float64, error) {
	valid, err := s.valid()
	if err != nil {
		return nil, err
	}
	x := make([]float64, len(valid))
	for i, r := range valid {
		x[i] = r.Best.Val
	}
	return x, nil
}

// AverageGoal returns the mean final best value.
func (s *Statistics) AverageGoal() (float64, error) {
	x, err := s.goals()
	if err != nil {
		return math.NaN(), err
	}
	return stat.Mean(x, nil), nil
}

// StdDevGoal returns the population standard deviation (divided by N) of
// the final best values.
func (s *Statistics) StdDevGoal() (float64, error) {
	x, err := s.goals()
	if err != nil {
		return math.NaN(), err
	}
	_, std := stat.PopMeanStdDev(x, nil)
	return std, nil
}

func (s *Statistics) solutions() ([][]float64, error) {
	valid, err := s.valid()
	if err != nil {
		return nil, err
	}

	dim := valid[0].Best.Len()
	cols := make([][]float64, dim)
	for j := range cols {
		cols[j] = make([]float64, len(valid))
	}
	for i, r := range valid {
		if r.Best.Len() != dim {
			return nil, fmt.Errorf("%w: run %v has a %v dimensional solution, want %v", ew.ErrDimensionMismatch, i, r.Best.Len(), dim)
		}
		for j := range cols {
			cols[j][i] = r.Best.At(j)
		}
	}
	return cols, nil
}

// AverageSolution returns the component-wise mean of the final solutions.
func (s *Statistics) AverageSolution() ([]float64, error) {
	cols, err := s.solutions()
	if err != nil {
		return nil, err
	}
	avg := make([]float64, len(cols))
	for j, col := range cols {
		avg[j] = stat.Mean(col, nil)
	}
	return avg, nil
}

// StdDevSolution returns the component-wise population standard deviation
// of the final solutions.
func (s *Statistics) StdDevSolution() ([]float64, error) {
	cols, err := s.solutions()
	if err != nil {
		return nil, err
	}
	std := make([]float64, len(cols))
	for j, col := range cols {
		_, std[j] = stat.PopMeanStdDev(col, nil)
	}
	return std, nil
}

// Predicate decides whether a run succeeded.
type Predicate func(r ew.Result) bool

func GoalBelow(threshold float64) Predicate {
	return func(r ew.Result) bool { return r.Best.Val <= threshold }
}

func GoalAbove(threshold float64) Predicate {
	return func(r ew.Result) bool { return r.Best.Val >= threshold }
}

// WithinDistance accepts runs whose final solution lies within the given
// euclidean distance of ref.
func WithinDistance(ref []float64, radius float64) Predicate {
	return func(r ew.Result) bool {
		if r.Best.Len() != len(ref) {
			return false
		}
		return floats.Distance(r.Best.Pos(), ref, 2) <= radius
	}
}

// WithinBox accepts runs whose final solution differs from ref by at most
// delta in every coordinate.  A single delta applies to all coordinates.
func WithinBox(ref, delta []float64) Predicate {
	return func(r ew.Result) bool {
		if r.Best.Len() != len(ref) || (len(delta) != 1 && len(delta) != len(ref)) {
			return false
		}
		for i, x := range ref {
			d := delta[0]
			if len(delta) > 1 {
				d = delta[i]
			}
			if math.Abs(r.Best.At(i)-x) > d {
				return false
			}
		}
		return true
	}
}

// SuccessRate returns the fraction of successful runs accepted by pred.
func (s *Statistics) SuccessRate(pred Predicate) (float64, error) {
	valid, err := s.valid()
	if err != nil {
		return math.NaN(), err
	}
	n := 0
	for _, r := range valid {
		if pred(r) {
			n++
		}
	}
	return float64(n) / float64(len(valid)), nil
}

// SuccessRateGoal returns the fraction of runs whose final value is at most
// threshold.  If maximize is true, the runs are assumed to have optimized
// ew.Maximize(obj) and the fraction of runs with obj at least threshold is
// returned.
func (s *Statistics) SuccessRateGoal(threshold float64, maximize bool) (float64, error) {
	if maximize {
		return s.SuccessRate(GoalBelow(-threshold))
	}
	return s.SuccessRate(GoalBelow(threshold))
}

func (s *Statistics) SuccessRateSolution(ref []float64, radius float64) (float64, error) {
	return s.SuccessRate(WithinDistance(ref, radius))
}

func (s *Statistics) SuccessRateBox(ref, delta []float64) (float64, error) {
	return s.SuccessRate(WithinBox(ref, delta))
}

// AverageEvaluations returns the mean number of objective evaluations per
// run.
func (s *Statistics) AverageEvaluations() (float64, error) {
	valid, err := s.valid()
	if err != nil {
		return math.NaN(), err
	}
	x := make([]float64, len(valid))
	for i, r := range valid {
		x[i] = float64(r.Evals)
	}
	return stat.Mean(x, nil), nil
}

func (s *Statistics) AverageIterations() (float64, error) {
	valid, err := s.valid()
	if err != nil {
		return math.NaN(), err
	}
	x := make([]float64, len(valid))
	for i, r := range valid {
		x[i] = float64(r.Iterations)
	}
	return stat.Mean(x, nil), nil
}

// Merge returns statistics over the results of s and others, aligned the
// way s is.
func (s *Statistics) Merge(others ...*Statistics) *Statistics {
	all := append([]ew.Result(nil), s.results...)
	for _, o := range others {
		all = append(all, o.results...)
	}
	return FromResults(all, s.align)
}

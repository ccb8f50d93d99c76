// Package ew drives population-based metaheuristics (genetic algorithms,
// particle swarms) through a common iteration contract.
package ew

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
)

// Point is an immutable position in the search space along with its
// objective value.  Unevaluated points carry a value of +infinity.
type Point struct {
	pos []float64
	Val float64
}

func NewPoint(pos []float64, val float64) Point {
	cpos := make([]float64, len(pos))
	copy(cpos, pos)
	return Point{pos: cpos, Val: val}
}

func (p Point) At(i int) float64 { return p.pos[i] }

func (p Point) Len() int { return len(p.pos) }

// Pos returns a copy of p's position.
func (p Point) Pos() []float64 {
	pos := make([]float64, len(p.pos))
	copy(pos, p.pos)
	return pos
}

func (p Point) String() string { return fmt.Sprintf("f%v=%v", p.pos, p.Val) }

// Hash returns a digest of p's position (the value is ignored).
func (p Point) Hash() [sha1.Size]byte {
	data := make([]byte, p.Len()*8)
	for i := 0; i < p.Len(); i++ {
		binary.BigEndian.PutUint64(data[i*8:], math.Float64bits(p.At(i)))
	}
	return sha1.Sum(data)
}

type Objectiver interface {
	// Objective evaluates the variables in v and returns the objective
	// function value.  The objective function must be framed so that lower
	// values are better.
	Objective(v []float64) (float64, error)
}

// Func adapts a plain function to the Objectiver interface.
type Func func([]float64) float64

func (f Func) Objective(v []float64) (float64, error) { return f(v), nil }

type negated struct{ Objectiver }

func (n negated) Objective(v []float64) (float64, error) {
	val, err := n.Objectiver.Objective(v)
	return -val, err
}

// Maximize wraps obj so that maximizing it becomes a minimization problem.
// Values reported by optimizers are then the negated objective values.
func Maximize(obj Objectiver) Objectiver { return negated{obj} }

// LogObjective wraps obj so that every evaluation is logged at debug level.
func LogObjective(obj Objectiver, log *slog.Logger) Objectiver {
	return &objectiveLogger{Objectiver: obj, log: log}
}

type objectiveLogger struct {
	Objectiver
	log   *slog.Logger
	count atomic.Int64
}

func (ol *objectiveLogger) Objective(v []float64) (float64, error) {
	val, err := ol.Objectiver.Objective(v)
	ol.log.Debug("objective evaluated", "n", ol.count.Add(1), "x", v, "val", val, "error", err)
	return val, err
}

// Goal wraps an objective over a fixed number of dimensions and counts how
// many times it has been evaluated.  Goal is safe for concurrent use.
type Goal struct {
	obj   Objectiver
	dim   int
	count atomic.Int64
}

func NewGoal(dim int, obj Objectiver) (*Goal, error) {
	if dim <= 0 {
		return nil, &ConfigError{Kind: ErrInvalidDimension, Field: "dim", Value: dim, Rule: "gt=0"}
	} else if obj == nil {
		return nil, &ConfigError{Kind: ErrInvalidParameter, Field: "obj", Value: nil, Rule: "required"}
	}
	return &Goal{obj: obj, dim: dim}, nil
}

func (g *Goal) Dim() int { return g.dim }

// Count returns the number of evaluations performed so far.
func (g *Goal) Count() int { return int(g.count.Load()) }

// Evaluate computes the objective at v.  The evaluation counter is left
// untouched when v has the wrong length.  A non-finite objective value is
// returned along with an error wrapping ErrNumericFailure.
func (g *Goal) Evaluate(v []float64) (float64, error) {
	if len(v) != g.dim {
		return math.Inf(1), fmt.Errorf("%w: got %v values, want %v", ErrDimensionMismatch, len(v), g.dim)
	}
	g.count.Add(1)

	val, err := g.obj.Objective(append([]float64(nil), v...))
	if err != nil {
		return math.Inf(1), err
	} else if math.IsNaN(val) || math.IsInf(val, 0) {
		return val, fmt.Errorf("%w: f(%v) = %v", ErrNumericFailure, v, val)
	}
	return val, nil
}

type Evaler interface {
	// Eval evaluates each point using goal and returns the evaluated
	// points.  Unevaluated points are not returned in the results slice.
	Eval(goal *Goal, points ...Point) (results []Point, err error)
}

// SerialEvaler evaluates points one after another and stops at the first
// failing evaluation.
type SerialEvaler struct{}

func (ev SerialEvaler) Eval(goal *Goal, points ...Point) (results []Point, err error) {
	results = make([]Point, 0, len(points))
	for _, p := range points {
		val, err := goal.Evaluate(p.pos)
		if err != nil {
			return results, err
		}
		results = append(results, Point{pos: p.pos, Val: val})
	}
	return results, nil
}

// CacheEvaler remembers the values of positions it has already evaluated
// and only forwards new positions to the wrapped Evaler.  A CacheEvaler must
// not be shared between concurrent runs.
type CacheEvaler struct {
	ev    Evaler
	cache map[[sha1.Size]byte]float64
}

func NewCacheEvaler(ev Evaler) *CacheEvaler {
	return &CacheEvaler{
		ev:    ev,
		cache: map[[sha1.Size]byte]float64{},
	}
}

func (ev *CacheEvaler) Eval(goal *Goal, points ...Point) (results []Point, err error) {
	results = make([]Point, len(points))
	fromnew := make([]int, 0, len(points))
	newp := make([]Point, 0, len(points))
	for i, p := range points {
		if val, ok := ev.cache[p.Hash()]; ok {
			results[i] = Point{pos: p.pos, Val: val}
		} else {
			fromnew = append(fromnew, i)
			newp = append(newp, p)
		}
	}

	newresults, err := ev.ev.Eval(goal, newp...)
	for i, p := range newresults {
		ev.cache[p.Hash()] = p.Val
		results[fromnew[i]] = p
	}

	// shrink if error resulted in fewer new results being returned
	if err != nil && len(newresults) < len(fromnew) {
		return results[:fromnew[len(newresults)]], err
	}
	return results, err
}

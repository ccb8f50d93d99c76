// Package bench provides tools for testing solvers against benchmark
// optimization functions from
// http://en.wikipedia.org/wiki/Test_functions_for_optimization.
package bench

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/yuulive/ew"
)

var (
	sin  = math.Sin
	cos  = math.Cos
	abs  = math.Abs
	sqrt = math.Sqrt
)

var AllFuncs = []Func{
	Ackley{},
	Eggholder{},
	Sphere{NDim: 2},
	Paraboloid{NDim: 5},
	Rastrigin{NDim: 2},
	Rastrigin{NDim: 10},
	Schwefel{NDim: 2},
	Schwefel{NDim: 10},
	Styblinski{NDim: 1},
	Styblinski{NDim: 10},
	Styblinski{NDim: 100},
	Rosenbrock{NDim: 2},
	Rosenbrock{NDim: 10},
	Rosenbrock{NDim: 100},
}

type Func interface {
	Eval(v []float64) float64
	Bounds() (low, up []float64)
	Optima() []ew.Point
	Name() string
}

// Objective adapts fn for use as an ew.Goal objective.
func Objective(fn Func) ew.Objectiver { return ew.Func(fn.Eval) }

// Dim returns the number of dimensions of fn.
func Dim(fn Func) int {
	low, _ := fn.Bounds()
	return len(low)
}

type Ackley struct{}

func (fn Ackley) Name() string { return "Ackley" }

func (fn Ackley) Eval(v []float64) float64 {
	x := v[0]
	y := v[1]
	return -20*math.Exp(-0.2*math.Sqrt(0.5*(x*x+y*y))) -
		math.Exp(0.5*(math.Cos(2*math.Pi*x)+math.Cos(2*math.Pi*y))) +
		20 + math.E
}

func (fn Ackley) Bounds() (low, up []float64) {
	return []float64{-5, -5}, []float64{5, 5}
}

func (fn Ackley) Optima() []ew.Point {
	return []ew.Point{
		ew.NewPoint([]float64{0, 0}, 0),
	}
}

type Eggholder struct{}

func (fn Eggholder) Name() string { return "Eggholder" }

func (fn Eggholder) Eval(v []float64) float64 {
	x := v[0]
	y := v[1]
	return -(y+47)*sin(sqrt(abs(y+x/2+47))) - x*sin(sqrt(abs(x-(y+47))))
}

func (fn Eggholder) Bounds() (low, up []float64) {
	return []float64{-512, -512}, []float64{512, 512}
}

func (fn Eggholder) Optima() []ew.Point {
	return []ew.Point{
		ew.NewPoint([]float64{512, 404.2319}, -959.6407),
	}
}

type Styblinski struct {
	NDim int
}

func (fn Styblinski) Name() string { return fmt.Sprintf("Styblinski_%vD", fn.NDim) }

func (fn Styblinski) Eval(x []float64) float64 {
	tot := 0.0
	for _, v := range x {
		v2 := v * v
		tot += v2*v2 - 16*v2 + 5*v
	}
	return tot / 2
}

func (fn Styblinski) Bounds() (low, up []float64) { return box(fn.NDim, 5) }

func (fn Styblinski) Optima() []ew.Point {
	pos := make([]float64, fn.NDim)
	for i := range pos {
		pos[i] = -2.903534
	}
	return []ew.Point{
		ew.NewPoint(pos, -39.16599*float64(fn.NDim)),
	}
}

type Rosenbrock struct {
	NDim int
}

func (fn Rosenbrock) Name() string { return fmt.Sprintf("Rosenbrock_%vD", fn.NDim) }

func (fn Rosenbrock) Eval(x []float64) float64 {
	tot := 0.0
	for i := 1; i < len(x); i++ {
		a, b := x[i]-x[i-1]*x[i-1], x[i-1]-1
		tot += 100*a*a + b*b
	}
	return tot
}

func (fn Rosenbrock) Bounds() (low, up []float64) { return box(fn.NDim, 1000) }

func (fn Rosenbrock) Optima() []ew.Point {
	pos := make([]float64, fn.NDim)
	for i := range pos {
		pos[i] = 1
	}
	return []ew.Point{
		ew.NewPoint(pos, 0),
	}
}

func box(ndim int, lim float64) (low, up []float64) {
	low = make([]float64, ndim)
	up = make([]float64, ndim)
	for i := range low {
		low[i] = -lim
		up[i] = lim
	}
	return low, up
}

// Sphere is the sum of squares.
type Sphere struct {
	NDim int
}

func (fn Sphere) Name() string { return fmt.Sprintf("Sphere_%vD", fn.NDim) }

func (fn Sphere) Eval(x []float64) float64 {
	tot := 0.0
	for _, v := range x {
		tot += v * v
	}
	return tot
}

func (fn Sphere) Bounds() (low, up []float64) { return box(fn.NDim, 500) }

func (fn Sphere) Optima() []ew.Point {
	return []ew.Point{ew.NewPoint(make([]float64, fn.NDim), 0)}
}

// Paraboloid is a bowl with its minimum at (1, 2, ..., NDim).
type Paraboloid struct {
	NDim int
}

func (fn Paraboloid) Name() string { return fmt.Sprintf("Paraboloid_%vD", fn.NDim) }

func (fn Paraboloid) Eval(x []float64) float64 {
	tot := 0.0
	for i, v := range x {
		d := v - float64(i+1)
		tot += d * d
	}
	return tot
}

func (fn Paraboloid) Bounds() (low, up []float64) { return box(fn.NDim, 100) }

func (fn Paraboloid) Optima() []ew.Point {
	pos := make([]float64, fn.NDim)
	for i := range pos {
		pos[i] = float64(i + 1)
	}
	return []ew.Point{ew.NewPoint(pos, 0)}
}

type Rastrigin struct {
	NDim int
}

func (fn Rastrigin) Name() string { return fmt.Sprintf("Rastrigin_%vD", fn.NDim) }

func (fn Rastrigin) Eval(x []float64) float64 {
	tot := 10 * float64(len(x))
	for _, v := range x {
		tot += v*v - 10*cos(2*math.Pi*v)
	}
	return tot
}

func (fn Rastrigin) Bounds() (low, up []float64) { return box(fn.NDim, 5.12) }

func (fn Rastrigin) Optima() []ew.Point {
	return []ew.Point{ew.NewPoint(make([]float64, fn.NDim), 0)}
}

// Schwefel has its global minimum near the corner of the search box, far
// from the next best local minima.
type Schwefel struct {
	NDim int
}

func (fn Schwefel) Name() string { return fmt.Sprintf("Schwefel_%vD", fn.NDim) }

func (fn Schwefel) Eval(x []float64) float64 {
	tot := 418.9829 * float64(len(x))
	for _, v := range x {
		tot -= v * sin(sqrt(abs(v)))
	}
	return tot
}

func (fn Schwefel) Bounds() (low, up []float64) { return box(fn.NDim, 500) }

func (fn Schwefel) Optima() []ew.Point {
	pos := make([]float64, fn.NDim)
	for i := range pos {
		pos[i] = 420.9687
	}
	return []ew.Point{ew.NewPoint(pos, 0)}
}

var ErrUnknownFunc = errors.New("unknown benchmark function")

// ByName returns the function called name (case insensitive, without the
// dimension suffix) with ndim dimensions.  Two dimensional functions only
// accept ndim == 2.
func ByName(name string, ndim int) (Func, error) {
	if ndim <= 0 {
		return nil, &ew.ConfigError{Kind: ew.ErrInvalidDimension, Field: "ndim", Value: ndim, Rule: "gt=0"}
	}

	var fn Func
	switch strings.ToLower(name) {
	case "sphere":
		return Sphere{NDim: ndim}, nil
	case "paraboloid":
		return Paraboloid{NDim: ndim}, nil
	case "rastrigin":
		return Rastrigin{NDim: ndim}, nil
	case "schwefel":
		return Schwefel{NDim: ndim}, nil
	case "styblinski":
		return Styblinski{NDim: ndim}, nil
	case "rosenbrock":
		return Rosenbrock{NDim: ndim}, nil
	case "ackley":
		fn = Ackley{}
	case "eggholder":
		fn = Eggholder{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunc, name)
	}
	if ndim != 2 {
		return nil, &ew.ConfigError{Kind: ew.ErrInvalidDimension, Field: "ndim", Value: ndim, Rule: "eq=2"}
	}
	return fn, nil
}

// Solved reports whether p is within tol (relative, but at least 0.001) of
// the optimal value of fn.
func Solved(fn Func, p ew.Point, tol float64) bool {
	optimum := fn.Optima()[0].Val
	thresh := tol * abs(optimum)
	if 0.001 > thresh {
		thresh = 0.001
	}
	return abs(optimum-p.Val) < thresh
}

// Benchmark steps o until it finishes or its best point solves fn.
func Benchmark(o *ew.Optimizer, fn Func, tol float64) (best ew.Point, err error) {
	for !o.Finished() {
		if _, err := o.Step(); err != nil {
			return o.Best(), err
		}
		if best = o.Best(); Solved(fn, best, tol) {
			o.Stop()
			return best, nil
		}
	}
	return o.Best(), nil
}

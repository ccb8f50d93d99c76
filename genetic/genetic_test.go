package genetic

import (
	"database/sql"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuulive/ew"
	_ "modernc.org/sqlite"
)

func sphere(v []float64) float64 {
	tot := 0.0
	for _, x := range v {
		tot += x * x
	}
	return tot
}

func bounds(dim int, lim float64) (low, up []float64) {
	low, up = make([]float64, dim), make([]float64, dim)
	for i := range low {
		low[i], up[i] = -lim, lim
	}
	return low, up
}

func newOptimizer(t *testing.T, seed int64, maxiter int, opts ...Option) (*ew.Optimizer, *Method) {
	t.Helper()
	low, up := bounds(2, 500)
	m, err := New(low, up, opts...)
	require.NoError(t, err)
	goal, err := ew.NewGoal(2, ew.Func(sphere))
	require.NoError(t, err)
	o, err := ew.NewOptimizer(m, goal, rand.New(rand.NewSource(seed)), ew.MaxIterations(maxiter))
	require.NoError(t, err)
	return o, m
}

func TestCardinality(t *testing.T) {
	for _, opt := range []Option{TournamentSelection(2), RouletteSelection(), Elitism(0), Elitism(7), CrossoverProb(0)} {
		o, m := newOptimizer(t, 3, 40, PopSize(25), opt)
		require.NoError(t, o.Init())
		assert.Len(t, m.Points(), 25)
		for o.Next() {
			assert.Len(t, m.Points(), 25, "iter %v", o.Niter())
		}
		require.NoError(t, o.Err())
		assert.Equal(t, ew.MaxIterationsReached, o.State())
	}
}

func TestElitismKeepsBest(t *testing.T) {
	o, m := newOptimizer(t, 11, 60, MutationProb(0.5))
	prev := math.Inf(1)
	for o.Next() {
		popbest := math.Inf(1)
		for _, p := range m.Points() {
			popbest = math.Min(popbest, p.Val)
		}
		assert.Equal(t, m.Best().Val, popbest, "iter %v: elite lost", o.Niter())
		assert.LessOrEqual(t, m.Best().Val, prev)
		prev = m.Best().Val
	}
}

func TestBoundsRespected(t *testing.T) {
	o, m := newOptimizer(t, 5, 30, MutationProb(1), MutationScale(5))
	for o.Next() {
		for _, p := range m.Points() {
			for i := 0; i < p.Len(); i++ {
				if p.At(i) < -500 || p.At(i) > 500 {
					t.Fatalf("[FAIL] iter %v: %v is out of bounds", o.Niter(), p)
				}
			}
		}
	}
}

// Population 50, crossover 0.8, mutation 0.05 on a 2D bowl over [-500, 500]
// must find the minimum in at least 27 of 30 runs.
func TestConvergesOnBowl(t *testing.T) {
	const runs = 30
	success := 0
	for seed := int64(0); seed < runs; seed++ {
		o, _ := newOptimizer(t, seed, 200, PopSize(50), CrossoverProb(0.8), MutationProb(0.05))
		r, err := o.Run()
		require.NoError(t, err)
		if r.Best.Val < 1e-2 {
			success++
		}
		t.Logf("[INFO] seed %v: best=%v evals=%v", seed, r.Best.Val, r.Evals)
	}
	assert.GreaterOrEqual(t, success, 27)
}

func TestReproducible(t *testing.T) {
	o1, _ := newOptimizer(t, 42, 20)
	o2, _ := newOptimizer(t, 42, 20)
	r1, err := o1.Run()
	require.NoError(t, err)
	r2, err := o2.Run()
	require.NoError(t, err)
	assert.Equal(t, r1.Trace, r2.Trace)
	assert.Equal(t, r1.Evals, r2.Evals)
}

func TestConfigErrors(t *testing.T) {
	low, up := bounds(2, 1)

	_, err := New(low, up, CrossoverProb(1.5))
	assert.ErrorIs(t, err, ew.ErrInvalidProbability)
	assert.ErrorIs(t, err, ew.ErrConfiguration)

	_, err = New(low, up, MutationProb(-0.1))
	assert.ErrorIs(t, err, ew.ErrInvalidProbability)

	_, err = New(low, up, PopSize(0))
	assert.ErrorIs(t, err, ew.ErrInvalidPopulationSize)

	// every invalid field is reported at once
	_, err = New(low, []float64{1}, PopSize(-3), MutationProb(2))
	assert.ErrorIs(t, err, ew.ErrInvalidPopulationSize)
	assert.ErrorIs(t, err, ew.ErrInvalidProbability)
	assert.ErrorIs(t, err, ew.ErrInvalidBounds)

	_, err = New(nil, nil)
	assert.ErrorIs(t, err, ew.ErrInvalidDimension)

	_, err = New(low, up, TournamentSelection(0))
	assert.ErrorIs(t, err, ew.ErrInvalidParameter)

	_, err = New(low, up, PopSize(4), Elitism(4))
	assert.ErrorIs(t, err, ew.ErrInvalidParameter)
}

func TestSingleMember(t *testing.T) {
	m, err := New([]float64{-1}, []float64{1}, PopSize(1))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Elite)

	m, err = New([]float64{-1}, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, DefaultElite, m.Elite)

	goal, err := ew.NewGoal(1, ew.Func(sphere))
	require.NoError(t, err)
	m, err = New([]float64{-1}, []float64{1}, PopSize(1))
	require.NoError(t, err)
	o, err := ew.NewOptimizer(m, goal, rand.New(rand.NewSource(5)), ew.MaxIterations(20))
	require.NoError(t, err)
	r, err := o.Run()
	require.NoError(t, err)
	assert.Len(t, m.Points(), 1)
	assert.Equal(t, ew.MaxIterationsReached, r.State)
	assert.LessOrEqual(t, r.Best.Val, 1.0)
}

func TestDimensionMismatch(t *testing.T) {
	low, up := bounds(3, 1)
	m, err := New(low, up)
	require.NoError(t, err)
	goal, err := ew.NewGoal(2, ew.Func(sphere))
	require.NoError(t, err)

	_, err = m.Init(goal, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ew.ErrDimensionMismatch)
	assert.Equal(t, 0, goal.Count())
}

func TestNumericFailure(t *testing.T) {
	low, up := bounds(2, 1)
	m, err := New(low, up, PopSize(10))
	require.NoError(t, err)
	goal, err := ew.NewGoal(2, ew.Func(func(v []float64) float64 {
		if v[0] > 0 {
			return math.NaN()
		}
		return sphere(v)
	}))
	require.NoError(t, err)
	o, err := ew.NewOptimizer(m, goal, rand.New(rand.NewSource(2)), ew.MaxIterations(100))
	require.NoError(t, err)

	r, err := o.Run()
	assert.ErrorIs(t, err, ew.ErrNumericFailure)
	assert.Equal(t, ew.Failed, r.State)
}

func TestDB(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	o, _ := newOptimizer(t, 1, 5, PopSize(8), DB(db))
	_, err = o.Run()
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+TblPopulation).Scan(&n))
	assert.Equal(t, 8*6, n)
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+TblBest).Scan(&n))
	assert.Equal(t, 6, n)

	var best float64
	require.NoError(t, db.QueryRow("SELECT val FROM "+TblBest+" WHERE gen = 5").Scan(&best))
	assert.Equal(t, o.Best().Val, best)
}

package stats

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuulive/ew"
	"github.com/yuulive/ew/logging"
	"github.com/yuulive/ew/swarm"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func sphere(v []float64) float64 {
	tot := 0.0
	for _, x := range v {
		tot += (x - 1) * (x - 1)
	}
	return tot + 3
}

func swarmFactory(obj ew.Objectiver, maxiter int) Factory {
	return func(seed int64) (*ew.Optimizer, error) {
		m, err := swarm.New([]float64{-10, -10}, []float64{10, 10}, swarm.SwarmSize(10))
		if err != nil {
			return nil, err
		}
		goal, err := ew.NewGoal(2, obj)
		if err != nil {
			return nil, err
		}
		return ew.NewOptimizer(m, goal, rand.New(rand.NewSource(seed)), ew.MaxIterations(maxiter))
	}
}

func result(val float64, trace []float64, pos ...float64) ew.Result {
	return ew.Result{
		Best:       ew.NewPoint(pos, val),
		Trace:      trace,
		Evals:      10 * (len(trace) + 1),
		Iterations: len(trace),
		State:      ew.MaxIterationsReached,
	}
}

func failed() ew.Result {
	return ew.Result{Best: ew.Point{Val: math.NaN()}, State: ew.Failed, Err: ew.ErrNumericFailure}
}

// Ten runs with an identical seed and configuration must not vary.
func TestFixedSeedNoVariance(t *testing.T) {
	c, err := NewCollector(swarmFactory(ew.Func(sphere), 30), Runs(10), Seeds(Fixed(7)), Workers(4))
	require.NoError(t, err)
	st, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, st.RunCount())
	assert.Equal(t, 0, st.FailedCount())

	sd, err := st.StdDevGoal()
	require.NoError(t, err)
	assert.InDelta(t, 0, sd, 1e-12)

	sds, err := st.StdDevSolution()
	require.NoError(t, err)
	for _, v := range sds {
		assert.InDelta(t, 0, v, 1e-12)
	}

	results := st.Results()
	for _, r := range results[1:] {
		assert.Equal(t, results[0].Trace, r.Trace)
		assert.Equal(t, int64(7), r.Seed)
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	run := func(workers int) []ew.Result {
		c, err := NewCollector(swarmFactory(ew.Func(sphere), 20), Runs(12), Seeds(Sequential(100)), Workers(workers))
		require.NoError(t, err)
		st, err := c.Run(context.Background())
		require.NoError(t, err)
		return st.Results()
	}

	serial, parallel := run(1), run(0)
	for i := range serial {
		assert.Equal(t, int64(100+i), serial[i].Seed)
		assert.Equal(t, serial[i].Seed, parallel[i].Seed)
		assert.Equal(t, serial[i].Best.Val, parallel[i].Best.Val)
		assert.Equal(t, serial[i].Trace, parallel[i].Trace)
	}
}

func TestSuccessRateExact(t *testing.T) {
	vals := []float64{0.1, 0.5, 1, 2, 7, 7}
	results := []ew.Result{failed()}
	for _, v := range vals {
		results = append(results, result(v, []float64{v}, v, 0))
	}
	st := FromResults(results, Pad)

	for _, th := range []float64{-1, 0.1, 0.3, 1, 1.5, 7, 100} {
		n := 0
		for _, v := range vals {
			if v <= th {
				n++
			}
		}
		rate, err := st.SuccessRateGoal(th, false)
		require.NoError(t, err)
		assert.Equal(t, float64(n)/float64(len(vals)), rate, "threshold %v", th)
		assert.GreaterOrEqual(t, rate, 0.0)
		assert.LessOrEqual(t, rate, 1.0)
	}

	rate, err := st.SuccessRateGoal(-1, true)
	require.NoError(t, err)
	assert.Equal(t, 3.0/6, rate, "maximized values above 1 stored negated")

	rate, err = st.SuccessRateSolution([]float64{0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3.0/6, rate)

	rate, err = st.SuccessRateBox([]float64{1, 0}, []float64{0.5})
	require.NoError(t, err)
	assert.Equal(t, 2.0/6, rate)

	rate, err = st.SuccessRate(GoalAbove(7))
	require.NoError(t, err)
	assert.Equal(t, 2.0/6, rate)
}

func TestFailedRunsExcluded(t *testing.T) {
	st := FromResults([]ew.Result{
		result(1, []float64{3, 1}, 1, 1),
		failed(),
		result(3, []float64{4, 3}, 3, 5),
	}, Pad)

	assert.Equal(t, 3, st.RunCount())
	assert.Equal(t, 1, st.FailedCount())
	assert.Len(t, st.Valid(), 2)

	avg, err := st.AverageGoal()
	require.NoError(t, err)
	assert.Equal(t, 2.0, avg)

	sd, err := st.StdDevGoal()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sd, 1e-12)

	sol, err := st.AverageSolution()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, sol)

	solsd, err := st.StdDevSolution()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2}, solsd, 1e-12)

	evals, err := st.AverageEvaluations()
	require.NoError(t, err)
	assert.Equal(t, 30.0, evals)

	none := FromResults([]ew.Result{failed(), failed()}, Pad)
	_, err = none.AverageGoal()
	assert.ErrorIs(t, err, ErrNoResults)
	_, err = none.SuccessRateGoal(1, false)
	assert.ErrorIs(t, err, ErrNoResults)
	_, err = none.AverageConvergence()
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestAlignment(t *testing.T) {
	results := []ew.Result{
		result(1, []float64{3, 2, 1}),
		result(2, []float64{4, 2}),
	}

	conv, err := FromResults(results, Pad).AverageConvergence()
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5, 2, 1.5}, conv)

	conv, err = FromResults(results, Truncate).AverageConvergence()
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5, 2}, conv)
}

func TestSolutionDimensionMismatch(t *testing.T) {
	st := FromResults([]ew.Result{result(1, nil, 1, 2), result(1, nil, 1)}, Pad)
	_, err := st.AverageSolution()
	assert.ErrorIs(t, err, ew.ErrDimensionMismatch)
}

func TestResultsAreCopies(t *testing.T) {
	st := FromResults([]ew.Result{result(1, []float64{2, 1})}, Pad)
	st.Results()[0].Trace[0] = 100
	assert.Equal(t, 2.0, st.Results()[0].Trace[0])
}

func TestMerge(t *testing.T) {
	a := FromResults([]ew.Result{result(1, []float64{1})}, Pad)
	b := FromResults([]ew.Result{result(3, []float64{3}), failed()}, Pad)
	m := a.Merge(b)

	assert.Equal(t, 3, m.RunCount())
	assert.Equal(t, 1, m.FailedCount())
	assert.NotEqual(t, a.ID(), m.ID())
	avg, err := m.AverageGoal()
	require.NoError(t, err)
	assert.Equal(t, 2.0, avg)
	assert.Equal(t, 1, a.RunCount())
}

func TestNumericFailureRuns(t *testing.T) {
	factory := func(seed int64) (*ew.Optimizer, error) {
		obj := ew.Func(sphere)
		if seed%2 == 0 {
			obj = ew.Func(func(v []float64) float64 { return math.Inf(1) })
		}
		return swarmFactory(obj, 10)(seed)
	}
	c, err := NewCollector(factory, Runs(6), Seeds(Sequential(0)))
	require.NoError(t, err)
	st, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, st.RunCount())
	assert.Equal(t, 3, st.FailedCount())
	for _, r := range st.Results() {
		if r.Seed%2 == 0 {
			assert.True(t, r.Failed())
			assert.ErrorIs(t, r.Err, ew.ErrNumericFailure)
		}
	}
	avg, err := st.AverageGoal()
	require.NoError(t, err)
	assert.False(t, math.IsInf(avg, 0))
}

func TestFactoryErrorAborts(t *testing.T) {
	errBuild := errors.New("build failed")
	factory := func(seed int64) (*ew.Optimizer, error) {
		if seed == 3 {
			return nil, errBuild
		}
		return swarmFactory(ew.Func(sphere), 5)(seed)
	}
	c, err := NewCollector(factory, Runs(5), Seeds(Sequential(0)), Workers(1))
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, errBuild)
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := NewCollector(swarmFactory(ew.Func(sphere), 5), Runs(3))
	require.NoError(t, err)
	_, err = c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigErrors(t *testing.T) {
	f := swarmFactory(ew.Func(sphere), 5)

	_, err := NewCollector(f, Runs(0))
	assert.ErrorIs(t, err, ew.ErrInvalidRunCount)
	assert.ErrorIs(t, err, ew.ErrConfiguration)

	_, err = NewCollector(f, Workers(-1), Alignment("middle"))
	assert.ErrorIs(t, err, ew.ErrInvalidParameter)

	_, err = NewCollector(nil, Seeds(nil))
	assert.ErrorIs(t, err, ew.ErrInvalidParameter)
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	c, err := NewCollector(swarmFactory(ew.Func(sphere), 5), Runs(4), WithMeterProvider(provider))
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var runs int64
	var hist uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if m.Name == "ew.stats.runs" {
					for _, dp := range data.DataPoints {
						runs += dp.Value
					}
				}
			case metricdata.Histogram[int64]:
				if m.Name == "ew.stats.evaluations" {
					for _, dp := range data.DataPoints {
						hist += dp.Count
					}
				}
			}
		}
	}
	assert.Equal(t, int64(4), runs)
	assert.Equal(t, uint64(4), hist)
}

func TestReport(t *testing.T) {
	st := FromResults([]ew.Result{
		result(1.0/3, []float64{2, 1.0 / 3}, 0.1, 0.2),
		failed(),
		result(2.0/3, []float64{1, 2.0 / 3}, 0.3, 0.4),
	}, Pad)

	var buf bytes.Buffer
	sink := logging.NewTextSink(&buf)
	require.NoError(t, Report(sink, st, GoalThreshold(0.5, false), Reference([]float64{0, 0}, 0.3)))
	require.NoError(t, sink.Close())

	recs, err := logging.ReadAll(&buf)
	require.NoError(t, err)

	byKey := map[string][]float64{}
	for _, r := range recs {
		assert.True(t, strings.HasPrefix(r.Scope, st.ID()+"/"))
		byKey[r.Scope+" "+r.Metric] = r.Values
	}

	run := func(i int, metric string) string { return fmt.Sprintf("%v/run/%v %v", st.ID(), i, metric) }
	agg := func(metric string) string { return st.ID() + "/aggregate " + metric }

	assert.Equal(t, []float64{1.0 / 3}, byKey[run(0, "goal")])
	assert.Equal(t, []float64{0.1, 0.2}, byKey[run(0, "solution")])
	assert.Equal(t, []float64{2, 1.0 / 3}, byKey[run(0, "convergence")])
	assert.Equal(t, []float64{float64(ew.Failed)}, byKey[run(1, "state")])
	assert.NotContains(t, byKey, run(1, "goal"))

	mean, err := st.AverageGoal()
	require.NoError(t, err)
	assert.Equal(t, []float64{mean}, byKey[agg("goal.mean")])
	assert.Equal(t, []float64{3}, byKey[agg("runs")])
	assert.Equal(t, []float64{1}, byKey[agg("failed")])
	assert.Equal(t, []float64{0.5}, byKey[agg("success.goal")])
	assert.Equal(t, []float64{0.5}, byKey[agg("success.solution")])
}

type brokenSink struct {
	writes int
}

var errBroken = errors.New("broken pipe")

func (s *brokenSink) Write(r logging.Record) error {
	s.writes++
	if s.writes > 2 {
		return errBroken
	}
	return nil
}

func (s *brokenSink) Close() error { return nil }

func TestReportSinkFailure(t *testing.T) {
	st := FromResults([]ew.Result{result(1, []float64{1}, 0)}, Pad)
	sink := &brokenSink{}
	err := Report(sink, st)
	assert.ErrorIs(t, err, logging.ErrSinkFailure)
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, 3, sink.writes, "writing stops at the first failure")
}

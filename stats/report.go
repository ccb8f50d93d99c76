package stats

import (
	"errors"
	"fmt"

	"github.com/yuulive/ew/logging"
)

type reportConfig struct {
	runs      bool
	goal      *float64
	maximize  bool
	reference []float64
	radius    float64
}

type ReportOption func(*reportConfig)

// SkipRuns writes only the aggregate records.
func SkipRuns() ReportOption {
	return func(c *reportConfig) { c.runs = false }
}

// GoalThreshold adds the success rate by final value to the aggregate
// records.
func GoalThreshold(threshold float64, maximize bool) ReportOption {
	return func(c *reportConfig) {
		c.goal = &threshold
		c.maximize = maximize
	}
}

// Reference adds the success rate by distance to ref to the aggregate
// records.
func Reference(ref []float64, radius float64) ReportOption {
	return func(c *reportConfig) {
		c.reference = append([]float64(nil), ref...)
		c.radius = radius
	}
}

// Report writes the per-run records, scoped "<id>/run/<i>", and the
// aggregate records, scoped "<id>/aggregate", of st to sink.  Failed runs
// only report their state, iterations and evaluations.  The first write
// error stops the report and is returned wrapping logging.ErrSinkFailure.
func Report(sink logging.Sink, st *Statistics, opts ...ReportOption) error {
	cfg := reportConfig{runs: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &recordWriter{sink: sink}
	if cfg.runs {
		for i, r := range st.results {
			scope := fmt.Sprintf("%v/run/%v", st.id, i)
			w.write(scope, "state", float64(r.State))
			w.write(scope, "iterations", float64(r.Iterations))
			w.write(scope, "evaluations", float64(r.Evals))
			if r.Failed() {
				continue
			}
			w.write(scope, "goal", r.Best.Val)
			w.write(scope, "solution", r.Best.Pos()...)
			w.write(scope, "convergence", r.Trace...)
		}
	}

	scope := st.id + "/aggregate"
	w.write(scope, "runs", float64(st.RunCount()))
	w.write(scope, "failed", float64(st.FailedCount()))
	if _, err := st.valid(); err != nil {
		return w.err
	}

	if conv, err := st.AverageConvergence(); err == nil {
		w.write(scope, "convergence", conv...)
	}
	if v, err := st.AverageGoal(); err == nil {
		w.write(scope, "goal.mean", v)
	}
	if v, err := st.StdDevGoal(); err == nil {
		w.write(scope, "goal.stddev", v)
	}
	if v, err := st.AverageSolution(); err == nil {
		w.write(scope, "solution.mean", v...)
	}
	if v, err := st.StdDevSolution(); err == nil {
		w.write(scope, "solution.stddev", v...)
	}
	if v, err := st.AverageEvaluations(); err == nil {
		w.write(scope, "evaluations.mean", v)
	}
	if v, err := st.AverageIterations(); err == nil {
		w.write(scope, "iterations.mean", v)
	}
	if cfg.goal != nil {
		if v, err := st.SuccessRateGoal(*cfg.goal, cfg.maximize); err == nil {
			w.write(scope, "success.goal", v)
		}
	}
	if cfg.reference != nil {
		if v, err := st.SuccessRateSolution(cfg.reference, cfg.radius); err == nil {
			w.write(scope, "success.solution", v)
		}
	}
	return w.err
}

// recordWriter remembers the first sink error and drops every later write.
type recordWriter struct {
	sink logging.Sink
	err  error
}

func (w *recordWriter) write(scope, metric string, vals ...float64) {
	if w.err != nil {
		return
	}
	err := w.sink.Write(logging.Record{Scope: scope, Metric: metric, Values: vals})
	if err == nil {
		return
	}
	if !errors.Is(err, logging.ErrSinkFailure) {
		err = fmt.Errorf("%w: %w", logging.ErrSinkFailure, err)
	}
	w.err = fmt.Errorf("report %v/%v: %w", scope, metric, err)
}

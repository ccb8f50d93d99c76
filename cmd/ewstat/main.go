// Command ewstat runs a statistics collection of a particle swarm or genetic
// optimizer on a benchmark function and writes the per-run and aggregate
// results as records.
//
// ewstat is configured through EW_ prefixed environment variables, e.g.
//
//	EW_METHOD=genetic EW_FUNC=rastrigin EW_DIM=5 EW_RUNS=50 ewstat
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuulive/ew"
	"github.com/yuulive/ew/bench"
	"github.com/yuulive/ew/genetic"
	"github.com/yuulive/ew/logging"
	"github.com/yuulive/ew/stats"
	"github.com/yuulive/ew/swarm"
	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := LoadConfig(nil)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("collection failed", "error", err)
		os.Exit(1)
	}
}

// factory builds the optimizer of every run.  Configuration errors are
// caught once up front by building a first optimizer.
func factory(cfg *Config, fn bench.Func, logger *slog.Logger) stats.Factory {
	low, up := fn.Bounds()
	return func(seed int64) (*ew.Optimizer, error) {
		var m ew.Method
		var err error
		switch cfg.Method {
		case "genetic":
			m, err = genetic.New(low, up, cfg.geneticOptions()...)
		default:
			m, err = swarm.New(low, up, cfg.swarmOptions()...)
		}
		if err != nil {
			return nil, err
		}

		stop, err := cfg.stop().Checker()
		if err != nil {
			return nil, err
		}
		log := logger.With("seed", seed)
		obj := bench.Objective(fn)
		if cfg.LogEvaluations {
			obj = ew.LogObjective(obj, log)
		}
		goal, err := ew.NewGoal(bench.Dim(fn), obj)
		if err != nil {
			return nil, err
		}
		return ew.NewOptimizer(m, goal, rand.New(rand.NewSource(seed)), stop, ew.WithLogger(log))
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger, stdout io.Writer) error {
	fn, err := bench.ByName(cfg.Func, cfg.Dim)
	if err != nil {
		return err
	}
	f := factory(cfg, fn, logger)
	if _, err := f(cfg.Seed); err != nil {
		return fmt.Errorf("invalid optimizer configuration: %w", err)
	}

	c, err := stats.NewCollector(f,
		stats.Runs(cfg.Runs),
		stats.Workers(cfg.Workers),
		stats.Seeds(cfg.seeds()),
		stats.Alignment(stats.Align(cfg.Align)),
		stats.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	logger.Info("running collection", "method", cfg.Method, "func", fn.Name(), "runs", cfg.Runs)
	st, err := c.Run(ctx)
	if err != nil {
		return err
	}
	summarize(logger, fn, st, cfg.Success)

	optimum := fn.Optima()[0]
	opts := []stats.ReportOption{
		stats.GoalThreshold(successThreshold(optimum.Val, cfg.Success), false),
		stats.Reference(optimum.Pos(), cfg.SuccessRadius),
	}
	report := func(s logging.Sink) error { return stats.Report(s, st, opts...) }

	results := func() (logging.Sink, error) {
		if cfg.Output.Results == "" {
			// stdout must stay open
			return logging.NewTextSink(struct{ io.Writer }{stdout}, logging.Precision(cfg.Output.Precision)), nil
		}
		s, err := logging.Create(cfg.Output.Results, logging.Precision(cfg.Output.Precision))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := logging.With(results, report); err != nil {
		return err
	}

	if cfg.Output.Convergence != "" {
		conv, err := st.AverageConvergence()
		if err != nil {
			return err
		}
		err = logging.With(func() (*logging.TextSink, error) {
			return logging.Create(cfg.Output.Convergence, logging.Precision(cfg.Output.Precision))
		}, func(s *logging.TextSink) error {
			return s.Write(logging.Record{Scope: st.ID() + "/aggregate", Metric: "convergence", Values: conv})
		})
		if err != nil {
			return err
		}
	}

	if cfg.Output.DB != "" {
		db, err := sql.Open("sqlite", cfg.Output.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		sqlSink := func() (logging.Sink, error) {
			s, err := logging.NewSQLSink(db)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
		if err := logging.With(sqlSink, report); err != nil {
			return err
		}
	}
	return nil
}

func successThreshold(optimum, tol float64) float64 {
	thresh := tol * math.Abs(optimum)
	if thresh < 0.001 {
		thresh = 0.001
	}
	return optimum + thresh
}

func summarize(logger *slog.Logger, fn bench.Func, st *stats.Statistics, tol float64) {
	attrs := []any{"runs", st.RunCount(), "failed", st.FailedCount()}
	if v, err := st.AverageGoal(); err == nil {
		attrs = append(attrs, "goal.mean", v)
	}
	if v, err := st.StdDevGoal(); err == nil {
		attrs = append(attrs, "goal.stddev", v)
	}
	if v, err := st.AverageEvaluations(); err == nil {
		attrs = append(attrs, "evaluations.mean", v)
	}
	if v, err := st.SuccessRateGoal(successThreshold(fn.Optima()[0].Val, tol), false); err == nil {
		attrs = append(attrs, "success", v)
	}
	logger.Info("collection summary", attrs...)
}

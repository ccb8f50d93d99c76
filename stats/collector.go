// Package stats runs an optimizer many times with independent random
// sources and aggregates the results.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/yuulive/ew"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Factory builds a fresh optimizer, with its own goal and random source
// seeded with seed, for a single run.
type Factory func(seed int64) (*ew.Optimizer, error)

// Align decides how runs of different lengths are combined into an average
// convergence curve.
type Align string

const (
	// Pad extends shorter traces with their final value up to the longest
	// trace.
	Pad Align = "pad"
	// Truncate cuts every trace to the shortest one.
	Truncate Align = "truncate"
)

type Config struct {
	Runs int `validate:"gt=0"`
	// Workers is the number of runs executed concurrently.  Zero uses
	// GOMAXPROCS.
	Workers int          `validate:"gte=0"`
	Seeds   SeedStrategy `validate:"-"`
	Align   Align        `validate:"oneof=pad truncate"`
}

var kinds = map[string]error{
	"Runs": ew.ErrInvalidRunCount,
}

type Option func(*Collector)

func Runs(n int) Option {
	return func(c *Collector) { c.Config.Runs = n }
}

func Workers(n int) Option {
	return func(c *Collector) { c.Config.Workers = n }
}

func Seeds(s SeedStrategy) Option {
	return func(c *Collector) { c.Config.Seeds = s }
}

func Alignment(a Align) Option {
	return func(c *Collector) { c.Config.Align = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.log = l }
}

// WithMeterProvider sets the provider of the run metrics instruments.  The
// global provider is used by default.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Collector) { c.mp = mp }
}

type Collector struct {
	Config
	factory Factory
	log     *slog.Logger
	mp      metric.MeterProvider

	runCounter metric.Int64Counter
	evalHist   metric.Int64Histogram
}

// NewCollector validates the collection configuration.  By default a
// collection has 30 runs seeded sequentially from 1.
func NewCollector(factory Factory, opts ...Option) (*Collector, error) {
	c := &Collector{
		Config: Config{
			Runs:  30,
			Seeds: Sequential(1),
			Align: Pad,
		},
		factory: factory,
		log:     slog.Default(),
		mp:      otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var extra []error
	if factory == nil {
		extra = append(extra, &ew.ConfigError{Kind: ew.ErrInvalidParameter, Field: "factory", Value: nil, Rule: "required"})
	}
	if c.Config.Seeds == nil {
		extra = append(extra, &ew.ConfigError{Kind: ew.ErrInvalidParameter, Field: "Config.Seeds", Value: nil, Rule: "required"})
	}
	if err := ew.Validate(c.Config, kinds, extra...); err != nil {
		return nil, err
	}

	meter := c.mp.Meter("github.com/yuulive/ew/stats")
	var err error
	c.runCounter, err = meter.Int64Counter(
		"ew.stats.runs",
		metric.WithDescription("Number of finished optimization runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run counter: %w", err)
	}
	c.evalHist, err = meter.Int64Histogram(
		"ew.stats.evaluations",
		metric.WithDescription("Objective evaluations per run"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation histogram: %w", err)
	}
	return c, nil
}

// Run executes all runs of the collection and aggregates them.  Runs share
// nothing and execute concurrently; results are combined once all of them
// finished.  A run ending with an error is recorded as failed.  A factory
// error or cancellation of ctx aborts the collection; ctx is only checked
// before starting each run.
func (c *Collector) Run(ctx context.Context) (*Statistics, error) {
	workers := c.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	id := uuid.NewString()
	log := c.log.With("collection", id)
	log.Info("collection started", "runs", c.Runs, "workers", workers)
	start := time.Now()

	results := make([]ew.Result, c.Runs)
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for i := 0; i < c.Runs; i++ {
		i := i
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			seed := c.Seeds.Seed(i)
			o, err := c.factory(seed)
			if err != nil {
				return fmt.Errorf("run %v (seed %v): %w", i, seed, err)
			}

			r, err := o.Run()
			r.Seed = seed
			results[i] = r

			c.runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("state", r.State.String())))
			c.evalHist.Record(ctx, int64(r.Evals))
			if err != nil {
				log.Warn("run failed", "run", i, "seed", seed, "iter", r.Iterations, "error", err)
			} else {
				log.Debug("run finished", "run", i, "seed", seed, "state", r.State, "best", r.Best.Val, "evals", r.Evals)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(ctxErr, err)
		}
		log.Error("collection aborted", "error", err)
		return nil, err
	}

	st := &Statistics{id: id, results: results, align: c.Align}
	log.Info("collection finished", "runs", st.RunCount(), "failed", st.FailedCount(), "elapsed", time.Since(start))
	return st, nil
}

package main

import (
	"errors"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/yuulive/ew"
	"github.com/yuulive/ew/genetic"
	"github.com/yuulive/ew/stats"
	"github.com/yuulive/ew/swarm"
)

type Config struct {
	Method  string `env:"METHOD" envDefault:"swarm" validate:"oneof=swarm genetic"`
	Func    string `env:"FUNC" envDefault:"schwefel"`
	Dim     int    `env:"DIM" envDefault:"2" validate:"gt=0"`
	Runs    int    `env:"RUNS" envDefault:"30" validate:"gt=0"`
	Workers int    `env:"WORKERS" envDefault:"0" validate:"gte=0"`
	Seed    int64  `env:"SEED" envDefault:"1"`
	Seeding string `env:"SEEDING" envDefault:"sequential" validate:"oneof=sequential fixed clock"`
	Align   string `env:"ALIGN" envDefault:"pad" validate:"oneof=pad truncate"`
	// A run succeeds when its best value is within SUCCESS_TOLERANCE
	// (relative, at least 0.001) of the optimum.  Runs ending within
	// SUCCESS_RADIUS of the optimal position are counted separately.
	Success       float64 `env:"SUCCESS_TOLERANCE" envDefault:"0.01" validate:"gte=0"`
	SuccessRadius float64 `env:"SUCCESS_RADIUS" envDefault:"1" validate:"gte=0"`
	LogLevel      string  `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	// LogEvaluations logs every objective evaluation at debug level.
	LogEvaluations bool `env:"LOG_EVALUATIONS" envDefault:"false"`

	Stop struct {
		MaxIterations      int      `env:"MAX_ITERATIONS" envDefault:"1000"`
		Target             *float64 `env:"TARGET"`
		Tolerance          float64  `env:"TOLERANCE" envDefault:"0"`
		NoImprovement      int      `env:"NO_IMPROVEMENT" envDefault:"0"`
		NoImprovementDelta float64  `env:"NO_IMPROVEMENT_DELTA" envDefault:"0"`
	} `envPrefix:"STOP_" validate:"-"`

	Swarm struct {
		Size              int       `env:"SIZE" envDefault:"30"`
		Inertia           float64   `env:"INERTIA" envDefault:"0.7298437881283576"`
		Cognition         float64   `env:"COGNITION" envDefault:"1.496179765663133"`
		Social            float64   `env:"SOCIAL" envDefault:"1.496179765663133"`
		VelocityPolicy    string    `env:"VELOCITY_POLICY" envDefault:"none"`
		VelocityLimit     []float64 `env:"VELOCITY_LIMIT" envSeparator:","`
		Teleport          float64   `env:"TELEPORT" envDefault:"0"`
		TeleportRandomize bool      `env:"TELEPORT_RANDOMIZE" envDefault:"false"`
		InitVelocity      float64   `env:"INIT_VELOCITY" envDefault:"0.1"`
	} `envPrefix:"SWARM_" validate:"-"`

	Genetic struct {
		Size           int     `env:"SIZE" envDefault:"50"`
		Crossover      float64 `env:"CROSSOVER" envDefault:"0.8"`
		Mutation       float64 `env:"MUTATION" envDefault:"0.05"`
		MutationScale  float64 `env:"MUTATION_SCALE" envDefault:"0.1"`
		Selection      string  `env:"SELECTION" envDefault:"tournament"`
		TournamentSize int     `env:"TOURNAMENT_SIZE" envDefault:"3"`
		// Elite defaults to genetic.DefaultElite, capped below Size.
		Elite *int `env:"ELITE"`
	} `envPrefix:"GENETIC_" validate:"-"`

	Output struct {
		// Results and Convergence are file paths; an empty Results writes
		// to stdout, an empty Convergence skips the file.
		Results     string `env:"RESULTS"`
		Convergence string `env:"CONVERGENCE"`
		// DB is the path of an sqlite database receiving all records.
		DB        string `env:"DB"`
		Precision int    `env:"PRECISION" envDefault:"-1"`
	} `envPrefix:"OUTPUT_" validate:"-"`
}

// LoadConfig reads the configuration from EW_ prefixed variables of environ,
// or of the process environment if environ is nil.
func LoadConfig(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: "EW_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		aggErr := env.AggregateError{}
		if errors.As(err, &aggErr) {
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}
	if err := ew.Validate(cfg, map[string]error{"Runs": ew.ErrInvalidRunCount, "Dim": ew.ErrInvalidDimension}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (cfg *Config) stop() ew.StopConfig {
	return ew.StopConfig{
		MaxIterations:      cfg.Stop.MaxIterations,
		Target:             cfg.Stop.Target,
		Tolerance:          cfg.Stop.Tolerance,
		NoImprovement:      cfg.Stop.NoImprovement,
		NoImprovementDelta: cfg.Stop.NoImprovementDelta,
	}
}

func (cfg *Config) seeds() stats.SeedStrategy {
	switch cfg.Seeding {
	case "fixed":
		return stats.Fixed(cfg.Seed)
	case "clock":
		return stats.Clock()
	}
	return stats.Sequential(cfg.Seed)
}

func (cfg *Config) swarmOptions() []swarm.Option {
	s := cfg.Swarm
	opts := []swarm.Option{
		swarm.SwarmSize(s.Size),
		swarm.InertiaWeight(s.Inertia),
		swarm.LearnFactors(s.Cognition, s.Social),
		swarm.Teleport(s.Teleport, s.TeleportRandomize),
		swarm.InitVelocity(s.InitVelocity),
	}
	if s.VelocityPolicy != string(swarm.NoLimit) {
		opts = append(opts, func(c *swarm.Config) {
			c.LimitPolicy = swarm.LimitPolicy(s.VelocityPolicy)
			c.VelocityLimit = s.VelocityLimit
		})
	}
	return opts
}

func (cfg *Config) geneticOptions() []genetic.Option {
	g := cfg.Genetic
	opts := []genetic.Option{
		genetic.PopSize(g.Size),
		genetic.CrossoverProb(g.Crossover),
		genetic.MutationProb(g.Mutation),
		genetic.MutationScale(g.MutationScale),
	}
	if g.Elite != nil {
		opts = append(opts, genetic.Elitism(*g.Elite))
	}
	opts = append(opts, func(c *genetic.Config) {
		c.Selection = genetic.Selection(g.Selection)
		c.TournamentSize = g.TournamentSize
	})
	return opts
}

// Package genetic implements a real-coded genetic algorithm with tournament
// or fitness-proportional selection, blend crossover, gaussian mutation and
// elitism.
package genetic

import (
	"database/sql"
	"fmt"
	"math"
	"math/rand"

	"github.com/yuulive/ew"
	"github.com/yuulive/ew/mesh"
	"github.com/yuulive/ew/pop"
)

const (
	DefaultPopulationSize       = 50
	DefaultCrossoverProbability = 0.8
	DefaultMutationProbability  = 0.05
	DefaultMutationScale        = 0.1
	DefaultBlendAlpha           = 0.5
	DefaultTournamentSize       = 3
	DefaultElite                = 1
)

const (
	// TblPopulation is the name of the sql database table that contains
	// the position and value of every member of each generation.
	TblPopulation = "geneticpopulation"
	// TblBest is the name of the sql database table that contains the best
	// position found so far at each generation.
	TblBest = "geneticbest"
)

type Selection string

const (
	// Tournament picks the best of TournamentSize uniformly drawn members.
	Tournament Selection = "tournament"
	// Roulette picks members with probability proportional to how much
	// better than the worst member they are.
	Roulette Selection = "roulette"
)

type Config struct {
	PopulationSize       int     `validate:"gt=0"`
	CrossoverProbability float64 `validate:"gte=0,lte=1"`
	MutationProbability  float64 `validate:"gte=0,lte=1"`
	// MutationScale is the standard deviation of a gene mutation as a
	// fraction of the bounds width in that dimension.
	MutationScale float64 `validate:"gt=0"`
	// BlendAlpha widens the crossover interval between two parent genes by
	// alpha times their distance on both sides.
	BlendAlpha     float64   `validate:"gte=0"`
	Selection      Selection `validate:"oneof=tournament roulette"`
	TournamentSize int       `validate:"gte=1"`
	// Elite is the number of best members copied unchanged into the next
	// generation.
	Elite int `validate:"gte=0,ltfield=PopulationSize"`

	Mesh   mesh.Mesh `validate:"-"`
	Evaler ew.Evaler `validate:"-"`
	DB     *sql.DB   `validate:"-"`

	eliteSet bool
}

var kinds = map[string]error{
	"PopulationSize":       ew.ErrInvalidPopulationSize,
	"CrossoverProbability": ew.ErrInvalidProbability,
	"MutationProbability":  ew.ErrInvalidProbability,
}

type Option func(*Config)

func PopSize(n int) Option {
	return func(c *Config) { c.PopulationSize = n }
}

func CrossoverProb(p float64) Option {
	return func(c *Config) { c.CrossoverProbability = p }
}

func MutationProb(p float64) Option {
	return func(c *Config) { c.MutationProbability = p }
}

func MutationScale(frac float64) Option {
	return func(c *Config) { c.MutationScale = frac }
}

func BlendAlpha(alpha float64) Option {
	return func(c *Config) { c.BlendAlpha = alpha }
}

func TournamentSelection(k int) Option {
	return func(c *Config) {
		c.Selection = Tournament
		c.TournamentSize = k
	}
}

func RouletteSelection() Option {
	return func(c *Config) { c.Selection = Roulette }
}

// Elitism sets the number of members surviving unchanged into every new
// generation.  Zero disables elitism.  Without Elitism, DefaultElite
// members survive, fewer if the population is smaller than that.
func Elitism(n int) Option {
	return func(c *Config) {
		c.Elite = n
		c.eliteSet = true
	}
}

// WithMesh projects every generated position onto m before evaluation.
func WithMesh(m mesh.Mesh) Option {
	return func(c *Config) { c.Mesh = m }
}

func WithEvaler(ev ew.Evaler) Option {
	return func(c *Config) { c.Evaler = ev }
}

// DB enables recording of every generation into TblPopulation and TblBest.
func DB(db *sql.DB) Option {
	return func(c *Config) { c.DB = db }
}

type member struct {
	ew.Point
	evaluated bool
}

// Method is an ew.Method evolving a population of fixed size within box
// bounds.
type Method struct {
	Config
	bounds *mesh.Bounded
	pop    []member
	best   ew.Point
}

// New validates the configuration built from the defaults and opts and
// returns a genetic method searching the box [low, up].  All invalid fields
// are reported together.
func New(low, up []float64, opts ...Option) (*Method, error) {
	cfg := Config{
		PopulationSize:       DefaultPopulationSize,
		CrossoverProbability: DefaultCrossoverProbability,
		MutationProbability:  DefaultMutationProbability,
		MutationScale:        DefaultMutationScale,
		BlendAlpha:           DefaultBlendAlpha,
		Selection:            Tournament,
		TournamentSize:       DefaultTournamentSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.eliteSet {
		cfg.Elite = max(0, min(DefaultElite, cfg.PopulationSize-1))
	}

	bounds, berr := mesh.NewBounded(cfg.Mesh, low, up)
	if err := ew.Validate(cfg, kinds, berr); err != nil {
		return nil, err
	}
	if cfg.Evaler == nil {
		cfg.Evaler = ew.SerialEvaler{}
	}
	return &Method{Config: cfg, bounds: bounds, best: ew.Point{Val: math.Inf(1)}}, nil
}

func (m *Method) Init(goal *ew.Goal, rng *rand.Rand) (ew.Point, error) {
	if goal.Dim() != len(m.bounds.Lower) {
		return m.best, fmt.Errorf("%w: goal has %v dimensions, bounds have %v", ew.ErrDimensionMismatch, goal.Dim(), len(m.bounds.Lower))
	}

	points := pop.New(rng, m.PopulationSize, m.bounds.Lower, m.bounds.Upper)
	m.pop = make([]member, len(points))
	for i, p := range points {
		m.pop[i] = member{Point: ew.NewPoint(m.bounds.Nearest(p.Pos()), math.Inf(1))}
	}
	m.best = ew.Point{Val: math.Inf(1)}

	if err := m.initdb(goal.Dim()); err != nil {
		return m.best, err
	}
	if err := m.evaluate(goal); err != nil {
		return m.best, err
	}
	return m.best, m.updateDb(0)
}

// Iterate produces and evaluates the next generation.
func (m *Method) Iterate(iter int, goal *ew.Goal, rng *rand.Rand) (ew.Point, error) {
	if err := m.evaluate(goal); err != nil {
		return m.best, err
	}

	next := make([]member, 0, m.PopulationSize)
	for _, p := range pop.Best(m.Points(), m.Elite) {
		next = append(next, member{Point: p, evaluated: true})
	}

	sel := m.selector(rng)
	for len(next) < m.PopulationSize {
		a, b := sel(), sel()
		var kids [2]member
		if rng.Float64() < m.CrossoverProbability {
			c1, c2 := m.crossover(rng, a.Pos(), b.Pos())
			kids[0] = member{Point: ew.NewPoint(c1, math.Inf(1))}
			kids[1] = member{Point: ew.NewPoint(c2, math.Inf(1))}
		} else {
			kids = [2]member{a, b}
		}

		for _, kid := range kids {
			if len(next) == m.PopulationSize {
				break
			}
			next = append(next, m.mutate(rng, kid))
		}
	}
	m.pop = next

	if err := m.evaluate(goal); err != nil {
		return m.best, err
	}
	return m.best, m.updateDb(iter)
}

// evaluate computes the value of every member lacking one and updates the
// best point found so far.
func (m *Method) evaluate(goal *ew.Goal) error {
	var idx []int
	var points []ew.Point
	for i, mem := range m.pop {
		if !mem.evaluated {
			idx = append(idx, i)
			points = append(points, mem.Point)
		}
	}
	if len(points) > 0 {
		results, err := m.Evaler.Eval(goal, points...)
		for i, p := range results {
			m.pop[idx[i]] = member{Point: p, evaluated: true}
		}
		if err != nil {
			return err
		}
	}

	for _, mem := range m.pop {
		if mem.Val < m.best.Val {
			m.best = mem.Point
		}
	}
	return nil
}

func (m *Method) selector(rng *rand.Rand) func() member {
	if m.Selection == Roulette {
		return m.roulette(rng)
	}
	return func() member {
		win := m.pop[rng.Intn(len(m.pop))]
		for i := 1; i < m.TournamentSize; i++ {
			if c := m.pop[rng.Intn(len(m.pop))]; c.Val < win.Val {
				win = c
			}
		}
		return win
	}
}

// roulette weighs each member by its distance to the worst value of the
// population.  A population of equal values is sampled uniformly.
func (m *Method) roulette(rng *rand.Rand) func() member {
	worst := math.Inf(-1)
	for _, mem := range m.pop {
		worst = math.Max(worst, mem.Val)
	}

	cum := make([]float64, len(m.pop))
	tot := 0.0
	for i, mem := range m.pop {
		tot += worst - mem.Val
		cum[i] = tot
	}
	if tot <= 0 || math.IsInf(tot, 0) || math.IsNaN(tot) {
		return func() member { return m.pop[rng.Intn(len(m.pop))] }
	}

	return func() member {
		r := rng.Float64() * tot
		for i, c := range cum {
			if r < c {
				return m.pop[i]
			}
		}
		return m.pop[len(m.pop)-1]
	}
}

// crossover creates two children with genes drawn uniformly from the parent
// interval widened by BlendAlpha on each side.
func (m *Method) crossover(rng *rand.Rand, a, b []float64) ([]float64, []float64) {
	c1 := make([]float64, len(a))
	c2 := make([]float64, len(a))
	for i := range a {
		lo, hi := math.Min(a[i], b[i]), math.Max(a[i], b[i])
		d := m.BlendAlpha * (hi - lo)
		lo, hi = lo-d, hi+d
		c1[i] = lo + rng.Float64()*(hi-lo)
		c2[i] = lo + rng.Float64()*(hi-lo)
	}
	return m.bounds.Nearest(c1), m.bounds.Nearest(c2)
}

// mutate perturbs each gene with probability MutationProbability.  An
// untouched clone keeps its value.
func (m *Method) mutate(rng *rand.Rand, kid member) member {
	pos := kid.Pos()
	changed := false
	for i := range pos {
		if rng.Float64() < m.MutationProbability {
			width := m.bounds.Upper[i] - m.bounds.Lower[i]
			pos[i] += rng.NormFloat64() * m.MutationScale * width
			changed = true
		}
	}
	if !changed {
		return kid
	}
	return member{Point: ew.NewPoint(m.bounds.Nearest(pos), math.Inf(1))}
}

// Points returns the current population.
func (m *Method) Points() []ew.Point {
	points := make([]ew.Point, len(m.pop))
	for i, mem := range m.pop {
		points[i] = mem.Point
	}
	return points
}

func (m *Method) Best() ew.Point { return m.best }

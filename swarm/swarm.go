// Package swarm implements particle swarm optimization with pluggable
// velocity calculation, velocity limits and post-move policies.
package swarm

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
	// TblParticles is the name of the sql database table that contains
	// positions and values for particles for each iteration.
	TblParticles = "swarmparticles"
	// TblParticlesBest is the name of the sql database table that contains
	// each particle's personal best position at each iteration.
	TblParticlesBest = "swarmparticlesbest"
	// TblBest is the name of the sql database table that contains
	// the best position for the entire swarm at each iteration.
	TblBest = "swarmbest"
)

const (
	DefaultSize         = 30
	DefaultInitVelocity = 0.1
)

type Particle struct {
	Id int
	ew.Point
	Vel  []float64
	Best ew.Point
}

// Update records the value of the evaluated position newp.  The personal
// best only changes on strict improvement.
func (p *Particle) Update(newp ew.Point) {
	// DO NOT update p's position with newp's position - it may have been
	// projected onto a mesh and be different.
	p.Val = newp.Val
	if p.Val < p.Best.Val {
		p.Best = newp
	}
}

type Population []*Particle

func (pop Population) Points() []ew.Point {
	points := make([]ew.Point, 0, len(pop))
	for _, p := range pop {
		points = append(points, p.Point)
	}
	return points
}

// Best returns the particle with the best personal best.
func (pop Population) Best() *Particle {
	if len(pop) == 0 {
		return nil
	}

	best := pop[0]
	for _, p := range pop[1:] {
		if p.Best.Val < best.Best.Val {
			best = p
		}
	}
	return best
}

type LimitPolicy string

const (
	NoLimit LimitPolicy = "none"
	// Modulus limits the euclidean norm of velocities.
	Modulus LimitPolicy = "modulus"
	// PerDimension limits every velocity component independently.
	PerDimension LimitPolicy = "dimension"
)

type Config struct {
	Size      int       `validate:"gt=0"`
	Inertia   InertiaFn `validate:"-"`
	Cognition float64   `validate:"gte=0"`
	Social    float64   `validate:"gte=0"`
	// Calculator replaces the Standard update built from Inertia, Cognition
	// and Social.
	Calculator VelocityCalculator `validate:"-"`

	LimitPolicy   LimitPolicy `validate:"oneof=none modulus dimension"`
	VelocityLimit []float64   `validate:"dive,gt=0"`
	// Corrections are applied after the limit policy.
	Corrections []VelocityCorrection `validate:"-"`

	// Teleport is the per particle, per iteration probability of a random
	// teleport.
	Teleport float64 `validate:"gte=0,lte=1"`
	// TeleportVelocity re-randomizes the velocity of teleported particles
	// instead of zeroing it.
	TeleportVelocity bool
	// InitVelocity is the half range of the uniform initial velocities as a
	// fraction of the bounds width.  Zero starts all particles at rest.
	InitVelocity float64 `validate:"gte=0"`
	// Boundary moves particles leaving the search box back onto its
	// boundary.
	Boundary bool
	// PostMoves run after the boundary and teleport policies.
	PostMoves []PostMove `validate:"-"`

	Mesh   mesh.Mesh `validate:"-"`
	Evaler ew.Evaler `validate:"-"`
	DB     *sql.DB   `validate:"-"`
}

var kinds = map[string]error{
	"Size":          ew.ErrInvalidPopulationSize,
	"Teleport":      ew.ErrInvalidProbability,
	"VelocityLimit": ew.ErrInvalidVelocityLimit,
	"LimitPolicy":   ew.ErrInvalidVelocityLimit,
}

type Option func(*Config)

func SwarmSize(n int) Option {
	return func(c *Config) { c.Size = n }
}

func InertiaWeight(w float64) Option {
	return func(c *Config) { c.Inertia = FixedInertia(w) }
}

func InertiaSchedule(fn InertiaFn) Option {
	return func(c *Config) { c.Inertia = fn }
}

func LearnFactors(cognition, social float64) Option {
	return func(c *Config) {
		c.Cognition = cognition
		c.Social = social
	}
}

func Calculator(vc VelocityCalculator) Option {
	return func(c *Config) { c.Calculator = vc }
}

// VmaxModulus limits the norm of particle velocities to vmax.
func VmaxModulus(vmax float64) Option {
	return func(c *Config) {
		c.LimitPolicy = Modulus
		c.VelocityLimit = []float64{vmax}
	}
}

// Vmax limits the speed of particles in each dimension.
func Vmax(vmaxes []float64) Option {
	return func(c *Config) {
		c.LimitPolicy = PerDimension
		c.VelocityLimit = append([]float64(nil), vmaxes...)
	}
}

func VmaxAll(vmax float64) Option {
	return Vmax([]float64{vmax})
}

// VmaxBounds sets the maximum particle speed for each dimension equal to
// half the bounded range for the problem - i.e. (up[i]-low[i])/2 for each
// dimension.  This is a good rule of thumb given in:
//
//	Eberhart, R.C.; Yuhui Shi, "Particle swarm optimization: developments,
//	applications and resources," Evolutionary Computation, 2001. Proceedings of
//	the 2001 Congress on , vol.1, no., pp.81,86 vol. 1, 2001 doi:
//	10.1109/CEC.2001.934374
func VmaxBounds(low, up []float64) Option {
	return Vmax(vmaxfrombounds(low, up))
}

func Corrections(vc ...VelocityCorrection) Option {
	return func(c *Config) { c.Corrections = append(c.Corrections, vc...) }
}

// Teleport enables random teleports with probability prob.  If randomize
// is true teleported particles get a random velocity, otherwise they stop.
func Teleport(prob float64, randomize bool) Option {
	return func(c *Config) {
		c.Teleport = prob
		c.TeleportVelocity = randomize
	}
}

func InitVelocity(frac float64) Option {
	return func(c *Config) { c.InitVelocity = frac }
}

func Boundary(on bool) Option {
	return func(c *Config) { c.Boundary = on }
}

func PostMoves(pm ...PostMove) Option {
	return func(c *Config) { c.PostMoves = append(c.PostMoves, pm...) }
}

// WithMesh evaluates particles at their nearest point on m.
func WithMesh(m mesh.Mesh) Option {
	return func(c *Config) { c.Mesh = m }
}

func WithEvaler(ev ew.Evaler) Option {
	return func(c *Config) { c.Evaler = ev }
}

// DB enables recording of particles and bests into TblParticles,
// TblParticlesBest and TblBest.
func DB(db *sql.DB) Option {
	return func(c *Config) { c.DB = db }
}

// Method is an ew.Method moving a swarm of fixed size through the box
// bounds.
type Method struct {
	Config
	Pop         Population
	low, up     []float64
	calc        VelocityCalculator
	corrections []VelocityCorrection
	moves       []PostMove
	best        ew.Point
}

// New validates the configuration built from the defaults and opts and
// returns a particle swarm searching the box [low, up].  All invalid fields
// are reported together.
func New(low, up []float64, opts ...Option) (*Method, error) {
	cfg := Config{
		Size:         DefaultSize,
		Inertia:      FixedInertia(DefaultInertia),
		Cognition:    DefaultCognition,
		Social:       DefaultSocial,
		LimitPolicy:  NoLimit,
		InitVelocity: DefaultInitVelocity,
		Boundary:     true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	errs := []error{ew.CheckBounds(low, up)}
	m := &Method{
		Config: cfg,
		low:    append([]float64(nil), low...),
		up:     append([]float64(nil), up...),
		calc:   cfg.Calculator,
		best:   ew.Point{Val: math.Inf(1)},
	}
	if m.calc == nil {
		m.calc = Standard{Inertia: cfg.Inertia, Cognition: cfg.Cognition, Social: cfg.Social}
	}

	switch n := len(cfg.VelocityLimit); cfg.LimitPolicy {
	case Modulus:
		if n != 1 {
			errs = append(errs, &ew.ConfigError{Kind: ew.ErrInvalidVelocityLimit, Field: "Config.VelocityLimit", Value: cfg.VelocityLimit, Rule: "len=1"})
		} else if l, err := NewModulusLimit(cfg.VelocityLimit[0]); err != nil {
			errs = append(errs, err)
		} else {
			m.corrections = append(m.corrections, l)
		}
	case PerDimension:
		if n != 1 && n != len(low) {
			errs = append(errs, &ew.ConfigError{Kind: ew.ErrInvalidVelocityLimit, Field: "Config.VelocityLimit", Value: cfg.VelocityLimit, Rule: fmt.Sprintf("len=1|len=%v", len(low))})
		} else if l, err := NewDimensionLimit(cfg.VelocityLimit...); err != nil {
			errs = append(errs, err)
		} else {
			m.corrections = append(m.corrections, l)
		}
	}
	for i, c := range cfg.Corrections {
		var dl DimensionLimit
		switch c := c.(type) {
		case DimensionLimit:
			dl = c
		case *DimensionLimit:
			dl = *c
		default:
			continue
		}
		if n := len(dl.max); n != 1 && n != len(low) {
			errs = append(errs, &ew.ConfigError{Kind: ew.ErrInvalidVelocityLimit, Field: fmt.Sprintf("Config.Corrections[%v]", i), Value: dl.max, Rule: fmt.Sprintf("len=1|len=%v", len(low))})
		}
	}
	m.corrections = append(m.corrections, cfg.Corrections...)

	if err := ew.Validate(cfg, kinds, errs...); err != nil {
		return nil, err
	}

	if cfg.Boundary {
		mb, _ := NewMoveToBoundary(low, up)
		m.moves = append(m.moves, mb)
	}
	if cfg.Teleport > 0 {
		t, _ := NewRandomTeleport(cfg.Teleport, low, up, cfg.TeleportVelocity)
		m.moves = append(m.moves, t)
	}
	m.moves = append(m.moves, cfg.PostMoves...)
	if m.Evaler == nil {
		m.Evaler = ew.SerialEvaler{}
	}
	return m, nil
}

// Init places the particles uniformly in the search box and evaluates them.
func (m *Method) Init(goal *ew.Goal, rng *rand.Rand) (ew.Point, error) {
	if goal.Dim() != len(m.low) {
		return m.best, fmt.Errorf("%w: goal has %v dimensions, bounds have %v", ew.ErrDimensionMismatch, goal.Dim(), len(m.low))
	}

	points := pop.New(rng, m.Size, m.low, m.up)
	m.Pop = make(Population, len(points))
	for i, p := range points {
		vel := make([]float64, len(m.low))
		for j := range vel {
			vel[j] = m.InitVelocity * (m.up[j] - m.low[j]) * (1 - 2*rng.Float64())
		}
		m.Pop[i] = &Particle{Id: i, Point: p, Best: p, Vel: m.correct(vel)}
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

// Iterate moves every particle using the global best as it was at the start
// of the iteration, evaluates the swarm and only then recomputes the global
// best.
func (m *Method) Iterate(iter int, goal *ew.Goal, rng *rand.Rand) (ew.Point, error) {
	gbest := m.best
	for _, p := range m.Pop {
		m.Move(iter, p, gbest, rng)
	}

	if err := m.evaluate(goal); err != nil {
		return m.best, err
	}
	return m.best, m.updateDb(iter)
}

// Move computes the corrected velocity of p, moves it and applies the post
// move policies.
func (m *Method) Move(iter int, p *Particle, gbest ew.Point, rng *rand.Rand) {
	p.Vel = m.correct(m.calc.Velocity(iter, p, gbest, rng))

	pos := p.Pos()
	for i := range pos {
		pos[i] += p.Vel[i]
	}
	p.Point = ew.NewPoint(pos, math.Inf(1))

	for _, pm := range m.moves {
		pm.PostMove(p, rng)
	}
	p.Vel = m.correct(p.Vel)
}

func (m *Method) correct(v []float64) []float64 {
	for _, c := range m.corrections {
		v = c.Correct(v)
	}
	return v
}

func (m *Method) evaluate(goal *ew.Goal) error {
	points := m.Pop.Points()
	if m.Mesh != nil {
		for i, p := range points {
			points[i] = ew.NewPoint(m.Mesh.Nearest(p.Pos()), p.Val)
		}
	}

	results, err := m.Evaler.Eval(goal, points...)
	for i := range results {
		m.Pop[i].Update(results[i])
	}
	if err != nil {
		return err
	}

	if pbest := m.Pop.Best(); pbest != nil && pbest.Best.Val < m.best.Val {
		m.best = pbest.Best
	}
	return nil
}

func (m *Method) Best() ew.Point { return m.best }

func vmaxfrombounds(low, up []float64) []float64 {
	if len(low) != len(up) {
		return nil
	}
	vmax := make([]float64, len(low))
	for i := range low {
		vmax[i] = (up[i] - low[i]) / 2
	}
	return vmax
}

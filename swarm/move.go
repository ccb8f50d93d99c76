package swarm

import (
	"math"
	"math/rand"

	"github.com/yuulive/ew"
	"github.com/yuulive/ew/mesh"
	"github.com/yuulive/ew/pop"
)

// PostMove is applied to every particle after it moved and before it is
// evaluated.
type PostMove interface {
	PostMove(p *Particle, rng *rand.Rand)
}

// MoveToBoundary slides particles that left the search box back onto its
// boundary.
type MoveToBoundary struct {
	bounds *mesh.Bounded
}

func NewMoveToBoundary(low, up []float64) (*MoveToBoundary, error) {
	b, err := mesh.NewBounded(nil, low, up)
	if err != nil {
		return nil, err
	}
	return &MoveToBoundary{bounds: b}, nil
}

func (mb *MoveToBoundary) PostMove(p *Particle, rng *rand.Rand) {
	if mb.bounds.Contains(p.Pos()) {
		return
	}
	p.Point = ew.NewPoint(mb.bounds.Nearest(p.Pos()), p.Val)
}

// RandomTeleport moves a particle, with probability Prob per iteration, to a
// uniformly drawn position inside the search box.  The particle keeps its
// personal best.  Its velocity is reset to zero, or redrawn within half the
// bounds width when Randomize is set.
type RandomTeleport struct {
	Prob      float64
	Randomize bool
	low, up   []float64
}

func NewRandomTeleport(prob float64, low, up []float64, randomize bool) (*RandomTeleport, error) {
	if !(prob >= 0 && prob <= 1) {
		return nil, &ew.ConfigError{Kind: ew.ErrInvalidProbability, Field: "teleport", Value: prob, Rule: "gte=0,lte=1"}
	} else if err := ew.CheckBounds(low, up); err != nil {
		return nil, err
	}
	return &RandomTeleport{
		Prob:      prob,
		Randomize: randomize,
		low:       append([]float64(nil), low...),
		up:        append([]float64(nil), up...),
	}, nil
}

func (t *RandomTeleport) PostMove(p *Particle, rng *rand.Rand) {
	if t.Prob == 0 || rng.Float64() >= t.Prob {
		return
	}

	p.Point = ew.NewPoint(pop.Uniform(rng, t.low, t.up), math.Inf(1))
	for i := range p.Vel {
		p.Vel[i] = 0
		if t.Randomize {
			p.Vel[i] = (t.up[i] - t.low[i]) / 2 * (1 - 2*rng.Float64())
		}
	}
}

package swarm

import (
	"math"
	"math/rand"

	"github.com/yuulive/ew"
	"gonum.org/v1/gonum/floats"
)

// These params are calculated using a constriction factor originally
// described in:
//
//	Clerc and M.  “The swarm and the queen: towards a deterministic and
//	adaptive particle swarm optimization” Proc. 1999 Congress on
//	Evolutionary Computation, pp. 1951-1957
//
// The cognition and social parameters correspond to c1 and c2 values of 2.05
// that have been multiplied by their constriction coeffient - i.e.
// DefaultSocial = Constriction(2.05, 2.05)*2.05.  DefaultInertia is set equal
// to the constriction coefficient.
const (
	DefaultCognition = 1.496179765663133
	DefaultSocial    = 1.496179765663133
	DefaultInertia   = 0.7298437881283576
)

// Constriction calculates the constriction coefficient for the given c1 and
// c2 for the particle velocity equation:
//
//	v_next = k(v_curr + c1*rand*(p_personal-x) + c2*rand*(p_glob-x))
//
// c1+c2 should usually be greater than (but close to) 4.  'w = k' is often
// referred to as the inertia in the traditional swarm equation.
func Constriction(c1, c2 float64) float64 {
	phi := c1 + c2
	return 2 / math.Abs(2-phi-math.Sqrt(phi*phi-4*phi))
}

// InertiaFn returns the inertia weight to use at the given iteration.
type InertiaFn func(iter int) float64

func FixedInertia(w float64) InertiaFn {
	return func(iter int) float64 { return w }
}

// LinInertia varies particle inertia linearly from the start (high) to end
// (low) values from 0 to maxiter and holds it at end afterwards.  Common
// values are start = 0.9 and end = 0.4 - for details see:
//
//	Eberhart, R.C.; Yuhui Shi, "Particle swarm optimization: developments,
//	applications and resources," Evolutionary Computation, 2001. Proceedings of
//	the 2001 Congress on , vol.1, no., pp.81,86 vol. 1, 2001 doi:
//	10.1109/CEC.2001.934374
func LinInertia(start, end float64, maxiter int) InertiaFn {
	return func(iter int) float64 {
		if iter >= maxiter {
			return end
		}
		return start - (start-end)*float64(iter)/float64(maxiter)
	}
}

// VelocityCalculator computes the raw (uncorrected) next velocity of a
// particle.  gbest is the global best as it was at the start of the
// iteration.
type VelocityCalculator interface {
	Velocity(iter int, p *Particle, gbest ew.Point, rng *rand.Rand) []float64
}

// Standard is the inertia weighted velocity update
//
//	v_next = w*v_curr + Cognition*r1*(p_personal-x) + Social*r2*(p_glob-x)
//
// with r1 and r2 drawn uniformly from [0,1) for every dimension.  A nil
// Inertia uses DefaultInertia.
type Standard struct {
	Inertia   InertiaFn
	Cognition float64
	Social    float64
}

func (s Standard) Velocity(iter int, p *Particle, gbest ew.Point, rng *rand.Rand) []float64 {
	w := DefaultInertia
	if s.Inertia != nil {
		w = s.Inertia(iter)
	}

	v := make([]float64, len(p.Vel))
	for i, currv := range p.Vel {
		// random numbers r1 and r2 MUST go inside this loop and be generated
		// uniquely for each dimension of p's velocity.
		r1 := rng.Float64()
		r2 := rng.Float64()
		v[i] = w*currv +
			s.Cognition*r1*(p.Best.At(i)-p.At(i)) +
			s.Social*r2*(gbest.At(i)-p.At(i))
	}
	return v
}

// Constricted returns the standard update with the constriction coefficient
// of c1 and c2 multiplied through.  c1+c2 must exceed 4.
func Constricted(c1, c2 float64) (Standard, error) {
	if phi := c1 + c2; !(phi > 4) || math.IsInf(phi, 0) {
		return Standard{}, &ew.ConfigError{Kind: ew.ErrInvalidParameter, Field: "c1+c2", Value: phi, Rule: "gt=4"}
	}
	k := Constriction(c1, c2)
	return Standard{Inertia: FixedInertia(k), Cognition: k * c1, Social: k * c2}, nil
}

// VelocityCorrection adjusts a raw velocity so that it satisfies a limit.
// v must not be modified.
type VelocityCorrection interface {
	Correct(v []float64) []float64
}

// ModulusLimit rescales velocities whose euclidean norm exceeds a maximum
// down to that maximum, preserving their direction.
type ModulusLimit struct {
	max float64
}

func NewModulusLimit(max float64) (ModulusLimit, error) {
	if !(max > 0) || math.IsInf(max, 0) {
		return ModulusLimit{}, &ew.ConfigError{Kind: ew.ErrInvalidVelocityLimit, Field: "modulus", Value: max, Rule: "finite,gt=0"}
	}
	return ModulusLimit{max: max}, nil
}

func (l ModulusLimit) Max() float64 { return l.max }

func (l ModulusLimit) Correct(v []float64) []float64 {
	out := append([]float64(nil), v...)
	n := floats.Norm(out, 2)
	if n <= l.max {
		return out
	}
	floats.Scale(l.max/n, out)
	// rounding may leave the norm a few ulps above the limit
	for floats.Norm(out, 2) > l.max {
		floats.Scale(math.Nextafter(1, 0), out)
	}
	return out
}

// DimensionLimit clamps every velocity component to its own bound.  A
// single bound applies to all dimensions.
type DimensionLimit struct {
	max []float64
}

func NewDimensionLimit(max ...float64) (DimensionLimit, error) {
	if len(max) == 0 {
		return DimensionLimit{}, &ew.ConfigError{Kind: ew.ErrInvalidVelocityLimit, Field: "dimension", Value: max, Rule: "min=1"}
	}
	for i, m := range max {
		if !(m > 0) {
			return DimensionLimit{}, &ew.ConfigError{Kind: ew.ErrInvalidVelocityLimit, Field: "dimension", Value: max[i], Rule: "gt=0"}
		}
	}
	return DimensionLimit{max: append([]float64(nil), max...)}, nil
}

// Max returns the bound of dimension i.
func (l DimensionLimit) Max(i int) float64 {
	if len(l.max) == 1 {
		return l.max[0]
	}
	return l.max[i]
}

func (l DimensionLimit) Correct(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x
		if vmax := l.Max(i); math.Abs(x) > vmax {
			out[i] = math.Copysign(vmax, x)
		}
	}
	return out
}

package mesh

import (
	"fmt"
	"math"

	"github.com/yuulive/ew"
	"gonum.org/v1/gonum/mat"
)

// Mesh is an interface for projecting arbitrary dimensional points onto some
// kind of (potentially discrete) mesh.
type Mesh interface {
	// Nearest returns the mesh point closest to p.  p is not modified.
	Nearest(p []float64) []float64
}

// Infinite is a grid-based, linear-axis mesh that extends in all dimensions
// without bounds.  If Origin == nil, the origin is the zero vector.  If
// Step == 0, then the mesh represents continuous space and the Nearest method
// just returns a copy of the point passed to it.
type Infinite struct {
	Origin []float64
	// Step represents the discretization or grid size of the mesh.
	Step float64
	// basis contains a set of column vectors defining the directions of
	// each mesh axis.  nil means the identity.
	basis    *mat.Dense
	inverter *mat.Dense
}

// NewInfinite creates a grid mesh with the given step whose axes are the
// columns of basis (the identity if basis is nil).
func NewInfinite(step float64, origin []float64, basis *mat.Dense) (*Infinite, error) {
	if step < 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, &ew.ConfigError{Kind: ew.ErrInvalidParameter, Field: "step", Value: step, Rule: "finite,gte=0"}
	}
	m := &Infinite{Origin: append([]float64(nil), origin...), Step: step}
	if basis == nil {
		return m, nil
	}

	r, c := basis.Dims()
	if r != c || (len(origin) != 0 && r != len(origin)) {
		return nil, &ew.ConfigError{Kind: ew.ErrDimensionMismatch, Field: "basis", Value: [2]int{r, c}, Rule: "square,len(origin)"}
	}
	inv := &mat.Dense{}
	if err := inv.Inverse(basis); err != nil {
		return nil, fmt.Errorf("mesh basis is not invertible: %w", err)
	}
	m.basis = mat.DenseCopyOf(basis)
	m.inverter = inv
	return m, nil
}

// Nearest returns the nearest grid point to p by rounding each dimensional
// position to the nearest grid point.  If the mesh basis is not the identity
// matrix, then p is transformed to the mesh basis before rounding and then
// retransformed back.
func (m *Infinite) Nearest(p []float64) []float64 {
	if m.Step == 0 {
		return append([]float64{}, p...)
	} else if l := len(m.Origin); l != 0 && l != len(p) {
		panic(fmt.Sprintf("origin len %v incompatible with point len %v", l, len(p)))
	}

	// translate p based on origin and transform to the mesh vector space
	v := mat.NewVecDense(len(p), nil)
	for i := range p {
		o := 0.0
		if len(m.Origin) != 0 {
			o = m.Origin[i]
		}
		v.SetVec(i, p[i]-o)
	}
	if m.inverter != nil {
		v.MulVec(m.inverter, mat.VecDenseCopyOf(v))
	}

	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, math.Round(v.AtVec(i)/m.Step)*m.Step)
	}

	// transform back to standard space
	if m.basis != nil {
		v.MulVec(m.basis, mat.VecDenseCopyOf(v))
	}
	nearest := make([]float64, len(p))
	for i := range nearest {
		o := 0.0
		if len(m.Origin) != 0 {
			o = m.Origin[i]
		}
		nearest[i] = v.AtVec(i) + o
	}
	return nearest
}

// Bounded restricts a mesh to the box [Lower, Upper].
type Bounded struct {
	Lower []float64
	Upper []float64
	core  Mesh
}

// NewBounded wraps m (continuous space if nil) so that all points are
// first slid inside the box bounds.
func NewBounded(m Mesh, lower, upper []float64) (*Bounded, error) {
	if err := ew.CheckBounds(lower, upper); err != nil {
		return nil, err
	}
	if m == nil {
		m = &Infinite{}
	}
	return &Bounded{
		Lower: append([]float64(nil), lower...),
		Upper: append([]float64(nil), upper...),
		core:  m,
	}, nil
}

// Nearest returns the nearest bounded mesh point to p by sliding each
// dimensional position to the nearest value inside bounds and then
// projecting onto the underlying mesh.  Grid points falling outside the
// bounds after projection are slid back inside.
func (m *Bounded) Nearest(p []float64) []float64 {
	return m.clamp(m.core.Nearest(m.clamp(p)))
}

func (m *Bounded) clamp(p []float64) []float64 {
	pdup := make([]float64, len(p))
	for i := range pdup {
		pdup[i] = math.Min(m.Upper[i], math.Max(m.Lower[i], p[i]))
	}
	return pdup
}

// Contains reports whether p lies inside the bounds.
func (m *Bounded) Contains(p []float64) bool {
	for i := range p {
		if p[i] < m.Lower[i] || p[i] > m.Upper[i] {
			return false
		}
	}
	return true
}

// Package pop creates and ranks populations of points.
package pop

import (
	"math"
	"math/rand"

	"github.com/petar/GoLLRB/llrb"
	"github.com/yuulive/ew"
)

// New generates n points uniformly distributed in the box bounds defined by
// low and up, drawing from rng.  The number of dimensions is equal to
// len(low).  Returned points have their values initialized to +infinity.
func New(rng *rand.Rand, n int, low, up []float64) []ew.Point {
	if len(low) != len(up) {
		panic("low and up vectors are not same length")
	}

	points := make([]ew.Point, n)
	for i := 0; i < n; i++ {
		points[i] = ew.NewPoint(Uniform(rng, low, up), math.Inf(1))
	}
	return points
}

// Uniform returns a single position drawn uniformly from the box [low, up].
func Uniform(rng *rand.Rand, low, up []float64) []float64 {
	pos := make([]float64, len(low))
	for j := range pos {
		pos[j] = low[j] + rng.Float64()*(up[j]-low[j])
	}
	return pos
}

type item struct {
	ew.Point
	idx int
}

func (p1 item) Less(than llrb.Item) bool {
	p2 := than.(item)
	if p1.Val != p2.Val {
		return p1.Val < p2.Val
	}
	return p1.idx < p2.idx
}

// Best returns the n points with the lowest values, best first.  Ties keep
// their original order.  NaN values rank last.
func Best(points []ew.Point, n int) []ew.Point {
	if n > len(points) {
		n = len(points)
	}
	if n <= 0 {
		return nil
	}

	tree := llrb.New()
	for i, p := range points {
		if math.IsNaN(p.Val) {
			p = ew.NewPoint(p.Pos(), math.Inf(1))
		}
		tree.ReplaceOrInsert(item{p, i})
		for tree.Len() > n {
			tree.DeleteMax()
		}
	}

	best := make([]ew.Point, 0, n)
	for tree.Len() > 0 {
		best = append(best, tree.DeleteMin().(item).Point)
	}
	return best
}

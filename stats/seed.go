package stats

import "time"

// SeedStrategy chooses the random seed of every run of a collection.
type SeedStrategy interface {
	Seed(run int) int64
}

// Sequential seeds run i with base+i.
type Sequential int64

func (s Sequential) Seed(run int) int64 { return int64(s) + int64(run) }

// Fixed seeds every run identically.  All runs of a collection then produce
// the same result.
type Fixed int64

func (s Fixed) Seed(run int) int64 { return int64(s) }

type clock struct {
	base int64
}

// Clock seeds runs from the time the strategy was created.
func Clock() SeedStrategy { return clock{base: time.Now().UnixNano()} }

func (c clock) Seed(run int) int64 { return c.base + int64(run) }

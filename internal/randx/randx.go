// Package randx provides the seedable random source shared by the shuffle phases.
//
// A Source is never global: callers construct one and pass it to whatever needs
// randomness. Independent streams for parallel work are obtained with Derive, so a
// run seeded explicitly produces the same draws regardless of scheduling.
package randx

import (
	"math"
	"math/rand/v2"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// Source is a deterministic PCG generator. It is not safe for concurrent use;
// give each goroutine its own Source via Derive.
type Source struct {
	seed uint64
	pcg  rand.PCG
	rng  *rand.Rand
}

// New returns a Source seeded with seed.
func New(seed uint64) *Source {
	s := &Source{seed: seed}
	s.pcg.Seed(mix(seed), mix(seed+goldenRatio64))
	s.rng = rand.New(&s.pcg)
	return s
}

// NewUnseeded returns a Source with a seed drawn from the runtime's entropy-seeded
// generator. The chosen seed is available from Seed so the run can be replayed.
func NewUnseeded() *Source {
	return New(rand.Uint64())
}

// Seed returns the seed this Source was created with.
func (s *Source) Seed() uint64 {
	return s.seed
}

// Derive returns an independent Source for the numbered stream. Deriving the same
// stream twice from equal seeds yields identical sequences.
func (s *Source) Derive(stream uint64) *Source {
	return New(mix(s.seed ^ mix(stream+goldenRatio64)))
}

// Uint64 returns a uniform 64-bit value.
func (s *Source) Uint64() uint64 {
	return s.rng.Uint64()
}

// IntN returns a uniform integer in [0, n). It panics if n <= 0.
func (s *Source) IntN(n int) int {
	return s.rng.IntN(n)
}

// Float64 returns a uniform float in [0, 1).
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// FloatRange returns a uniform float in [lo, hi).
func (s *Source) FloatRange(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	v := lo + (hi-lo)*s.rng.Float64()
	// rounding can land exactly on hi for wide ranges
	if v >= hi {
		return math.Nextafter(hi, lo)
	}
	return v
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Package prng provides the seeded pseudo-random functions used wherever the
// audio core needs reproducible "randomness" (per-node noise seeds, scale
// degree picks for resonator bands and generated phrases).
//
// The generator is splitmix64. For a seed s the n-th draw (n starting at 1)
// is
//
//	z = s + n*0x9E3779B97F4A7C15
//	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
//	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
//	x_n = z ^ (z >> 31)
//
// so At(s, n) and the n-th call to Source.Uint64 always agree.
package prng

import "hash/fnv"

const golden = 0x9E3779B97F4A7C15

// Source is a sequential splitmix64 stream. The zero value is a valid stream
// with seed 0. Not safe for concurrent use.
type Source struct {
	seed uint64
	n    uint64
}

// New returns a stream starting at the first draw for seed.
func New(seed uint64) *Source {
	return &Source{seed: seed}
}

// Seed rewinds the stream to the first draw for seed.
func (s *Source) Seed(seed uint64) {
	s.seed = seed
	s.n = 0
}

// Uint64 returns the next raw draw.
func (s *Source) Uint64() uint64 {
	s.n++
	return mix(s.seed + s.n*golden)
}

// Float64 returns the next draw mapped to [0,1).
func (s *Source) Float64() float64 {
	return toUnit(s.Uint64())
}

// Intn returns the next draw mapped to [0,n). It returns 0 for n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Uint64() % uint64(n))
}

// At returns the n-th draw for seed mapped to [0,1) without keeping state.
func At(seed uint64, n uint64) float64 {
	return toUnit(mix(seed + n*golden))
}

// HashString maps a string to a seed (FNV-1a, 64 bit).
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func toUnit(x uint64) float64 {
	return float64(x>>11) / (1 << 53)
}

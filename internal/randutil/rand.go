// Package randutil derives reproducible random sources from a single seed.
package randutil

import rand "math/rand/v2"

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a *rand.Rand seeded deterministically from seed. Both PCG words
// are derived from it so that call sites only ever deal with one number.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Derive returns an independent source for the n-th consumer of a seed, so a
// table can hand each round its own stream while staying reproducible.
func Derive(seed int64, n uint64) *rand.Rand {
	return New(int64(mix(uint64(seed) ^ mix(n+goldenRatio64))))
}

// splitmix64 finaliser
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

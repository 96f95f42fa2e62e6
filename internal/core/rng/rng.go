// Package rng provides the deterministic random streams the kernel hands to
// plugins. The generator is splitmix64: tiny state, full 2^64 period per
// seed, identical output on every platform.
package rng

// Stream is a seeded splitmix64 generator. Not safe for concurrent use; each
// (entity, plugin) invocation receives its own stream.
type Stream struct {
	state uint64
}

func New(seed uint64) *Stream { return &Stream{state: seed} }

// Uint64 returns the next value and advances the stream.
func (s *Stream) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a value in [0, 1).
func (s *Stream) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// IntN returns a value in [0, n). n must be positive.
func (s *Stream) IntN(n int) int {
	if n <= 0 {
		panic("rng: IntN with non-positive n")
	}
	return int(s.Uint64() % uint64(n))
}

package shuffle

import (
	"crypto/rand"
	"encoding/binary"
)

// mix is a 64-bit avalanche finalizer (the splitmix64 finalizer): fed a
// counter that increments every call, it produces a stream of well-mixed
// pseudo-random 64-bit words from a single 64-bit seed. This plays the role
// of the reference implementation's rapidhash-based seed mixer: a fast,
// dependency-free bit mixer rather than a full PRNG, since the caller only
// ever needs one bounded draw at a time.
func mix(seed *uint64) uint64 {
	*seed += 0x9E3779B97F4A7C15
	z := *seed
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// draw32 returns the next 32-bit pseudo-random value from seed, advancing it.
func draw32(seed *uint64) uint32 {
	return uint32(mix(seed) >> 32)
}

// boundedRandom returns a value in [0, n) using Lemire's multiply-high
// technique: (draw32() * n) >> 32. This avoids the modulo-bias of `% n`
// without needing rejection sampling.
func boundedRandom(n int, seed *uint64) int {
	x := uint64(draw32(seed))
	m := x * uint64(n)
	return int(m >> 32)
}

// RandomSeed returns a nondeterministic 64-bit seed, used when a shuffler is
// constructed without an explicit one.
func RandomSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand is documented to never fail on supported platforms;
		// fall back to a fixed, clearly-non-secret seed rather than panic.
		return 0x2545F4914F6CDD1D
	}
	return binary.BigEndian.Uint64(buf[:])
}

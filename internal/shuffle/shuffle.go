// Package shuffle implements the bounded random generator and the two
// configuration-advance modes (random Fisher-Yates, systematic
// next-permutation) that drive each worker's sampling loop.
//
// Grounded on original_source/include/sqsgen/core/shuffle.h: the bounded
// draw, the per-bounds independent Fisher-Yates loop, and the
// single-bounds systematic advance are ported in structure (the seed mixer
// itself is replaced, see rng.go).
package shuffle

import (
	"math/big"

	"github.com/sarat-asymmetrica/sqsgen/internal/rank"
	"github.com/sarat-asymmetrica/sqsgen/internal/setup"
	"github.com/sarat-asymmetrica/sqsgen/internal/sqserr"
)

// Shuffler advances a species vector in place, holding its own 64-bit seed
// and the shuffling bounds it was constructed with.
type Shuffler struct {
	Seed   uint64
	Bounds []setup.Bounds
}

// New constructs a Shuffler over bounds. When seed is nil, a nondeterministic
// seed is drawn.
func New(bounds []setup.Bounds, seed *uint64) *Shuffler {
	s := RandomSeed()
	if seed != nil {
		s = *seed
	}
	return &Shuffler{Seed: s, Bounds: bounds}
}

// Clone returns an independently-seeded shuffler over the same bounds, for
// handing to a second worker so their draws never overlap.
func (sh *Shuffler) Clone(seed uint64) *Shuffler {
	return &Shuffler{Seed: seed, Bounds: sh.Bounds}
}

// ShuffleRandom performs an independent in-place Fisher-Yates shuffle over
// every bounds span, in span order.
func (sh *Shuffler) ShuffleRandom(conf []uint8) {
	for _, b := range sh.Bounds {
		fisherYates(conf[b.Lo:b.Hi], &sh.Seed)
	}
}

func fisherYates(window []uint8, seed *uint64) {
	for i := len(window); i > 1; i-- {
		p := boundedRandom(i, seed) // number in [0, i)
		window[i-1], window[p] = window[p], window[i-1]
	}
}

// ShuffleSystematic advances the configuration to its lexicographic
// successor within the single bounds span. Returns false, leaving conf
// unmodified, once the span is already at its last permutation.
func (sh *Shuffler) ShuffleSystematic(conf []uint8) (bool, error) {
	b, err := sh.onlyBound()
	if err != nil {
		return false, err
	}
	return rank.NextPermutation(rank.Configuration(conf[b.Lo:b.Hi])), nil
}

// SeedSystematic seeds conf's bounded span with the configuration of the
// given 1-based rank among permutations of template's own span multiset,
// called once when a worker enters a new systematic chunk.
func (sh *Shuffler) SeedSystematic(conf, template []uint8, r *big.Int) error {
	b, err := sh.onlyBound()
	if err != nil {
		return err
	}
	seeded, err := rank.UnrankPermutation(rank.Configuration(template[b.Lo:b.Hi]), r)
	if err != nil {
		return err
	}
	copy(conf[b.Lo:b.Hi], seeded)
	return nil
}

// RankPermutation returns the 1-based lexicographic rank of conf's bounded
// span, projecting species through speciesIndex (the packing map) first, as
// required by spec: rank/unrank both operate on packed species identifiers.
func (sh *Shuffler) RankPermutation(conf []uint8, speciesIndex map[uint8]int) (*big.Int, error) {
	b, err := sh.onlyBound()
	if err != nil {
		return nil, err
	}
	packed := make(rank.Configuration, b.Len())
	for i := range packed {
		packed[i] = uint8(speciesIndex[conf[b.Lo+i]])
	}
	return rank.RankPermutation(packed), nil
}

func (sh *Shuffler) onlyBound() (setup.Bounds, error) {
	if len(sh.Bounds) != 1 {
		return setup.Bounds{}, sqserr.BadValuef("iteration_mode", "systematic mode requires exactly one bounds span, got %d", len(sh.Bounds))
	}
	return sh.Bounds[0], nil
}

package shuffle

import (
	"math/big"
	"testing"

	"github.com/sarat-asymmetrica/sqsgen/internal/rank"
	"github.com/sarat-asymmetrica/sqsgen/internal/setup"
)

func TestShuffleRandomPreservesMultiset(t *testing.T) {
	conf := []uint8{0, 0, 0, 1, 1, 2}
	before := rank.CountSpecies(rank.Configuration(conf))

	seed := uint64(12345)
	sh := New([]setup.Bounds{{Lo: 0, Hi: len(conf)}}, &seed)
	sh.ShuffleRandom(conf)

	after := rank.CountSpecies(rank.Configuration(conf))
	for sp, n := range before {
		if after[sp] != n {
			t.Fatalf("species %d count changed: before=%d after=%d", sp, n, after[sp])
		}
	}
}

func TestShuffleRandomIsDeterministicForFixedSeed(t *testing.T) {
	conf1 := []uint8{0, 0, 1, 1, 2, 2}
	conf2 := append([]uint8(nil), conf1...)

	seed1 := uint64(777)
	seed2 := uint64(777)
	bounds := []setup.Bounds{{Lo: 0, Hi: len(conf1)}}

	New(bounds, &seed1).ShuffleRandom(conf1)
	New(bounds, &seed2).ShuffleRandom(conf2)

	for i := range conf1 {
		if conf1[i] != conf2[i] {
			t.Fatalf("same seed produced different shuffles at %d: %v vs %v", i, conf1, conf2)
		}
	}
}

func TestShuffleSystematicExhaustsAllPermutations(t *testing.T) {
	template := []uint8{0, 0, 1, 1}
	total := rank.NumPermutations(rank.CountSpecies(rank.Configuration(template)))

	conf := append([]uint8(nil), template...)
	bounds := []setup.Bounds{{Lo: 0, Hi: len(conf)}}
	seed := uint64(1)
	sh := New(bounds, &seed)

	seen := map[string]bool{}
	seen[string(conf)] = true
	count := int64(1)
	for {
		ok, err := sh.ShuffleSystematic(conf)
		if err != nil {
			t.Fatalf("ShuffleSystematic: %v", err)
		}
		if !ok {
			break
		}
		seen[string(conf)] = true
		count++
	}
	if got := total.Int64(); count != got {
		t.Fatalf("visited %d permutations, want %d", count, got)
	}
}

func TestSeedSystematicMatchesUnrank(t *testing.T) {
	template := []uint8{0, 0, 1, 1, 2}
	conf := make([]uint8, len(template))
	bounds := []setup.Bounds{{Lo: 0, Hi: len(template)}}
	seed := uint64(1)
	sh := New(bounds, &seed)

	rnk := big.NewInt(5)
	if err := sh.SeedSystematic(conf, template, rnk); err != nil {
		t.Fatalf("SeedSystematic: %v", err)
	}
	want, err := rank.UnrankPermutation(rank.Configuration(template), rnk)
	if err != nil {
		t.Fatalf("UnrankPermutation: %v", err)
	}
	for i := range conf {
		if conf[i] != want[i] {
			t.Fatalf("seeded conf = %v, want %v", conf, want)
		}
	}
}

func TestRankPermutationProjectsThroughSpeciesIndex(t *testing.T) {
	conf := []uint8{11, 11, 17, 17}
	speciesIndex := map[uint8]int{11: 0, 17: 1}
	bounds := []setup.Bounds{{Lo: 0, Hi: len(conf)}}
	seed := uint64(1)
	sh := New(bounds, &seed)

	r, err := sh.RankPermutation(conf, speciesIndex)
	if err != nil {
		t.Fatalf("RankPermutation: %v", err)
	}
	packed := rank.Configuration{0, 0, 1, 1}
	want := rank.RankPermutation(packed)
	if r.Cmp(want) != 0 {
		t.Fatalf("rank = %v, want %v", r, want)
	}
}

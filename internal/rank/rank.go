// Package rank implements arbitrary-precision lexicographic ranking and
// unranking of multiset permutations.
//
// PHYSICIST: a configuration is a sequence of species identifiers, one per
// lattice site; this package treats it as a word over a small alphabet and
// counts/enumerates its anagrams.
// MATHEMATICIAN: rank_permutation and unrank_permutation are mutual
// inverses on the set of 1..N!/prod(n_i!) lexicographic indices.
package rank

import (
	"math/big"

	"github.com/sarat-asymmetrica/sqsgen/internal/sqserr"
)

// Configuration is a fixed-length sequence of species identifiers, index i
// naming lattice site i.
type Configuration []uint8

// Factorial returns n! as an arbitrary-precision integer. n must be >= 0.
func Factorial(n int) *big.Int {
	result := big.NewInt(1)
	if n < 2 {
		return result
	}
	tmp := new(big.Int)
	for i := 2; i <= n; i++ {
		result.Mul(result, tmp.SetInt64(int64(i)))
	}
	return result
}

// CountSpecies returns a histogram of species occurrence counts, indexed by
// species identifier.
func CountSpecies(conf Configuration) map[uint8]int {
	hist := make(map[uint8]int)
	for _, s := range conf {
		hist[s]++
	}
	return hist
}

// NumPermutations returns N! / prod(n_i!) exactly, where N = sum(freqs) and
// n_i are the multiplicities in freqs.
func NumPermutations(freqs map[uint8]int) *big.Int {
	total := 0
	denom := big.NewInt(1)
	for _, n := range freqs {
		total += n
		denom.Mul(denom, Factorial(n))
	}
	num := Factorial(total)
	return num.Div(num, denom)
}

// RankPermutation returns the 1-based lexicographic rank of conf among the
// permutations of its own multiset.
//
// Sweeps right to left maintaining a running histogram; at each position it
// adds (suffixPermutations * sum(hist[j] for j < x)) / hist[x] to the
// running rank, then scales suffixPermutations by (i+1)/hist[x].
func RankPermutation(conf Configuration) *big.Int {
	numAtoms := len(conf)
	species := distinctSorted(conf)
	numSpecies := len(species)
	index := speciesIndex(species)

	hist := make([]int64, numSpecies)
	rankVal := big.NewInt(1)
	suffix := big.NewInt(1)

	tmp := new(big.Int)
	for i := 0; i < numAtoms; i++ {
		x := index[conf[numAtoms-1-i]]
		hist[x]++
		for j := 0; j < x; j++ {
			if hist[j] == 0 {
				continue
			}
			tmp.Mul(suffix, big.NewInt(hist[j]))
			tmp.Div(tmp, big.NewInt(hist[x]))
			rankVal.Add(rankVal, tmp)
		}
		suffix.Mul(suffix, big.NewInt(int64(i+1)))
		suffix.Div(suffix, big.NewInt(hist[x]))
	}
	return rankVal
}

// UnrankPermutation returns the configuration of the given 1-based rank
// among the permutations of template's multiset. template's own ordering is
// not preserved; only its species and their multiplicities matter.
func UnrankPermutation(template Configuration, r *big.Int) (Configuration, error) {
	return unrankWithHist(template, CountSpecies(template), r)
}

func unrankWithHist(template Configuration, freqsMap map[uint8]int, r *big.Int) (Configuration, error) {
	species := make([]uint8, 0, len(freqsMap))
	for s := range freqsMap {
		species = append(species, s)
	}
	sortUint8(species)

	totalPermutations := NumPermutations(freqsMap)
	if r.Sign() <= 0 || r.Cmp(totalPermutations) > 0 {
		return nil, sqserr.BadRange("rank", "rank must be in [1, num_permutations]")
	}

	numAtoms := len(template)
	numSpecies := len(species)
	hist := make([]int64, numSpecies)
	for i, s := range species {
		hist[i] = int64(freqsMap[s])
	}

	remaining := new(big.Int).Set(r)
	total := new(big.Int).Set(totalPermutations)
	result := make(Configuration, numAtoms)

	k := 0
	for i := 0; i < numAtoms; i++ {
		for j := 0; j < numSpecies; j++ {
			if hist[j] == 0 {
				continue
			}
			suffixCount := new(big.Int).Mul(total, big.NewInt(hist[j]))
			suffixCount.Div(suffixCount, big.NewInt(int64(numAtoms-i)))
			if remaining.Cmp(suffixCount) <= 0 {
				result[k] = species[j]
				total = suffixCount
				hist[j]--
				k++
				break
			}
			remaining.Sub(remaining, suffixCount)
		}
	}
	return result, nil
}

// NextPermutation advances conf in place to its lexicographic successor
// within the multiset of species it contains. Returns false, leaving conf
// unmodified, when conf is already the last permutation.
func NextPermutation(conf Configuration) bool {
	n := len(conf)
	if n < 2 {
		return false
	}
	k := n - 2
	for k >= 0 && conf[k] >= conf[k+1] {
		k--
	}
	if k < 0 {
		return false
	}
	l := n - 1
	for conf[k] >= conf[l] {
		l--
	}
	conf[k], conf[l] = conf[l], conf[k]
	for i, j := k+1, n-1; i < j; i, j = i+1, j-1 {
		conf[i], conf[j] = conf[j], conf[i]
	}
	return true
}

func distinctSorted(conf Configuration) []uint8 {
	seen := make(map[uint8]struct{})
	for _, s := range conf {
		seen[s] = struct{}{}
	}
	out := make([]uint8, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sortUint8(out)
	return out
}

func speciesIndex(species []uint8) map[uint8]int {
	idx := make(map[uint8]int, len(species))
	for i, s := range species {
		idx[s] = i
	}
	return idx
}

func sortUint8(s []uint8) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

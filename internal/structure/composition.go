package structure

import (
	"sort"

	"github.com/sarat-asymmetrica/sqsgen/internal/geometry"
	"github.com/sarat-asymmetrica/sqsgen/internal/sqserr"
)

// Sublattice is a disjoint subset of site indices together with the
// species-to-count distribution that must be placed on those sites.
type Sublattice struct {
	Sites  []int
	Counts map[uint8]int // species -> atom count
}

// NumSites returns the number of sites claimed by the sublattice.
func (sl Sublattice) NumSites() int { return len(sl.Sites) }

// Validate checks that the sublattice's counts sum to its site count and
// that it claims at least one site.
func (sl Sublattice) Validate(keyPath string) error {
	if len(sl.Sites) == 0 {
		return sqserr.OutOfRangef(keyPath+".sites", "sublattice site selection must be non-empty")
	}
	total := 0
	for _, n := range sl.Counts {
		total += n
	}
	if total != len(sl.Sites) {
		return sqserr.BadValuef(keyPath, "composition counts (%d) must sum to the number of sites (%d)", total, len(sl.Sites))
	}
	return nil
}

// Composition is an ordered list of sublattices. Sites across sublattices
// must be disjoint; their union may be a proper subset of all structure
// sites (unlisted sites are inert).
type Composition []Sublattice

// Validate checks pairwise site-disjointness and per-sublattice count
// consistency.
func (c Composition) Validate() error {
	seen := make(map[int]int) // site -> owning sublattice index
	for i, sl := range c {
		if err := sl.Validate("composition"); err != nil {
			return err
		}
		for _, site := range sl.Sites {
			if owner, ok := seen[site]; ok {
				return sqserr.BadValuef("sites", "site %d is claimed by sublattices %d and %d", site, owner, i)
			}
			seen[site] = i
		}
	}
	return nil
}

// canonicalSpeciesOrder returns counts' species keys sorted ascending by
// atomic number.
func canonicalSpeciesOrder(counts map[uint8]int) []uint8 {
	species := make([]uint8, 0, len(counts))
	for s := range counts {
		species = append(species, s)
	}
	sort.Slice(species, func(i, j int) bool { return species[i] < species[j] })
	return species
}

// ApplyComposition returns a new Structure with the species on the
// composition's listed sites replaced by the composition's multiset in
// canonical (ascending atomic number) order; sites not claimed by any
// sublattice keep their original species.
func ApplyComposition(s *Structure, comp Composition) (*Structure, error) {
	if err := comp.Validate(); err != nil {
		return nil, err
	}
	species := append([]uint8(nil), s.Species...)
	for _, sl := range comp {
		order := canonicalSpeciesOrder(sl.Counts)
		pos := 0
		for _, sp := range order {
			for n := 0; n < sl.Counts[sp]; n++ {
				species[sl.Sites[pos]] = sp
				pos++
			}
		}
	}
	return New(s.Lattice, s.Coords, species, s.PBC)
}

// ApplyCompositionAndDecompose applies the composition and returns one
// substructure per sublattice, sliced down to that sublattice's sites (in
// the sublattice's own listed order).
func ApplyCompositionAndDecompose(s *Structure, comp Composition) ([]*Structure, error) {
	full, err := ApplyComposition(s, comp)
	if err != nil {
		return nil, err
	}
	out := make([]*Structure, len(comp))
	for i, sl := range comp {
		sub, err := full.Sliced(sl.Sites)
		if err != nil {
			return nil, err
		}
		out[i] = sub
	}
	return out, nil
}

// AtomPair is a single contributing bond record: i < j site indices and a
// shell index s >= 1.
type AtomPair struct {
	I, J int
	S    int
}

// Pairs returns the pair list, the shell-index compaction map (sparse shell
// key -> contiguous 0..M-1), and its reverse, for every (i,j,s) with i<j, s
// a key of weights, and s == shellMatrix(i,j). The pair list is sorted by
// (|i-j|, i) to improve cache locality in the hot bond-counting loop.
func Pairs(s *Structure, radii []float64, atol, rtol float64, weights map[int]float64) ([]AtomPair, map[int]int, map[int]int) {
	shellKeys := make([]int, 0, len(weights))
	for k := range weights {
		shellKeys = append(shellKeys, k)
	}
	sort.Ints(shellKeys)
	shellIndexMap := make(map[int]int, len(shellKeys))
	shellReverseMap := make(map[int]int, len(shellKeys))
	for idx, k := range shellKeys {
		shellIndexMap[k] = idx
		shellReverseMap[idx] = k
	}

	d := s.DistanceMatrix()
	shellMatrix := geometry.ShellMatrix(d, radii, atol, rtol)

	n := s.NumSites()
	var pairs []AtomPair
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			shell := int(shellMatrix.At(i, j))
			if shell == 0 {
				continue
			}
			if _, ok := weights[shell]; !ok {
				continue
			}
			pairs = append(pairs, AtomPair{I: i, J: j, S: shell})
		}
	}

	sort.SliceStable(pairs, func(a, b int) bool {
		da := pairs[a].J - pairs[a].I
		db := pairs[b].J - pairs[b].I
		if da != db {
			return da < db
		}
		return pairs[a].I < pairs[b].I
	})

	return pairs, shellIndexMap, shellReverseMap
}

// Package structure models an immutable periodic crystal: a lattice,
// fractional coordinates, per-site species, and periodic-boundary flags,
// with memoized derived views (distance matrix, sorted/filtered/sliced
// copies, supercells).
//
// Every view constructor returns a new value rather than mutating its
// receiver, so a derived view can diverge from the structure it came from
// without aliasing its backing slices.
package structure

import (
	"sync"

	"github.com/sarat-asymmetrica/sqsgen/internal/geometry"
	"github.com/sarat-asymmetrica/sqsgen/internal/sqserr"
)

// Structure is an immutable periodic crystal: lattice, fractional
// coordinates, and per-site species identifiers (atomic numbers, 0..118).
type Structure struct {
	Lattice geometry.Lattice
	Coords  geometry.FracCoords
	Species []uint8
	PBC     [3]bool

	once     sync.Once
	distance *geometry.Matrix
}

// New constructs a Structure. PBC defaults to {true,true,true} when the
// zero value is passed.
func New(lattice geometry.Lattice, coords geometry.FracCoords, species []uint8, pbc [3]bool) (*Structure, error) {
	if len(coords) != len(species) {
		return nil, sqserr.BadValuef("structure", "frac coords must have the same length as species (%d != %d)", len(coords), len(species))
	}
	if pbc == ([3]bool{}) {
		pbc = [3]bool{true, true, true}
	}
	return &Structure{Lattice: lattice, Coords: coords, Species: append([]uint8(nil), species...), PBC: pbc}, nil
}

// NumSites returns the number of lattice sites.
func (s *Structure) NumSites() int { return len(s.Species) }

// DistanceMatrix returns the memoized minimum-image distance matrix.
func (s *Structure) DistanceMatrix() *geometry.Matrix {
	s.once.Do(func() {
		s.distance = geometry.DistanceMatrix(s.Lattice, s.Coords)
	})
	return s.distance
}

// Site is a read-only view of a single lattice site.
type Site struct {
	Index   int
	Coords  [3]float64
	Species uint8
}

// Sites returns an iterable view of every site in index order.
func (s *Structure) Sites() []Site {
	out := make([]Site, s.NumSites())
	for i := range out {
		out[i] = Site{Index: i, Coords: s.Coords[i], Species: s.Species[i]}
	}
	return out
}

// SortedWithIndices returns a new Structure with species and coordinates
// permuted according to cmp (a standard less-than comparator over site
// indices into s), plus the permutation pi such that result.Species[k] ==
// s.Species[pi[k]]. Slicing the result by InversePermutation(pi) restores
// s's original site order.
func (s *Structure) SortedWithIndices(less func(i, j int) bool) (*Structure, []int) {
	n := s.NumSites()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sortInts(perm, func(a, b int) bool { return less(a, b) })

	coords := make(geometry.FracCoords, n)
	species := make([]uint8, n)
	for k, idx := range perm {
		coords[k] = s.Coords[idx]
		species[k] = s.Species[idx]
	}
	out, _ := New(s.Lattice, coords, species, s.PBC)
	return out, perm
}

// InversePermutation returns the permutation that undoes perm: applying
// Sliced-by-perm then Sliced-by-Inverse restores original site order.
func InversePermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// Sliced returns a new Structure containing only the listed site indices,
// in the order given. indices must be non-empty and in range.
func (s *Structure) Sliced(indices []int) (*Structure, error) {
	if len(indices) == 0 {
		return nil, sqserr.OutOfRangef("sites", "site selection must be non-empty")
	}
	n := s.NumSites()
	coords := make(geometry.FracCoords, len(indices))
	species := make([]uint8, len(indices))
	for k, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, sqserr.OutOfRangef("sites", "site index %d out of range [0,%d)", idx, n)
		}
		coords[k] = s.Coords[idx]
		species[k] = s.Species[idx]
	}
	return New(s.Lattice, coords, species, s.PBC)
}

// Filtered returns a new Structure keeping only sites for which predicate
// returns true.
func (s *Structure) Filtered(predicate func(Site) bool) (*Structure, error) {
	var indices []int
	for _, site := range s.Sites() {
		if predicate(site) {
			indices = append(indices, site.Index)
		}
	}
	return s.Sliced(indices)
}

// Supercell tiles the unit cell a x b x c times, translating fractional
// coordinates into the enlarged cell and repeating species per tile.
func (s *Structure) Supercell(a, b, c int) (*Structure, error) {
	if a <= 0 || b <= 0 || c <= 0 {
		return nil, sqserr.BadValuef("structure.supercell", "supercell factors must be positive, got (%d,%d,%d)", a, b, c)
	}
	var lattice geometry.Lattice
	for d := 0; d < 3; d++ {
		lattice[0][d] = s.Lattice[0][d] * float64(a)
		lattice[1][d] = s.Lattice[1][d] * float64(b)
		lattice[2][d] = s.Lattice[2][d] * float64(c)
	}

	n := s.NumSites()
	coords := make(geometry.FracCoords, 0, n*a*b*c)
	species := make([]uint8, 0, n*a*b*c)
	for i := 0; i < a; i++ {
		for j := 0; j < b; j++ {
			for k := 0; k < c; k++ {
				for site := 0; site < n; site++ {
					orig := s.Coords[site]
					coords = append(coords, [3]float64{
						(orig[0] + float64(i)) / float64(a),
						(orig[1] + float64(j)) / float64(b),
						(orig[2] + float64(k)) / float64(c),
					})
					species = append(species, s.Species[site])
				}
			}
		}
	}
	return New(lattice, coords, species, s.PBC)
}

func sortInts(perm []int, less func(a, b int) bool) {
	for i := 1; i < len(perm); i++ {
		for j := i; j > 0 && less(perm[j], perm[j-1]); j-- {
			perm[j], perm[j-1] = perm[j-1], perm[j]
		}
	}
}

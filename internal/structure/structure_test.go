package structure

import (
	"testing"

	"github.com/sarat-asymmetrica/sqsgen/internal/geometry"
)

func fccUnitCell() *Structure {
	lattice := geometry.Lattice{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	coords := geometry.FracCoords{{0, 0, 0}, {0, 0.5, 0.5}, {0.5, 0, 0.5}, {0.5, 0.5, 0}}
	species := []uint8{13, 13, 13, 13}
	s, err := New(lattice, coords, species, [3]bool{})
	if err != nil {
		panic(err)
	}
	return s
}

func TestSortThenInverseSortIsIdentity(t *testing.T) {
	s := fccUnitCell()
	s.Species = []uint8{3, 1, 4, 2}

	sorted, perm := s.SortedWithIndices(func(i, j int) bool { return s.Species[i] < s.Species[j] })
	inv := InversePermutation(perm)
	restored, _ := sorted.Sliced(inv)

	for i := range s.Species {
		if restored.Species[i] != s.Species[i] {
			t.Fatalf("sort/inverse-sort round trip failed at %d: got %v want %v", i, restored.Species, s.Species)
		}
	}
}

func TestSlicedRejectsEmpty(t *testing.T) {
	s := fccUnitCell()
	if _, err := s.Sliced(nil); err == nil {
		t.Fatalf("expected error for empty site selection")
	}
}

func TestSupercellRepeatsSpecies(t *testing.T) {
	s := fccUnitCell()
	super, err := s.Supercell(2, 2, 2)
	if err != nil {
		t.Fatalf("Supercell: %v", err)
	}
	if got, want := super.NumSites(), s.NumSites()*8; got != want {
		t.Fatalf("Supercell sites = %d, want %d", got, want)
	}
}

func TestCompositionOverlapRejected(t *testing.T) {
	comp := Composition{
		{Sites: []int{0, 1}, Counts: map[uint8]int{11: 1, 19: 1}},
		{Sites: []int{1, 2}, Counts: map[uint8]int{17: 1, 35: 1}},
	}
	if err := comp.Validate(); err == nil {
		t.Fatalf("expected overlap error")
	}
}

func TestApplyCompositionAndDecompose(t *testing.T) {
	s := fccUnitCell()
	comp := Composition{
		{Sites: []int{0, 1}, Counts: map[uint8]int{11: 1, 19: 1}},
		{Sites: []int{2, 3}, Counts: map[uint8]int{17: 1, 35: 1}},
	}
	subs, err := ApplyCompositionAndDecompose(s, comp)
	if err != nil {
		t.Fatalf("ApplyCompositionAndDecompose: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 sub-structures, got %d", len(subs))
	}
	for _, sub := range subs {
		if sub.NumSites() != 2 {
			t.Fatalf("expected 2 sites per sublattice, got %d", sub.NumSites())
		}
	}
}

func TestPairsReferenceValidShells(t *testing.T) {
	s := fccUnitCell()
	d := s.DistanceMatrix()
	radii := geometry.NaiveShellRadii(d, 1e-3, 1e-5)
	weights := map[int]float64{1: 1.0}
	pairs, shellIndexMap, shellReverseMap := Pairs(s, radii, 1e-3, 1e-5, weights)

	if len(pairs) == 0 {
		t.Fatalf("expected at least one pair")
	}
	for _, p := range pairs {
		if p.I >= p.J {
			t.Fatalf("pair (%d,%d) violates i<j", p.I, p.J)
		}
		if p.S < 1 {
			t.Fatalf("pair shell %d must be >= 1", p.S)
		}
		if _, ok := weights[p.S]; !ok {
			t.Fatalf("pair shell %d is not a weighted shell", p.S)
		}
	}
	if shellReverseMap[shellIndexMap[1]] != 1 {
		t.Fatalf("shell index map/reverse map mismatch")
	}
}

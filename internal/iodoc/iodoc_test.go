package iodoc

import "testing"

const pymatgenDocJSON = `{
	"lattice": {"matrix": [[4.2, 0, 0], [0, 4.2, 0], [0, 0, 4.2]]},
	"sites": [
		{"species": [{"element": "Na", "occu": 1}], "abc": [0, 0, 0]},
		{"species": [{"element": "Cl", "occu": 1}], "abc": [0.5, 0.5, 0.5]}
	]
}`

const aseDocJSON = `{
	"cell": [[4.2, 0, 0], [0, 4.2, 0], [0, 0, 4.2]],
	"positions": [[0, 0, 0], [2.1, 2.1, 2.1]],
	"numbers": [11, 17],
	"pbc": [true, true, true]
}`

func TestDecodePymatgenDocument(t *testing.T) {
	s, err := Decode([]byte(pymatgenDocJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.NumSites() != 2 {
		t.Fatalf("NumSites = %d, want 2", s.NumSites())
	}
	if s.Species[0] != 11 || s.Species[1] != 17 {
		t.Fatalf("Species = %v, want [11 17]", s.Species)
	}
	if s.Coords[1] != ([3]float64{0.5, 0.5, 0.5}) {
		t.Fatalf("Coords[1] = %v, want [0.5 0.5 0.5]", s.Coords[1])
	}
}

func TestDecodeASEDocument(t *testing.T) {
	s, err := Decode([]byte(aseDocJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.NumSites() != 2 {
		t.Fatalf("NumSites = %d, want 2", s.NumSites())
	}
	got := s.Coords[1]
	want := [3]float64{0.5, 0.5, 0.5}
	for i := range got {
		if diff := got[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("Coords[1] = %v, want %v", got, want)
		}
	}
}

func TestDecodeUnrecognizedShape(t *testing.T) {
	_, err := Decode([]byte(`{"foo": "bar"}`))
	if err == nil {
		t.Fatalf("expected an error for an unrecognized document shape")
	}
}

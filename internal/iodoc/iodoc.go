// Package iodoc decodes pymatgen- and ASE-style JSON structure documents
// into a structure.Structure, covering the "JSON variants mirroring
// pymatgen and ASE schemas" mentioned alongside POSCAR and CIF in
// spec.md §6. POSCAR and CIF textual grammars stay out of scope: no
// grammar for them is specified anywhere beyond naming the formats.
package iodoc

import (
	"encoding/json"

	"github.com/sarat-asymmetrica/sqsgen/internal/elements"
	"github.com/sarat-asymmetrica/sqsgen/internal/geometry"
	"github.com/sarat-asymmetrica/sqsgen/internal/sqserr"
	"github.com/sarat-asymmetrica/sqsgen/internal/structure"
)

type pymatgenSpecies struct {
	Element string  `json:"element"`
	Occu    float64 `json:"occu"`
}

type pymatgenSite struct {
	Species []pymatgenSpecies `json:"species"`
	ABC     [3]float64        `json:"abc"`
}

type pymatgenLattice struct {
	Matrix [3][3]float64 `json:"matrix"`
}

type pymatgenDoc struct {
	Lattice pymatgenLattice `json:"lattice"`
	Sites   []pymatgenSite  `json:"sites"`
}

// aseDoc mirrors the subset of ase.io.jsonio's flat schema this decoder
// understands: a cell matrix, cartesian positions, atomic numbers, and
// periodic-boundary flags.
type aseDoc struct {
	Cell      [3][3]float64 `json:"cell"`
	Positions [][3]float64  `json:"positions"`
	Numbers   []int         `json:"numbers"`
	PBC       [3]bool       `json:"pbc"`
}

// Decode sniffs the document shape (pymatgen's "sites" vs ASE's
// "positions") and builds a structure.Structure from it.
func Decode(raw []byte) (*structure.Structure, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, sqserr.TypeErrorf("structure", "malformed structure document: %v", err)
	}
	if _, ok := probe["sites"]; ok {
		return decodePymatgen(raw)
	}
	if _, ok := probe["positions"]; ok {
		return decodeASE(raw)
	}
	return nil, sqserr.TypeErrorf("structure", `unrecognized structure document shape (expected pymatgen's "sites" or ASE's "positions")`)
}

func decodePymatgen(raw []byte) (*structure.Structure, error) {
	var doc pymatgenDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, sqserr.TypeErrorf("structure", "malformed pymatgen structure document: %v", err)
	}
	if len(doc.Sites) == 0 {
		return nil, sqserr.OutOfRangef("structure.sites", "structure document has no sites")
	}

	coords := make(geometry.FracCoords, len(doc.Sites))
	species := make([]uint8, len(doc.Sites))
	for i, site := range doc.Sites {
		if len(site.Species) == 0 {
			return nil, sqserr.BadValuef("structure.sites", "site %d has no species", i)
		}
		z, ok := elements.AtomicNumber(site.Species[0].Element)
		if !ok {
			return nil, sqserr.BadValuef("structure.sites", "unknown element symbol %q at site %d", site.Species[0].Element, i)
		}
		species[i] = z
		coords[i] = site.ABC
	}
	return structure.New(geometry.Lattice(doc.Lattice.Matrix), coords, species, [3]bool{})
}

func decodeASE(raw []byte) (*structure.Structure, error) {
	var doc aseDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, sqserr.TypeErrorf("structure", "malformed ASE structure document: %v", err)
	}
	if len(doc.Positions) != len(doc.Numbers) {
		return nil, sqserr.BadValuef("structure", "positions (%d) and numbers (%d) must have the same length", len(doc.Positions), len(doc.Numbers))
	}

	lattice := geometry.Lattice(doc.Cell)
	inv, err := invert3x3(lattice)
	if err != nil {
		return nil, err
	}

	coords := make(geometry.FracCoords, len(doc.Positions))
	species := make([]uint8, len(doc.Numbers))
	for i, pos := range doc.Positions {
		coords[i] = fracOf(inv, pos)
		if doc.Numbers[i] < 0 || doc.Numbers[i] > 255 {
			return nil, sqserr.OutOfRangef("structure.numbers", "atomic number %d out of range at site %d", doc.Numbers[i], i)
		}
		species[i] = uint8(doc.Numbers[i])
	}

	pbc := doc.PBC
	if pbc == ([3]bool{}) {
		pbc = [3]bool{true, true, true}
	}
	return structure.New(lattice, coords, species, pbc)
}

// invert3x3 inverts a row-vector lattice matrix by cofactor expansion.
// ASE stores cartesian positions; recovering fractional coordinates
// requires solving frac * cell = cart for frac.
func invert3x3(m geometry.Lattice) (geometry.Lattice, error) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if det == 0 {
		return geometry.Lattice{}, sqserr.BadValuef("structure.cell", "cell matrix is singular")
	}
	invDet := 1 / det

	var inv geometry.Lattice
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) * invDet
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * invDet
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * invDet
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) * invDet
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * invDet
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * invDet
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) * invDet
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * invDet
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * invDet
	return inv, nil
}

// fracOf returns cart expressed in the lattice's own basis via cart * inv.
func fracOf(inv geometry.Lattice, cart [3]float64) [3]float64 {
	var frac [3]float64
	for col := 0; col < 3; col++ {
		frac[col] = cart[0]*inv[0][col] + cart[1]*inv[1][col] + cart[2]*inv[2][col]
	}
	return frac
}

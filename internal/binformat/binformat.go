// Package binformat implements bit-exact binary persistence: save/load
// pairs for the dense tensor, Structure, optimization config snapshot,
// interact/split results, statistics, and a full result pack.
//
// Grounded on therealutkarshpriyadarshi-vector's pkg/diskann/disk_graph.go
// (WriteNode/ReadNode): explicit field-by-field encoding/binary.Write and
// binary.Read calls in a fixed little-endian order, with an int64 length
// header preceding every variable-length slice.
package binformat

import (
	"encoding/binary"
	"io"

	"github.com/sarat-asymmetrica/sqsgen/internal/geometry"
	"github.com/sarat-asymmetrica/sqsgen/internal/structure"
	"github.com/sarat-asymmetrica/sqsgen/internal/tensor"
)

var order = binary.LittleEndian

func writeLen(w io.Writer, n int) error {
	return binary.Write(w, order, int64(n))
}

func readLen(r io.Reader) (int, error) {
	var n int64
	if err := binary.Read(r, order, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// WriteFloat64Slice writes a length-prefixed []float64.
func WriteFloat64Slice(w io.Writer, s []float64) error {
	if err := writeLen(w, len(s)); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	return binary.Write(w, order, s)
}

// ReadFloat64Slice reads a length-prefixed []float64.
func ReadFloat64Slice(r io.Reader) ([]float64, error) {
	n, err := readLen(r)
	if err != nil {
		return nil, err
	}
	s := make([]float64, n)
	if n == 0 {
		return s, nil
	}
	if err := binary.Read(r, order, s); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteUint8Slice writes a length-prefixed []uint8.
func WriteUint8Slice(w io.Writer, s []uint8) error {
	if err := writeLen(w, len(s)); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	_, err := w.Write(s)
	return err
}

// ReadUint8Slice reads a length-prefixed []uint8.
func ReadUint8Slice(r io.Reader) ([]uint8, error) {
	n, err := readLen(r)
	if err != nil {
		return nil, err
	}
	s := make([]uint8, n)
	if n == 0 {
		return s, nil
	}
	if _, err := io.ReadFull(r, s); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteInt64Slice writes a length-prefixed []int64.
func WriteInt64Slice(w io.Writer, s []int64) error {
	if err := writeLen(w, len(s)); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	return binary.Write(w, order, s)
}

// ReadInt64Slice reads a length-prefixed []int64.
func ReadInt64Slice(r io.Reader) ([]int64, error) {
	n, err := readLen(r)
	if err != nil {
		return nil, err
	}
	s := make([]int64, n)
	if n == 0 {
		return s, nil
	}
	if err := binary.Read(r, order, s); err != nil {
		return nil, err
	}
	return s, nil
}

// intsToInt64 and int64sToInts convert between Go's platform-width int and
// the fixed-width wire representation.
func intsToInt64(s []int) []int64 {
	out := make([]int64, len(s))
	for i, v := range s {
		out[i] = int64(v)
	}
	return out
}

func int64sToInts(s []int64) []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[i] = int(v)
	}
	return out
}

// WriteIntSlice writes a length-prefixed []int via its int64 wire form.
func WriteIntSlice(w io.Writer, s []int) error {
	return WriteInt64Slice(w, intsToInt64(s))
}

// ReadIntSlice reads a length-prefixed []int from its int64 wire form.
func ReadIntSlice(r io.Reader) ([]int, error) {
	s, err := ReadInt64Slice(r)
	if err != nil {
		return nil, err
	}
	return int64sToInts(s), nil
}

// WriteTensor writes a dense tensor's shape header (M, S) followed by its
// flat data.
func WriteTensor(w io.Writer, t *tensor.Tensor) error {
	if err := writeLen(w, t.M); err != nil {
		return err
	}
	if err := writeLen(w, t.S); err != nil {
		return err
	}
	return WriteFloat64Slice(w, t.Data)
}

// ReadTensor reads a dense tensor written by WriteTensor.
func ReadTensor(r io.Reader) (*tensor.Tensor, error) {
	m, err := readLen(r)
	if err != nil {
		return nil, err
	}
	s, err := readLen(r)
	if err != nil {
		return nil, err
	}
	data, err := ReadFloat64Slice(r)
	if err != nil {
		return nil, err
	}
	return &tensor.Tensor{M: m, S: s, Data: data}, nil
}

// WriteStructure writes a Structure: the flattened 3x3 lattice, flattened
// Nx3 fractional coordinates, species, and the 3-element PBC flags.
func WriteStructure(w io.Writer, s *structure.Structure) error {
	flatLattice := make([]float64, 0, 9)
	for _, row := range s.Lattice {
		flatLattice = append(flatLattice, row[:]...)
	}
	if err := WriteFloat64Slice(w, flatLattice); err != nil {
		return err
	}

	flatCoords := make([]float64, 0, len(s.Coords)*3)
	for _, c := range s.Coords {
		flatCoords = append(flatCoords, c[:]...)
	}
	if err := WriteFloat64Slice(w, flatCoords); err != nil {
		return err
	}

	if err := WriteUint8Slice(w, s.Species); err != nil {
		return err
	}

	pbc := make([]uint8, 3)
	for i, v := range s.PBC {
		if v {
			pbc[i] = 1
		}
	}
	return WriteUint8Slice(w, pbc)
}

// ReadStructure reads a Structure written by WriteStructure.
func ReadStructure(r io.Reader) (*structure.Structure, error) {
	flatLattice, err := ReadFloat64Slice(r)
	if err != nil {
		return nil, err
	}
	var lattice geometry.Lattice
	for i := 0; i < 3; i++ {
		copy(lattice[i][:], flatLattice[i*3:i*3+3])
	}

	flatCoords, err := ReadFloat64Slice(r)
	if err != nil {
		return nil, err
	}
	coords := make(geometry.FracCoords, len(flatCoords)/3)
	for i := range coords {
		copy(coords[i][:], flatCoords[i*3:i*3+3])
	}

	species, err := ReadUint8Slice(r)
	if err != nil {
		return nil, err
	}

	pbcBytes, err := ReadUint8Slice(r)
	if err != nil {
		return nil, err
	}
	var pbc [3]bool
	for i, v := range pbcBytes {
		pbc[i] = v != 0
	}

	return structure.New(lattice, coords, species, pbc)
}

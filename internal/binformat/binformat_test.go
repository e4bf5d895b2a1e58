package binformat

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/sarat-asymmetrica/sqsgen/internal/geometry"
	"github.com/sarat-asymmetrica/sqsgen/internal/results"
	"github.com/sarat-asymmetrica/sqsgen/internal/setup"
	"github.com/sarat-asymmetrica/sqsgen/internal/stats"
	"github.com/sarat-asymmetrica/sqsgen/internal/structure"
	"github.com/sarat-asymmetrica/sqsgen/internal/tensor"
)

func TestTensorRoundTrip(t *testing.T) {
	src := tensor.New(2, 3)
	for i := range src.Data {
		src.Data[i] = float64(i) * 1.5
	}
	var buf bytes.Buffer
	if err := WriteTensor(&buf, src); err != nil {
		t.Fatalf("WriteTensor: %v", err)
	}
	got, err := ReadTensor(&buf)
	if err != nil {
		t.Fatalf("ReadTensor: %v", err)
	}
	if got.M != src.M || got.S != src.S {
		t.Fatalf("shape mismatch: got (%d,%d), want (%d,%d)", got.M, got.S, src.M, src.S)
	}
	for i := range src.Data {
		if got.Data[i] != src.Data[i] {
			t.Fatalf("data[%d] = %v, want %v", i, got.Data[i], src.Data[i])
		}
	}
}

func TestStructureRoundTrip(t *testing.T) {
	lattice := geometry.Lattice{{4.2, 0, 0}, {0, 4.2, 0}, {0, 0, 4.2}}
	coords := geometry.FracCoords{{0, 0, 0}, {0.5, 0.5, 0}}
	species := []uint8{11, 17}
	src, err := structure.New(lattice, coords, species, [3]bool{true, true, false})
	if err != nil {
		t.Fatalf("structure.New: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteStructure(&buf, src); err != nil {
		t.Fatalf("WriteStructure: %v", err)
	}
	got, err := ReadStructure(&buf)
	if err != nil {
		t.Fatalf("ReadStructure: %v", err)
	}
	if got.Lattice != src.Lattice {
		t.Fatalf("lattice mismatch: got %v, want %v", got.Lattice, src.Lattice)
	}
	if len(got.Coords) != len(src.Coords) {
		t.Fatalf("coords length mismatch")
	}
	for i := range got.Species {
		if got.Species[i] != src.Species[i] {
			t.Fatalf("species[%d] = %d, want %d", i, got.Species[i], src.Species[i])
		}
	}
	if got.PBC != src.PBC {
		t.Fatalf("PBC mismatch: got %v, want %v", got.PBC, src.PBC)
	}
}

func TestInteractResultRoundTrip(t *testing.T) {
	sro := tensor.New(1, 2)
	sro.Set(0, 0, 1, 0.25)
	src := results.InteractResult{
		Obj:     0.75,
		Rank:    big.NewInt(123456789),
		Species: []uint8{1, 2, 2, 1},
		SRO:     sro,
	}
	var buf bytes.Buffer
	if err := WriteInteractResult(&buf, src); err != nil {
		t.Fatalf("WriteInteractResult: %v", err)
	}
	got, err := ReadInteractResult(&buf)
	if err != nil {
		t.Fatalf("ReadInteractResult: %v", err)
	}
	if got.Obj != src.Obj {
		t.Fatalf("Obj = %v, want %v", got.Obj, src.Obj)
	}
	if got.Rank.Cmp(src.Rank) != 0 {
		t.Fatalf("Rank = %v, want %v", got.Rank, src.Rank)
	}
	if got.SRO.At(0, 0, 1) != 0.25 {
		t.Fatalf("SRO[0,0,1] = %v, want 0.25", got.SRO.At(0, 0, 1))
	}
}

func TestResultPackRoundTrip(t *testing.T) {
	collection := results.New(0)
	collection.Insert(results.InteractResult{Obj: 0.1, Species: []uint8{1, 2}, SRO: tensor.New(1, 1)})
	collection.Insert(results.SplitResult{
		Obj: 0.2,
		Sublattices: []results.InteractResult{
			{Species: []uint8{1, 1}, SRO: tensor.New(1, 1)},
			{Species: []uint8{2, 2}, SRO: tensor.New(1, 1)},
		},
	})

	st := stats.New()
	st.AddFinished(100)
	st.LogResult(42, 0.1)
	tick := st.Tick(stats.Loop)
	st.Tock(tick)

	cfg := ConfigSnapshot{Mode: setup.Interact, IterationMode: setup.Random, Iterations: 1000, ChunkSize: 50, Keep: 3}

	var buf bytes.Buffer
	if err := WriteResultPack(&buf, collection, cfg, st); err != nil {
		t.Fatalf("WriteResultPack: %v", err)
	}

	gotCollection, gotCfg, gotStats, err := ReadResultPack(&buf, 0)
	if err != nil {
		t.Fatalf("ReadResultPack: %v", err)
	}
	if gotCollection.NumResults() != collection.NumResults() {
		t.Fatalf("NumResults = %d, want %d", gotCollection.NumResults(), collection.NumResults())
	}
	if gotCfg != cfg {
		t.Fatalf("ConfigSnapshot = %+v, want %+v", gotCfg, cfg)
	}
	if gotStats.Finished() != 100 {
		t.Fatalf("Finished = %d, want 100", gotStats.Finished())
	}
	if gotStats.BestObjective() != 0.1 {
		t.Fatalf("BestObjective = %v, want 0.1", gotStats.BestObjective())
	}
	if gotStats.Timing(stats.Loop) <= 0 {
		t.Fatalf("expected Loop timing to have been restored, got %d", gotStats.Timing(stats.Loop))
	}
}

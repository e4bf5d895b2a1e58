package optimizer

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarat-asymmetrica/sqsgen/internal/geometry"
	"github.com/sarat-asymmetrica/sqsgen/internal/setup"
	"github.com/sarat-asymmetrica/sqsgen/internal/stats"
	"github.com/sarat-asymmetrica/sqsgen/internal/structure"
)

func rockSaltStructure(t *testing.T) *structure.Structure {
	t.Helper()
	lattice := geometry.Lattice{{4.2, 0, 0}, {0, 4.2, 0}, {0, 0, 4.2}}
	coords := geometry.FracCoords{
		{0, 0, 0}, {0, 0.5, 0.5}, {0.5, 0, 0.5}, {0.5, 0.5, 0},
		{0.5, 0.5, 0.5}, {0.5, 0, 0}, {0, 0.5, 0}, {0, 0, 0.5},
	}
	species := []uint8{11, 11, 11, 11, 17, 17, 17, 17}
	s, err := structure.New(lattice, coords, species, [3]bool{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func buildInteractContext(t *testing.T, iterMode setup.IterationMode) *setup.Context {
	t.Helper()
	s := rockSaltStructure(t)
	comp := structure.Composition{
		{Sites: []int{0, 1, 2, 3}, Counts: map[uint8]int{11: 2, 19: 2}},
	}
	ctxs, err := setup.Build(setup.Options{
		Structure:     s,
		Composition:   comp,
		Mode:          setup.Interact,
		IterationMode: iterMode,
	})
	if err != nil {
		t.Fatalf("setup.Build: %v", err)
	}
	return ctxs[0]
}

func TestRunRandomInteractPopulatesCollection(t *testing.T) {
	ctx := buildInteractContext(t, setup.Random)
	o := New([]*setup.Context{ctx}, Config{
		Mode:          setup.Interact,
		IterationMode: setup.Random,
		Iterations:    200,
		ChunkSize:     20,
		Keep:          5,
	})
	require.NoError(t, o.Run(4))
	require.NotZero(t, o.Collection.NumResults())

	best, results := o.Collection.Best()
	require.NotEmpty(t, results)
	require.LessOrEqual(t, best, o.BestObjective())
	require.Equal(t, uint64(200), o.Stats.Finished())
	require.Zero(t, o.Stats.Working())
}

func TestRunSystematicInteractExploresDistinctPermutations(t *testing.T) {
	ctx := buildInteractContext(t, setup.Systematic)
	o := New([]*setup.Context{ctx}, Config{
		Mode:          setup.Interact,
		IterationMode: setup.Systematic,
		Iterations:    6, // NumPermutations for a 2/2 multiset of size 4
		ChunkSize:     3,
		Keep:          10,
	})
	if err := o.Run(2); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.Collection.NumResults() == 0 {
		t.Fatalf("expected at least one retained result")
	}
}

func TestRunSplitModeEvaluatesEachSublatticeIndependently(t *testing.T) {
	s := rockSaltStructure(t)
	comp := structure.Composition{
		{Sites: []int{0, 1, 2, 3}, Counts: map[uint8]int{11: 2, 19: 2}},
		{Sites: []int{4, 5, 6, 7}, Counts: map[uint8]int{17: 2, 35: 2}},
	}
	ctxs, err := setup.Build(setup.Options{Structure: s, Composition: comp, Mode: setup.Split})
	if err != nil {
		t.Fatalf("setup.Build: %v", err)
	}
	o := New(ctxs, Config{
		Mode:       setup.Split,
		Iterations: 50,
		ChunkSize:  10,
		Keep:       5,
	})
	if err := o.Run(3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.Collection.NumResults() == 0 {
		t.Fatalf("expected at least one retained split result")
	}
	_, results := o.Collection.Best()
	if len(results) == 0 {
		t.Fatalf("expected best entry to carry at least one split result")
	}
}

func TestCallbackCanRequestCancellation(t *testing.T) {
	ctx := buildInteractContext(t, setup.Random)
	var calls atomic.Int64
	o := New([]*setup.Context{ctx}, Config{
		Mode:          setup.Interact,
		IterationMode: setup.Random,
		Iterations:    1000,
		ChunkSize:     10,
		Keep:          5,
		Callback: func(s *stats.Stats) bool {
			calls.Add(1)
			return true
		},
	})
	require.NoError(t, o.Run(4))
	require.NotZero(t, calls.Load())
	require.True(t, o.Stopped())
	require.Less(t, o.Stats.Finished(), uint64(1000))
}

func TestRankSliceCoversExactlyTotalAcrossRanks(t *testing.T) {
	const total = uint64(97)
	const ranks = 5
	seen := make(map[uint64]bool)
	var count uint64
	for r := 0; r < ranks; r++ {
		lo, hi := rankSlice(total, r, ranks)
		for i := lo; i < hi; i++ {
			if seen[i] {
				t.Fatalf("iteration %d covered by more than one rank", i)
			}
			seen[i] = true
			count++
		}
	}
	if count != total {
		t.Fatalf("rank slices covered %d iterations, want %d", count, total)
	}
}

func TestRestoreOrderMapsBackToOriginalSites(t *testing.T) {
	ctx := buildInteractContext(t, setup.Random)
	species := append([]uint8(nil), ctx.Structure.Species...)
	out := RestoreOrder(ctx, species)
	if len(out) != len(species) {
		t.Fatalf("RestoreOrder produced %d entries, want %d", len(out), len(species))
	}
	for k, sp := range species {
		if out[ctx.OriginalOrder[k]] != sp {
			t.Fatalf("RestoreOrder mismatch at k=%d", k)
		}
	}
}

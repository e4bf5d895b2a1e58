package results

import (
	"math"
	"testing"

	"github.com/sarat-asymmetrica/sqsgen/internal/tensor"
)

func mkResult(obj float64, species string) InteractResult {
	return InteractResult{Obj: obj, Species: []uint8(species), SRO: tensor.New(1, 1)}
}

func TestInsertOrdersByObjective(t *testing.T) {
	c := New(0)
	c.Insert(mkResult(3, "ccc"))
	c.Insert(mkResult(1, "aaa"))
	c.Insert(mkResult(2, "bbb"))

	best, results := c.Best()
	if best != 1 {
		t.Fatalf("best objective = %v, want 1", best)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result at best entry, got %d", len(results))
	}
	if c.NumResults() != 3 {
		t.Fatalf("NumResults = %d, want 3", c.NumResults())
	}
}

func TestInsertDedupsWithinEntry(t *testing.T) {
	c := New(0)
	c.Insert(mkResult(1, "aaa"))
	c.Insert(mkResult(1, "aaa")) // same species -> same dedup key, should merge
	c.Insert(mkResult(1, "bbb")) // different species, same objective -> appended

	if c.NumResults() != 2 {
		t.Fatalf("NumResults = %d, want 2", c.NumResults())
	}
}

func TestInsertDropsWorseThanWorstWhenFull(t *testing.T) {
	c := New(2)
	c.Insert(mkResult(1, "aaa"))
	c.Insert(mkResult(2, "bbb"))
	c.Insert(mkResult(5, "ccc")) // worse than current worst (2), should be dropped

	if c.NumResults() != 2 {
		t.Fatalf("NumResults = %d, want 2 (candidate should have been dropped)", c.NumResults())
	}
	best, _ := c.Best()
	if best != 1 {
		t.Fatalf("best = %v, want 1", best)
	}
}

func TestInsertEvictsWorstEntryWhenOverKeep(t *testing.T) {
	c := New(2)
	c.Insert(mkResult(3, "ccc"))
	c.Insert(mkResult(2, "bbb"))
	c.Insert(mkResult(1, "aaa")) // better than both; should evict the objective=3 entry

	all := c.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", len(all))
	}
	if all[len(all)-1].Objective != 2 {
		t.Fatalf("worst remaining entry objective = %v, want 2", all[len(all)-1].Objective)
	}
}

func TestWorstObjectiveIsInfiniteUntilFull(t *testing.T) {
	c := New(3)
	if w := c.WorstObjective(); !math.IsInf(w, 1) {
		t.Fatalf("expected +Inf worst objective on empty collection, got %v", w)
	}
	c.Insert(mkResult(1, "a"))
	c.Insert(mkResult(2, "b"))
	if w := c.WorstObjective(); w <= 2 {
		t.Fatalf("expected +Inf worst objective while not full, got %v", w)
	}
	c.Insert(mkResult(3, "c"))
	if w := c.WorstObjective(); w != 3 {
		t.Fatalf("worst objective once full = %v, want 3", w)
	}
}

package stats

import (
	"math"
	"testing"
	"time"
)

func TestAddWorkingAndFinishedTrackCounts(t *testing.T) {
	s := New()
	s.AddWorking(10)
	if got := s.Working(); got != 10 {
		t.Fatalf("Working = %d, want 10", got)
	}
	s.AddWorking(-10)
	if got := s.Working(); got != 0 {
		t.Fatalf("Working after decrement = %d, want 0", got)
	}
	s.AddFinished(10)
	if got := s.Finished(); got != 10 {
		t.Fatalf("Finished = %d, want 10", got)
	}
}

func TestLogResultKeepsOnlyImprovements(t *testing.T) {
	s := New()
	s.LogResult(1, 5.0)
	s.LogResult(2, 7.0) // worse, should be ignored
	s.LogResult(3, 2.0) // better

	if got := s.BestObjective(); got != 2.0 {
		t.Fatalf("BestObjective = %v, want 2.0", got)
	}
	if got := s.BestRank(); got != 3 {
		t.Fatalf("BestRank = %d, want 3", got)
	}
}

func TestTickTockAccumulatesTiming(t *testing.T) {
	s := New()
	tick := s.Tick(Loop)
	time.Sleep(time.Millisecond)
	s.Tock(tick)

	if got := s.Timing(Loop); got <= 0 {
		t.Fatalf("Timing(Loop) = %d, want > 0", got)
	}
}

func TestMergeIsAdditiveAndKeepsBestObjective(t *testing.T) {
	a := New()
	a.AddFinished(5)
	a.LogResult(1, 3.0)
	tickA := a.Tick(Total)
	a.Tock(tickA)

	b := New()
	b.AddFinished(7)
	b.LogResult(9, 1.0) // better than a's best

	a.Merge(b)

	if got := a.Finished(); got != 12 {
		t.Fatalf("Finished after merge = %d, want 12", got)
	}
	if got := a.BestObjective(); got != 1.0 {
		t.Fatalf("BestObjective after merge = %v, want 1.0", got)
	}
	if got := a.BestRank(); got != 9 {
		t.Fatalf("BestRank after merge = %d, want 9", got)
	}
}

func TestNewStartsWithInfiniteBestObjective(t *testing.T) {
	s := New()
	if !math.IsInf(s.BestObjective(), 1) {
		t.Fatalf("expected +Inf best objective on a fresh Stats, got %v", s.BestObjective())
	}
}

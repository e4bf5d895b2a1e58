// Package results implements the sorted, deduplicated top-K result store
// every worker inserts candidates into and the coordinator merges across
// processes.
//
// Grounded on original_source/include/sqsgen/optimization/collection.h: a
// sorted vector of (objective, []Result) entries keyed by a comparator over
// the first field, with a single insert mutex and short critical sections.
package results

import (
	"math"
	"math/big"
	"sort"
	"sync"

	"github.com/sarat-asymmetrica/sqsgen/internal/tensor"
)

// Result is one retained candidate. DedupKey distinguishes candidates that
// share an objective value; Rank (when non-nil) is the natural dedup key
// for systematic mode, falling back to the species vector's bytes.
type Result interface {
	Objective() float64
	DedupKey() string
}

// InteractResult is a candidate from a single cooperating sublattice.
type InteractResult struct {
	Obj     float64
	Rank    *big.Int
	Species []uint8
	SRO     *tensor.Tensor
}

func (r InteractResult) Objective() float64 { return r.Obj }

func (r InteractResult) DedupKey() string {
	if r.Rank != nil {
		return r.Rank.String()
	}
	return string(r.Species)
}

// SplitResult is a candidate from independently-optimized sublattices: the
// total objective plus one InteractResult per sublattice.
type SplitResult struct {
	Obj         float64
	Sublattices []InteractResult
}

func (r SplitResult) Objective() float64 { return r.Obj }

func (r SplitResult) DedupKey() string {
	key := make([]byte, 0, 64)
	for _, sub := range r.Sublattices {
		key = append(key, []byte(sub.DedupKey())...)
		key = append(key, '|')
	}
	return string(key)
}

type entry struct {
	objective float64
	results   []Result
}

// Collection is a thread-safe, sorted, deduplicated top-K result store.
// Keep <= 0 means unbounded.
type Collection struct {
	mu      sync.Mutex
	entries []entry
	keep    int
}

// New constructs an empty collection retaining at most keep distinct
// objective entries (keep <= 0 means unbounded).
func New(keep int) *Collection {
	return &Collection{keep: keep}
}

// Insert adds a candidate, following spec's insertion semantics: dropped if
// worse than the current worst retained entry (once the store is full),
// merged (deduplicated by DedupKey) into the matching objective entry when
// one exists, or inserted as a new sorted entry otherwise.
func (c *Collection) Insert(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keep > 0 && len(c.entries) >= c.keep {
		worst := c.entries[len(c.entries)-1].objective
		if r.Objective() > worst {
			return
		}
	}

	idx := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].objective >= r.Objective() })
	if idx < len(c.entries) && c.entries[idx].objective == r.Objective() {
		if !hasDedupKey(c.entries[idx].results, r.DedupKey()) {
			c.entries[idx].results = append(c.entries[idx].results, r)
		}
		return
	}

	c.entries = append(c.entries, entry{})
	copy(c.entries[idx+1:], c.entries[idx:])
	c.entries[idx] = entry{objective: r.Objective(), results: []Result{r}}

	if c.keep > 0 && len(c.entries) > c.keep {
		c.entries = c.entries[:c.keep]
	}
}

func hasDedupKey(results []Result, key string) bool {
	for _, r := range results {
		if r.DedupKey() == key {
			return true
		}
	}
	return false
}

// NumResults returns the sum of every entry's result count.
func (c *Collection) NumResults() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		n += len(e.results)
	}
	return n
}

// Best returns the lowest-objective entry's results, or nil if the
// collection is empty.
func (c *Collection) Best() (float64, []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return 0, nil
	}
	return c.entries[0].objective, append([]Result(nil), c.entries[0].results...)
}

// WorstObjective returns the objective of the worst retained entry, used as
// the optimizer's acceptance cutoff (search_objective). Returns +Inf when
// the collection is not yet full.
func (c *Collection) WorstObjective() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keep > 0 && len(c.entries) >= c.keep {
		return c.entries[len(c.entries)-1].objective
	}
	return math.Inf(1)
}

// All returns every entry's objective and result vector, ordered by
// ascending objective. Used by C10 (flattening for cross-process transfer)
// and C11 (binary serialization).
func (c *Collection) All() []struct {
	Objective float64
	Results   []Result
} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]struct {
		Objective float64
		Results   []Result
	}, len(c.entries))
	for i, e := range c.entries {
		out[i].Objective = e.objective
		out[i].Results = append([]Result(nil), e.results...)
	}
	return out
}

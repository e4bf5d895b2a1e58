// Package optimizer implements the per-process worker pool: it partitions
// the rank space into chunk_size-sized spans across a thread pool, runs the
// shuffle -> count -> objective -> insert loop of each chunk, and maintains
// the shared best-objective watermark and result collection.
//
// Concurrency shape: a buffered channel used as a counting semaphore, a
// sync.WaitGroup, and a single mutex-protected shared slice, generalized
// here to chunk_size spans of the rank space. Every goroutine is launched
// up front; the semaphore is acquired inside the goroutine rather than
// before it's spawned, so launch order and acquisition order can diverge.
package optimizer

import (
	"math"
	"math/big"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sarat-asymmetrica/sqsgen/internal/objective"
	"github.com/sarat-asymmetrica/sqsgen/internal/results"
	"github.com/sarat-asymmetrica/sqsgen/internal/setup"
	"github.com/sarat-asymmetrica/sqsgen/internal/shuffle"
	"github.com/sarat-asymmetrica/sqsgen/internal/stats"
	"github.com/sarat-asymmetrica/sqsgen/internal/tensor"
)

// Callback is invoked once per finished chunk with the optimizer's shared
// statistics; returning true requests cooperative cancellation.
type Callback func(*stats.Stats) bool

// Config parameterizes one Optimizer instance.
type Config struct {
	Mode          setup.Mode
	IterationMode setup.IterationMode
	Iterations    uint64
	ChunkSize     uint64
	Keep          int

	// RankIndex/RankCount partition Iterations across cooperating
	// processes; RankCount <= 1 means this is the only rank.
	RankIndex int
	RankCount int

	Callback Callback

	// Logger receives one Info line per finished chunk in place of the
	// progress bar spec.md leaves external; nil defaults to zap.NewNop()
	// so library callers never get surprise stdout.
	Logger *zap.Logger
}

// Optimizer is a single local process's optimizer: one or more SubLattice
// contexts (one for Interact, one per sublattice for Split), the shared
// result collection, and the shared statistics object.
type Optimizer struct {
	Contexts   []*setup.Context
	Collection *results.Collection
	Stats      *stats.Stats
	Config     Config

	stop          atomic.Bool
	bestObjective atomic.Uint64
}

// New constructs an Optimizer over contexts (as produced by setup.Build).
func New(contexts []*setup.Context, cfg Config) *Optimizer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	o := &Optimizer{
		Contexts:   contexts,
		Collection: results.New(cfg.Keep),
		Stats:      stats.New(),
		Config:     cfg,
	}
	o.bestObjective.Store(math.Float64bits(math.Inf(1)))
	return o
}

// Stop requests cooperative cancellation; every worker checks it at the top
// of each iteration.
func (o *Optimizer) Stop() { o.stop.Store(true) }

// Stopped reports whether cancellation has been requested.
func (o *Optimizer) Stopped() bool { return o.stop.Load() }

// BestObjective returns the current best (lowest) objective seen so far.
func (o *Optimizer) BestObjective() float64 { return math.Float64frombits(o.bestObjective.Load()) }

func (o *Optimizer) updateBest(candidate float64) {
	for {
		cur := o.bestObjective.Load()
		if candidate >= math.Float64frombits(cur) {
			return
		}
		if o.bestObjective.CompareAndSwap(cur, math.Float64bits(candidate)) {
			return
		}
	}
}

// searchObjective is the acceptance cutoff: the K-th best objective
// currently retained, or +Inf while the collection is not yet full.
func (o *Optimizer) searchObjective() float64 { return o.Collection.WorstObjective() }

// Run spawns one goroutine per chunk_size-sized span of this rank's slice
// of the iteration space, bounded to `threads` concurrent workers via a
// semaphore channel, and blocks until every chunk goroutine has returned.
// A chunk that acquires its slot after Stop has been called returns without
// running; the first chunk error stops the run and is returned.
func (o *Optimizer) Run(threads int) error {
	if threads <= 0 {
		threads = 1
	}
	lo, hi := rankSlice(o.Config.Iterations, o.Config.RankIndex, o.Config.RankCount)
	chunkSize := o.Config.ChunkSize
	if chunkSize == 0 {
		chunkSize = hi - lo
		if chunkSize == 0 {
			chunkSize = 1
		}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, threads)
	var errMu sync.Mutex
	var firstErr error

	for start := lo; start < hi; start += chunkSize {
		end := start + chunkSize
		if end > hi {
			end = hi
		}
		wg.Add(1)
		go func(start, end uint64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if o.Stopped() {
				return
			}
			if err := o.runChunk(start, end); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
					o.Stop()
				}
				errMu.Unlock()
			}
		}(start, end)
	}
	wg.Wait()
	return firstErr
}

// rankSlice returns this rank's half-open [lo, hi) slice of [0, total),
// splitting as evenly as possible across rankCount ranks.
func rankSlice(total uint64, rankIndex, rankCount int) (uint64, uint64) {
	if rankCount <= 1 {
		return 0, total
	}
	base := total / uint64(rankCount)
	rem := total % uint64(rankCount)
	idx := uint64(rankIndex)
	lo := idx * base
	if idx < rem {
		lo += idx
	} else {
		lo += rem
	}
	hi := lo + base
	if idx < rem {
		hi++
	}
	return lo, hi
}

func (o *Optimizer) runChunk(start, end uint64) error {
	tickTotal := o.Stats.Tick(stats.Total)
	defer o.Stats.Tock(tickTotal)

	tickSetup := o.Stats.Tick(stats.ChunkSetup)
	chunkLen := end - start

	switch o.Config.Mode {
	case setup.Interact:
		if err := o.runInteractChunk(start, end, tickSetup, chunkLen); err != nil {
			return err
		}
	case setup.Split:
		o.runSplitChunk(start, end, tickSetup, chunkLen)
	}

	o.Stats.AddWorking(-int64(chunkLen))
	o.Stats.AddFinished(int64(chunkLen))

	o.Config.Logger.Info("chunk finished",
		zap.Uint64("finished", o.Stats.Finished()),
		zap.Uint64("working", o.Stats.Working()),
		zap.Float64("best_objective", o.Stats.BestObjective()),
	)

	if o.Config.Callback != nil && o.Config.Callback(o.Stats) {
		o.Stop()
	}
	return nil
}

func (o *Optimizer) runInteractChunk(start, end uint64, tickSetup stats.Tick, chunkLen uint64) error {
	ctx := o.Contexts[0]
	conf := append([]uint8(nil), ctx.Structure.Species...)
	bond := tensor.New(ctx.NumShells(), ctx.NumSpecies())
	sh := shuffle.New(ctx.Bounds, nil)

	if o.Config.IterationMode == setup.Systematic {
		if err := sh.SeedSystematic(conf, ctx.Structure.Species, new(big.Int).SetUint64(start+1)); err != nil {
			return err
		}
	}

	o.Stats.AddWorking(int64(chunkLen))
	o.Stats.Tock(tickSetup)
	tickLoop := o.Stats.Tick(stats.Loop)

	packed := make([]int, len(conf))
	for i := start; i < end; i++ {
		if o.Stopped() {
			break
		}
		for k, sp := range conf {
			packed[k] = ctx.SpeciesIndex[sp]
		}
		obj, sro := objective.Evaluate(ctx, packed, bond)
		o.considerInteract(ctx, obj, sro, conf, sh, i)

		if o.Config.IterationMode == setup.Random {
			sh.ShuffleRandom(conf)
		} else {
			if ok, err := sh.ShuffleSystematic(conf); err != nil || !ok {
				break
			}
		}
	}
	o.Stats.Tock(tickLoop)
	return nil
}

func (o *Optimizer) runSplitChunk(start, end uint64, tickSetup stats.Tick, chunkLen uint64) {
	confs := make([][]uint8, len(o.Contexts))
	bonds := make([]*tensor.Tensor, len(o.Contexts))
	shufflers := make([]*shuffle.Shuffler, len(o.Contexts))
	packedBufs := make([][]int, len(o.Contexts))
	for idx, ctx := range o.Contexts {
		confs[idx] = append([]uint8(nil), ctx.Structure.Species...)
		bonds[idx] = tensor.New(ctx.NumShells(), ctx.NumSpecies())
		shufflers[idx] = shuffle.New(ctx.Bounds, nil)
		packedBufs[idx] = make([]int, len(confs[idx]))
	}

	o.Stats.AddWorking(int64(chunkLen))
	o.Stats.Tock(tickSetup)
	tickLoop := o.Stats.Tick(stats.Loop)

	for i := start; i < end; i++ {
		if o.Stopped() {
			break
		}
		for idx, ctx := range o.Contexts {
			shufflers[idx].ShuffleRandom(confs[idx])
			for k, sp := range confs[idx] {
				packedBufs[idx][k] = ctx.SpeciesIndex[sp]
			}
		}
		total, sros := objective.EvaluateSplit(o.Contexts, packedBufs, bonds)
		o.considerSplit(total, sros, confs, i)
	}
	o.Stats.Tock(tickLoop)
}

func (o *Optimizer) considerInteract(ctx *setup.Context, obj float64, sro *tensor.Tensor, conf []uint8, sh *shuffle.Shuffler, iteration uint64) {
	if obj > o.searchObjective() {
		return
	}
	var rnk *big.Int
	if o.Config.IterationMode == setup.Systematic {
		if r, err := sh.RankPermutation(conf, ctx.SpeciesIndex); err == nil {
			rnk = r
		}
	}
	o.Collection.Insert(results.InteractResult{
		Obj:     obj,
		Rank:    rnk,
		Species: append([]uint8(nil), conf...),
		SRO:     sro,
	})
	o.updateBest(obj)
	o.Stats.LogResult(iteration, obj)
}

func (o *Optimizer) considerSplit(total float64, sros []*tensor.Tensor, confs [][]uint8, iteration uint64) {
	if total > o.searchObjective() {
		return
	}
	subs := make([]results.InteractResult, len(confs))
	for idx := range confs {
		subs[idx] = results.InteractResult{Species: append([]uint8(nil), confs[idx]...), SRO: sros[idx]}
	}
	o.Collection.Insert(results.SplitResult{Obj: total, Sublattices: subs})
	o.updateBest(total)
	o.Stats.LogResult(iteration, total)
}

// RestoreOrder undoes the sublattice-local sort permutation recorded in
// ctx.OriginalOrder: out[ctx.OriginalOrder[k]] = species[k], so out is the
// same species vector reindexed to the site numbering the caller's input
// structure used, the mandatory post-processing step run once per rank
// after every worker finishes. The SRO tensor needs no equivalent
// rearrangement: it is indexed by (shell, species, species), not by site,
// so it is invariant under any site permutation.
func RestoreOrder(ctx *setup.Context, species []uint8) []uint8 {
	out := make([]uint8, len(species))
	for k, sp := range species {
		out[ctx.OriginalOrder[k]] = sp
	}
	return out
}

// FinalizeOrder runs the mandatory post-processing step once this rank's
// workers are all done: it returns a new Collection holding every retained
// result with its species vector (its sublattices' vectors, in split mode)
// restored to the caller's original site order via RestoreOrder. Callers
// must serialize or report this collection instead of o.Collection, which
// still holds results in the sublattice-sorted context-local order workers
// compare and insert against.
func (o *Optimizer) FinalizeOrder() *results.Collection {
	out := results.New(o.Config.Keep)
	for _, e := range o.Collection.All() {
		for _, r := range e.Results {
			out.Insert(restoreResultOrder(o.Contexts, r))
		}
	}
	return out
}

func restoreResultOrder(contexts []*setup.Context, r results.Result) results.Result {
	switch v := r.(type) {
	case results.InteractResult:
		v.Species = RestoreOrder(contexts[0], v.Species)
		return v
	case results.SplitResult:
		subs := make([]results.InteractResult, len(v.Sublattices))
		for i, sub := range v.Sublattices {
			sub.Species = RestoreOrder(contexts[i], sub.Species)
			subs[i] = sub
		}
		v.Sublattices = subs
		return v
	default:
		return r
	}
}

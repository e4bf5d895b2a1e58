package binformat

import (
	"encoding/binary"
	"io"
	"math/big"

	"github.com/sarat-asymmetrica/sqsgen/internal/results"
	"github.com/sarat-asymmetrica/sqsgen/internal/setup"
	"github.com/sarat-asymmetrica/sqsgen/internal/stats"
)

// WriteInteractResult writes one InteractResult: objective, an optional
// rank (systematic mode), species vector, and SRO tensor.
func WriteInteractResult(w io.Writer, r results.InteractResult) error {
	if err := binary.Write(w, order, r.Obj); err != nil {
		return err
	}
	var rankBytes []byte
	if r.Rank != nil {
		rankBytes = r.Rank.Bytes()
	}
	if err := WriteUint8Slice(w, rankBytes); err != nil {
		return err
	}
	if err := WriteUint8Slice(w, r.Species); err != nil {
		return err
	}
	return WriteTensor(w, r.SRO)
}

// ReadInteractResult reads an InteractResult written by WriteInteractResult.
func ReadInteractResult(r io.Reader) (results.InteractResult, error) {
	var obj float64
	if err := binary.Read(r, order, &obj); err != nil {
		return results.InteractResult{}, err
	}
	rankBytes, err := ReadUint8Slice(r)
	if err != nil {
		return results.InteractResult{}, err
	}
	species, err := ReadUint8Slice(r)
	if err != nil {
		return results.InteractResult{}, err
	}
	sro, err := ReadTensor(r)
	if err != nil {
		return results.InteractResult{}, err
	}
	out := results.InteractResult{Obj: obj, Species: species, SRO: sro}
	if len(rankBytes) > 0 {
		out.Rank = new(big.Int).SetBytes(rankBytes)
	}
	return out, nil
}

// WriteSplitResult writes a SplitResult: total objective followed by each
// sublattice's InteractResult.
func WriteSplitResult(w io.Writer, r results.SplitResult) error {
	if err := binary.Write(w, order, r.Obj); err != nil {
		return err
	}
	if err := writeLen(w, len(r.Sublattices)); err != nil {
		return err
	}
	for _, sub := range r.Sublattices {
		if err := WriteInteractResult(w, sub); err != nil {
			return err
		}
	}
	return nil
}

// ReadSplitResult reads a SplitResult written by WriteSplitResult.
func ReadSplitResult(r io.Reader) (results.SplitResult, error) {
	var obj float64
	if err := binary.Read(r, order, &obj); err != nil {
		return results.SplitResult{}, err
	}
	n, err := readLen(r)
	if err != nil {
		return results.SplitResult{}, err
	}
	subs := make([]results.InteractResult, n)
	for i := range subs {
		sub, err := ReadInteractResult(r)
		if err != nil {
			return results.SplitResult{}, err
		}
		subs[i] = sub
	}
	return results.SplitResult{Obj: obj, Sublattices: subs}, nil
}

// resultKind tags which concrete Result type a flattened entry holds.
type resultKind uint8

const (
	kindInteract resultKind = 1
	kindSplit    resultKind = 2
)

// WriteStats writes the statistics object's counters and timing buckets.
func WriteStats(w io.Writer, st *stats.Stats) error {
	for _, v := range []uint64{st.Finished(), st.Working(), st.BestRank()} {
		if err := binary.Write(w, order, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, order, st.BestObjective()); err != nil {
		return err
	}
	timings := make([]int64, int(stats.NumTags))
	for tag := stats.Tag(0); int(tag) < int(stats.NumTags); tag++ {
		timings[tag] = st.Timing(tag)
	}
	return WriteInt64Slice(w, timings)
}

// ReadStats reads a Stats object written by WriteStats, replaying its
// counters and timings into a freshly constructed Stats.
func ReadStats(r io.Reader) (*stats.Stats, error) {
	var finished, working, bestRank uint64
	for _, v := range []*uint64{&finished, &working, &bestRank} {
		if err := binary.Read(r, order, v); err != nil {
			return nil, err
		}
	}
	var bestObjective float64
	if err := binary.Read(r, order, &bestObjective); err != nil {
		return nil, err
	}
	timings, err := ReadInt64Slice(r)
	if err != nil {
		return nil, err
	}

	st := stats.New()
	st.AddFinished(int64(finished))
	st.AddWorking(int64(working))
	st.LogResult(bestRank, bestObjective)
	for tag, elapsed := range timings {
		if elapsed > 0 {
			st.AddTiming(stats.Tag(tag), elapsed)
		}
	}
	return st, nil
}

// ConfigSnapshot is the optimization-config entity of spec.md §4.11: the
// handful of run parameters needed to reproduce or audit a result pack.
// The full configuration document (composition, shell radii, and so on)
// is owned by internal/config; this snapshot only carries the fields that
// shaped how the iteration space was walked.
type ConfigSnapshot struct {
	Mode          setup.Mode
	IterationMode setup.IterationMode
	Iterations    uint64
	ChunkSize     uint64
	Keep          int
}

// WriteConfigSnapshot writes a ConfigSnapshot.
func WriteConfigSnapshot(w io.Writer, c ConfigSnapshot) error {
	fields := []int64{int64(c.Mode), int64(c.IterationMode), int64(c.Iterations), int64(c.ChunkSize), int64(c.Keep)}
	return WriteInt64Slice(w, fields)
}

// ReadConfigSnapshot reads a ConfigSnapshot written by WriteConfigSnapshot.
func ReadConfigSnapshot(r io.Reader) (ConfigSnapshot, error) {
	fields, err := ReadInt64Slice(r)
	if err != nil || len(fields) != 5 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return ConfigSnapshot{}, err
	}
	return ConfigSnapshot{
		Mode:          setup.Mode(fields[0]),
		IterationMode: setup.IterationMode(fields[1]),
		Iterations:    uint64(fields[2]),
		ChunkSize:     uint64(fields[3]),
		Keep:          int(fields[4]),
	}, nil
}

// WriteResultPack writes a full result pack: statistics, config snapshot,
// then the collection flattened into a plain vector of tagged results, per
// spec.md §4.11's "save flattens the (objective -> results) map" rule.
func WriteResultPack(w io.Writer, collection *results.Collection, cfg ConfigSnapshot, st *stats.Stats) error {
	if err := WriteStats(w, st); err != nil {
		return err
	}
	if err := WriteConfigSnapshot(w, cfg); err != nil {
		return err
	}

	all := collection.All()
	flat := make([]results.Result, 0, collection.NumResults())
	for _, e := range all {
		flat = append(flat, e.Results...)
	}
	if err := writeLen(w, len(flat)); err != nil {
		return err
	}
	for _, res := range flat {
		switch v := res.(type) {
		case results.InteractResult:
			if err := binary.Write(w, order, kindInteract); err != nil {
				return err
			}
			if err := WriteInteractResult(w, v); err != nil {
				return err
			}
		case results.SplitResult:
			if err := binary.Write(w, order, kindSplit); err != nil {
				return err
			}
			if err := WriteSplitResult(w, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadResultPack reads a result pack written by WriteResultPack,
// reinserting every flattened result via Collection.Insert to restore
// objective grouping (spec.md §4.11's "load reinserts them via C7").
func ReadResultPack(r io.Reader, keep int) (*results.Collection, ConfigSnapshot, *stats.Stats, error) {
	st, err := ReadStats(r)
	if err != nil {
		return nil, ConfigSnapshot{}, nil, err
	}
	cfg, err := ReadConfigSnapshot(r)
	if err != nil {
		return nil, ConfigSnapshot{}, nil, err
	}

	n, err := readLen(r)
	if err != nil {
		return nil, ConfigSnapshot{}, nil, err
	}
	collection := results.New(keep)
	for i := 0; i < n; i++ {
		var kind resultKind
		if err := binary.Read(r, order, &kind); err != nil {
			return nil, ConfigSnapshot{}, nil, err
		}
		switch kind {
		case kindInteract:
			res, err := ReadInteractResult(r)
			if err != nil {
				return nil, ConfigSnapshot{}, nil, err
			}
			collection.Insert(res)
		case kindSplit:
			res, err := ReadSplitResult(r)
			if err != nil {
				return nil, ConfigSnapshot{}, nil, err
			}
			collection.Insert(res)
		}
	}
	return collection, cfg, st, nil
}

package coordinator

import (
	"bytes"
	"encoding/gob"
	"math/big"

	"github.com/sarat-asymmetrica/sqsgen/internal/results"
	"github.com/sarat-asymmetrica/sqsgen/internal/tensor"
)

// wireResult is a flat, gob-friendly mirror of results.InteractResult: the
// transport layer encodes its own transient wire format rather than
// depending on internal/binformat's bit-exact on-disk layout, since these
// frames are never persisted.
type wireResult struct {
	Obj       float64
	HasRank   bool
	RankBytes []byte
	Species   []uint8
	SROShape  [2]int
	SROData   []float64
}

type wireSplitResult struct {
	Obj         float64
	Sublattices []wireResult
}

// wireEntry is one (objective, results) bucket from a results.Collection.
type wireEntry struct {
	Objective float64
	Interact  []wireResult
	Split     []wireSplitResult
}

func toWireResult(r results.InteractResult) wireResult {
	w := wireResult{Obj: r.Obj, Species: append([]uint8(nil), r.Species...)}
	if r.Rank != nil {
		w.HasRank = true
		w.RankBytes = r.Rank.Bytes()
	}
	if r.SRO != nil {
		w.SROShape = [2]int{r.SRO.M, r.SRO.S}
		w.SROData = append([]float64(nil), r.SRO.Data...)
	}
	return w
}

func fromWireResult(w wireResult) results.InteractResult {
	r := results.InteractResult{Obj: w.Obj, Species: append([]uint8(nil), w.Species...)}
	if w.HasRank {
		r.Rank = new(big.Int).SetBytes(w.RankBytes)
	}
	if w.SROShape[0] > 0 || w.SROShape[1] > 0 {
		r.SRO = &tensor.Tensor{M: w.SROShape[0], S: w.SROShape[1], Data: append([]float64(nil), w.SROData...)}
	}
	return r
}

// EncodeResults flattens a results.Collection snapshot (as returned by
// Collection.All) into a gob-encoded RESULT payload.
func EncodeResults(all []struct {
	Objective float64
	Results   []results.Result
}) ([]byte, error) {
	entries := make([]wireEntry, len(all))
	for i, e := range all {
		entries[i].Objective = e.Objective
		for _, r := range e.Results {
			switch v := r.(type) {
			case results.InteractResult:
				entries[i].Interact = append(entries[i].Interact, toWireResult(v))
			case results.SplitResult:
				ws := wireSplitResult{Obj: v.Obj}
				for _, sub := range v.Sublattices {
					ws.Sublattices = append(ws.Sublattices, toWireResult(sub))
				}
				entries[i].Split = append(entries[i].Split, ws)
			}
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeResultsInto decodes a RESULT payload produced by EncodeResults and
// inserts every candidate into dst.
func DecodeResultsInto(payload []byte, dst *results.Collection) error {
	var entries []wireEntry
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&entries); err != nil {
		return err
	}
	for _, e := range entries {
		for _, w := range e.Interact {
			dst.Insert(fromWireResult(w))
		}
		for _, ws := range e.Split {
			sr := results.SplitResult{Obj: ws.Obj}
			for _, w := range ws.Sublattices {
				sr.Sublattices = append(sr.Sublattices, fromWireResult(w))
			}
			dst.Insert(sr)
		}
	}
	return nil
}

// wireStats mirrors the handful of stats.Stats fields the coordinator
// exchanges; timing buckets are not propagated across the wire since they
// are per-process diagnostics, not part of the optimization result.
type wireStats struct {
	Finished      uint64
	BestObjective float64
	BestRank      uint64
}

// EncodeBetterObjective encodes a BETTER_OBJECTIVE announcement: a single
// improved watermark value broadcast from one rank to its peers.
func EncodeBetterObjective(objective float64) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(objective)
	return buf.Bytes()
}

// DecodeBetterObjective decodes a BETTER_OBJECTIVE payload.
func DecodeBetterObjective(payload []byte) (float64, error) {
	var v float64
	err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&v)
	return v, err
}

// EncodeStatistics encodes a STATISTICS payload from a stats snapshot.
func EncodeStatistics(finished uint64, bestObjective float64, bestRank uint64) ([]byte, error) {
	var buf bytes.Buffer
	ws := wireStats{Finished: finished, BestObjective: bestObjective, BestRank: bestRank}
	if err := gob.NewEncoder(&buf).Encode(ws); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeStatistics decodes a STATISTICS payload.
func DecodeStatistics(payload []byte) (finished uint64, bestObjective float64, bestRank uint64, err error) {
	var ws wireStats
	if err = gob.NewDecoder(bytes.NewReader(payload)).Decode(&ws); err != nil {
		return 0, 0, 0, err
	}
	return ws.Finished, ws.BestObjective, ws.BestRank, nil
}

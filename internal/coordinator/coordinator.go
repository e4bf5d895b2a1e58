package coordinator

import (
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/sarat-asymmetrica/sqsgen/internal/results"
	"github.com/sarat-asymmetrica/sqsgen/internal/stats"
)

// Coordinator gathers a rank's local results and statistics to the head
// rank, and merges every worker's contribution into the head's own
// Collection and Stats once every peer has reported in. A single-rank run
// (the common case) uses no Coordinator and no Transport at all: the caller
// reads its own Collection and Stats directly.
type Coordinator struct {
	RankIndex int
	IsHead    bool

	Collection *results.Collection
	Stats      *stats.Stats

	// Peers holds one Transport per other rank, used only by the head to
	// receive from every worker, and by each worker to talk to the head
	// (Peers[0] in that case).
	Peers []Transport
}

// NewHead constructs the head-rank coordinator. peers holds one connected
// Transport per worker rank (empty when running with a single rank).
func NewHead(collection *results.Collection, st *stats.Stats, peers []Transport) *Coordinator {
	return &Coordinator{IsHead: true, Collection: collection, Stats: st, Peers: peers}
}

// NewWorker constructs a worker-rank coordinator; toHead is the Transport
// connecting this rank back to the head.
func NewWorker(rankIndex int, collection *results.Collection, st *stats.Stats, toHead Transport) *Coordinator {
	return &Coordinator{RankIndex: rankIndex, Collection: collection, Stats: st, Peers: []Transport{toHead}}
}

// ReportToHead sends this worker's local results and statistics to the
// head rank, tagged RESULT and STATISTICS per spec.md §5's wire protocol.
func (c *Coordinator) ReportToHead() error {
	if c.IsHead || len(c.Peers) == 0 {
		return nil
	}
	toHead := c.Peers[0]

	payload, err := EncodeResults(c.Collection.All())
	if err != nil {
		return err
	}
	if err := toHead.Send(Message{Tag: TagResult, Payload: payload}); err != nil {
		return err
	}

	statsPayload, err := EncodeStatistics(c.Stats.Finished(), c.Stats.BestObjective(), c.Stats.BestRank())
	if err != nil {
		return err
	}
	return toHead.Send(Message{Tag: TagStatistics, Payload: statsPayload})
}

// GatherFromWorkers blocks the head rank until it has received exactly one
// RESULT and one STATISTICS message from every peer, merging each into the
// head's own Collection and Stats.
func (c *Coordinator) GatherFromWorkers() error {
	if !c.IsHead {
		return nil
	}
	var g errgroup.Group
	for _, peer := range c.Peers {
		peer := peer
		g.Go(func() error { return c.receiveOne(peer) })
	}
	return g.Wait()
}

func (c *Coordinator) receiveOne(peer Transport) error {
	for received := 0; received < 2; received++ {
		msg, err := peer.Recv()
		if err != nil {
			return err
		}
		switch msg.Tag {
		case TagResult:
			if err := DecodeResultsInto(msg.Payload, c.Collection); err != nil {
				return err
			}
		case TagStatistics:
			finished, bestObjective, bestRank, err := DecodeStatistics(msg.Payload)
			if err != nil {
				return err
			}
			c.Stats.AddFinished(int64(finished))
			c.mergeBest(bestObjective, bestRank)
		}
	}
	return nil
}

func (c *Coordinator) mergeBest(objective float64, rank uint64) {
	if objective < c.Stats.BestObjective() {
		c.Stats.LogResult(rank, objective)
	}
}

// BroadcastBetterObjective sends objective to every peer as a
// BETTER_OBJECTIVE message; +Inf is not sent. No code in this module reads
// that message back or applies it to a search_objective.
func (c *Coordinator) BroadcastBetterObjective(objective float64) error {
	if math.IsInf(objective, 1) {
		return nil
	}
	payload := EncodeBetterObjective(objective)
	for _, peer := range c.Peers {
		if err := peer.Send(Message{Tag: TagBetterObjective, Payload: payload}); err != nil {
			return err
		}
	}
	return nil
}

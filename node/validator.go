// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/co"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/state"
	"github.com/sile/Khora-sub000/tx"
)

// handleProposal answers the elected leader's batch with one candidate per owned
// committee seat. A validator signs at most one body per shard and height.
func (n *Node) handleProposal(in comm.Inbound) error {
	var p block.Proposal
	if err := in.Msg.Decode(&p); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	if p.Number != n.cur.number {
		return nil
	}
	if len(p.Shards) == 0 {
		return consensus.New(consensus.ProtocolInvalid, "proposal without shards")
	}
	shard := p.Shards[0]
	if shard >= uint64(len(n.st.Shards)) {
		return consensus.New(consensus.ProtocolInvalid, "proposal for unknown shard %d", shard)
	}
	if shard != state.HeadShard && len(p.Shards) != 1 {
		return consensus.New(consensus.ProtocolInvalid, "sibling shard %d proposal merges shards", shard)
	}
	leaderIdx, leaderPK := n.leaderOf(shard)
	if p.Leader != leaderIdx {
		return nil
	}
	if !p.Verify(leaderPK) {
		return consensus.New(consensus.CryptoInvalid, "proposal signature of leader %d", p.Leader)
	}
	if shard == state.HeadShard {
		n.cur.proposalSeen = n.clock.Now()
	}

	indices, _ := n.seats(shard)
	if len(indices) == 0 || n.cur.signed[shard] {
		return nil
	}

	txs, dropped := tx.Filter(p.Txs, n.bloom)
	txs = co.ParallelFilter(txs, func(t *tx.Transaction) bool {
		return t.Size() <= n.params.MaxTxSize && tx.Check(n.oracle, t, n.hist, n.st.Stakes) == nil
	})
	if len(txs) == 0 {
		logger.Debug("proposal has no valid tx", "number", p.Number, "shard", shard, "dropped", len(dropped))
		return nil
	}
	n.cur.signed[shard] = true

	for _, idx := range indices {
		c := block.NewCandidate(p.Number, p.Shards, txs, leaderPK, n.st.LastName, n.oracle, idx, n.keys.Stake)
		n.sendToKey(leaderPK, comm.MustMessage(comm.TagCandidate, c))
	}
	logger.Debug("proposal signed",
		"number", p.Number,
		"shard", shard,
		"txs", len(txs),
		"proposed", len(p.Txs),
		"seats", len(indices),
	)
	return nil
}

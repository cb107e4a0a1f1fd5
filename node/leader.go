// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"cmp"
	"slices"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/state"
	"github.com/sile/Khora-sub000/tx"
)

// shardOf assigns a tx to a shard by its id.
func shardOf(t *tx.Transaction, shards int) uint64 {
	id := t.ID()
	return uint64(id[0]) % uint64(shards)
}

// lead proposes a batch for every shard the node is the elected leader of.
func (n *Node) lead(now mclock.AbsTime) {
	for shard := range n.st.Shards {
		if n.isLeader(uint64(shard)) {
			n.propose(uint64(shard), now)
		}
	}
}

func (n *Node) propose(shard uint64, now mclock.AbsTime) {
	if lead := n.cur.leading[shard]; lead != nil && lead.proposal != nil {
		return
	}
	if shard == state.HeadShard && (n.cur.empty.agg != nil || n.cur.empty.finished) {
		return
	}
	elapsed := now.Sub(n.cur.started)
	if elapsed < n.params.BatchInterval && uint64(n.pool.Len()) < n.params.MaxBatchSize {
		return
	}
	// the head leader gives sibling shards one more interval to finalise
	if shard == state.HeadShard && len(n.cur.siblings) < len(n.st.Shards)-1 && elapsed < 2*n.params.BatchInterval {
		return
	}

	var (
		shards []uint64
		txs    tx.Transactions
	)
	if shard == state.HeadShard {
		shards, txs = n.mergeBatch(now)
	} else {
		shards, txs = []uint64{shard}, n.batch(shard)
	}
	if len(txs) == 0 {
		return
	}

	leaderIdx, _ := n.leaderOf(shard)
	p := block.NewProposal(n.cur.number, leaderIdx, shards, txs, n.keys.Stake)
	n.cur.leading[shard] = &leading{
		leader:   leaderIdx,
		proposal: p,
		groups:   make(map[khora.Bytes32]*candidateGroup),
	}
	logger.Debug("batch proposed", "number", n.cur.number, "shards", shards, "txs", len(txs))
	n.broadcast(comm.Inner, comm.MustMessage(comm.TagProposal, p))
}

// batch returns the pooled txs of shard that pass intake filtering.
func (n *Node) batch(shard uint64) tx.Transactions {
	var picked tx.Transactions
	for _, t := range n.pool.Dump() {
		if shardOf(t, len(n.st.Shards)) == shard {
			picked = append(picked, t)
		}
	}
	picked, _ = tx.Filter(picked, n.bloom)
	if uint64(len(picked)) > n.params.MaxBatchSize {
		picked = picked[:n.params.MaxBatchSize]
	}
	return picked
}

// mergeBatch builds the head batch: own txs, txs of shards silent for the shard
// timeout, then the content of finalised sibling blocks.
func (n *Node) mergeBatch(now mclock.AbsTime) ([]uint64, tx.Transactions) {
	own := n.batch(state.HeadShard)
	for s := 1; s < len(n.st.Shards); s++ {
		if _, ok := n.cur.siblings[uint64(s)]; ok {
			continue
		}
		if now.Sub(n.lastMerged[s]) >= n.params.ShardTimeout {
			usurped := n.batch(uint64(s))
			if len(usurped) > 0 {
				logger.Debug("shard usurped", "shard", s, "txs", len(usurped))
			}
			own = append(own, usurped...)
		}
	}

	siblings := make([]block.Part, 0, len(n.cur.siblings))
	for s, txs := range n.cur.siblings {
		siblings = append(siblings, block.Part{Shard: s, Txs: txs})
	}
	slices.SortFunc(siblings, func(a, b block.Part) int { return cmp.Compare(a.Shard, b.Shard) })

	shards, txs := block.Merge(block.Part{Shard: state.HeadShard, Txs: own}, siblings, n.bloom, n.params)
	if uint64(len(txs)) > n.params.MaxBatchSize*uint64(len(shards)) {
		txs = txs[:n.params.MaxBatchSize*uint64(len(shards))]
	}
	return shards, txs
}

func (n *Node) handleCandidate(in comm.Inbound) error {
	var c block.Candidate
	if err := in.Msg.Decode(&c); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	if c.Number != n.cur.number || len(c.Shards) == 0 {
		return nil
	}
	shard := c.Shards[0]
	lead := n.cur.leading[shard]
	if lead == nil || lead.proposal == nil || lead.done {
		return nil
	}
	if !slices.Equal(c.Shards, lead.proposal.Shards) {
		return consensus.New(consensus.ProtocolInvalid, "candidate shards %v, proposed %v", c.Shards, lead.proposal.Shards)
	}
	proposed := make(map[khora.Bytes32]bool, len(lead.proposal.Txs))
	for _, t := range lead.proposal.Txs {
		proposed[t.ID()] = true
	}
	for _, t := range c.Txs {
		if !proposed[t.ID()] {
			return consensus.New(consensus.ProtocolInvalid, "candidate carries unproposed tx %v", t.ID().AbbrevString())
		}
	}

	committee := n.st.CommitteeOf(shard)
	idx := c.Signature.Index
	if !slices.Contains(committee, idx) {
		return consensus.New(consensus.ProtocolInvalid, "candidate signer %d not in committee of shard %d", idx, shard)
	}
	body := c.Body(n.stakePK(), n.st.LastName, n.oracle)
	if !c.Verify(body, n.st.Stakes[idx].PK) {
		return consensus.New(consensus.CryptoInvalid, "candidate signature of %d", idx)
	}

	g, ok := lead.groups[body]
	if !ok {
		g = &candidateGroup{shards: c.Shards, txs: c.Txs, sigs: make(map[uint64]cry.Signature)}
		lead.groups[body] = g
	}
	g.sigs[idx] = c.Signature.Sig
	if seatCount(committee, g.sigs) >= n.params.SigningCutoff() {
		n.sealTransactional(shard, lead, g)
	}
	return nil
}

func (n *Node) sealTransactional(shard uint64, lead *leading, g *candidateGroup) {
	sigs := make([]block.Signature, 0, len(g.sigs))
	for idx, sig := range g.sigs {
		sigs = append(sigs, block.Signature{Index: idx, Sig: sig})
	}
	slices.SortFunc(sigs, func(a, b block.Signature) int { return cmp.Compare(a.Index, b.Index) })

	var forker *block.Forker
	if shard == state.HeadShard {
		forker = n.forks.evidence(n.st.Stakes, n.cur.number)
	}
	b := block.NewTransactional(lead.leader, n.keys.Stake, g.shards, n.cur.number, n.st.LastName, g.txs, sigs, forker)
	lead.done = true

	kind := "transactional"
	if shard != state.HeadShard {
		kind = "sibling"
	}
	metricBlockProposedCount().AddWithLabel(1, map[string]string{"kind": kind})
	metricBlockProposedTxs().Observe(int64(len(g.txs)))
	logger.Info("block sealed",
		"number", n.cur.number,
		"kind", kind,
		"shards", g.shards,
		"txs", len(g.txs),
		"signers", len(sigs),
	)
	n.broadcast(comm.Outer, comm.MustMessage(comm.TagBlock, b))
}

// acceptSibling keeps a finalised sibling shard block for the head leader to merge.
func (n *Node) acceptSibling(b *block.Block) error {
	h := b.Header()
	shard := h.HeadShard()
	if h.Number() != n.cur.number || h.LastName() != n.st.LastName {
		return nil
	}
	if shard >= uint64(len(n.st.Shards)) {
		return consensus.New(consensus.ProtocolInvalid, "sibling block of unknown shard %d", shard)
	}
	if len(h.Shards()) != 1 || h.IsEmpty() {
		return consensus.New(consensus.ProtocolInvalid, "sibling block must carry its own shard only")
	}
	if _, ok := n.cur.siblings[shard]; ok {
		return nil
	}
	if err := b.Verify(n.oracle, n.st.CommitteeOf(shard), n.st.Stakes, n.params); err != nil {
		return err
	}
	n.cur.siblings[shard] = b.Transactions()
	logger.Debug("sibling block received", "number", h.Number(), "shard", shard, "txs", len(b.Transactions()))
	return nil
}

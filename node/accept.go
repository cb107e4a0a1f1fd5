// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"slices"

	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/history"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/state"
)

func (n *Node) handleBlock(in comm.Inbound) error {
	var b block.Block
	if err := in.Msg.Decode(&b); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	if b.Header().HeadShard() != state.HeadShard {
		return n.acceptSibling(&b)
	}
	return n.receive(in.From, b.ToLight(n.oracle), &b)
}

func (n *Node) handleLight(in comm.Inbound) error {
	var lb block.LightBlock
	if err := in.Msg.Decode(&lb); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	return n.receive(in.From, &lb, nil)
}

// receive routes a head block by height: stale blocks feed fork detection, blocks
// ahead of the chain are buffered until the gap is synced, the next block is applied.
func (n *Node) receive(from comm.PeerID, lb *block.LightBlock, full *block.Block) error {
	h := lb.Header()
	num := h.Number()
	switch {
	case num <= n.st.Height:
		n.observeStale(lb)
		return nil
	case num > n.st.Height+1:
		if from != n.bus.Self() && from == n.syncSource && h.LastName() == n.st.LastName {
			if err := n.skipTo(num - 1); err != nil {
				return err
			}
			return n.applyNext(from, lb, full)
		}
		n.buffer(lb, full)
		n.requestSync(from)
		return nil
	}
	return n.applyNext(from, lb, full)
}

func (n *Node) buffer(lb *block.LightBlock, full *block.Block) {
	num := lb.Header().Number()
	if len(n.future)+len(n.futureFull) >= maxFutureBlocks {
		return
	}
	if full != nil {
		n.futureFull[num] = full
		return
	}
	if _, ok := n.futureFull[num]; !ok {
		n.future[num] = lb
	}
}

// observeStale checks a competing block at the current height for signatures that
// conflict with the applied one.
func (n *Node) observeStale(lb *block.LightBlock) {
	h := lb.Header()
	if n.prev == nil || h.Number() != n.st.Height || h.Name() == n.st.LastName || h.IsEmpty() {
		return
	}
	if err := lb.Verify(n.prev.CommitteeOf(state.HeadShard), n.prev.Stakes, n.params); err != nil {
		return
	}
	n.forks.observeBlock(lb, n.prev.Stakes)
}

// skipTo advances the state over heights the sync source has no block for.
func (n *Node) skipTo(height uint64) error {
	for n.st.Height < height {
		if _, err := n.st.Skip(n.params); err != nil {
			return err
		}
		metricBlockSkippedCount().Add(1)
	}
	logger.Info("heights skipped", "height", n.st.Height)
	n.resetHeight()
	return nil
}

func (n *Node) applyNext(from comm.PeerID, lb *block.LightBlock, full *block.Block) error {
	if err := n.applyOne(from, lb, full); err != nil {
		return err
	}
	n.drainFuture()
	return nil
}

func (n *Node) applyOne(from comm.PeerID, lb *block.LightBlock, full *block.Block) error {
	return evalBlockReceivedMetrics(func() error {
		h := lb.Header()
		if h.LastName() != n.st.LastName {
			n.requestSync(from)
			return consensus.New(consensus.StateMismatch, "block %d last name %v, want %v",
				h.Number(), h.LastName().AbbrevString(), n.st.LastName.AbbrevString())
		}
		if err := lb.Verify(n.st.CommitteeOf(state.HeadShard), n.st.Stakes, n.params); err != nil {
			return err
		}
		for _, tag := range lb.Delta().Tags {
			if n.bloom.Contains(tag) {
				logger.Warn("block spends a known tag", "kind", consensus.DoubleSpend,
					"number", h.Number(), "tag", tag.AbbrevString())
				break
			}
		}
		return n.commit(lb, full)
	})
}

// commit applies a verified block and persists its effects.
func (n *Node) commit(lb *block.LightBlock, full *block.Block) error {
	h := lb.Header()
	_, myPositions := n.seats(state.HeadShard)

	next := n.st.Copy()
	o, err := next.Apply(lb, n.params)
	if err != nil {
		return err
	}
	if err := n.persist(lb, full); err != nil {
		return err
	}
	prev := n.st
	n.st = next
	delta := lb.Delta()

	report := n.wallet.Scan(lb, o, prev.Stakes, prev.HistoryHeight, n.oracle)
	if full != nil {
		n.pool.Remove(full.Transactions().IDs()...)
	}
	n.pool.Wash(delta.Tags, len(o.Removed) > 0)

	n.forks.observeBlock(lb, prev.Stakes)
	n.forks.prune(h.Number())
	if f := h.Forker(); f != nil {
		if pk, ok := f.PK(prev.Stakes); ok {
			n.forks.resolve(pk)
		}
	}

	now := n.clock.Now()
	n.prev = prev
	n.lastBlock = lb
	n.lastProgress = now
	for _, s := range h.Shards() {
		n.lastMerged[s] = now
	}
	clear(n.acks)
	n.countersigned = false
	n.resetHeight()
	metricChainHeight().Set(int64(n.st.Height))

	logger.Info("block applied",
		"number", h.Number(),
		"name", h.Name().AbbrevString(),
		"empty", h.IsEmpty(),
		"shards", h.Shards(),
		"txs", len(delta.TxOut),
		"stakes", len(n.st.Stakes),
		"removed", len(o.Removed),
		"forker", o.Forker,
	)
	if report.Touched() {
		logger.Debug("wallet updated",
			"received", len(report.Received),
			"spent", len(report.Spent),
			"stakeChange", report.StakeChange,
			"balance", n.wallet.Balance(),
		)
		if len(report.FaerieGold) > 0 {
			logger.Warn("owned tags spent elsewhere", "count", len(report.FaerieGold))
		}
		n.mustCheckpoint()
	}

	if len(myPositions) > 0 {
		n.countersign(prev, h.Number(), h.Name())
	}
	n.updateRole()
	return nil
}

// persist writes the effects of a block ahead of the state swap. Appended history is
// rolled back when a later write fails; tags stay in the bloom filter, which only
// widens its false positives.
func (n *Node) persist(lb *block.LightBlock, full *block.Block) error {
	delta := lb.Delta()
	records := make([]history.Record, len(delta.TxOut))
	for i := range delta.TxOut {
		records[i] = delta.TxOut[i].Record()
	}
	histHeight := n.hist.Height()
	if err := n.hist.Append(records...); err != nil {
		return consensus.New(consensus.SelfInconsistency, "append history: %v", err)
	}
	rollback := func(err error) error {
		if terr := n.hist.Truncate(histHeight); terr != nil {
			logger.Error("failed to roll back history", "height", histHeight, "err", terr)
		}
		return err
	}
	if err := n.bloom.InsertAll(delta.Tags); err != nil {
		return rollback(consensus.New(consensus.SelfInconsistency, "insert tags: %v", err))
	}
	var err error
	if full != nil && !n.lightOnly {
		err = n.repo.PutBlock(full)
	} else {
		err = n.repo.PutLight(lb)
	}
	if err != nil {
		return rollback(consensus.New(consensus.SelfInconsistency, "store block %d: %v", lb.Header().Number(), err))
	}
	return nil
}

// drainFuture applies buffered blocks that now follow the chain.
func (n *Node) drainFuture() {
	for num := range n.future {
		if num <= n.st.Height {
			delete(n.future, num)
		}
	}
	for num := range n.futureFull {
		if num <= n.st.Height {
			delete(n.futureFull, num)
		}
	}
	for {
		next := n.st.Height + 1
		full, ok := n.futureFull[next]
		lb := n.future[next]
		if ok {
			lb = full.ToLight(n.oracle)
		} else if lb == nil {
			return
		}
		delete(n.futureFull, next)
		delete(n.future, next)
		if err := n.applyOne(n.bus.Self(), lb, full); err != nil {
			logger.Debug("buffered block dropped", "number", next, "err", err)
			return
		}
	}
}

// countersign acknowledges an applied block on behalf of the seats held in its committee.
func (n *Node) countersign(prev *state.State, bnum uint64, name khora.Bytes32) {
	digest := countersignDigest(bnum, name)
	sig := cry.Sign(digest, n.keys.Stake)
	for _, idx := range prev.Stakes.IndexesOf(n.stakePK()) {
		if !slices.Contains(prev.CommitteeOf(state.HeadShard), idx) {
			continue
		}
		m := &countersignMsg{Number: bnum, Index: idx, Name: name, Sig: sig}
		n.broadcast(comm.Outer, comm.MustMessage(comm.TagCountersign, m))
	}
}

func (n *Node) handleCountersign(in comm.Inbound) error {
	var m countersignMsg
	if err := in.Msg.Decode(&m); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	if n.prev == nil || m.Number != n.st.Height || m.Name != n.st.LastName {
		return nil
	}
	committee := n.prev.CommitteeOf(state.HeadShard)
	if !slices.Contains(committee, m.Index) {
		return consensus.New(consensus.ProtocolInvalid, "countersigner %d not in committee", m.Index)
	}
	if !cry.Verify(countersignDigest(m.Number, m.Name), n.prev.Stakes[m.Index].PK, m.Sig) {
		return consensus.New(consensus.CryptoInvalid, "countersignature of %d", m.Index)
	}
	n.acks[m.Index] = true

	seats := 0
	for _, idx := range committee {
		if n.acks[idx] {
			seats++
		}
	}
	if !n.countersigned && seats >= n.params.SigningCutoff() {
		n.countersigned = true
		logger.Debug("block countersigned", "number", m.Number, "seats", seats)
	}
	return nil
}

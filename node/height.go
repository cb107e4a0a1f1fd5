// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/state"
	"github.com/sile/Khora-sub000/tx"
)

// height is what the node tracks about the block being produced. It is discarded
// when a block is applied.
type height struct {
	number  uint64
	started mclock.AbsTime

	// leader side, per shard the node leads
	leading map[uint64]*leading

	// validator side
	signed       map[uint64]bool // shards a candidate was signed for
	proposalSeen mclock.AbsTime  // last valid head-shard proposal

	// verified sibling shard blocks, by shard
	siblings map[uint64]tx.Transactions

	empty emptyState
}

type leading struct {
	leader   uint64 // stake index
	proposal *block.Proposal
	groups   map[khora.Bytes32]*candidateGroup
	done     bool
}

// candidateGroup collects signatures over one validator body.
type candidateGroup struct {
	shards []uint64
	txs    tx.Transactions
	sigs   map[uint64]cry.Signature
}

func (n *Node) resetHeight() {
	n.cur = &height{
		number:   n.bnum(),
		started:  n.clock.Now(),
		leading:  make(map[uint64]*leading),
		signed:   make(map[uint64]bool),
		siblings: make(map[uint64]tx.Transactions),
		empty:    newEmptyState(),
	}
}

// checkOverthrow moves the head leader into the overthrown set when no block was
// finalised within the leader timeout, then restarts the round state.
func (n *Node) checkOverthrow(now mclock.AbsTime) {
	if now.Sub(n.lastProgress) < n.params.LeaderTimeout {
		return
	}
	leader, _ := n.st.NextLeader(state.HeadShard, n.params)
	n.st.Overthrow(leader)
	n.lastProgress = now
	metricLeaderOverthrowCount().Add(1)

	next, _ := n.st.NextLeader(state.HeadShard, n.params)
	logger.Warn("leader overthrown",
		"kind", consensus.Timeout,
		"height", n.st.Height,
		"leader", leader,
		"next", next,
	)

	delete(n.cur.leading, state.HeadShard)
	n.cur.empty.restart(now)
}

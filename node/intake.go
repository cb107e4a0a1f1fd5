// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/tx"
	"github.com/sile/Khora-sub000/txpool"
)

// handleTx admits a gossiped tx into the pool.
func (n *Node) handleTx(in comm.Inbound) error {
	var t tx.Transaction
	if err := in.Msg.Decode(&t); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	return n.admit(&t)
}

func (n *Node) admit(t *tx.Transaction) error {
	if n.pool.Get(t.ID()) != nil {
		return nil
	}
	if t.Size() > n.params.MaxTxSize {
		return consensus.New(consensus.ProtocolInvalid, "tx size %d exceeds %d", t.Size(), n.params.MaxTxSize)
	}
	if err := tx.Check(n.oracle, t, n.hist, n.st.Stakes); err != nil {
		return consensus.New(consensus.CryptoInvalid, "tx %v: %v", t.ID().AbbrevString(), err)
	}
	if err := n.pool.Add(t, n.bloom); err != nil {
		switch {
		case txpool.IsErrKnownTx(err):
			return nil
		case txpool.IsErrDoubleSpend(err):
			return consensus.New(consensus.DoubleSpend, "tx %v: %v", t.ID().AbbrevString(), err)
		default:
			return err
		}
	}
	logger.Trace("tx pooled", "id", t.ID().AbbrevString(), "stake", t.IsStake(), "pooled", n.pool.Len())
	return nil
}

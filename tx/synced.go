// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/stake"
)

// SyncedTx is the state delta applied by a set of transactions.
type SyncedTx struct {
	StakeOut []uint64        // spent stake indices
	StakeIn  []stake.Entry   // new stake entries
	TxOut    []Output        // outputs appended to history
	Tags     []khora.Bytes32 // spent tags
	Fees     uint64
}

// Sync computes the delta of txs.
func Sync(txs Transactions, reader StakeReader) *SyncedTx {
	s := &SyncedTx{}
	for _, t := range txs {
		if t.IsStake() {
			s.StakeOut = append(s.StakeOut, t.StakeIndex())
		}
		for _, out := range t.body.Outputs {
			if e, ok := reader.ReadStake(&out); ok {
				s.StakeIn = append(s.StakeIn, e)
			} else {
				s.TxOut = append(s.TxOut, out)
			}
		}
		s.Tags = append(s.Tags, t.body.Tags...)
		s.Fees += t.body.Fee
	}
	return s
}

// Digest commits to the delta. Validators sign over it.
func (s *SyncedTx) Digest() khora.Bytes32 {
	return khora.Blake2bFn(func(w io.Writer) {
		rlp.Encode(w, s)
	})
}

// IsEmpty reports whether the delta changes nothing.
func (s *SyncedTx) IsEmpty() bool {
	return len(s.StakeOut) == 0 && len(s.StakeIn) == 0 && len(s.TxOut) == 0 && len(s.Tags) == 0 && s.Fees == 0
}

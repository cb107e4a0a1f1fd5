// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/khora"
)

// Transactions a slice of transactions.
type Transactions []*Transaction

// Copy returns a shallow copy.
func (txs Transactions) Copy() Transactions {
	return append(Transactions(nil), txs...)
}

// IDs returns the ids in order.
func (txs Transactions) IDs() []khora.Bytes32 {
	ids := make([]khora.Bytes32, len(txs))
	for i, t := range txs {
		ids[i] = t.ID()
	}
	return ids
}

// Digest commits to the ordered id list.
func (txs Transactions) Digest() khora.Bytes32 {
	return khora.Blake2bFn(func(w io.Writer) {
		for _, t := range txs {
			id := t.ID()
			w.Write(id[:])
		}
	})
}

// Fees returns the sum of fees.
func (txs Transactions) Fees() uint64 {
	var sum uint64
	for _, t := range txs {
		sum += t.Fee()
	}
	return sum
}

// Tags returns all tags in order.
func (txs Transactions) Tags() []khora.Bytes32 {
	var tags []khora.Bytes32
	for _, t := range txs {
		tags = append(tags, t.body.Tags...)
	}
	return tags
}

// Decode decodes an RLP encoded tx list.
func Decode(data []byte) (Transactions, error) {
	var txs Transactions
	if err := rlp.DecodeBytes(data, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

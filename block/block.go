// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/tx"
)

// Block is an immutable full block.
type Block struct {
	header *Header
	txs    tx.Transactions
}

// Header returns the block header.
func (b *Block) Header() *Header { return b.header }

// Transactions returns a copy of transactions.
func (b *Block) Transactions() tx.Transactions { return b.txs.Copy() }

// ToLight replaces the transactions by the delta they apply.
func (b *Block) ToLight(reader tx.StakeReader) *LightBlock {
	return &LightBlock{
		header: b.header,
		delta:  tx.Sync(b.txs, reader),
	}
}

// EncodeRLP implements rlp.Encoder.
func (b *Block) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, []any{b.header, b.txs})
}

// DecodeRLP implements rlp.Decoder.
func (b *Block) DecodeRLP(s *rlp.Stream) error {
	var payload struct {
		Header Header
		Txs    tx.Transactions
	}
	if err := s.Decode(&payload); err != nil {
		return err
	}
	*b = Block{header: &payload.Header, txs: payload.Txs}
	return nil
}

// LightBlock carries the applied delta instead of the transactions.
type LightBlock struct {
	header *Header
	delta  *tx.SyncedTx
}

// NewLight assembles a light block from its parts.
func NewLight(header *Header, delta *tx.SyncedTx) *LightBlock {
	if delta == nil {
		delta = &tx.SyncedTx{}
	}
	return &LightBlock{header: header, delta: delta}
}

// Header returns the block header.
func (lb *LightBlock) Header() *Header { return lb.header }

// Delta returns the applied delta.
func (lb *LightBlock) Delta() *tx.SyncedTx { return lb.delta }

// EncodeRLP implements rlp.Encoder.
func (lb *LightBlock) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, []any{lb.header, lb.delta})
}

// DecodeRLP implements rlp.Decoder.
func (lb *LightBlock) DecodeRLP(s *rlp.Stream) error {
	var payload struct {
		Header Header
		Delta  tx.SyncedTx
	}
	if err := s.Decode(&payload); err != nil {
		return err
	}
	*lb = LightBlock{header: &payload.Header, delta: &payload.Delta}
	return nil
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blocks

import (
	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/tx"
)

type JSONForker struct {
	Number uint64 `json:"number"`
	Signer uint64 `json:"signer"`
}

type JSONHeader struct {
	Number     uint64         `json:"number"`
	Name       *khora.Bytes32 `json:"name"`
	LastName   *khora.Bytes32 `json:"lastName"`
	HeadShard  uint64         `json:"headShard"`
	Shards     []uint64       `json:"shards"`
	Leader     uint64         `json:"leader"`
	Empty      bool           `json:"empty"`
	Validators []uint64       `json:"validators"`
	Absentees  []uint64       `json:"absentees,omitempty"`
	Forker     *JSONForker    `json:"forker,omitempty"`
}

type JSONTransaction struct {
	ID      *khora.Bytes32  `json:"id"`
	Size    uint64          `json:"size"`
	Fee     uint64          `json:"fee"`
	Stake   bool            `json:"stake"`
	Outputs int             `json:"outputs"`
	Tags    []khora.Bytes32 `json:"tags"`
}

type JSONBlock struct {
	*JSONHeader
	Transactions []*khora.Bytes32 `json:"transactions"`
}

type JSONExpandedBlock struct {
	*JSONHeader
	Transactions []*JSONTransaction `json:"transactions"`
}

type JSONDelta struct {
	StakeOut []uint64        `json:"stakeOut"`
	StakeIn  []stake.Entry   `json:"stakeIn"`
	Outputs  int             `json:"outputs"`
	Tags     []khora.Bytes32 `json:"tags"`
	Fees     uint64          `json:"fees"`
}

type JSONLightBlock struct {
	*JSONHeader
	Delta *JSONDelta `json:"delta"`
}

func convertHeader(h *block.Header) *JSONHeader {
	name, lastName := h.Name(), h.LastName()
	jh := &JSONHeader{
		Number:     h.Number(),
		Name:       &name,
		LastName:   &lastName,
		HeadShard:  h.HeadShard(),
		Shards:     h.Shards(),
		Leader:     h.Leader().Index,
		Empty:      h.IsEmpty(),
		Validators: []uint64{},
	}
	for _, v := range h.Validators() {
		jh.Validators = append(jh.Validators, v.Index)
	}
	if ms := h.Emptiness(); ms != nil {
		jh.Absentees = ms.Absentees
	}
	if f := h.Forker(); f != nil {
		jh.Forker = &JSONForker{Number: f.Number, Signer: f.Signer}
	}
	return jh
}

func convertTransaction(t *tx.Transaction) *JSONTransaction {
	id := t.ID()
	return &JSONTransaction{
		ID:      &id,
		Size:    t.Size(),
		Fee:     t.Fee(),
		Stake:   t.IsStake(),
		Outputs: len(t.Outputs()),
		Tags:    t.Tags(),
	}
}

func convertBlock(b *block.Block, expanded bool) any {
	jh := convertHeader(b.Header())
	txs := b.Transactions()
	if expanded {
		out := &JSONExpandedBlock{JSONHeader: jh, Transactions: make([]*JSONTransaction, len(txs))}
		for i, t := range txs {
			out.Transactions[i] = convertTransaction(t)
		}
		return out
	}
	out := &JSONBlock{JSONHeader: jh, Transactions: make([]*khora.Bytes32, len(txs))}
	for i, t := range txs {
		id := t.ID()
		out.Transactions[i] = &id
	}
	return out
}

func convertLight(lb *block.LightBlock) *JSONLightBlock {
	d := lb.Delta()
	return &JSONLightBlock{
		JSONHeader: convertHeader(lb.Header()),
		Delta: &JSONDelta{
			StakeOut: d.StakeOut,
			StakeIn:  d.StakeIn,
			Outputs:  len(d.TxOut),
			Tags:     d.Tags,
			Fees:     d.Fees,
		},
	}
}

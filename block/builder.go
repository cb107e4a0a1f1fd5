// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"slices"

	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/tx"
)

// Builder to make it easy to build a block object.
type Builder struct {
	headerBody headerBody
	txs        tx.Transactions
}

// Leader sets the stake index of the leader.
func (b *Builder) Leader(index uint64) *Builder {
	b.headerBody.Leader.Index = index
	return b
}

// Shards sets the merged shard ids, head first.
func (b *Builder) Shards(shards ...uint64) *Builder {
	b.headerBody.Shards = slices.Clone(shards)
	return b
}

// Number sets the height.
func (b *Builder) Number(n uint64) *Builder {
	b.headerBody.Number = n
	return b
}

// LastName sets the previous block name.
func (b *Builder) LastName(name khora.Bytes32) *Builder {
	b.headerBody.LastName = name
	return b
}

// Validators sets the committee signatures of a transactional block.
func (b *Builder) Validators(sigs []Signature) *Builder {
	b.headerBody.Validators = slices.Clone(sigs)
	return b
}

// Emptiness sets the multi-signature of an empty block.
func (b *Builder) Emptiness(ms *MultiSignature) *Builder {
	if ms == nil {
		b.headerBody.Emptiness = nil
		return b
	}
	cpy := *ms
	cpy.Absentees = slices.Clone(ms.Absentees)
	b.headerBody.Emptiness = &cpy
	return b
}

// Forker attaches equivocation evidence.
func (b *Builder) Forker(f *Forker) *Builder {
	if f == nil {
		b.headerBody.Forker = nil
		return b
	}
	cpy := *f
	b.headerBody.Forker = &cpy
	return b
}

// Transaction appends a tx.
func (b *Builder) Transaction(t *tx.Transaction) *Builder {
	b.txs = append(b.txs, t)
	return b
}

// Transactions appends txs.
func (b *Builder) Transactions(txs tx.Transactions) *Builder {
	b.txs = append(b.txs, txs...)
	return b
}

// Build builds an unsigned block.
func (b *Builder) Build() *Block {
	return &Block{
		header: &Header{body: b.headerBody},
		txs:    b.txs.Copy(),
	}
}

// Seal builds the block and signs it with the leader key.
func (b *Builder) Seal(leader *cry.PrivateKey) *Block {
	blk := b.Build()
	return blk.WithLeaderSignature(cry.Sign(blk.header.SigningHash(), leader))
}

// WithLeaderSignature returns a copy of the block carrying the leader signature.
func (b *Block) WithLeaderSignature(sig cry.Signature) *Block {
	return &Block{header: b.header.withLeaderSig(sig), txs: b.txs}
}

// NewEmpty builds and signs an empty block.
func NewEmpty(leaderIndex uint64, leader *cry.PrivateKey, shard, bnum uint64, lastName khora.Bytes32, ms *MultiSignature, forker *Forker) *Block {
	return new(Builder).
		Leader(leaderIndex).
		Shards(shard).
		Number(bnum).
		LastName(lastName).
		Emptiness(ms).
		Forker(forker).
		Seal(leader)
}

// NewTransactional builds and signs a block finalised by validator signatures.
func NewTransactional(leaderIndex uint64, leader *cry.PrivateKey, shards []uint64, bnum uint64, lastName khora.Bytes32, txs tx.Transactions, sigs []Signature, forker *Forker) *Block {
	return new(Builder).
		Leader(leaderIndex).
		Shards(shards...).
		Number(bnum).
		LastName(lastName).
		Transactions(txs).
		Validators(sigs).
		Forker(forker).
		Seal(leader)
}

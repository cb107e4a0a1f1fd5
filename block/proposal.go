// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/tx"
)

// Proposal is a leader's tx batch for the next block.
type Proposal struct {
	Number uint64
	Leader uint64
	Shards []uint64
	Txs    tx.Transactions
	Sig    cry.NoncedSignature
}

func (p *Proposal) payload() []byte {
	data, err := rlp.EncodeToBytes([]any{p.Leader, p.Shards, p.Txs})
	if err != nil {
		panic(err)
	}
	return data
}

// NewProposal signs a batch at bnum.
func NewProposal(bnum, leader uint64, shards []uint64, txs tx.Transactions, k *cry.PrivateKey) *Proposal {
	p := &Proposal{Number: bnum, Leader: leader, Shards: shards, Txs: txs}
	p.Sig = cry.SignNonced(p.payload(), bnum, k)
	return p
}

// Verify checks the leader's nonced signature.
func (p *Proposal) Verify(pk cry.PublicKey) bool {
	return p.Sig.Verify(p.payload(), p.Number, pk)
}

// Candidate is a validator's answer to a proposal: the txs it accepted and its
// signature over the resulting body.
type Candidate struct {
	Number    uint64
	Shards    []uint64
	Txs       tx.Transactions
	Signature Signature
}

// Body returns the validator body the candidate commits to.
func (c *Candidate) Body(leader cry.PublicKey, lastName khora.Bytes32, reader tx.StakeReader) khora.Bytes32 {
	return ValidatorBody(leader, c.Shards, tx.Sync(c.Txs, reader).Digest(), lastName)
}

// NewCandidate signs the accepted txs as stake entry index.
func NewCandidate(bnum uint64, shards []uint64, txs tx.Transactions, leader cry.PublicKey, lastName khora.Bytes32,
	reader tx.StakeReader, index uint64, k *cry.PrivateKey) *Candidate {
	c := &Candidate{Number: bnum, Shards: shards, Txs: txs}
	c.Signature = Signature{
		Index: index,
		Sig:   cry.Sign(ValidatorMessage(bnum, c.Body(leader, lastName, reader)), k),
	}
	return c
}

// Verify checks the validator signature against its public key.
func (c *Candidate) Verify(body khora.Bytes32, pk cry.PublicKey) bool {
	return cry.Verify(ValidatorMessage(c.Number, body), pk, c.Signature.Sig)
}

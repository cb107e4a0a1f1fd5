// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noStake struct{}

func (noStake) ReadStake(*tx.Output) (stake.Entry, bool) { return stake.Entry{}, false }

type fixture struct {
	params    khora.Params
	keys      []*cry.PrivateKey
	stakes    stake.Set
	committee []uint64
	lastName  khora.Bytes32
}

func newFixture() *fixture {
	f := &fixture{
		params:    khora.DevParams(4),
		committee: []uint64{0, 1, 2, 3},
		lastName:  khora.Blake2b([]byte("genesis")),
	}
	for i := range 4 {
		k := cry.KeyFromSeed([]byte(fmt.Sprint("validator", i)))
		f.keys = append(f.keys, k)
		f.stakes = append(f.stakes, stake.Entry{PK: k.Public(), Amount: 1})
	}
	return f
}

func makeTxs(n int, seed string) tx.Transactions {
	var txs tx.Transactions
	for i := range n {
		tag := khora.Blake2b([]byte(seed), khora.Uint64Bytes(uint64(i)))
		out := tx.Output{PK: khora.Blake2b(tag[:]), Commitment: tag}
		txs = append(txs, tx.New(make([]byte, 40), []tx.Output{out}, []khora.Bytes32{tag}, 1))
	}
	return txs
}

// emptySig runs the two-round multi-signature for the committee positions not absent.
func (f *fixture) emptySig(leader uint64, bnum uint64, absentees ...uint64) *MultiSignature {
	absent := map[uint64]bool{}
	for _, a := range absentees {
		absent[a] = true
	}
	var xs []cry.Scalar
	var Xs []cry.Point
	var keys []*cry.PrivateKey
	for pos, idx := range f.committee {
		if absent[uint64(pos)] {
			continue
		}
		x := cry.CommitSecret(f.keys[idx], bnum, 0)
		xs = append(xs, x)
		Xs = append(Xs, cry.Commitment(x))
		keys = append(keys, f.keys[idx])
	}
	X, err := cry.SumPoints(Xs...)
	if err != nil {
		panic(err)
	}
	e := cry.Challenge(EmptyMessage(f.stakes[leader].PK, f.lastName, 0), X)
	var ys []cry.Scalar
	for i, k := range keys {
		ys = append(ys, cry.Respond(xs[i], k, e))
	}
	return &MultiSignature{X: X, Y: cry.SumScalars(ys...), Absentees: absentees}
}

func (f *fixture) transactional(leader uint64, bnum uint64, txs tx.Transactions, signers ...uint64) *Block {
	var sigs []Signature
	for _, s := range signers {
		c := NewCandidate(bnum, []uint64{0}, txs, f.stakes[leader].PK, f.lastName, noStake{}, s, f.keys[s])
		sigs = append(sigs, c.Signature)
	}
	return NewTransactional(leader, f.keys[leader], []uint64{0}, bnum, f.lastName, txs, sigs, nil)
}

func TestEmptyBlock(t *testing.T) {
	f := newFixture()

	blk := NewEmpty(0, f.keys[0], 0, 1, f.lastName, f.emptySig(0, 1), nil)
	assert.True(t, blk.Header().IsEmpty())
	assert.Empty(t, blk.Transactions())
	require.NoError(t, blk.Verify(noStake{}, f.committee, f.stakes, &f.params))

	blk = NewEmpty(0, f.keys[0], 0, 1, f.lastName, f.emptySig(0, 1, 3), nil)
	require.NoError(t, blk.Verify(noStake{}, f.committee, f.stakes, &f.params))

	// below quorum
	blk = NewEmpty(0, f.keys[0], 0, 1, f.lastName, f.emptySig(0, 1, 2, 3), nil)
	err := blk.Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)

	// claiming an absentee that did sign breaks the aggregate
	ms := f.emptySig(0, 1)
	ms.Absentees = []uint64{3}
	blk = NewEmpty(0, f.keys[0], 0, 1, f.lastName, ms, nil)
	err = blk.Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.CryptoInvalid), "%v", err)

	// absentee outside the committee
	ms = f.emptySig(0, 1)
	ms.Absentees = []uint64{4}
	blk = NewEmpty(0, f.keys[0], 0, 1, f.lastName, ms, nil)
	err = blk.Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)

	// leader signed by someone else
	blk = new(Builder).Leader(0).Shards(0).Number(1).LastName(f.lastName).Emptiness(f.emptySig(0, 1)).Seal(f.keys[1])
	err = blk.Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.CryptoInvalid), "%v", err)
}

func TestExclusivity(t *testing.T) {
	f := newFixture()
	txs := makeTxs(2, "a")
	valid := f.transactional(0, 1, txs, 0, 1, 2)

	both := new(Builder).
		Leader(0).Shards(0).Number(1).LastName(f.lastName).
		Transactions(txs).
		Validators(valid.Header().Validators()).
		Emptiness(f.emptySig(0, 1)).
		Seal(f.keys[0])
	err := both.Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)

	neither := new(Builder).Leader(0).Shards(0).Number(1).LastName(f.lastName).Seal(f.keys[0])
	err = neither.Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)
}

func TestTransactionalBlock(t *testing.T) {
	f := newFixture()
	txs := makeTxs(3, "a")

	blk := f.transactional(1, 1, txs, 0, 1, 2)
	require.NoError(t, blk.Verify(noStake{}, f.committee, f.stakes, &f.params))

	light := blk.ToLight(noStake{})
	require.NoError(t, light.Verify(f.committee, f.stakes, &f.params))
	assert.Equal(t, blk.Header().Name(), light.Header().Name())
	assert.Len(t, light.Delta().Tags, 3)
	assert.Equal(t, uint64(3), light.Delta().Fees)

	// too few signers
	err := f.transactional(1, 1, txs, 0, 1).Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)

	// duplicate signer
	err = f.transactional(1, 1, txs, 0, 1, 1).Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)

	// signer outside the committee
	err = f.transactional(1, 1, txs, 0, 1, 2).Verify(noStake{}, []uint64{0, 1, 3, 3}, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)

	// swapped transactions invalidate every validator signature, in both forms
	forged := new(Builder).
		Leader(1).Shards(0).Number(1).LastName(f.lastName).
		Transactions(makeTxs(3, "b")).
		Validators(blk.Header().Validators()).
		Seal(f.keys[1])
	err = forged.Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.CryptoInvalid), "%v", err)
	err = forged.ToLight(noStake{}).Verify(f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.CryptoInvalid), "%v", err)

	// a leader outside the committee
	err = blk.Verify(noStake{}, []uint64{0, 0, 2, 3}, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)
}

func TestSeatsCountTowardsQuorum(t *testing.T) {
	f := newFixture()
	f.committee = []uint64{0, 0, 1, 2}
	txs := makeTxs(1, "a")

	// 0 holds two seats, so 0 and 1 together sign three of four seats
	require.NoError(t, f.transactional(0, 1, txs, 0, 1).Verify(noStake{}, f.committee, f.stakes, &f.params))
	err := f.transactional(0, 1, txs, 1, 2).Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)
}

func TestEncoding(t *testing.T) {
	f := newFixture()
	forker, ok := NewForker(0, 2,
		ForkSig{Body: khora.Blake2b([]byte("a")), Sig: cry.Sign(ValidatorMessage(0, khora.Blake2b([]byte("a"))), f.keys[2])},
		ForkSig{Body: khora.Blake2b([]byte("b")), Sig: cry.Sign(ValidatorMessage(0, khora.Blake2b([]byte("b"))), f.keys[2])})
	require.True(t, ok)

	for _, blk := range []*Block{
		f.transactional(0, 1, makeTxs(2, "a"), 0, 1, 2),
		NewEmpty(0, f.keys[0], 0, 1, f.lastName, f.emptySig(0, 1, 1), forker),
	} {
		data, err := rlp.EncodeToBytes(blk)
		require.NoError(t, err)

		var decoded Block
		require.NoError(t, rlp.DecodeBytes(data, &decoded))
		assert.Equal(t, blk.Header().Name(), decoded.Header().Name())
		assert.Equal(t, blk.Header().IsEmpty(), decoded.Header().IsEmpty())
		assert.Equal(t, blk.Header().Forker() != nil, decoded.Header().Forker() != nil)
		require.NoError(t, decoded.Verify(noStake{}, f.committee, f.stakes, &f.params))

		light := blk.ToLight(noStake{})
		data, err = rlp.EncodeToBytes(light)
		require.NoError(t, err)
		var decodedLight LightBlock
		require.NoError(t, rlp.DecodeBytes(data, &decodedLight))
		assert.Equal(t, blk.Header().Name(), decodedLight.Header().Name())
		assert.Equal(t, light.Delta().Digest(), decodedLight.Delta().Digest())
		require.NoError(t, decodedLight.Verify(f.committee, f.stakes, &f.params))
	}
}

func TestForker(t *testing.T) {
	f := newFixture()
	bodyA := khora.Blake2b([]byte("body-a"))
	bodyB := khora.Blake2b([]byte("body-b"))
	sigA := ForkSig{Body: bodyA, Sig: cry.Sign(ValidatorMessage(5, bodyA), f.keys[3])}
	sigB := ForkSig{Body: bodyB, Sig: cry.Sign(ValidatorMessage(5, bodyB), f.keys[3])}

	_, ok := NewForker(5, 3, sigA, sigA)
	assert.False(t, ok)

	forker, ok := NewForker(5, 3, sigA, sigB)
	require.True(t, ok)
	require.NoError(t, forker.Verify(f.stakes))
	pk, ok := forker.PK(f.stakes)
	assert.True(t, ok)
	assert.Equal(t, f.keys[3].Public(), pk)

	// wrong signer
	wrong := *forker
	wrong.Signer = 2
	assert.True(t, consensus.Is(wrong.Verify(f.stakes), consensus.CryptoInvalid))
	wrong.Signer = 9
	assert.True(t, consensus.Is(wrong.Verify(f.stakes), consensus.ProtocolInvalid))

	blk := NewEmpty(0, f.keys[0], 0, 6, f.lastName, f.emptySig(0, 6), forker)
	require.NoError(t, blk.Verify(noStake{}, f.committee, f.stakes, &f.params))

	// evidence must precede the block
	blk = NewEmpty(0, f.keys[0], 0, 5, f.lastName, f.emptySig(0, 5), forker)
	err := blk.Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.ProtocolInvalid), "%v", err)

	// the leader signature covers the evidence
	stripped := new(Builder).Leader(0).Shards(0).Number(6).LastName(f.lastName).Emptiness(f.emptySig(0, 6)).Build()
	stripped = stripped.WithLeaderSignature(NewEmpty(0, f.keys[0], 0, 6, f.lastName, f.emptySig(0, 6), forker).Header().Leader().Sig)
	err = stripped.Verify(noStake{}, f.committee, f.stakes, &f.params)
	assert.True(t, consensus.Is(err, consensus.CryptoInvalid), "%v", err)
}

func TestMerge(t *testing.T) {
	params := khora.DevParams(4)
	params.MergeThreshold = 2

	head := Part{Shard: 0, Txs: makeTxs(2, "head")}
	s1 := Part{Shard: 1, Txs: makeTxs(3, "one")}
	// s2 is too small, s3 repeats two txs of s1
	s2 := Part{Shard: 2, Txs: makeTxs(2, "two")}
	s3 := Part{Shard: 3, Txs: append(makeTxs(2, "one"), makeTxs(3, "three")...)}

	shards, txs := Merge(head, []Part{s1, s2, s3}, nil, &params)
	assert.Equal(t, []uint64{0, 1, 3}, shards)
	assert.Len(t, txs, 2+3+3)
	assert.Equal(t, head.Txs[0].ID(), txs[0].ID())
	assert.Equal(t, s1.Txs[0].ID(), txs[2].ID())

	// a duplicated sibling is merged once
	shards, txs = Merge(head, []Part{s1, s1}, nil, &params)
	assert.Equal(t, []uint64{0, 1}, shards)
	assert.Len(t, txs, 5)
}

func TestProposal(t *testing.T) {
	f := newFixture()
	txs := makeTxs(2, "a")
	p := NewProposal(3, 1, []uint64{0}, txs, f.keys[1])
	assert.True(t, p.Verify(f.keys[1].Public()))
	assert.False(t, p.Verify(f.keys[0].Public()))

	data, err := rlp.EncodeToBytes(p)
	require.NoError(t, err)
	var decoded Proposal
	require.NoError(t, rlp.DecodeBytes(data, &decoded))
	assert.True(t, decoded.Verify(f.keys[1].Public()))

	decoded.Number = 4
	assert.False(t, decoded.Verify(f.keys[1].Public()))

	c := NewCandidate(3, []uint64{0}, txs, f.keys[1].Public(), f.lastName, noStake{}, 2, f.keys[2])
	body := c.Body(f.keys[1].Public(), f.lastName, noStake{})
	assert.True(t, c.Verify(body, f.keys[2].Public()))
	assert.False(t, c.Verify(khora.Bytes32{}, f.keys[2].Public()))
}

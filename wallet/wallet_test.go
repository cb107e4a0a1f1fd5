// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package wallet

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/seal"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/state"
	"github.com/sile/Khora-sub000/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lightWith(t *testing.T, bnum uint64, delta *tx.SyncedTx) *block.LightBlock {
	t.Helper()
	blk := new(block.Builder).Number(bnum).Shards(0).Build()
	return block.NewLight(blk.Header(), delta)
}

func output(t *testing.T, owner cry.PublicKey, amount uint64) tx.Output {
	out, err := seal.NewOutput(owner, amount, nil)
	require.NoError(t, err)
	return out
}

func TestKeysFromPassword(t *testing.T) {
	a := KeysFromPassword("secret")
	b := KeysFromPassword("secret")
	c := KeysFromPassword("other")
	assert.Equal(t, a.Account.Public(), b.Account.Public())
	assert.Equal(t, a.Stake.Public(), b.Stake.Public())
	assert.NotEqual(t, a.Account.Public(), a.Stake.Public())
	assert.NotEqual(t, a.Account.Public(), c.Account.Public())
}

func TestScan(t *testing.T) {
	keys := KeysFromPassword("me")
	w := New(keys)
	stranger := cry.KeyFromSeed([]byte("stranger")).Public()

	mine1 := output(t, keys.Account.Public(), 30)
	mine2 := output(t, keys.Account.Public(), 12)
	r := w.Scan(lightWith(t, 1, &tx.SyncedTx{
		TxOut: []tx.Output{output(t, stranger, 5), mine1, mine2},
	}), nil, nil, 100, seal.Oracle{})
	require.Len(t, r.Received, 2)
	assert.True(t, r.Touched())
	assert.Equal(t, uint64(101), r.Received[0].Index)
	assert.Equal(t, uint64(102), r.Received[1].Index)
	assert.Equal(t, uint64(42), w.Balance())

	picked, err := w.Select(20)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, uint64(30), picked[0].Amount)
	_, err = w.Select(100)
	assert.Error(t, err)

	// our own spend
	pendingTx := tx.New(make([]byte, 40), nil, []khora.Bytes32{picked[0].Tag}, 0)
	w.MarkPending(pendingTx)
	assert.Equal(t, uint64(12), w.Balance())
	picked, err = w.Select(12)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), picked[0].Amount)

	r = w.Scan(lightWith(t, 2, &tx.SyncedTx{Tags: pendingTx.Tags()}), nil, nil, 103, seal.Oracle{})
	assert.Equal(t, pendingTx.Tags(), r.Spent)
	assert.Empty(t, r.FaerieGold)
	assert.Equal(t, uint64(12), w.Balance())

	// a tag we never spent
	r = w.Scan(lightWith(t, 3, &tx.SyncedTx{Tags: []khora.Bytes32{seal.Tag(mine2.PK)}}), nil, nil, 103, seal.Oracle{})
	assert.Equal(t, []khora.Bytes32{seal.Tag(mine2.PK)}, r.FaerieGold)
	assert.Equal(t, uint64(0), w.Balance())

	// unrelated blocks do not touch the wallet
	r = w.Scan(lightWith(t, 4, &tx.SyncedTx{Tags: []khora.Bytes32{{1}}}), nil, nil, 103, seal.Oracle{})
	assert.False(t, r.Touched())
}

func TestDuplicateOutputKey(t *testing.T) {
	keys := KeysFromPassword("me")
	w := New(keys)
	out := output(t, keys.Account.Public(), 7)

	r := w.Scan(lightWith(t, 1, &tx.SyncedTx{TxOut: []tx.Output{out, out}}), nil, nil, 0, seal.Oracle{})
	assert.Len(t, r.Received, 1)
	assert.Len(t, r.FaerieGold, 1)
	assert.Equal(t, uint64(7), w.Balance())
}

func TestStakes(t *testing.T) {
	keys := KeysFromPassword("me")
	w := New(keys)
	other := cry.KeyFromSeed([]byte("other")).Public()
	before := stake.Set{
		{PK: other, Amount: 1},
		{PK: keys.Stake.Public(), Amount: 100},
		{PK: keys.Stake.Public(), Amount: 50},
	}
	assert.Equal(t, []uint64{1, 2}, w.StakeIndices(before))
	assert.Equal(t, uint64(150), w.StakeBalance(before))

	o := &state.Outcome{Rewards: map[uint64]int64{0: 9, 1: 4, 2: -1}}
	r := w.Scan(lightWith(t, 1, &tx.SyncedTx{
		StakeIn: []stake.Entry{{PK: keys.Stake.Public(), Amount: 5}, {PK: other, Amount: 5}},
	}), o, before, 0, seal.Oracle{})
	assert.Equal(t, int64(3), r.StakeChange)
	assert.Equal(t, 1, r.NewStakes)
}

func TestRestore(t *testing.T) {
	keys := KeysFromPassword("me")
	w := New(keys)
	w.Scan(lightWith(t, 1, &tx.SyncedTx{
		TxOut: []tx.Output{output(t, keys.Account.Public(), 3), output(t, keys.Account.Public(), 4)},
	}), nil, nil, 0, seal.Oracle{})
	w.MarkPending(tx.New(make([]byte, 40), nil, []khora.Bytes32{w.Owned()[0].Tag}, 0))

	data, err := rlp.EncodeToBytes(w)
	require.NoError(t, err)
	restored, err := Restore(keys, data)
	require.NoError(t, err)
	assert.Equal(t, w.Balance(), restored.Balance())
	assert.Equal(t, uint64(4), restored.Balance())
	assert.Len(t, restored.Owned(), 2)

	restored.ClearPending()
	assert.Equal(t, uint64(7), restored.Balance())
	restored.Reset()
	assert.Empty(t, restored.Owned())
}

func TestReceive(t *testing.T) {
	keys := KeysFromPassword("me")
	w := New(keys)
	outs := []tx.Output{output(t, cry.KeyFromSeed([]byte("x")).Public(), 1), output(t, keys.Account.Public(), 9)}
	r := w.Receive(outs, 0, seal.Oracle{})
	require.Len(t, r.Received, 1)
	assert.Equal(t, uint64(1), r.Received[0].Index)
	assert.Equal(t, uint64(9), w.Balance())
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package txpool

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spentSet map[khora.Bytes32]bool

func (s spentSet) Contains(tag khora.Bytes32) bool { return s[tag] }

func newTx(seed string, fee uint64) *tx.Transaction {
	tag := khora.Blake2b([]byte(seed))
	return tx.New(make([]byte, 40), []tx.Output{{PK: tag, Commitment: tag}}, []khora.Bytes32{tag}, fee)
}

func TestAddAndExecutables(t *testing.T) {
	pool := New(Options{Limit: 3}, &mclock.Simulated{})

	a, b, c := newTx("a", 1), newTx("b", 1), newTx("c", 1)
	require.NoError(t, pool.Add(a, nil))
	require.NoError(t, pool.Add(b, nil))
	assert.True(t, IsErrKnownTx(pool.Add(a, nil)))

	// same tag, different tx
	assert.True(t, IsErrDoubleSpend(pool.Add(newTx("a", 2), nil)))
	assert.True(t, IsErrDoubleSpend(pool.Add(c, spentSet{c.Tags()[0]: true})))

	require.NoError(t, pool.Add(c, nil))
	assert.True(t, IsErrPoolFull(pool.Add(newTx("d", 1), nil)))

	assert.Equal(t, []khora.Bytes32{a.ID(), b.ID(), c.ID()}, pool.Executables(0).IDs())
	assert.Equal(t, []khora.Bytes32{a.ID(), b.ID()}, pool.Executables(2).IDs())
	assert.Equal(t, b, pool.Get(b.ID()))

	pool.Remove(b.ID())
	assert.Equal(t, 2, pool.Len())
	// the tag of a removed tx is free again
	require.NoError(t, pool.Add(newTx("b", 5), nil))
}

func TestTooLarge(t *testing.T) {
	pool := New(Options{MaxTxSize: 10}, nil)
	assert.True(t, IsErrTooLarge(pool.Add(newTx("a", 1), nil)))
}

func TestWash(t *testing.T) {
	clock := &mclock.Simulated{}
	pool := New(Options{MaxLifetime: time.Minute}, clock)

	a, b := newTx("a", 1), newTx("b", 1)
	unstake := tx.New(tx.StakeInput(3), nil, nil, 1)
	require.NoError(t, pool.Add(a, nil))
	require.NoError(t, pool.Add(unstake, nil))
	assert.True(t, IsErrDoubleSpend(pool.Add(tx.New(tx.StakeInput(3), nil, nil, 2), nil)))

	assert.Equal(t, 1, pool.Wash(a.Tags(), false))
	assert.Equal(t, 1, pool.Wash(nil, true))
	assert.Equal(t, 0, pool.Len())

	require.NoError(t, pool.Add(b, nil))
	clock.Run(2 * time.Minute)
	assert.Equal(t, 1, pool.Wash(nil, false))
}

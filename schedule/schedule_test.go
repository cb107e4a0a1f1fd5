// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package schedule

import (
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/stake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStakes(amounts ...uint64) stake.Set {
	s := make(stake.Set, 0, len(amounts))
	for i, a := range amounts {
		s = append(s, stake.Entry{PK: cry.KeyFromSeed([]byte(fmt.Sprint(i))).Public(), Amount: a})
	}
	return s
}

func TestSelectWeighted(t *testing.T) {
	stakes := newStakes(1, 0, 2)

	for r, want := range []uint64{0, 2, 2, 0, 2} {
		got, err := SelectWeighted(stakes, uint256.NewInt(uint64(r)))
		require.NoError(t, err)
		assert.Equal(t, want, got, "r=%d", r)
	}

	_, err := SelectWeighted(newStakes(0, 0), uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrNoStake)
	_, err = SelectWeighted(nil, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrNoStake)
}

func TestGenesis(t *testing.T) {
	params := khora.DevParams(4)
	stakes := newStakes(1, 1, 1, 1)
	name := khora.Blake2b([]byte("genesis"))

	s, err := Genesis(name, 0, stakes, &params)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3}, s.Committee)
	assert.Len(t, s.Entry, int(params.QueueLength))
	assert.Len(t, s.Exit, int(params.QueueLength))
	for _, pos := range s.Exit {
		assert.Less(t, pos, params.NumberOfValidators)
	}

	small, err := Genesis(name, 0, newStakes(5, 5), &params)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 0, 1}, small.Committee)

	_, err = Genesis(name, 0, nil, &params)
	assert.ErrorIs(t, err, ErrNoStake)
}

func TestRotateDeterministic(t *testing.T) {
	params := khora.DevParams(4)
	stakes := newStakes(3, 1, 4, 1, 5)
	name := khora.Blake2b([]byte("genesis"))

	a, err := Genesis(name, 0, stakes, &params)
	require.NoError(t, err)
	b := a.Copy()

	for bnum := uint64(1); bnum <= 20; bnum++ {
		prev := khora.Blake2b(khora.Uint64Bytes(bnum))
		headEntry := a.Entry[0]

		entrants, exits, err := a.Rotate(prev, bnum, 0, stakes, &params)
		require.NoError(t, err)
		_, _, err = b.Rotate(prev, bnum, 0, stakes, &params)
		require.NoError(t, err)

		assert.Equal(t, a, &b, "bnum=%d", bnum)
		assert.Len(t, entrants, int(params.ReplaceRate))
		assert.Equal(t, headEntry, entrants[0])
		assert.Len(t, a.Entry, int(params.QueueLength))
		assert.Len(t, a.Exit, int(params.QueueLength))
		assert.Len(t, a.Committee, int(params.NumberOfValidators))
		assert.Equal(t, entrants[len(entrants)-1], a.Committee[exits[len(exits)-1]])
	}

	// another shard draws differently
	c, err := Genesis(name, 1, stakes, &params)
	require.NoError(t, err)
	d, err := Genesis(name, 0, stakes, &params)
	require.NoError(t, err)
	assert.NotEqual(t, c.Entry, d.Entry)
}

func TestRemoveStakeAndPad(t *testing.T) {
	params := khora.DevParams(4)
	stakes := newStakes(1, 1, 1, 1, 1)

	s := &Shard{
		Committee: []uint64{0, 1, 2, 3},
		Entry:     []uint64{4, 3, 2, 1, 0, 4, 3, 2, 1, 0},
		Exit:      []uint64{0, 1, 2, 3, 0, 1, 2, 3, 0, 1},
	}
	s.RemoveStake([]uint64{3, 1})
	assert.Equal(t, []uint64{0, 1}, s.Committee)
	assert.Equal(t, []uint64{2, 1, 0, 2, 1, 0}, s.Entry)

	remaining := stakes.Copy()
	remaining.Remove([]uint64{3, 1})

	padded := s.Copy()
	require.NoError(t, padded.Pad(remaining, &params))
	assert.Len(t, padded.Committee, 4)
	assert.Len(t, padded.Entry, 10)
	assert.Equal(t, []uint64{0, 1}, padded.Committee[:2])
	for _, v := range padded.Committee[2:] {
		assert.Contains(t, []uint64{0, 1}, v)
	}

	again := s.Copy()
	require.NoError(t, again.Pad(remaining, &params))
	assert.Equal(t, padded, again)

	// an emptied committee is refilled from the stake set
	empty := &Shard{Entry: []uint64{0}, Exit: []uint64{1}}
	require.NoError(t, empty.Pad(remaining, &params))
	assert.Len(t, empty.Committee, 4)
	for _, v := range empty.Committee {
		assert.Less(t, v, uint64(len(remaining)))
	}

	assert.ErrorIs(t, (&Shard{}).Pad(nil, &params), ErrNoStake)
}

func TestExiting(t *testing.T) {
	s := &Shard{
		Committee: []uint64{7, 8, 9},
		Entry:     []uint64{1, 2, 3, 4},
		Exit:      []uint64{2, 0, 1},
	}
	assert.Equal(t, []uint64{9, 7}, s.Exiting(2))
	assert.Equal(t, []uint64{9, 7, 8}, s.Exiting(10))
	assert.Equal(t, []uint64{1, 2}, s.Entering(2))
	assert.Equal(t, []uint64{3, 4}, s.Warned(2))
	assert.Equal(t, []uint64{1, 2, 3, 4}, s.Warned(9))

	pos, ok := s.Position(8)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), pos)
	_, ok = s.Position(1)
	assert.False(t, ok)
}

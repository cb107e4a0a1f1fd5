// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU(t *testing.T) {
	_, err := NewLRU[int, string](0)
	assert.Error(t, err)

	c, err := NewLRU[uint64, string](2)
	require.NoError(t, err)

	c.Add(1, "a")
	c.Add(2, "b")
	c.Add(3, "c")
	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Contains(1))

	v, ok := c.Get(3)
	assert.True(t, ok)
	assert.Equal(t, "c", v)

	_, ok = c.Get(1)
	assert.False(t, ok)

	hit, miss, _ := c.Stats().Sample()
	assert.Equal(t, int64(1), hit)
	assert.Equal(t, int64(1), miss)

	loads := 0
	load := func(k uint64) (string, error) {
		loads++
		if k == 99 {
			return "", errors.New("not found")
		}
		return "loaded", nil
	}
	v, err = c.GetOrLoad(5, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	v, err = c.GetOrLoad(5, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	assert.Equal(t, 1, loads)

	_, err = c.GetOrLoad(99, load)
	assert.Error(t, err)
	assert.False(t, c.Contains(99))
}

func TestRandSet(t *testing.T) {
	s := NewRandSet[int](10)
	assert.True(t, s.Add(1))
	assert.False(t, s.Add(1))
	assert.True(t, s.Contains(1))

	for i := range 100 {
		s.Add(i)
		assert.True(t, s.Contains(i))
	}
	assert.Equal(t, 10, s.Len())
}

func TestStats(t *testing.T) {
	var cs Stats
	cs.Hit()
	cs.Miss()
	hit, miss, moved := cs.Sample()
	assert.True(t, moved)
	assert.Equal(t, int64(1), hit)
	assert.Equal(t, int64(1), miss)

	_, _, moved = cs.Sample()
	assert.False(t, moved)

	cs.Hit()
	_, _, moved = cs.Sample()
	assert.True(t, moved)
}

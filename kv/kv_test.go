// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	dir, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"mem": NewMem(),
		"dir": dir,
	}
}

func TestStoreBasics(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get([]byte("b1"))
			assert.True(t, s.IsNotFound(err))

			require.NoError(t, s.Put([]byte("b1"), []byte("one")))
			v, err := s.Get([]byte("b1"))
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), v)

			has, err := s.Has([]byte("b1"))
			require.NoError(t, err)
			assert.True(t, has)

			require.NoError(t, s.Delete([]byte("b1")))
			has, err = s.Has([]byte("b1"))
			require.NoError(t, err)
			assert.False(t, has)
			require.NoError(t, s.Delete([]byte("b1")))
		})
	}
}

func TestStoreBatchAndIterate(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			batch := s.NewBatch()
			require.NoError(t, batch.Put([]byte("b1"), []byte("1")))
			require.NoError(t, batch.Put([]byte("b2"), []byte("2")))
			require.NoError(t, batch.Put([]byte("l1"), []byte("x")))
			require.NoError(t, batch.Delete([]byte("b2")))
			require.NoError(t, batch.Put([]byte("b3"), []byte("3")))
			assert.Equal(t, 5, batch.Len())
			require.NoError(t, batch.Write())

			it := s.Iterate(BytesPrefix([]byte("b")))
			var keys []string
			for it.Next() {
				keys = append(keys, string(it.Key()))
			}
			it.Release()
			require.NoError(t, it.Error())
			assert.Equal(t, []string{"b1", "b3"}, keys)
		})
	}
}

func TestBucket(t *testing.T) {
	src := NewMem()
	light := Bucket("l").NewStore(src)
	full := Bucket("b").NewStore(src)

	require.NoError(t, light.Put([]byte("7"), []byte("light")))
	require.NoError(t, full.Put([]byte("7"), []byte("full")))

	v, err := src.Get([]byte("l7"))
	require.NoError(t, err)
	assert.Equal(t, []byte("light"), v)

	v, err = full.Get([]byte("7"))
	require.NoError(t, err)
	assert.Equal(t, []byte("full"), v)

	it := light.Iterate(Range{})
	require.True(t, it.Next())
	assert.Equal(t, []byte("7"), it.Key())
	assert.Equal(t, []byte("light"), it.Value())
	assert.False(t, it.Next())
}

func TestDirStoreRejectsPaths(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Put([]byte("../escape"), nil))
	assert.Error(t, s.Put([]byte(""), nil))
}

func TestBytesPrefix(t *testing.T) {
	r := BytesPrefix([]byte{'b'})
	assert.Equal(t, []byte{'c'}, r.Limit)
	r = BytesPrefix([]byte{0xff})
	assert.Nil(t, r.Limit)
}

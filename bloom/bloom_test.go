// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bloom

import (
	"path/filepath"
	"testing"

	"github.com/sile/Khora-sub000/khora"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tag(i int) khora.Bytes32 {
	return khora.Blake2b([]byte("tag"), khora.Uint64Bytes(uint64(i)))
}

func TestFilterNoFalseNegatives(t *testing.T) {
	f := NewMem(1<<16, Keys{1, 2, 3})
	for i := range 1000 {
		require.NoError(t, f.Insert(tag(i)))
	}
	for i := range 1000 {
		assert.True(t, f.Contains(tag(i)))
	}

	falsePositives := 0
	for i := 1000; i < 2000; i++ {
		if f.Contains(tag(i)) {
			falsePositives++
		}
	}
	assert.Less(t, falsePositives, 50)
}

func TestFilterPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bloomfile")
	f, err := Create(path, 1<<12)
	require.NoError(t, err)
	keys := f.Keys()

	require.NoError(t, f.InsertAll([]khora.Bytes32{tag(1), tag(2)}))
	require.NoError(t, f.Insert(tag(1)))
	require.NoError(t, f.Close())

	f, err = Open(path, 1<<12, keys)
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, f.Contains(tag(1)))
	assert.True(t, f.Contains(tag(2)))

	_, err = Open(path, 1<<13, keys)
	assert.Error(t, err)
}

func TestKeysMatter(t *testing.T) {
	a := NewMem(1<<10, Keys{1})
	b := NewMem(1<<10, Keys{2})
	require.NoError(t, a.Insert(tag(9)))
	require.NoError(t, b.Insert(tag(9)))
	assert.NotEqual(t, a.file.(*memFile).b, b.file.(*memFile).b)
}

func TestOpenRejectsBadSize(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x"), 7, Keys{})
	assert.Error(t, err)
}

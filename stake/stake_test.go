// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package stake

import (
	"path/filepath"
	"testing"

	"github.com/sile/Khora-sub000/cry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pk(s string) cry.PublicKey {
	return cry.KeyFromSeed([]byte(s)).Public()
}

func TestSet(t *testing.T) {
	s := Set{{pk("a"), 1}, {pk("b"), 2}, {pk("a"), 3}, {pk("c"), 4}}
	assert.Equal(t, uint64(10), s.Total().Uint64())
	assert.Equal(t, []uint64{0, 2}, s.IndexesOf(pk("a")))

	cpy := s.Copy()
	removed := cpy.Remove([]uint64{0, 2, 2, 9})
	assert.Equal(t, []uint64{2, 0}, removed)
	assert.Equal(t, Set{{pk("b"), 2}, {pk("c"), 4}}, cpy)
	assert.Len(t, s, 4, "copy must not alias")

	assert.NotEqual(t, s.Digest(), cpy.Digest())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stkstate")
	s := Set{{pk("a"), 1}, {pk("b"), 1 << 40}}
	require.NoError(t, Save(path, s))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

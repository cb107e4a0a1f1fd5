// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallel(t *testing.T) {
	var sum atomic.Int64
	err := Parallel(100, func(i int) error {
		sum.Add(int64(i))
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(4950), sum.Load())

	assert.NoError(t, Parallel(0, func(int) error { panic("unreachable") }))

	errBad := errors.New("bad")
	err = Parallel(10, func(i int) error {
		if i == 7 {
			return errBad
		}
		return nil
	})
	assert.Equal(t, errBad, err)
}

func TestParallelFilter(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out := ParallelFilter(in, func(v int) bool { return v%2 == 0 })
	assert.Equal(t, []int{2, 4, 6, 8}, out)

	assert.Empty(t, ParallelFilter([]int(nil), func(int) bool { return true }))
}

func TestGoes(t *testing.T) {
	var g Goes
	var n atomic.Int32
	for range 5 {
		g.Go(func() { n.Add(1) })
	}
	<-g.Done()
	assert.Equal(t, int32(5), n.Load())
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Parallel calls fn(i) for every i in [0, n) on up to NumCPU workers.
// The first non-nil error is returned after all started calls have finished.
func Parallel(n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range n {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}

// ParallelFilter evaluates keep for every element concurrently and returns the kept elements in their
// original order.
func ParallelFilter[T any](items []T, keep func(T) bool) []T {
	ok := make([]bool, len(items))
	_ = Parallel(len(items), func(i int) error {
		ok[i] = keep(items[i])
		return nil
	})
	out := make([]T, 0, len(items))
	for i, item := range items {
		if ok[i] {
			out = append(out, item)
		}
	}
	return out
}

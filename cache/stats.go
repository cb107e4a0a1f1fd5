// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import "sync/atomic"

// Stats counts lookups of a cache.
type Stats struct {
	hit, miss atomic.Int64
	lastRate  atomic.Int64 // per mille, as of the previous Sample
}

// Hit records a hit.
func (s *Stats) Hit() { s.hit.Add(1) }

// Miss records a miss.
func (s *Stats) Miss() { s.miss.Add(1) }

// Sample returns the counters and whether the hit rate moved since the previous sample.
func (s *Stats) Sample() (hit, miss int64, moved bool) {
	hit, miss = s.hit.Load(), s.miss.Load()
	var rate int64
	if total := hit + miss; total > 0 {
		rate = hit * 1000 / total
	} else {
		rate = -1
	}
	return hit, miss, s.lastRate.Swap(rate) != rate
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"math/rand/v2"
	"sync"
)

// RandSet is a bounded set which evicts a random member when the limit is exceeded.
// Used to remember recently seen message digests.
type RandSet[K comparable] struct {
	lock  sync.Mutex
	index map[K]int
	keys  []K
	limit int
}

// NewRandSet creates a set holding at most limit keys.
func NewRandSet[K comparable](limit int) *RandSet[K] {
	if limit < 1 {
		panic("invalid limit for RandSet")
	}
	return &RandSet[K]{
		index: make(map[K]int),
		limit: limit,
	}
}

// Add inserts key and reports whether it was absent.
func (s *RandSet[K]) Add(key K) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = len(s.keys)
	s.keys = append(s.keys, key)
	if len(s.keys) > s.limit {
		// never the key just added
		s.remove(s.keys[rand.N(len(s.keys)-1)]) //#nosec G404
	}
	return true
}

// Contains returns whether the given key is contained.
func (s *RandSet[K]) Contains(key K) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.index[key]
	return ok
}

// Len returns count of keys in the set.
func (s *RandSet[K]) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.keys)
}

func (s *RandSet[K]) remove(key K) {
	i, ok := s.index[key]
	if !ok {
		return
	}
	delete(s.index, key)
	last := s.keys[len(s.keys)-1]
	s.keys[i] = last
	s.index[last] = i
	s.keys = s.keys[:len(s.keys)-1]
	if last == key {
		delete(s.index, key)
	}
}

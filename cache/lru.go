// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// LRU is a typed LRU cache extending golang-lru, with hit/miss accounting.
type LRU[K comparable, V any] struct {
	inner *lru.Cache
	stats Stats
}

// NewLRU create a LRU cache instance.
// maxSize should be > 0, or an error returned.
func NewLRU[K comparable, V any](maxSize int) (*LRU[K, V], error) {
	c, err := lru.New(maxSize)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{inner: c}, nil
}

// Get looks up key.
func (l *LRU[K, V]) Get(key K) (V, bool) {
	if v, ok := l.inner.Get(key); ok {
		l.stats.Hit()
		return v.(V), true
	}
	l.stats.Miss()
	var zero V
	return zero, false
}

// Add adds a value, evicting the oldest entry when full.
func (l *LRU[K, V]) Add(key K, value V) {
	l.inner.Add(key, value)
}

// Contains checks for key without touching recency or stats.
func (l *LRU[K, V]) Contains(key K) bool {
	return l.inner.Contains(key)
}

// Remove removes key.
func (l *LRU[K, V]) Remove(key K) {
	l.inner.Remove(key)
}

// Purge drops all entries.
func (l *LRU[K, V]) Purge() {
	l.inner.Purge()
}

// Len returns the number of entries.
func (l *LRU[K, V]) Len() int {
	return l.inner.Len()
}

// Stats returns the cache stats.
func (l *LRU[K, V]) Stats() *Stats {
	return &l.stats
}

// GetOrLoad first try to get from cache, do load if missed.
func (l *LRU[K, V]) GetOrLoad(key K, load func(K) (V, error)) (V, error) {
	if v, ok := l.Get(key); ok {
		return v, nil
	}
	v, err := load(key)
	if err != nil {
		var zero V
		return zero, err
	}
	l.inner.Add(key, v)
	return v, nil
}

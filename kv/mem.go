// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"bytes"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// memStore is a map backed store for tests and dev nodes.
type memStore struct {
	lock sync.RWMutex
	m    map[string][]byte
}

// NewMem creates an in-memory store.
func NewMem() Store {
	return &memStore{m: make(map[string][]byte)}
}

func (s *memStore) Get(key []byte) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if v, ok := s.m[string(key)]; ok {
		return bytes.Clone(v), nil
	}
	return nil, ErrNotFound
}

func (s *memStore) Has(key []byte) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.m[string(key)]
	return ok, nil
}

func (s *memStore) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func (s *memStore) Put(key, val []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.m[string(key)] = bytes.Clone(val)
	return nil
}

func (s *memStore) Delete(key []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.m, string(key))
	return nil
}

func (s *memStore) NewBatch() Batch {
	return &opBatch{apply: func(ops []op) error {
		s.lock.Lock()
		defer s.lock.Unlock()
		for _, o := range ops {
			if o.del {
				delete(s.m, string(o.key))
			} else {
				s.m[string(o.key)] = o.val
			}
		}
		return nil
	}}
}

func (s *memStore) Iterate(r Range) Iterator {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var keys []string
	for k := range s.m {
		if inRange([]byte(k), r) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	it := &sliceIter{pos: -1}
	for _, k := range keys {
		it.keys = append(it.keys, []byte(k))
		it.vals = append(it.vals, bytes.Clone(s.m[k]))
	}
	return it
}

func (s *memStore) Close() error { return nil }

func inRange(key []byte, r Range) bool {
	if bytes.Compare(key, r.Start) < 0 {
		return false
	}
	return len(r.Limit) == 0 || bytes.Compare(key, r.Limit) < 0
}

type op struct {
	key, val []byte
	del      bool
}

// opBatch buffers ops and hands them to apply on Write.
type opBatch struct {
	ops   []op
	apply func([]op) error
}

func (b *opBatch) Put(key, val []byte) error {
	b.ops = append(b.ops, op{key: bytes.Clone(key), val: bytes.Clone(val)})
	return nil
}

func (b *opBatch) Delete(key []byte) error {
	b.ops = append(b.ops, op{key: bytes.Clone(key), del: true})
	return nil
}

func (b *opBatch) Len() int { return len(b.ops) }

func (b *opBatch) Write() error {
	err := b.apply(b.ops)
	b.ops = nil
	return err
}

// sliceIter iterates a snapshot of sorted pairs.
type sliceIter struct {
	keys, vals [][]byte
	pos        int
	err        error
}

func (it *sliceIter) Next() bool {
	if it.pos+1 >= len(it.keys) {
		it.pos = len(it.keys)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIter) Key() []byte   { return it.keys[it.pos] }
func (it *sliceIter) Value() []byte { return it.vals[it.pos] }
func (it *sliceIter) Release()      { it.keys, it.vals = nil, nil }
func (it *sliceIter) Error() error  { return it.err }

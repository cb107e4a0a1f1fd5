// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bloom implements the on-disk filter of spent tags. Bits are only ever set,
// the filter is never rebuilt, so it has no false negatives over a node's lifetime.
package bloom

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/khora"
)

// DefaultBits sizes the filter for roughly 20M tags at a 1% false positive rate.
const DefaultBits = 1 << 28

// Keys is the pair of 128-bit keys (k0 ∥ k1) the probes are derived from.
type Keys [32]byte

// NewKeys draws random keys.
func NewKeys() (Keys, error) {
	var k Keys
	_, err := rand.Read(k[:])
	return k, err
}

type bitFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Filter is the tag filter. It is safe for concurrent use within one process.
type Filter struct {
	mu    sync.Mutex
	file  bitFile
	nbits uint64
	keys  Keys
}

// Open opens the bit file at path, creating a zeroed one of nbits bits if it does not exist.
func Open(path string, nbits uint64, keys Keys) (*Filter, error) {
	if nbits == 0 || nbits%8 != 0 {
		return nil, errors.New("bloom: bit count must be a positive multiple of 8")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "open bloom file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	switch size := uint64(info.Size()); {
	case size == 0:
		if err := f.Truncate(int64(nbits / 8)); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "size bloom file")
		}
	case size != nbits/8:
		f.Close()
		return nil, errors.Errorf("bloom: file has %d bytes, want %d", size, nbits/8)
	}
	return &Filter{file: f, nbits: nbits, keys: keys}, nil
}

// Create opens a new filter at path with fresh random keys.
func Create(path string, nbits uint64) (*Filter, error) {
	keys, err := NewKeys()
	if err != nil {
		return nil, err
	}
	return Open(path, nbits, keys)
}

// NewMem creates a filter held in memory.
func NewMem(nbits uint64, keys Keys) *Filter {
	return &Filter{file: &memFile{b: make([]byte, nbits/8)}, nbits: nbits, keys: keys}
}

// Keys returns the filter keys, persisted in the node checkpoint.
func (f *Filter) Keys() Keys { return f.keys }

// distribute calls cb with the byte offset and mask of every probe of tag, stopping when cb returns false.
func (f *Filter) distribute(tag khora.Bytes32, cb func(offset int64, mask byte) bool) bool {
	h := khora.KeyedBlake2b(f.keys[:], tag[:])
	h1 := binary.LittleEndian.Uint64(h[0:8])
	h2 := binary.LittleEndian.Uint64(h[8:16]) | 1
	for i := uint64(0); i < khora.BloomHashes; i++ {
		bit := (h1 + i*h2) % f.nbits
		if !cb(int64(bit/8), 1<<(bit%8)) {
			return false
		}
	}
	return true
}

// Contains reports whether tag may have been inserted.
func (f *Filter) Contains(tag khora.Bytes32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	var b [1]byte
	return f.distribute(tag, func(offset int64, mask byte) bool {
		if _, err := f.file.ReadAt(b[:], offset); err != nil {
			// an unreadable filter must not let a spent tag through
			return true
		}
		return b[0]&mask == mask
	})
}

// Insert sets the bits of tag. It is idempotent.
func (f *Filter) Insert(tag khora.Bytes32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(tag)
}

func (f *Filter) insert(tag khora.Bytes32) (err error) {
	var b [1]byte
	f.distribute(tag, func(offset int64, mask byte) bool {
		if _, err = f.file.ReadAt(b[:], offset); err != nil {
			return false
		}
		if b[0]&mask == mask {
			return true
		}
		b[0] |= mask
		_, err = f.file.WriteAt(b[:], offset)
		return err == nil
	})
	if err == nil {
		metricInserts().Add(1)
	}
	return err
}

// InsertAll inserts every tag.
func (f *Filter) InsertAll(tags []khora.Bytes32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tags {
		if err := f.insert(t); err != nil {
			return errors.Wrap(err, "insert tag")
		}
	}
	return nil
}

// Close closes the underlying file.
func (f *Filter) Close() error {
	return f.file.Close()
}

type memFile struct {
	b []byte
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.b)) {
		return 0, io.EOF
	}
	return copy(p, m.b[off:]), nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(m.b)) {
		return 0, io.ErrShortWrite
	}
	return copy(m.b[off:], p), nil
}

func (m *memFile) Close() error { return nil }

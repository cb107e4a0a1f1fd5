// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package history stores the append-only log of one-time account records.
package history

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/khora"
)

// Record is one 64-byte history entry.
type Record struct {
	PK         khora.Bytes32
	Commitment khora.Bytes32
}

// ErrOutOfRange is returned for indices at or above the height.
var ErrOutOfRange = errors.New("history: index out of range")

type backing interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
	Close() error
}

// File is the history file. Height is the number of records.
type File struct {
	mu     sync.RWMutex
	f      backing
	height uint64
}

// NewMem creates an empty history held in memory.
func NewMem() *File {
	return &File{f: &memBacking{}}
}

// Open opens, creating if needed, the history file at path.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "open history")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := uint64(info.Size())
	if size%khora.HistoryEntry != 0 {
		// drop a torn trailing record
		size -= size % khora.HistoryEntry
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "repair history")
		}
	}
	return &File{f: f, height: size / khora.HistoryEntry}, nil
}

// Height returns the number of records.
func (h *File) Height() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.height
}

// Get returns the record at index i.
func (h *File) Get(i uint64) (Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var r Record
	if i >= h.height {
		return r, ErrOutOfRange
	}
	var buf [khora.HistoryEntry]byte
	if _, err := h.f.ReadAt(buf[:], int64(i*khora.HistoryEntry)); err != nil {
		return r, errors.Wrap(err, "read history")
	}
	copy(r.PK[:], buf[:32])
	copy(r.Commitment[:], buf[32:])
	return r, nil
}

// Append appends records at the end.
func (h *File) Append(records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := make([]byte, 0, len(records)*khora.HistoryEntry)
	for _, r := range records {
		buf = append(buf, r.PK[:]...)
		buf = append(buf, r.Commitment[:]...)
	}
	if _, err := h.f.WriteAt(buf, int64(h.height*khora.HistoryEntry)); err != nil {
		return errors.Wrap(err, "append history")
	}
	h.height += uint64(len(records))
	return nil
}

// Truncate drops every record at or above height. Only used to reset a node to genesis.
func (h *File) Truncate(height uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if height > h.height {
		return ErrOutOfRange
	}
	if err := h.f.Truncate(int64(height * khora.HistoryEntry)); err != nil {
		return errors.Wrap(err, "truncate history")
	}
	h.height = height
	return nil
}

// Sync flushes the file.
func (h *File) Sync() error {
	return h.f.Sync()
}

// Close closes the file.
func (h *File) Close() error {
	return h.f.Close()
}

type memBacking struct {
	b []byte
}

func (m *memBacking) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.b)) {
		return 0, io.EOF
	}
	n := copy(p, m.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memBacking) WriteAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > int64(len(m.b)) {
		m.b = append(m.b, make([]byte, end-int64(len(m.b)))...)
	}
	return copy(m.b[off:], p), nil
}

func (m *memBacking) Truncate(size int64) error {
	m.b = m.b[:size]
	return nil
}

func (m *memBacking) Sync() error  { return nil }
func (m *memBacking) Close() error { return nil }

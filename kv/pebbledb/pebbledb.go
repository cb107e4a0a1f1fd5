// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package pebbledb implements kv.Store over pebble.
package pebbledb

import (
	"bytes"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/kv"
	"github.com/sile/Khora-sub000/log"
)

var logger = log.WithContext("pkg", "pebbledb")

var _ kv.Store = (*DB)(nil)

type pebbleLogger struct{}

func (pebbleLogger) Infof(string, ...any) {}
func (pebbleLogger) Errorf(format string, args ...any) {
	logger.Error("pebble", "msg", errors.Errorf(format, args...).Error())
}
func (pebbleLogger) Fatalf(format string, args ...any) {
	logger.Crit("pebble", "msg", errors.Errorf(format, args...).Error())
}

func defaultOptions() *pebble.Options {
	return &pebble.Options{
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          256,
		MemTableSize:          8 << 20,
		Logger:                pebbleLogger{},
	}
}

// DB wraps a pebble database.
type DB struct {
	db *pebble.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := pebble.Open(path, defaultOptions())
	if err != nil {
		return nil, errors.Wrap(err, "open pebble")
	}
	return &DB{db}, nil
}

// NewMem creates an in-memory database.
func NewMem() (*DB, error) {
	opts := defaultOptions()
	opts.FS = vfs.NewMem()
	db, err := pebble.Open("", opts)
	if err != nil {
		return nil, errors.Wrap(err, "open pebble")
	}
	return &DB{db}, nil
}

// IsNotFound reports whether err comes from a missing key.
func (p *DB) IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// Get returns a copy of the value stored for key.
func (p *DB) Get(key []byte) ([]byte, error) {
	val, closer, err := p.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(val), nil
}

func (p *DB) Has(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if err != nil {
		if p.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

func (p *DB) Put(key, val []byte) error {
	return p.db.Set(key, val, pebble.Sync)
}

func (p *DB) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

// NewBatch returns an atomic batch committed with fsync.
func (p *DB) NewBatch() kv.Batch {
	return &batch{p.db.NewBatch()}
}

// Iterate iterates keys of the range in order.
func (p *DB) Iterate(r kv.Range) kv.Iterator {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: r.Start,
		UpperBound: r.Limit,
	})
	return &iterator{it: it, err: err}
}

func (p *DB) Close() error {
	return p.db.Close()
}

type batch struct {
	b *pebble.Batch
}

func (b *batch) Put(key, val []byte) error { return b.b.Set(key, val, nil) }
func (b *batch) Delete(key []byte) error   { return b.b.Delete(key, nil) }
func (b *batch) Len() int                  { return int(b.b.Count()) }
func (b *batch) Write() error              { return b.b.Commit(pebble.Sync) }

type iterator struct {
	it      *pebble.Iterator
	err     error
	started bool
}

func (i *iterator) Next() bool {
	if i.err != nil || i.it == nil {
		return false
	}
	if !i.started {
		i.started = true
		return i.it.First()
	}
	return i.it.Next()
}

func (i *iterator) Key() []byte   { return bytes.Clone(i.it.Key()) }
func (i *iterator) Value() []byte { return bytes.Clone(i.it.Value()) }

func (i *iterator) Release() {
	if i.it != nil {
		i.it.Close()
	}
}

func (i *iterator) Error() error {
	if i.err != nil {
		return i.err
	}
	if i.it != nil {
		return i.it.Error()
	}
	return nil
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package chain persists finalised blocks by height.
package chain

import (
	"encoding/binary"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/cache"
	"github.com/sile/Khora-sub000/kv"
	"github.com/sile/Khora-sub000/log"
	"github.com/sile/Khora-sub000/tx"
)

var logger = log.WithContext("pkg", "chain")

const (
	fullPrefix  = "b"
	lightPrefix = "l"
)

var heightKey = []byte("height")

func fullKey(n uint64) []byte  { return []byte(fullPrefix + strconv.FormatUint(n, 10)) }
func lightKey(n uint64) []byte { return []byte(lightPrefix + strconv.FormatUint(n, 10)) }

// Repository stores full blocks as b{n} and light blocks as l{n}, snappy compressed.
//
// It's thread-safe.
type Repository struct {
	store  kv.Store
	reader tx.StakeReader
	height atomic.Uint64
	mu     sync.Mutex // serialises writers

	caches struct {
		blocks *cache.LRU[uint64, *block.Block]
		lights *cache.LRU[uint64, *block.LightBlock]
	}
}

// NewRepository opens a repository over store. reader splits stake outputs when deriving
// light blocks.
func NewRepository(store kv.Store, reader tx.StakeReader) (*Repository, error) {
	r := &Repository{store: store, reader: reader}
	var err error
	if r.caches.blocks, err = cache.NewLRU[uint64, *block.Block](256); err != nil {
		return nil, err
	}
	if r.caches.lights, err = cache.NewLRU[uint64, *block.LightBlock](1024); err != nil {
		return nil, err
	}

	val, err := store.Get(heightKey)
	switch {
	case err == nil:
		if len(val) != 8 {
			return nil, errors.New("corrupted height record")
		}
		r.height.Store(binary.BigEndian.Uint64(val))
	case !store.IsNotFound(err):
		return nil, errors.Wrap(err, "read height")
	}
	return r, nil
}

// IsNotFound returns whether an error indicates a missing block.
func (r *Repository) IsNotFound(err error) bool {
	return r.store.IsNotFound(errors.Cause(err))
}

// Height returns the highest stored block, 0 when empty.
func (r *Repository) Height() uint64 {
	return r.height.Load()
}

func encode(val any) ([]byte, error) {
	data, err := rlp.EncodeToBytes(val)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func decode(data []byte, val any) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return errors.Wrap(err, "snappy")
	}
	return rlp.DecodeBytes(raw, val)
}

func (r *Repository) put(n uint64, puts map[string][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := r.store.NewBatch()
	for k, v := range puts {
		if err := batch.Put([]byte(k), v); err != nil {
			return err
		}
	}
	if n > r.height.Load() {
		if err := batch.Put(heightKey, binary.BigEndian.AppendUint64(nil, n)); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "write blocks")
	}
	if n > r.height.Load() {
		r.height.Store(n)
	}
	return nil
}

// PutBlock stores a full block together with its light form.
func (r *Repository) PutBlock(b *block.Block) error {
	n := b.Header().Number()
	light := b.ToLight(r.reader)
	full, err := encode(b)
	if err != nil {
		return err
	}
	lightData, err := encode(light)
	if err != nil {
		return err
	}
	if err := r.put(n, map[string][]byte{
		string(fullKey(n)):  full,
		string(lightKey(n)): lightData,
	}); err != nil {
		return err
	}
	r.caches.blocks.Add(n, b)
	r.caches.lights.Add(n, light)
	metricBlockRepositoryCounter().AddWithLabel(1, map[string]string{"type": "write", "target": "full"})
	return nil
}

// PutLight stores a light block received without its transactions.
func (r *Repository) PutLight(lb *block.LightBlock) error {
	n := lb.Header().Number()
	data, err := encode(lb)
	if err != nil {
		return err
	}
	if err := r.put(n, map[string][]byte{string(lightKey(n)): data}); err != nil {
		return err
	}
	r.caches.lights.Add(n, lb)
	metricBlockRepositoryCounter().AddWithLabel(1, map[string]string{"type": "write", "target": "light"})
	return nil
}

// GetBlock returns the full block at height n.
func (r *Repository) GetBlock(n uint64) (*block.Block, error) {
	defer r.logStats()
	return r.caches.blocks.GetOrLoad(n, func(n uint64) (*block.Block, error) {
		data, err := r.store.Get(fullKey(n))
		if err != nil {
			return nil, err
		}
		var b block.Block
		if err := decode(data, &b); err != nil {
			return nil, errors.Wrapf(err, "decode block %d", n)
		}
		metricBlockRepositoryCounter().AddWithLabel(1, map[string]string{"type": "read", "target": "full"})
		return &b, nil
	})
}

// GetLight returns the light block at height n.
func (r *Repository) GetLight(n uint64) (*block.LightBlock, error) {
	defer r.logStats()
	return r.caches.lights.GetOrLoad(n, func(n uint64) (*block.LightBlock, error) {
		data, err := r.store.Get(lightKey(n))
		if err != nil {
			return nil, err
		}
		var lb block.LightBlock
		if err := decode(data, &lb); err != nil {
			return nil, errors.Wrapf(err, "decode light block %d", n)
		}
		metricBlockRepositoryCounter().AddWithLabel(1, map[string]string{"type": "read", "target": "light"})
		return &lb, nil
	})
}

// HasBlock reports whether the full block at height n is stored.
func (r *Repository) HasBlock(n uint64) (bool, error) {
	if r.caches.blocks.Contains(n) {
		return true, nil
	}
	return r.store.Has(fullKey(n))
}

// Reset deletes every stored block.
func (r *Repository) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := r.store.NewBatch()
	for n := r.height.Load(); n > 0; n-- {
		if err := batch.Delete(fullKey(n)); err != nil {
			return err
		}
		if err := batch.Delete(lightKey(n)); err != nil {
			return err
		}
	}
	if err := batch.Delete(heightKey); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "reset blocks")
	}
	r.height.Store(0)
	r.caches.blocks.Purge()
	r.caches.lights.Purge()
	return nil
}

func (r *Repository) logStats() {
	if hit, miss, moved := r.caches.blocks.Stats().Sample(); moved {
		metricCacheHitMiss().SetWithLabel(hit, map[string]string{"type": "blocks", "event": "hit"})
		metricCacheHitMiss().SetWithLabel(miss, map[string]string{"type": "blocks", "event": "miss"})
		logger.Debug("block cache stats", "hit", hit, "miss", miss)
	}
	if hit, miss, moved := r.caches.lights.Stats().Sample(); moved {
		metricCacheHitMiss().SetWithLabel(hit, map[string]string{"type": "lights", "event": "hit"})
		metricCacheHitMiss().SetWithLabel(miss, map[string]string{"type": "lights", "event": "miss"})
	}
}

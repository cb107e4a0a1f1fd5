// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package txpool keeps transactions waiting to be batched by a leader.
package txpool

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/log"
	"github.com/sile/Khora-sub000/tx"
)

var logger = log.WithContext("pkg", "txpool")

// Options options for tx pool.
type Options struct {
	Limit       int
	MaxTxSize   uint64
	MaxLifetime time.Duration
}

type txObject struct {
	tx      *tx.Transaction
	addedAt mclock.AbsTime
	seq     uint64
}

// TxPool maintains unbatched transactions in arrival order. It is safe for concurrent use.
type TxPool struct {
	options Options
	clock   mclock.Clock

	lock  sync.Mutex
	byID  map[khora.Bytes32]*txObject
	byTag map[khora.Bytes32]khora.Bytes32 // tag -> tx id
	seq   uint64
}

// New create a new TxPool instance.
func New(options Options, clock mclock.Clock) *TxPool {
	if clock == nil {
		clock = mclock.System{}
	}
	return &TxPool{
		options: options,
		clock:   clock,
		byID:    make(map[khora.Bytes32]*txObject),
		byTag:   make(map[khora.Bytes32]khora.Bytes32),
	}
}

func reject(err error, reason string) error {
	metricTxPoolReject().AddWithLabel(1, map[string]string{"reason": reason})
	return err
}

// Add adds a tx. Among txs spending the same tag or stake entry the first one wins.
func (p *TxPool) Add(newTx *tx.Transaction, spent tx.SpentChecker) error {
	if p.options.MaxTxSize > 0 && newTx.Size() > p.options.MaxTxSize {
		return reject(errTooLarge, "too-large")
	}
	keys := conflictKeys(newTx)
	if spent != nil {
		for _, tag := range newTx.Tags() {
			if spent.Contains(tag) {
				return reject(errSpent, "spent")
			}
		}
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	id := newTx.ID()
	if _, ok := p.byID[id]; ok {
		return errKnownTx
	}
	for _, k := range keys {
		if _, ok := p.byTag[k]; ok {
			return reject(errTagConflict, "conflict")
		}
	}
	if p.options.Limit > 0 && len(p.byID) >= p.options.Limit {
		return reject(errPoolFull, "full")
	}

	p.seq++
	p.byID[id] = &txObject{tx: newTx, addedAt: p.clock.Now(), seq: p.seq}
	for _, k := range keys {
		p.byTag[k] = id
	}
	metricTxPoolGauge().Set(int64(len(p.byID)))
	return nil
}

// conflictKeys are the keys two pooled txs may not share: tags, and the spent stake index.
func conflictKeys(t *tx.Transaction) []khora.Bytes32 {
	keys := t.Tags()
	if t.IsStake() {
		keys = append(keys, khora.Blake2b([]byte("stake"), khora.Uint64Bytes(t.StakeIndex())))
	}
	return keys
}

func (p *TxPool) remove(id khora.Bytes32) {
	obj, ok := p.byID[id]
	if !ok {
		return
	}
	delete(p.byID, id)
	for _, k := range conflictKeys(obj.tx) {
		if p.byTag[k] == id {
			delete(p.byTag, k)
		}
	}
}

// Get returns a pooled tx.
func (p *TxPool) Get(id khora.Bytes32) *tx.Transaction {
	p.lock.Lock()
	defer p.lock.Unlock()
	if obj, ok := p.byID[id]; ok {
		return obj.tx
	}
	return nil
}

// Len returns the count of pooled txs.
func (p *TxPool) Len() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.byID)
}

// Dump returns all pooled txs in arrival order.
func (p *TxPool) Dump() tx.Transactions {
	return p.Executables(0)
}

// Executables returns up to limit txs in arrival order, all when limit is 0.
func (p *TxPool) Executables(limit int) tx.Transactions {
	p.lock.Lock()
	objs := make([]*txObject, 0, len(p.byID))
	for _, obj := range p.byID {
		objs = append(objs, obj)
	}
	p.lock.Unlock()

	slices.SortFunc(objs, func(a, b *txObject) int { return cmp.Compare(a.seq, b.seq) })
	if limit > 0 && len(objs) > limit {
		objs = objs[:limit]
	}
	txs := make(tx.Transactions, len(objs))
	for i, obj := range objs {
		txs[i] = obj.tx
	}
	return txs
}

// Remove drops txs by id.
func (p *TxPool) Remove(ids ...khora.Bytes32) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, id := range ids {
		p.remove(id)
	}
	metricTxPoolGauge().Set(int64(len(p.byID)))
}

// Wash drops txs spending any of the given tags, and txs older than the max lifetime.
// Stake spends are dropped when entries were removed, since their indices shifted.
// It returns the count of removed txs.
func (p *TxPool) Wash(tags []khora.Bytes32, stakeRemoved bool) int {
	p.lock.Lock()
	defer p.lock.Unlock()

	before := len(p.byID)
	for _, tag := range tags {
		if id, ok := p.byTag[tag]; ok {
			p.remove(id)
		}
	}
	if stakeRemoved {
		for id, obj := range p.byID {
			if obj.tx.IsStake() {
				p.remove(id)
			}
		}
	}
	if p.options.MaxLifetime > 0 {
		now := p.clock.Now()
		for id, obj := range p.byID {
			if time.Duration(now-obj.addedAt) > p.options.MaxLifetime {
				p.remove(id)
			}
		}
	}
	removed := before - len(p.byID)
	if removed > 0 {
		logger.Debug("washed txs", "removed", removed, "remaining", len(p.byID))
	}
	metricTxPoolGauge().Set(int64(len(p.byID)))
	return removed
}

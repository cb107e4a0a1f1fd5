// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/stake"
)

// forkWindow is how many heights of validator signatures are remembered.
const forkWindow = 16

// forkTracker remembers validator signatures by height and signer key, and turns two
// signatures over different bodies into forker evidence.
type forkTracker struct {
	seen    map[uint64]map[cry.PublicKey]block.ForkSig
	pending map[cry.PublicKey]*block.Forker
}

func newForkTracker() *forkTracker {
	return &forkTracker{
		seen:    make(map[uint64]map[cry.PublicKey]block.ForkSig),
		pending: make(map[cry.PublicKey]*block.Forker),
	}
}

// observe records a verified signature of pk over body at bnum. It returns true when
// the signature conflicts with one seen before.
func (f *forkTracker) observe(bnum uint64, pk cry.PublicKey, sig block.ForkSig) bool {
	byKey, ok := f.seen[bnum]
	if !ok {
		byKey = make(map[cry.PublicKey]block.ForkSig)
		f.seen[bnum] = byKey
	}
	prev, ok := byKey[pk]
	if !ok {
		byKey[pk] = sig
		return false
	}
	forker, conflict := block.NewForker(bnum, 0, prev, sig)
	if !conflict {
		return false
	}
	if _, dup := f.pending[pk]; !dup {
		f.pending[pk] = forker
		metricForkerEvidenceCount().Add(1)
		logger.Warn("forker detected", "number", bnum, "pk", pk.AbbrevString())
	}
	return true
}

// observeBlock records every validator signature of a transactional block.
func (f *forkTracker) observeBlock(lb *block.LightBlock, stakes stake.Set) {
	h := lb.Header()
	if h.IsEmpty() {
		return
	}
	body := block.ValidatorBody(stakes[h.Leader().Index].PK, h.Shards(), lb.Delta().Digest(), h.LastName())
	for _, v := range h.Validators() {
		if v.Index < uint64(len(stakes)) {
			f.observe(h.Number(), stakes[v.Index].PK, block.ForkSig{Body: body, Sig: v.Sig})
		}
	}
}

// prune forgets heights at or below bnum-forkWindow.
func (f *forkTracker) prune(bnum uint64) {
	for n := range f.seen {
		if n+forkWindow <= bnum {
			delete(f.seen, n)
		}
	}
}

// resolve drops pending evidence against a key that is no longer staked.
func (f *forkTracker) resolve(pk cry.PublicKey) {
	delete(f.pending, pk)
}

// evidence returns one pending forker, re-indexed against the current stake set, to
// embed in a block at bnum.
func (f *forkTracker) evidence(stakes stake.Set, bnum uint64) *block.Forker {
	for pk, forker := range f.pending {
		idx := stakes.IndexesOf(pk)
		if len(idx) == 0 {
			delete(f.pending, pk)
			continue
		}
		if forker.Number >= bnum {
			continue
		}
		ev := *forker
		ev.Signer = idx[0]
		return &ev
	}
	return nil
}

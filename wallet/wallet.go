// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package wallet tracks the outputs and stake entries owned by a node.
package wallet

import (
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/log"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/state"
	"github.com/sile/Khora-sub000/tx"
)

var logger = log.WithContext("pkg", "wallet")

// Keys are the secrets of a node: the account key receives outputs, the stake key
// signs as a validator.
type Keys struct {
	Account *cry.PrivateKey
	Stake   *cry.PrivateKey
}

// KeysFromPassword derives both keys from a password.
func KeysFromPassword(password string) *Keys {
	return &Keys{
		Account: cry.KeyFromSeed([]byte("khora-account"), []byte(password)),
		Stake:   cry.KeyFromSeed([]byte("khora-stake"), []byte(password)),
	}
}

// Wallet is safe for concurrent use; the node writes, the API reads.
type Wallet struct {
	keys *Keys

	mu      sync.RWMutex
	owned   map[khora.Bytes32]*tx.Owned // by tag
	pending map[khora.Bytes32]bool      // tags of own txs not yet finalised
}

// New creates an empty wallet.
func New(keys *Keys) *Wallet {
	return &Wallet{
		keys:    keys,
		owned:   make(map[khora.Bytes32]*tx.Owned),
		pending: make(map[khora.Bytes32]bool),
	}
}

// Keys returns the wallet keys.
func (w *Wallet) Keys() *Keys { return w.keys }

// Report describes what a block meant for the wallet.
type Report struct {
	Received    []*tx.Owned
	Spent       []khora.Bytes32
	FaerieGold  []khora.Bytes32 // owned tags spent without our knowledge
	StakeChange int64
	NewStakes   int
}

// Touched reports whether the block affected the wallet.
func (r *Report) Touched() bool {
	return len(r.Received) > 0 || len(r.Spent) > 0 || len(r.FaerieGold) > 0 || r.StakeChange != 0 || r.NewStakes > 0
}

// Scan updates the wallet with an applied block. before is the stake set the block
// was applied to, historyStart the history height before its outputs were appended.
func (w *Wallet) Scan(lb *block.LightBlock, o *state.Outcome, before stake.Set, historyStart uint64, oracle tx.Oracle) *Report {
	w.mu.Lock()
	defer w.mu.Unlock()

	r := &Report{}
	delta := lb.Delta()

	for _, tag := range delta.Tags {
		if _, ok := w.owned[tag]; !ok {
			continue
		}
		delete(w.owned, tag)
		if w.pending[tag] {
			delete(w.pending, tag)
			r.Spent = append(r.Spent, tag)
			continue
		}
		r.FaerieGold = append(r.FaerieGold, tag)
		logger.Warn("owned output spent elsewhere", "kind", consensus.SelfInconsistency, "tag", tag.AbbrevString(), "number", lb.Header().Number())
	}

	w.receive(r, delta.TxOut, historyStart, oracle)

	stakePK := w.keys.Stake.Public()
	if o != nil {
		for _, idx := range before.IndexesOf(stakePK) {
			r.StakeChange += o.Rewards[idx]
		}
	}
	for _, e := range delta.StakeIn {
		if e.PK == stakePK {
			r.NewStakes++
		}
	}
	return r
}

func (w *Wallet) receive(r *Report, outs []tx.Output, historyStart uint64, oracle tx.Oracle) {
	for i := range outs {
		owned, err := oracle.Receive(&outs[i], w.keys.Account)
		if err != nil {
			continue
		}
		owned.Index = historyStart + uint64(i)
		if _, dup := w.owned[owned.Tag]; dup {
			// a second output with the same key can never be spent
			r.FaerieGold = append(r.FaerieGold, owned.Tag)
			logger.Warn("duplicate output key", "kind", consensus.SelfInconsistency, "tag", owned.Tag.AbbrevString())
			continue
		}
		w.owned[owned.Tag] = owned
		r.Received = append(r.Received, owned)
	}
}

// Receive scans outputs appended to history at historyStart outside of a block,
// such as the genesis allocation.
func (w *Wallet) Receive(outs []tx.Output, historyStart uint64, oracle tx.Oracle) *Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := &Report{}
	w.receive(r, outs, historyStart, oracle)
	return r
}

// MarkPending records the tags of a tx we broadcast.
func (w *Wallet) MarkPending(t *tx.Transaction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, tag := range t.Tags() {
		w.pending[tag] = true
	}
}

// ClearPending forgets every pending tx, making its outputs spendable again.
func (w *Wallet) ClearPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.pending)
}

// Owned returns the owned outputs ordered by history index.
func (w *Wallet) Owned() []*tx.Owned {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := slices.Collect(maps.Values(w.owned))
	slices.SortFunc(out, func(a, b *tx.Owned) int {
		switch {
		case a.Index < b.Index:
			return -1
		case a.Index > b.Index:
			return 1
		}
		return 0
	})
	return out
}

// Balance sums owned outputs not spent by a pending tx.
func (w *Wallet) Balance() uint64 {
	var sum uint64
	for _, o := range w.Owned() {
		if !w.isPending(o.Tag) {
			sum += o.Amount
		}
	}
	return sum
}

func (w *Wallet) isPending(tag khora.Bytes32) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pending[tag]
}

var errInsufficient = errors.New("insufficient balance")

// Select picks spendable outputs, oldest first, covering amount.
func (w *Wallet) Select(amount uint64) ([]*tx.Owned, error) {
	var (
		picked []*tx.Owned
		sum    uint64
	)
	for _, o := range w.Owned() {
		if sum >= amount && len(picked) > 0 {
			break
		}
		if w.isPending(o.Tag) {
			continue
		}
		picked = append(picked, o)
		sum += o.Amount
	}
	if sum < amount || len(picked) == 0 {
		return nil, errInsufficient
	}
	return picked, nil
}

// StakeIndices returns the entries of the stake set owned by the stake key.
func (w *Wallet) StakeIndices(stakes stake.Set) []uint64 {
	return stakes.IndexesOf(w.keys.Stake.Public())
}

// StakeBalance sums the owned stake entries.
func (w *Wallet) StakeBalance(stakes stake.Set) uint64 {
	var sum uint64
	for _, i := range w.StakeIndices(stakes) {
		sum += stakes[i].Amount
	}
	return sum
}

// Reset drops every output, used when resetting to genesis.
func (w *Wallet) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.owned)
	clear(w.pending)
}

type walletRLP struct {
	Owned   []*tx.Owned
	Pending []khora.Bytes32
}

// EncodeRLP implements rlp.Encoder. Keys are not encoded.
func (w *Wallet) EncodeRLP(wr io.Writer) error {
	owned := w.Owned()
	w.mu.RLock()
	pending := slices.Collect(maps.Keys(w.pending))
	w.mu.RUnlock()
	slices.SortFunc(pending, func(a, b khora.Bytes32) int { return slices.Compare(a[:], b[:]) })
	return rlp.Encode(wr, &walletRLP{Owned: owned, Pending: pending})
}

// Restore decodes a wallet encoded with EncodeRLP.
func Restore(keys *Keys, data []byte) (*Wallet, error) {
	var dec walletRLP
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, errors.Wrap(err, "decode wallet")
	}
	w := New(keys)
	for _, o := range dec.Owned {
		w.owned[o.Tag] = o
	}
	for _, tag := range dec.Pending {
		w.pending[tag] = true
	}
	return w, nil
}

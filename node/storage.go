// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	"github.com/google/renameio/v2"
	"github.com/pkg/errors"

	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/bloom"
	"github.com/sile/Khora-sub000/chain"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/history"
	"github.com/sile/Khora-sub000/kv"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/state"
	"github.com/sile/Khora-sub000/txpool"
	"github.com/sile/Khora-sub000/wallet"
)

// Files under the data directory.
const (
	checkpointFile = "myNode"
	historyFile    = "history"
	bloomFile      = "bloom"
	stakeFile      = "stkstate"
	blocksDir      = "blocks"
)

// checkpoint is everything needed to resume without replaying the chain.
type checkpoint struct {
	Account   []byte
	Stake     []byte
	Wallet    []byte
	State     *state.State
	LastBlock []byte
	BloomKeys bloom.Keys
	Peers     []string // outer overlay
	Inner     []string // inner overlay, rejoined directly
	Known     []knownValidator
}

// knownValidator binds an announced stake key to its peer.
type knownValidator struct {
	PK   cry.PublicKey
	Peer string
}

func (n *Node) path(name string) string { return filepath.Join(n.dataDir, name) }

// open sets up storage, restoring from the checkpoint when there is one.
func (n *Node) open() error {
	if n.dataDir == "" {
		if n.bloomBits == 0 {
			n.bloomBits = memBloomBits
		}
		n.hist = history.NewMem()
		if n.store == nil {
			n.store = kv.NewMem()
		}
		if err := n.openRepo(); err != nil {
			return err
		}
		return n.fresh()
	}

	if n.bloomBits == 0 {
		n.bloomBits = bloom.DefaultBits
	}
	if err := os.MkdirAll(n.dataDir, 0o700); err != nil {
		return errors.Wrap(err, "create data dir")
	}
	if n.store == nil {
		store, err := kv.NewDirStore(n.path(blocksDir))
		if err != nil {
			return err
		}
		n.store = store
	}
	hist, err := history.Open(n.path(historyFile))
	if err != nil {
		return err
	}
	n.hist = hist
	if err := n.openRepo(); err != nil {
		return err
	}

	cp, err := loadCheckpoint(n.path(checkpointFile))
	switch {
	case err == nil:
		return n.restore(cp)
	case os.IsNotExist(errors.Cause(err)):
		logger.Info("no checkpoint, starting from genesis", "dir", n.dataDir)
		return n.fresh()
	default:
		return err
	}
}

func (n *Node) openRepo() error {
	repo, err := chain.NewRepository(n.store, n.oracle)
	if err != nil {
		return err
	}
	n.repo = repo
	return nil
}

func loadCheckpoint(path string) (*checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(err, "snappy")
	}
	var cp checkpoint
	if err := rlp.DecodeBytes(raw, &cp); err != nil {
		return nil, errors.Wrap(err, "decode checkpoint")
	}
	return &cp, nil
}

func (n *Node) restore(cp *checkpoint) error {
	if !bytes.Equal(cp.Account, n.keys.Account.Bytes()) || !bytes.Equal(cp.Stake, n.keys.Stake.Bytes()) {
		return errors.New("node: checkpoint was written with other keys")
	}
	w, err := wallet.Restore(n.keys, cp.Wallet)
	if err != nil {
		return err
	}
	f, err := bloom.Open(n.path(bloomFile), n.bloomBits, cp.BloomKeys)
	if err != nil {
		return err
	}
	n.bloom = f
	if h := n.hist.Height(); h < cp.State.HistoryHeight {
		return errors.Errorf("node: history has %d records, checkpoint needs %d", h, cp.State.HistoryHeight)
	}
	if err := n.hist.Truncate(cp.State.HistoryHeight); err != nil {
		return err
	}
	if len(cp.LastBlock) > 0 {
		var lb block.LightBlock
		if err := rlp.DecodeBytes(cp.LastBlock, &lb); err != nil {
			return errors.Wrap(err, "decode last block")
		}
		n.lastBlock = &lb
	}
	n.st = cp.State
	n.wallet = w
	for _, p := range cp.Peers {
		n.contacts = append(n.contacts, comm.PeerID(p))
	}
	for _, p := range cp.Inner {
		n.inner = append(n.inner, comm.PeerID(p))
	}
	for _, v := range cp.Known {
		n.validators[v.PK] = comm.PeerID(v.Peer)
	}
	logger.Info("checkpoint restored",
		"height", n.st.Height,
		"history", n.st.HistoryHeight,
		"balance", w.Balance(),
		"peers", len(cp.Peers),
		"inner", len(cp.Inner),
		"validators", len(cp.Known),
	)
	return nil
}

// fresh resets every store to the genesis state.
func (n *Node) fresh() error {
	if err := n.resetBloom(); err != nil {
		return err
	}
	if err := n.hist.Truncate(0); err != nil {
		return err
	}
	if err := n.hist.Append(n.gen.Records()...); err != nil {
		return err
	}
	if err := n.repo.Reset(); err != nil {
		return err
	}
	n.st = n.gen.State()
	n.prev = nil
	n.lastBlock = nil
	n.wallet = wallet.New(n.keys)
	n.wallet.Receive(n.gen.Outputs(), 0, n.oracle)
	return n.checkpoint()
}

func (n *Node) resetBloom() error {
	if n.bloom != nil {
		if err := n.bloom.Close(); err != nil {
			return err
		}
		n.bloom = nil
	}
	if n.dataDir == "" {
		keys, err := bloom.NewKeys()
		if err != nil {
			return err
		}
		n.bloom = bloom.NewMem(n.bloomBits, keys)
		return nil
	}
	if err := os.Remove(n.path(bloomFile)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove bloom file")
	}
	f, err := bloom.Create(n.path(bloomFile), n.bloomBits)
	if err != nil {
		return err
	}
	n.bloom = f
	return nil
}

// checkpoint writes the resumable node state. It is a no-op without a data dir.
func (n *Node) checkpoint() error {
	if n.dataDir == "" {
		return nil
	}
	if err := n.hist.Sync(); err != nil {
		return err
	}
	walletData, err := rlp.EncodeToBytes(n.wallet)
	if err != nil {
		return err
	}
	var last []byte
	if n.lastBlock != nil {
		if last, err = rlp.EncodeToBytes(n.lastBlock); err != nil {
			return err
		}
	}
	cp := &checkpoint{
		Account:   n.keys.Account.Bytes(),
		Stake:     n.keys.Stake.Bytes(),
		Wallet:    walletData,
		State:     n.st,
		LastBlock: last,
		BloomKeys: n.bloom.Keys(),
		Peers:     peerStrings(n.bus.Peers(comm.Outer)),
		Inner:     peerStrings(n.bus.Peers(comm.Inner)),
	}
	for pk, p := range n.validators {
		cp.Known = append(cp.Known, knownValidator{PK: pk, Peer: string(p)})
	}
	slices.SortFunc(cp.Known, func(a, b knownValidator) int { return bytes.Compare(a.PK[:], b.PK[:]) })
	data, err := rlp.EncodeToBytes(cp)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(n.path(checkpointFile), snappy.Encode(nil, data), 0o600); err != nil {
		return errors.Wrap(err, "write checkpoint")
	}
	if err := stake.Save(n.path(stakeFile), n.st.Stakes); err != nil {
		return err
	}
	logger.Debug("checkpoint written", "height", n.st.Height)
	return nil
}

func peerStrings(peers []comm.PeerID) []string {
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = string(p)
	}
	return out
}

// resetToGenesis drops the chain, the wallet and the pool and starts over.
func (n *Node) resetToGenesis() error {
	if err := n.fresh(); err != nil {
		return err
	}
	n.pool = txpool.New(n.poolOpts, n.clock)
	n.forks = newForkTracker()
	clear(n.future)
	clear(n.futureFull)
	clear(n.acks)
	now := n.clock.Now()
	n.lastProgress = now
	for i := range n.lastMerged {
		n.lastMerged[i] = now
	}
	n.resetHeight()
	n.updateRole()
	metricChainHeight().Set(0)
	logger.Warn("reset to genesis", "name", n.gen.Name().AbbrevString())
	return nil
}

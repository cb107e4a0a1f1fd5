// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/seal"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/state"
	"github.com/sile/Khora-sub000/tx"
)

// Info is a snapshot of the node for operators.
type Info struct {
	Height        uint64        `json:"height"`
	LastName      khora.Bytes32 `json:"lastName"`
	HistoryHeight uint64        `json:"historyHeight"`
	Role          string        `json:"role"`
	Shard         uint64        `json:"shard"`
	Account       cry.PublicKey `json:"account"`
	StakeKey      cry.PublicKey `json:"stakeKey"`
	Balance       uint64        `json:"balance"`
	StakeBalance  uint64        `json:"stakeBalance"`
	StakeEntries  []uint64      `json:"stakeEntries"`
	Stakes        int           `json:"stakes"`
	Shards        int           `json:"shards"`
	Pooled        int           `json:"pooled"`
	Peers         int           `json:"peers"`
	Validators    int           `json:"validators"`
	Overthrown    []uint64      `json:"overthrown"`
}

// Info returns a snapshot of the node.
func (n *Node) Info() *Info {
	n.mu.Lock()
	defer n.mu.Unlock()

	role, shard := n.st.Role(n.stakePK(), n.params)
	return &Info{
		Height:        n.st.Height,
		LastName:      n.st.LastName,
		HistoryHeight: n.st.HistoryHeight,
		Role:          role.String(),
		Shard:         shard,
		Account:       n.keys.Account.Public(),
		StakeKey:      n.stakePK(),
		Balance:       n.wallet.Balance(),
		StakeBalance:  n.wallet.StakeBalance(n.st.Stakes),
		StakeEntries:  n.wallet.StakeIndices(n.st.Stakes),
		Stakes:        len(n.st.Stakes),
		Shards:        len(n.st.Shards),
		Pooled:        n.pool.Len(),
		Peers:         len(n.bus.Peers(comm.Outer)),
		Validators:    len(n.validators),
		Overthrown:    slices.Clone(n.st.Overthrown),
	}
}

// SubmitTx checks a tx, pools it and gossips it.
func (n *Node) SubmitTx(t *tx.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.submit(t)
}

func (n *Node) submit(t *tx.Transaction) error {
	if err := n.admit(t); err != nil {
		return err
	}
	n.bus.Broadcast(comm.Outer, comm.MustMessage(comm.TagTx, t))
	n.wallet.MarkPending(t)
	n.wake.Notify()
	logger.Debug("tx submitted", "id", t.ID().AbbrevString(), "fee", t.Fee())
	return nil
}

func (n *Node) builder() *seal.Builder {
	return &seal.Builder{Account: n.keys.Account, StakeKey: n.keys.Stake, RingSize: n.ringSize}
}

// Send pays amount to an account.
func (n *Node) Send(to cry.PublicKey, amount, fee uint64) (*tx.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	inputs, err := n.wallet.Select(amount + fee)
	if err != nil {
		return nil, err
	}
	t, err := n.builder().Send(inputs, to, amount, fee, n.hist)
	if err != nil {
		return nil, err
	}
	return t, n.submit(t)
}

// Stake deposits amount under the node's stake key.
func (n *Node) Stake(amount, fee uint64) (*tx.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	inputs, err := n.wallet.Select(amount + fee)
	if err != nil {
		return nil, err
	}
	t, err := n.builder().Stake(inputs, amount, fee, n.hist)
	if err != nil {
		return nil, err
	}
	return t, n.submit(t)
}

// Unstake withdraws the stake entry at index to the node's account.
func (n *Node) Unstake(index, fee uint64) (*tx.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if index >= uint64(len(n.st.Stakes)) {
		return nil, errors.Errorf("no stake entry %d", index)
	}
	t, err := n.builder().Unstake(index, n.st.Stakes[index], fee)
	if err != nil {
		return nil, err
	}
	return t, n.submit(t)
}

// Save writes a checkpoint.
func (n *Node) Save() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.checkpoint()
}

// RequestSync asks a peer for the blocks after the local tip.
func (n *Node) RequestSync(peer comm.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastSyncReq = 0
	n.requestSync(peer)
}

// ResetToGenesis drops the chain and the wallet and starts over from genesis.
func (n *Node) ResetToGenesis() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.resetToGenesis()
	n.wake.Notify()
	return err
}

// Height returns the height of the last applied block.
func (n *Node) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.st.Height
}

// State returns a copy of the consensus state.
func (n *Node) State() *state.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.st.Copy()
}

// Stakes returns a copy of the stake set.
func (n *Node) Stakes() stake.Set {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.st.Stakes.Copy()
}

// Committee returns the committee of shard, as stake indices.
func (n *Node) Committee(shard uint64) ([]uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if shard >= uint64(len(n.st.Shards)) {
		return nil, errors.Errorf("no shard %d", shard)
	}
	return slices.Clone(n.st.CommitteeOf(shard)), nil
}

// Block returns the stored full block at height num.
func (n *Node) Block(num uint64) (*block.Block, error) {
	return n.repo.GetBlock(num)
}

// Light returns the stored light block at height num.
func (n *Node) Light(num uint64) (*block.LightBlock, error) {
	return n.repo.GetLight(num)
}

// IsNotFound reports whether err is a missing block.
func (n *Node) IsNotFound(err error) bool {
	return n.repo.IsNotFound(err)
}

// Owned returns the wallet's spendable outputs.
func (n *Node) Owned() []*tx.Owned {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.wallet.Owned()
}

// Params returns the consensus parameters.
func (n *Node) Params() khora.Params {
	return *n.params
}

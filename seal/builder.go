// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package seal

import (
	"crypto/rand"
	mrand "math/rand/v2"
	"slices"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/tx"
)

// DefaultRingSize is the number of history members each spent output hides among.
const DefaultRingSize = 11

var (
	errNoInputs      = errors.New("no inputs")
	errInsufficient  = errors.New("insufficient funds")
	errStakeTooSmall = errors.New("stake smaller than fee")
)

func randomBytes32() (b khora.Bytes32) {
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return
}

// NewOutput creates an output paying amount to owner. A non-nil stakeKey turns it
// into a stake deposit for that validator key.
func NewOutput(owner cry.PublicKey, amount uint64, stakeKey *cry.PublicKey) (tx.Output, error) {
	o := opening{
		Owner:  owner,
		Amount: amount,
		Nonce:  randomBytes32(),
		Blind:  randomBytes32(),
	}
	if stakeKey != nil {
		o.Stake = stakeKey.Bytes()
	}
	return o.output()
}

// GenesisOutput creates an output whose nonce and blind derive from seed, so every
// node building the same genesis gets identical outputs.
func GenesisOutput(owner cry.PublicKey, amount uint64, seed khora.Bytes32) (tx.Output, error) {
	o := opening{
		Owner:  owner,
		Amount: amount,
		Nonce:  khora.Blake2b([]byte("nonce"), seed[:]),
		Blind:  khora.Blake2b([]byte("blind"), seed[:]),
	}
	return o.output()
}

// Builder creates sealed transactions for one wallet.
type Builder struct {
	Account  *cry.PrivateKey // owner of spendable outputs
	StakeKey *cry.PrivateKey // validator key, used for deposits and stake spends
	RingSize int
}

func (b *Builder) ringSize() int {
	if b.RingSize <= 0 {
		return DefaultRingSize
	}
	return b.RingSize
}

// ring picks decoys around real from [0, height). The result is sorted.
func ring(real, height uint64, size int) ([]uint64, uint64) {
	if uint64(size) > height {
		size = int(height)
	}
	members := map[uint64]bool{real: true}
	for len(members) < size {
		members[mrand.Uint64N(height)] = true
	}
	out := make([]uint64, 0, len(members))
	for m := range members {
		out = append(out, m)
	}
	slices.Sort(out)
	pos, _ := slices.BinarySearch(out, real)
	return out, uint64(pos)
}

func (b *Builder) spendRing(inputs []*tx.Owned, outputs []tx.Output, fee uint64, h tx.History) (*tx.Transaction, error) {
	if len(inputs) == 0 {
		return nil, errNoInputs
	}
	height := h.Height()
	in := ringInput{Seed: randomBytes32()}
	spends := make([]spend, 0, len(inputs))
	tags := make([]khora.Bytes32, 0, len(inputs))
	for _, owned := range inputs {
		if owned.Index >= height {
			return nil, errors.Errorf("input %d beyond history height %d", owned.Index, height)
		}
		var o opening
		if err := rlp.DecodeBytes(owned.Secret, &o); err != nil {
			return nil, errors.Wrap(err, "decode secret")
		}
		members, pos := ring(owned.Index, height, b.ringSize())
		in.Rings = append(in.Rings, members)
		spends = append(spends, spend{Position: pos, Opening: o})
		tags = append(tags, owned.Tag)
	}
	raw, err := rlp.EncodeToBytes(&in)
	if err != nil {
		return nil, err
	}

	unsigned := tx.New(raw, outputs, tags, fee)
	signing := unsigned.SigningHash()
	for i := range spends {
		spends[i].Sig = cry.Sign(signing, b.Account)
	}
	sealBytes, err := rlp.EncodeToBytes(&ringSeal{Spends: spends})
	if err != nil {
		return nil, err
	}
	return unsigned.WithSeal(sealBytes), nil
}

func (b *Builder) payWithChange(inputs []*tx.Owned, pay tx.Output, amount, fee uint64, h tx.History) (*tx.Transaction, error) {
	var total uint64
	for _, in := range inputs {
		total += in.Amount
	}
	if total < amount+fee || amount+fee < amount {
		return nil, errInsufficient
	}
	outputs := []tx.Output{pay}
	if change := total - amount - fee; change > 0 {
		out, err := NewOutput(b.Account.Public(), change, nil)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return b.spendRing(inputs, outputs, fee, h)
}

// Send pays amount to another account, returning change to the builder's account.
func (b *Builder) Send(inputs []*tx.Owned, to cry.PublicKey, amount, fee uint64, h tx.History) (*tx.Transaction, error) {
	pay, err := NewOutput(to, amount, nil)
	if err != nil {
		return nil, err
	}
	return b.payWithChange(inputs, pay, amount, fee, h)
}

// Stake deposits amount under the builder's validator key.
func (b *Builder) Stake(inputs []*tx.Owned, amount, fee uint64, h tx.History) (*tx.Transaction, error) {
	key := b.StakeKey.Public()
	pay, err := NewOutput(b.Account.Public(), amount, &key)
	if err != nil {
		return nil, err
	}
	return b.payWithChange(inputs, pay, amount, fee, h)
}

// Unstake spends the stake entry at index back to the builder's account.
func (b *Builder) Unstake(index uint64, entry stake.Entry, fee uint64) (*tx.Transaction, error) {
	if entry.Amount < fee {
		return nil, errStakeTooSmall
	}
	if entry.PK != b.StakeKey.Public() {
		return nil, errors.New("stake entry not owned by builder")
	}
	var outputs []tx.Output
	if rest := entry.Amount - fee; rest > 0 {
		out, err := NewOutput(b.Account.Public(), rest, nil)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	unsigned := tx.New(tx.StakeInput(index), outputs, nil, fee)
	sealBytes, err := rlp.EncodeToBytes(&stakeSeal{Sig: cry.Sign(unsigned.SigningHash(), b.StakeKey)})
	if err != nil {
		return nil, err
	}
	return unsigned.WithSeal(sealBytes), nil
}

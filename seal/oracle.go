// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package seal is a transparent transaction oracle for development networks.
// Outputs carry their opening in clear, so amounts and owners are public; the
// wire shapes (one-time keys, commitments, tags, ring inputs) match what the
// consensus engine expects from a private oracle.
package seal

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/tx"
)

var (
	errBadOutput     = errors.New("output does not match its opening")
	errBadRing       = errors.New("malformed ring input")
	errBadSeal       = errors.New("malformed seal")
	errBadSignature  = errors.New("invalid seal signature")
	errBadTag        = errors.New("tag does not match spent output")
	errNotConserved  = errors.New("inputs do not equal outputs plus fee")
	errStakeRange    = errors.New("stake index out of range")
	errStakeWithTags = errors.New("stake spend carries tags")
)

// opening reveals an output.
type opening struct {
	Owner  cry.PublicKey
	Amount uint64
	Nonce  khora.Bytes32
	Blind  khora.Bytes32
	Stake  []byte // stake key of a deposit, empty otherwise
}

func (o *opening) pk() khora.Bytes32 {
	return khora.Blake2b(o.Owner[:], o.Nonce[:])
}

func (o *opening) commitment() khora.Bytes32 {
	return khora.Blake2b(khora.Uint64Bytes(o.Amount), o.Blind[:])
}

func (o *opening) output() (tx.Output, error) {
	payload, err := rlp.EncodeToBytes(o)
	if err != nil {
		return tx.Output{}, err
	}
	return tx.Output{PK: o.pk(), Commitment: o.commitment(), Payload: payload}, nil
}

// open decodes and checks the opening of out.
func open(out *tx.Output) (*opening, error) {
	var o opening
	if err := rlp.DecodeBytes(out.Payload, &o); err != nil {
		return nil, errors.Wrap(errBadOutput, err.Error())
	}
	if o.pk() != out.PK || o.commitment() != out.Commitment {
		return nil, errBadOutput
	}
	if len(o.Stake) != 0 && len(o.Stake) != cry.PublicKeyLength {
		return nil, errBadOutput
	}
	return &o, nil
}

// Tag returns the tag revealed when the output with the given one-time key is spent.
func Tag(pk khora.Bytes32) khora.Bytes32 {
	return khora.Blake2b([]byte("tag"), pk[:])
}

// ringInput lists, for every spent output, the history indices it hides among.
type ringInput struct {
	Seed  khora.Bytes32
	Rings [][]uint64
}

// spend proves ownership of one ring member.
type spend struct {
	Position uint64 // index within the ring
	Opening  opening
	Sig      cry.Signature
}

type ringSeal struct {
	Spends []spend
}

type stakeSeal struct {
	Sig cry.Signature
}

// Oracle implements tx.Oracle.
type Oracle struct{}

var _ tx.Oracle = Oracle{}

// ReadStake implements tx.StakeReader.
func (Oracle) ReadStake(out *tx.Output) (stake.Entry, bool) {
	o, err := open(out)
	if err != nil || len(o.Stake) == 0 {
		return stake.Entry{}, false
	}
	pk, err := cry.ParsePublicKey(o.Stake)
	if err != nil {
		return stake.Entry{}, false
	}
	return stake.Entry{PK: pk, Amount: o.Amount}, true
}

func outputsTotal(t *tx.Transaction) (uint64, error) {
	total := t.Fee()
	for _, out := range t.Outputs() {
		o, err := open(&out)
		if err != nil {
			return 0, err
		}
		if total+o.Amount < total {
			return 0, errNotConserved
		}
		total += o.Amount
	}
	return total, nil
}

// Verify implements tx.Oracle.
func (Oracle) Verify(t *tx.Transaction, h tx.History) error {
	var in ringInput
	if err := rlp.DecodeBytes(t.Inputs(), &in); err != nil {
		return errors.Wrap(errBadRing, err.Error())
	}
	var seal ringSeal
	if err := rlp.DecodeBytes(t.Seal(), &seal); err != nil {
		return errors.Wrap(errBadSeal, err.Error())
	}
	tags := t.Tags()
	if len(in.Rings) == 0 || len(in.Rings) != len(tags) || len(in.Rings) != len(seal.Spends) {
		return errBadRing
	}

	signing := t.SigningHash()
	height := h.Height()
	var spent uint64
	for i, ring := range in.Rings {
		sp := &seal.Spends[i]
		if sp.Position >= uint64(len(ring)) || ring[sp.Position] >= height {
			return errBadRing
		}
		rec, err := h.Get(ring[sp.Position])
		if err != nil {
			return err
		}
		if sp.Opening.pk() != rec.PK || sp.Opening.commitment() != rec.Commitment {
			return errBadOutput
		}
		if Tag(rec.PK) != tags[i] {
			return errBadTag
		}
		if !cry.Verify(signing, sp.Opening.Owner, sp.Sig) {
			return errBadSignature
		}
		if spent+sp.Opening.Amount < spent {
			return errNotConserved
		}
		spent += sp.Opening.Amount
	}

	total, err := outputsTotal(t)
	if err != nil {
		return err
	}
	if total != spent {
		return errNotConserved
	}
	return nil
}

// VerifyStake implements tx.Oracle.
func (Oracle) VerifyStake(t *tx.Transaction, stakes stake.Set) error {
	if !t.IsStake() {
		return errBadRing
	}
	if len(t.Tags()) != 0 {
		return errStakeWithTags
	}
	idx := t.StakeIndex()
	if idx >= uint64(len(stakes)) {
		return errStakeRange
	}
	var seal stakeSeal
	if err := rlp.DecodeBytes(t.Seal(), &seal); err != nil {
		return errors.Wrap(errBadSeal, err.Error())
	}
	entry := stakes[idx]
	if !cry.Verify(t.SigningHash(), entry.PK, seal.Sig) {
		return errBadSignature
	}
	total, err := outputsTotal(t)
	if err != nil {
		return err
	}
	if total != entry.Amount {
		return errNotConserved
	}
	return nil
}

// Receive implements tx.Oracle.
func (Oracle) Receive(out *tx.Output, account *cry.PrivateKey) (*tx.Owned, error) {
	o, err := open(out)
	if err != nil {
		return nil, tx.ErrNotMine
	}
	if o.Owner != account.Public() || len(o.Stake) != 0 {
		return nil, tx.ErrNotMine
	}
	secret, err := rlp.EncodeToBytes(o)
	if err != nil {
		return nil, err
	}
	return &tx.Owned{
		Output: *out,
		Amount: o.Amount,
		Tag:    Tag(out.PK),
		Secret: secret,
	}, nil
}

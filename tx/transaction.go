// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"bytes"
	"encoding/binary"
	"io"
	"slices"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/khora"
)

// StakeInputLength is the input length of a transaction spending a stake entry.
const StakeInputLength = 8

// Transaction is an immutable tx type. Inputs are opaque to consensus: an 8-byte
// little-endian stake index for stake transactions, a ring description otherwise.
type Transaction struct {
	body body

	cache struct {
		id   atomic.Pointer[khora.Bytes32]
		size atomic.Uint64
	}
}

type body struct {
	Inputs  []byte
	Outputs []Output
	Tags    []khora.Bytes32
	Fee     uint64
	Seal    []byte
}

// New creates an unsealed transaction.
func New(inputs []byte, outputs []Output, tags []khora.Bytes32, fee uint64) *Transaction {
	return &Transaction{body: body{
		Inputs:  bytes.Clone(inputs),
		Outputs: slices.Clone(outputs),
		Tags:    slices.Clone(tags),
		Fee:     fee,
	}}
}

// ID returns the hash of the whole encoded tx.
func (t *Transaction) ID() khora.Bytes32 {
	if cached := t.cache.id.Load(); cached != nil {
		return *cached
	}
	id := khora.Blake2bFn(func(w io.Writer) {
		rlp.Encode(w, t)
	})
	t.cache.id.Store(&id)
	return id
}

// SigningHash returns hash of tx excluding the seal.
func (t *Transaction) SigningHash() khora.Bytes32 {
	return khora.Blake2bFn(func(w io.Writer) {
		rlp.Encode(w, []any{
			t.body.Inputs,
			t.body.Outputs,
			t.body.Tags,
			t.body.Fee,
		})
	})
}

// Size returns the encoded size in bytes.
func (t *Transaction) Size() uint64 {
	if cached := t.cache.size.Load(); cached != 0 {
		return cached
	}
	data, err := rlp.EncodeToBytes(t)
	if err != nil {
		panic(err)
	}
	t.cache.size.Store(uint64(len(data)))
	return uint64(len(data))
}

// Inputs returns the raw inputs.
func (t *Transaction) Inputs() []byte { return bytes.Clone(t.body.Inputs) }

// Outputs returns the outputs.
func (t *Transaction) Outputs() []Output { return slices.Clone(t.body.Outputs) }

// Tags returns the spent tags, one per ring input.
func (t *Transaction) Tags() []khora.Bytes32 { return slices.Clone(t.body.Tags) }

// Fee returns the fee.
func (t *Transaction) Fee() uint64 { return t.body.Fee }

// Seal returns the validity proof.
func (t *Transaction) Seal() []byte { return bytes.Clone(t.body.Seal) }

// IsStake reports whether the tx spends a stake entry.
func (t *Transaction) IsStake() bool {
	return len(t.body.Inputs) == StakeInputLength
}

// StakeIndex returns the spent stake index. Only meaningful when IsStake.
func (t *Transaction) StakeIndex() uint64 {
	if !t.IsStake() {
		return 0
	}
	return binary.LittleEndian.Uint64(t.body.Inputs)
}

// StakeInput encodes a stake index as tx inputs.
func StakeInput(index uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, index)
}

// WithSeal creates a new tx with the seal set.
func (t *Transaction) WithSeal(seal []byte) *Transaction {
	newTx := Transaction{body: t.body}
	newTx.body.Seal = bytes.Clone(seal)
	return &newTx
}

// EncodeRLP implements rlp.Encoder
func (t *Transaction) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &t.body)
}

// DecodeRLP implements rlp.Decoder
func (t *Transaction) DecodeRLP(s *rlp.Stream) error {
	var body body
	if err := s.Decode(&body); err != nil {
		return err
	}
	*t = Transaction{body: body}
	return nil
}

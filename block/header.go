// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"fmt"
	"io"
	"slices"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
)

// Signature is a Schnorr signature by the stake entry at Index.
type Signature struct {
	Index uint64
	Sig   cry.Signature
}

// MultiSignature finalises an empty block. Absentees are committee positions that
// did not take part.
type MultiSignature struct {
	X         cry.Point
	Y         cry.Scalar
	Absentees []uint64
}

// Header is the envelope shared by full and light blocks. It is immutable.
type Header struct {
	body headerBody

	cache struct {
		signingHash atomic.Pointer[khora.Bytes32]
		name        atomic.Pointer[khora.Bytes32]
	}
}

type headerBody struct {
	Leader     Signature
	Shards     []uint64 // merged shard ids, head first
	Number     uint64
	LastName   khora.Bytes32
	Validators []Signature
	Emptiness  *MultiSignature `rlp:"nil"`
	Forker     *Forker         `rlp:"nil"`
}

// Leader returns the leader stake index and signature.
func (h *Header) Leader() Signature { return h.body.Leader }

// Shards returns the merged shard ids, head first.
func (h *Header) Shards() []uint64 { return slices.Clone(h.body.Shards) }

// HeadShard returns the shard whose committee signed the block.
func (h *Header) HeadShard() uint64 {
	if len(h.body.Shards) == 0 {
		return 0
	}
	return h.body.Shards[0]
}

// Number returns the block height.
func (h *Header) Number() uint64 { return h.body.Number }

// LastName returns the name of the previous block.
func (h *Header) LastName() khora.Bytes32 { return h.body.LastName }

// Validators returns the committee signatures of a transactional block.
func (h *Header) Validators() []Signature { return slices.Clone(h.body.Validators) }

// Emptiness returns the multi-signature of an empty block, or nil.
func (h *Header) Emptiness() *MultiSignature {
	if h.body.Emptiness == nil {
		return nil
	}
	ms := *h.body.Emptiness
	ms.Absentees = slices.Clone(ms.Absentees)
	return &ms
}

// Forker returns the equivocation evidence carried by the block, or nil.
func (h *Header) Forker() *Forker {
	if h.body.Forker == nil {
		return nil
	}
	f := *h.body.Forker
	return &f
}

// IsEmpty reports whether the block is finalised by a multi-signature.
func (h *Header) IsEmpty() bool { return h.body.Emptiness != nil }

func (h *Header) signaturesHash() khora.Bytes32 {
	return khora.Blake2bFn(func(w io.Writer) {
		rlp.Encode(w, []any{h.body.Validators, h.body.Emptiness})
	})
}

// SigningHash is the digest the leader signs:
// H(keyword ∥ leader ∥ shards ∥ bnum ∥ last name ∥ H(signatures) ∥ forker?).
func (h *Header) SigningHash() khora.Bytes32 {
	if cached := h.cache.signingHash.Load(); cached != nil {
		return *cached
	}
	hash := khora.Blake2bFn(func(w io.Writer) {
		w.Write([]byte(khora.BlockKeyword))
		sigs := h.signaturesHash()
		rlp.Encode(w, []any{
			h.body.Leader.Index,
			h.body.Shards,
			h.body.Number,
			h.body.LastName,
			sigs,
		})
		if h.body.Forker != nil {
			rlp.Encode(w, h.body.Forker)
		}
	})
	h.cache.signingHash.Store(&hash)
	return hash
}

// Name identifies the block: H(signing hash ∥ leader signature). The next block
// references it as last name.
func (h *Header) Name() khora.Bytes32 {
	if cached := h.cache.name.Load(); cached != nil {
		return *cached
	}
	signing := h.SigningHash()
	name := khora.Blake2b(signing[:], h.body.Leader.Sig[:])
	h.cache.name.Store(&name)
	return name
}

// withLeaderSig returns a copy carrying the leader signature.
func (h *Header) withLeaderSig(sig cry.Signature) *Header {
	nh := &Header{body: h.body}
	nh.body.Leader.Sig = sig
	return nh
}

// EncodeRLP implements rlp.Encoder.
func (h *Header) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &h.body)
}

// DecodeRLP implements rlp.Decoder.
func (h *Header) DecodeRLP(s *rlp.Stream) error {
	var body headerBody
	if err := s.Decode(&body); err != nil {
		return err
	}
	*h = Header{body: body}
	return nil
}

func (h *Header) String() string {
	kind := "txs"
	if h.IsEmpty() {
		kind = "empty"
	}
	return fmt.Sprintf(`Header(%v):
	Number:     %v
	Kind:       %v
	Shards:     %v
	LastName:   %v
	Leader:     %v
	Validators: %v
	Forker:     %v`, h.Name(), h.body.Number, kind, h.body.Shards, h.body.LastName,
		h.body.Leader.Index, len(h.body.Validators), h.body.Forker != nil)
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/stake"
)

// ForkSig is a validator signature over a body at the forker's height.
type ForkSig struct {
	Body khora.Bytes32
	Sig  cry.Signature
}

// Forker proves that the stake entry Signer signed two different bodies at height Number.
type Forker struct {
	Number uint64
	Signer uint64
	A, B   ForkSig
}

// NewForker returns evidence if a and b are conflicting signatures of signer at bnum.
func NewForker(bnum, signer uint64, a, b ForkSig) (*Forker, bool) {
	if a.Body == b.Body {
		return nil, false
	}
	return &Forker{Number: bnum, Signer: signer, A: a, B: b}, true
}

// Verify checks the evidence against the stake set.
func (f *Forker) Verify(stakes stake.Set) error {
	if f.Signer >= uint64(len(stakes)) {
		return consensus.New(consensus.ProtocolInvalid, "forker index %d out of range", f.Signer)
	}
	if f.A.Body == f.B.Body {
		return consensus.New(consensus.ProtocolInvalid, "forker evidence over identical bodies")
	}
	pk := stakes[f.Signer].PK
	for _, s := range []ForkSig{f.A, f.B} {
		if !cry.Verify(ValidatorMessage(f.Number, s.Body), pk, s.Sig) {
			return consensus.New(consensus.CryptoInvalid, "forker signature invalid")
		}
	}
	return nil
}

// PK returns the public key of the forker.
func (f *Forker) PK(stakes stake.Set) (cry.PublicKey, bool) {
	if f.Signer >= uint64(len(stakes)) {
		return cry.PublicKey{}, false
	}
	return stakes[f.Signer].PK, true
}

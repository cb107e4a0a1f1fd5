// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/sile/Khora-sub000/khora"
)

// SignatureLength is the length of a serialized Schnorr signature.
const SignatureLength = 64

// Signature is an EC-Schnorr signature (r ∥ s).
type Signature [SignatureLength]byte

// String returns the hex form.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// Sign signs a 32-byte digest. Signing is deterministic.
func Sign(digest khora.Bytes32, k *PrivateKey) Signature {
	sig, err := schnorr.Sign(k.key, digest[:])
	if err != nil {
		// only fails for an out of range key, which PrivateKey never holds
		panic(err)
	}
	var out Signature
	copy(out[:], sig.Serialize())
	return out
}

// Verify reports whether sig is a valid signature of digest by pk.
func Verify(digest khora.Bytes32, pk PublicKey, sig Signature) bool {
	pub, err := pk.parse()
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	return parsed.Verify(digest[:], pub)
}

// NoncedSignature binds a signature to a block number and a random nonce, so a
// signed payload cannot be replayed at another height or round.
type NoncedSignature struct {
	Nonce uint64
	Sig   Signature
}

// NoncedDigest is the digest signed by a nonced signature.
func NoncedDigest(payload []byte, bnum, nonce uint64) khora.Bytes32 {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], bnum)
	binary.BigEndian.PutUint64(b[8:], nonce)
	return khora.Blake2b(payload, b[:])
}

// SignNonced signs payload at bnum with a fresh nonce.
func SignNonced(payload []byte, bnum uint64, k *PrivateKey) NoncedSignature {
	var nb [8]byte
	if _, err := rand.Read(nb[:]); err != nil {
		panic(err)
	}
	nonce := binary.LittleEndian.Uint64(nb[:])
	return NoncedSignature{
		Nonce: nonce,
		Sig:   Sign(NoncedDigest(payload, bnum, nonce), k),
	}
}

// Verify checks the nonced signature of payload at bnum.
func (ns *NoncedSignature) Verify(payload []byte, bnum uint64, pk PublicKey) bool {
	return Verify(NoncedDigest(payload, bnum, ns.Nonce), pk, ns.Sig)
}

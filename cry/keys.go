// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package cry provides the curve operations used by consensus: Schnorr signatures,
// nonced signatures and the two-round multi-signature of empty blocks.
package cry

import (
	"encoding/hex"
	"encoding/json"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/khora"
)

// PublicKeyLength is the length of a compressed public key.
const PublicKeyLength = 33

// PublicKey is a compressed secp256k1 public key.
type PublicKey [PublicKeyLength]byte

// PrivateKey is a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a random private key.
func GenerateKey() (*PrivateKey, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{k}, nil
}

// KeyFromSeed derives a private key deterministically from seed.
func KeyFromSeed(seed ...[]byte) *PrivateKey {
	h := khora.Blake2b(seed...)
	for {
		var s secp256k1.ModNScalar
		overflow := s.SetBytes((*[32]byte)(&h))
		if overflow == 0 && !s.IsZero() {
			return &PrivateKey{secp256k1.NewPrivateKey(&s)}
		}
		h = khora.Blake2b(h[:])
	}
}

// PrivateKeyFromBytes parses a 32-byte big-endian scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, errors.New("invalid private key length")
	}
	var s secp256k1.ModNScalar
	if s.SetByteSlice(b) || s.IsZero() {
		return nil, errors.New("private key out of range")
	}
	return &PrivateKey{secp256k1.NewPrivateKey(&s)}, nil
}

// Bytes returns the 32-byte encoding of the key.
func (k *PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

// Public returns the public key.
func (k *PrivateKey) Public() PublicKey {
	var pk PublicKey
	copy(pk[:], k.key.PubKey().SerializeCompressed())
	return pk
}

func (k *PrivateKey) scalar() *secp256k1.ModNScalar {
	return &k.key.Key
}

// ParsePublicKey parses and validates a compressed public key.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, errors.New("invalid public key length")
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return pk, errors.Wrap(err, "parse public key")
	}
	copy(pk[:], b)
	return pk, nil
}

// MustParsePublicKey parses a hex public key, panics on error.
func MustParsePublicKey(s string) PublicKey {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	pk, err := ParsePublicKey(b)
	if err != nil {
		panic(err)
	}
	return pk
}

func (pk PublicKey) parse() (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(pk[:])
}

// Bytes returns the key as a byte slice.
func (pk PublicKey) Bytes() []byte { return pk[:] }

// String returns the hex form.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// AbbrevString returns an abbreviated hex form for logs.
func (pk PublicKey) AbbrevString() string {
	return hex.EncodeToString(pk[:5])
}

// MarshalJSON implements json.Marshaler.
func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	parsed, err := ParsePublicKey(b)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler, used by yaml.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by yaml.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	parsed, err := ParsePublicKey(b)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

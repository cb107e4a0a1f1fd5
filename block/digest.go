// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
)

// ValidatorBody commits to what a validator accepts: H(leader ∥ shards ∥ delta ∥ last name).
func ValidatorBody(leader cry.PublicKey, shards []uint64, delta, lastName khora.Bytes32) khora.Bytes32 {
	return khora.Blake2bFn(func(w io.Writer) {
		w.Write(leader[:])
		rlp.Encode(w, shards)
		w.Write(delta[:])
		w.Write(lastName[:])
	})
}

// ValidatorMessage is the digest validators sign: H(keyword ∥ bnum ∥ body).
func ValidatorMessage(bnum uint64, body khora.Bytes32) khora.Bytes32 {
	return khora.Blake2b([]byte(khora.BlockKeyword), khora.Uint64Bytes(bnum), body[:])
}

// EmptyMessage is the message of an empty-block multi-signature: leader ∥ last name ∥ shard.
func EmptyMessage(leader cry.PublicKey, lastName khora.Bytes32, shard uint64) []byte {
	m := make([]byte, 0, len(leader)+len(lastName)+8)
	m = append(m, leader[:]...)
	m = append(m, lastName[:]...)
	return append(m, khora.Uint64Bytes(shard)...)
}

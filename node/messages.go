// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
)

func payloadOf(vals ...any) []byte {
	data, err := rlp.EncodeToBytes(vals)
	if err != nil {
		panic(err)
	}
	return data
}

// announceMsg binds a stake key to a dialable peer.
type announceMsg struct {
	PK     cry.PublicKey
	Peer   string
	Height uint64
	Sig    cry.Signature
}

func (m *announceMsg) digest() khora.Bytes32 {
	return khora.Blake2b([]byte("announce"), m.PK[:], []byte(m.Peer), khora.Uint64Bytes(m.Height))
}

func newAnnounce(peer string, height uint64, k *cry.PrivateKey) *announceMsg {
	m := &announceMsg{PK: k.Public(), Peer: peer, Height: height}
	m.Sig = cry.Sign(m.digest(), k)
	return m
}

// commitMsg carries X_i of one committee position.
type commitMsg struct {
	Number   uint64
	Round    uint64
	Position uint64
	X        cry.Point
	Sig      cry.NoncedSignature
}

func (m *commitMsg) payload() []byte { return payloadOf(m.Round, m.Position, m.X) }

// aggregateMsg is the leader's sum of commits.
type aggregateMsg struct {
	Number    uint64
	Round     uint64
	Leader    uint64
	X         cry.Point
	Absentees []uint64
	Sig       cry.NoncedSignature
}

func (m *aggregateMsg) payload() []byte {
	return payloadOf(m.Round, m.Leader, m.X, m.Absentees)
}

// responseMsg carries y_i of one committee position.
type responseMsg struct {
	Number   uint64
	Round    uint64
	Position uint64
	Y        cry.Scalar
	Sig      cry.NoncedSignature
}

func (m *responseMsg) payload() []byte { return payloadOf(m.Round, m.Position, m.Y) }

// countersignMsg is a committee member's acknowledgement of a finalised block.
type countersignMsg struct {
	Number uint64
	Index  uint64
	Name   khora.Bytes32
	Sig    cry.Signature
}

func countersignDigest(bnum uint64, name khora.Bytes32) khora.Bytes32 {
	return khora.Blake2b([]byte("countersign"), khora.Uint64Bytes(bnum), name[:])
}

type syncMsg struct {
	Height uint64
}

// tipMsg reports a node's chain tip. It is the payload of alive, tip and tip reply.
type tipMsg struct {
	Height   uint64
	LastName khora.Bytes32
}

type peerListMsg struct {
	Peers []string
}

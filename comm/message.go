// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package comm defines the tagged messages exchanged over the gossip overlays and the bus
// abstraction the node polls.
package comm

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/khora"
)

// Tag identifies the kind of a message. It travels as the trailing byte.
type Tag byte

// Message tags.
const (
	TagTx          Tag = 0
	TagProposal    Tag = 1
	TagCandidate   Tag = 2
	TagBlock       Tag = 3
	TagCommit      Tag = 4
	TagAggregate   Tag = 5
	TagResponse    Tag = 6
	TagCountersign Tag = 8
	TagAnnounce    Tag = 'v'
	TagSync        Tag = 'y'
	TagLight       Tag = 'l'
	TagAlive       Tag = 'i'
	TagPeers       Tag = 'p'
	TagPeerList    Tag = 'r'
	TagTip         Tag = 't'
	TagTipReply    Tag = 'u'
)

var tagNames = map[Tag]string{
	TagTx:          "tx",
	TagProposal:    "proposal",
	TagCandidate:   "candidate",
	TagBlock:       "block",
	TagCommit:      "commit",
	TagAggregate:   "aggregate",
	TagResponse:    "response",
	TagCountersign: "countersign",
	TagAnnounce:    "announce",
	TagSync:        "sync",
	TagLight:       "light",
	TagAlive:       "alive",
	TagPeers:       "peers",
	TagPeerList:    "peerlist",
	TagTip:         "tip",
	TagTipReply:    "tipreply",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", byte(t))
}

// Known reports whether t is a tag this node understands.
func (t Tag) Known() bool {
	_, ok := tagNames[t]
	return ok
}

// Message is a tagged payload.
type Message struct {
	Tag     Tag
	Payload []byte
}

// NewMessage RLP-encodes val as the payload.
func NewMessage(tag Tag, val any) (Message, error) {
	data, err := rlp.EncodeToBytes(val)
	if err != nil {
		return Message{}, errors.Wrapf(err, "encode %v", tag)
	}
	return Message{Tag: tag, Payload: data}, nil
}

// MustMessage is like NewMessage but panics on encoding failure.
func MustMessage(tag Tag, val any) Message {
	m, err := NewMessage(tag, val)
	if err != nil {
		panic(err)
	}
	return m
}

// Decode RLP-decodes the payload into val.
func (m Message) Decode(val any) error {
	if err := rlp.DecodeBytes(m.Payload, val); err != nil {
		return errors.Wrapf(err, "decode %v", m.Tag)
	}
	return nil
}

// Bytes returns the wire form, payload followed by the tag.
func (m Message) Bytes() []byte {
	out := make([]byte, 0, len(m.Payload)+1)
	out = append(out, m.Payload...)
	return append(out, byte(m.Tag))
}

// Digest identifies the message for de-duplication.
func (m Message) Digest() khora.Bytes32 {
	return khora.Blake2b(m.Payload, []byte{byte(m.Tag)})
}

// ParseMessage splits a wire message.
func ParseMessage(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, errors.New("empty message")
	}
	return Message{
		Tag:     Tag(data[len(data)-1]),
		Payload: bytes.Clone(data[:len(data)-1]),
	}, nil
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package p2psrv

import (
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/comm"
)

// codes of the khr protocol
const (
	codeOuter = 0
	codeInner = 1
	codeCount = 2
)

func codeOf(o comm.Overlay) uint64 {
	if o == comm.Inner {
		return codeInner
	}
	return codeOuter
}

// session is a live connection to one peer.
type session struct {
	peer *p2p.Peer
	rw   p2p.MsgReadWriter
	id   comm.PeerID
}

func newSession(peer *p2p.Peer, rw p2p.MsgReadWriter) *session {
	return &session{
		peer: peer,
		rw:   rw,
		id:   comm.PeerID(peer.Node().URLv4()),
	}
}

func (s *session) send(o comm.Overlay, m comm.Message) error {
	return p2p.Send(s.rw, codeOf(o), m.Bytes())
}

// read blocks for the next message of the peer.
func (s *session) read() (comm.Inbound, error) {
	msg, err := s.rw.ReadMsg()
	if err != nil {
		return comm.Inbound{}, err
	}
	defer msg.Discard()

	var o comm.Overlay
	switch msg.Code {
	case codeOuter:
		o = comm.Outer
	case codeInner:
		o = comm.Inner
	default:
		return comm.Inbound{}, errors.Errorf("unknown message code %d", msg.Code)
	}
	var data []byte
	if err := msg.Decode(&data); err != nil {
		return comm.Inbound{}, errors.Wrap(err, "decode message")
	}
	m, err := comm.ParseMessage(data)
	if err != nil {
		return comm.Inbound{}, err
	}
	return comm.Inbound{From: s.id, Overlay: o, Msg: m}, nil
}

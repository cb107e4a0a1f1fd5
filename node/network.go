// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/state"
)

// start greets the outer overlay once the poll loop runs.
func (n *Node) start() {
	n.started = true
	if len(n.contacts) > 0 {
		n.bus.Join(comm.Outer, n.contacts)
	}
	if role, _ := n.st.Role(n.stakePK(), n.params); role == state.Validator && len(n.inner) > 0 {
		n.bus.Join(comm.Inner, n.inner)
	}
	tip := &tipMsg{Height: n.st.Height, LastName: n.st.LastName}
	n.bus.Broadcast(comm.Outer, comm.MustMessage(comm.TagTip, tip))
	n.bus.Broadcast(comm.Outer, comm.MustMessage(comm.TagPeers, struct{}{}))
	n.lastAlive = n.clock.Now()
}

// maintain sends the periodic liveness messages.
func (n *Node) maintain(now mclock.AbsTime) {
	if now.Sub(n.lastAlive) >= n.params.AliveInterval {
		n.lastAlive = now
		tip := &tipMsg{Height: n.st.Height, LastName: n.st.LastName}
		n.bus.Broadcast(comm.Outer, comm.MustMessage(comm.TagAlive, tip))
	}
	if n.role != state.Staker && now.Sub(n.lastAnnounce) >= n.params.AliveInterval {
		n.announce(now)
	}
}

// announce binds the stake key to this node's peer id on the outer overlay.
func (n *Node) announce(now mclock.AbsTime) {
	n.lastAnnounce = now
	m := newAnnounce(string(n.bus.Self()), n.st.Height, n.keys.Stake)
	n.bus.Broadcast(comm.Outer, comm.MustMessage(comm.TagAnnounce, m))
}

func (n *Node) handleAnnounce(in comm.Inbound) error {
	var m announceMsg
	if err := in.Msg.Decode(&m); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	if len(n.st.Stakes.IndexesOf(m.PK)) == 0 {
		return nil
	}
	if !cry.Verify(m.digest(), m.PK, m.Sig) {
		return consensus.New(consensus.CryptoInvalid, "announce signature of %v", m.PK.AbbrevString())
	}
	peer := comm.PeerID(m.Peer)
	if prev, ok := n.validators[m.PK]; ok && prev == peer {
		return nil
	}
	n.validators[m.PK] = peer
	logger.Debug("validator announced", "pk", m.PK.AbbrevString(), "peer", peer)
	if n.role == state.Validator && peer != n.bus.Self() {
		n.bus.Join(comm.Inner, []comm.PeerID{peer})
	}
	return nil
}

// handleTip looks at a peer's reported tip and syncs when it is ahead.
func (n *Node) handleTip(in comm.Inbound) error {
	var m tipMsg
	if err := in.Msg.Decode(&m); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	if m.Height > n.st.Height {
		if n.syncSource == "" {
			n.syncSource = in.From
		}
		n.requestSync(in.From)
	}
	return nil
}

func (n *Node) handleTipRequest(in comm.Inbound) error {
	if err := n.handleTip(in); err != nil {
		return err
	}
	tip := &tipMsg{Height: n.st.Height, LastName: n.st.LastName}
	n.reply(comm.Outer, in.From, comm.MustMessage(comm.TagTipReply, tip))
	return nil
}

func (n *Node) handlePeersRequest(in comm.Inbound) error {
	peers := n.bus.Peers(comm.Outer)
	list := &peerListMsg{Peers: make([]string, 0, len(peers))}
	for _, p := range peers {
		if p != in.From {
			list.Peers = append(list.Peers, string(p))
		}
	}
	n.reply(comm.Outer, in.From, comm.MustMessage(comm.TagPeerList, list))
	return nil
}

func (n *Node) handlePeerList(in comm.Inbound) error {
	var m peerListMsg
	if err := in.Msg.Decode(&m); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	peers := make([]comm.PeerID, 0, len(m.Peers))
	for _, p := range m.Peers {
		if id := comm.PeerID(p); id != n.bus.Self() && !n.banned.Contains(id) {
			peers = append(peers, id)
		}
	}
	if len(peers) > 0 {
		n.bus.Join(comm.Outer, peers)
	}
	return nil
}

// requestSync asks a peer for the blocks after the local tip, at most once per
// response timeout.
func (n *Node) requestSync(from comm.PeerID) {
	if from == n.bus.Self() || from == "" {
		return
	}
	now := n.clock.Now()
	if n.lastSyncReq != 0 && now.Sub(n.lastSyncReq) < n.params.ResponseTimeout {
		return
	}
	n.lastSyncReq = now
	logger.Debug("sync requested", "peer", from, "height", n.st.Height)
	n.bus.Send(comm.Outer, []comm.PeerID{from}, comm.MustMessage(comm.TagSync, &syncMsg{Height: n.st.Height}))
}

// handleSync serves stored blocks after the requested height, then the last block.
func (n *Node) handleSync(in comm.Inbound) error {
	var m syncMsg
	if err := in.Msg.Decode(&m); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	if in.From == n.bus.Self() || m.Height >= n.st.Height {
		return nil
	}
	last := min(n.st.Height, m.Height+maxSyncBlocks)
	sent := 0
	for h := m.Height + 1; h <= last; h++ {
		if b, err := n.repo.GetBlock(h); err == nil {
			n.bus.Send(comm.Outer, []comm.PeerID{in.From}, comm.MustMessage(comm.TagBlock, b))
			sent++
			continue
		} else if !n.repo.IsNotFound(err) {
			return err
		}
		lb, err := n.repo.GetLight(h)
		if err != nil {
			if n.repo.IsNotFound(err) {
				continue
			}
			return err
		}
		n.bus.Send(comm.Outer, []comm.PeerID{in.From}, comm.MustMessage(comm.TagLight, lb))
		sent++
	}
	if n.lastBlock != nil && last < n.st.Height {
		n.bus.Send(comm.Outer, []comm.PeerID{in.From}, comm.MustMessage(comm.TagLight, n.lastBlock))
	}
	logger.Debug("sync served", "peer", in.From, "from", m.Height+1, "to", last, "blocks", sent)
	return nil
}

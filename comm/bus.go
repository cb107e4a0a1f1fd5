// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package comm

// Overlay selects one of the two gossip overlays.
type Overlay uint8

const (
	// Outer is the public overlay every node is part of.
	Outer Overlay = iota
	// Inner connects the members of the active committee.
	Inner
)

func (o Overlay) String() string {
	if o == Inner {
		return "inner"
	}
	return "outer"
}

// PeerID is a stable per-connection identifier. Transports use their dialable address.
type PeerID string

// Inbound is a received message.
type Inbound struct {
	From    PeerID
	Overlay Overlay
	Msg     Message
}

// Bus is the transport seen by the node. Sends never block; Poll returns immediately.
type Bus interface {
	Self() PeerID
	// Broadcast sends m to every peer of the overlay.
	Broadcast(o Overlay, m Message)
	// Send sends m to the given peers only.
	Send(o Overlay, to []PeerID, m Message)
	// Peers returns the active view of the overlay.
	Peers(o Overlay) []PeerID
	// Join connects to peers and adds them to the overlay.
	Join(o Overlay, peers []PeerID)
	// Leave drops the overlay. Leaving Outer is a no-op.
	Leave(o Overlay)
	// Poll pops the next inbound message, if any.
	Poll() (Inbound, bool)
	// Notify is signalled whenever an inbound message may be available.
	Notify() <-chan struct{}
}

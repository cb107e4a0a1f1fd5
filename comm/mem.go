// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package comm

import (
	"slices"
	"sync"

	"github.com/sile/Khora-sub000/cache"
	"github.com/sile/Khora-sub000/co"
	"github.com/sile/Khora-sub000/khora"
)

const seenLimit = 4096

// DropFunc decides whether a message in flight is lost.
type DropFunc func(from, to PeerID, m Message) bool

// MemNetwork is an in-process network. Every attached bus is part of the outer overlay;
// the inner overlay holds buses that joined it.
type MemNetwork struct {
	mu    sync.Mutex
	buses map[PeerID]*MemBus
	drop  DropFunc
}

// NewMemNetwork creates an empty network.
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{buses: make(map[PeerID]*MemBus)}
}

// SetDrop installs a loss filter. nil delivers everything.
func (n *MemNetwork) SetDrop(f DropFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drop = f
}

// Attach creates the bus of id, replacing any previous one.
func (n *MemNetwork) Attach(id PeerID) *MemBus {
	b := &MemBus{
		net:      n,
		id:       id,
		notifier: co.NewNotifier(),
		seen:     cache.NewRandSet[khora.Bytes32](seenLimit),
	}
	n.mu.Lock()
	n.buses[id] = b
	n.mu.Unlock()
	return b
}

// Detach removes id from the network, dropping its undelivered messages.
func (n *MemNetwork) Detach(id PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.buses, id)
}

func (n *MemNetwork) deliver(from *MemBus, o Overlay, to []PeerID, m Message, dedup bool) {
	n.mu.Lock()
	var targets []*MemBus
	for _, id := range to {
		b, ok := n.buses[id]
		if !ok || b == from {
			continue
		}
		if n.drop != nil && n.drop(from.id, id, m) {
			continue
		}
		targets = append(targets, b)
	}
	n.mu.Unlock()

	for _, b := range targets {
		b.push(Inbound{From: from.id, Overlay: o, Msg: m}, dedup)
	}
}

func (n *MemNetwork) members(o Overlay) []PeerID {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]PeerID, 0, len(n.buses))
	for id, b := range n.buses {
		if o == Inner && !b.isInner() {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MemBus is one node's endpoint on a MemNetwork.
type MemBus struct {
	net      *MemNetwork
	id       PeerID
	notifier *co.Notifier
	seen     *cache.RandSet[khora.Bytes32]

	mu    sync.Mutex
	inbox []Inbound
	inner bool
}

var _ Bus = (*MemBus)(nil)

func (b *MemBus) Self() PeerID { return b.id }

func (b *MemBus) isInner() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner
}

func (b *MemBus) push(in Inbound, dedup bool) {
	if dedup && !b.seen.Add(in.Msg.Digest()) {
		return
	}
	b.mu.Lock()
	if in.Overlay == Inner && !b.inner {
		b.mu.Unlock()
		return
	}
	b.inbox = append(b.inbox, in)
	b.mu.Unlock()
	CountMessage(in.Overlay, in.Msg.Tag, "in")
	b.notifier.Notify()
}

func (b *MemBus) Broadcast(o Overlay, m Message) {
	if o == Inner && !b.isInner() {
		return
	}
	CountMessage(o, m.Tag, "out")
	b.net.deliver(b, o, b.net.members(o), m, true)
}

func (b *MemBus) Send(o Overlay, to []PeerID, m Message) {
	CountMessage(o, m.Tag, "out")
	b.net.deliver(b, o, to, m, false)
}

func (b *MemBus) Peers(o Overlay) []PeerID {
	if o == Inner && !b.isInner() {
		return nil
	}
	return slices.DeleteFunc(b.net.members(o), func(id PeerID) bool { return id == b.id })
}

// Join on a mem network needs no dialing; joining Inner makes the bus a member.
func (b *MemBus) Join(o Overlay, _ []PeerID) {
	if o != Inner {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner = true
}

func (b *MemBus) Leave(o Overlay) {
	if o != Inner {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner = false
}

func (b *MemBus) Poll() (Inbound, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inbox) == 0 {
		return Inbound{}, false
	}
	in := b.inbox[0]
	b.inbox[0] = Inbound{}
	b.inbox = b.inbox[1:]
	return in, true
}

func (b *MemBus) Notify() <-chan struct{} {
	return b.notifier.C()
}

// Pending returns the number of queued inbound messages.
func (b *MemBus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inbox)
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageWireForm(t *testing.T) {
	m := MustMessage(TagSync, uint64(42))
	data := m.Bytes()
	assert.Equal(t, byte('y'), data[len(data)-1])

	parsed, err := ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, TagSync, parsed.Tag)

	var height uint64
	require.NoError(t, parsed.Decode(&height))
	assert.Equal(t, uint64(42), height)

	_, err = ParseMessage(nil)
	assert.Error(t, err)

	assert.Equal(t, "countersign", TagCountersign.String())
	assert.False(t, Tag(7).Known())
	assert.Equal(t, "tag(7)", Tag(7).String())
}

func TestMemNetwork(t *testing.T) {
	net := NewMemNetwork()
	a, b, c := net.Attach("a"), net.Attach("b"), net.Attach("c")

	assert.Equal(t, []PeerID{"b", "c"}, a.Peers(Outer))
	assert.Empty(t, a.Peers(Inner))

	m := MustMessage(TagTx, []byte("tx"))
	a.Broadcast(Outer, m)
	a.Broadcast(Outer, m)

	select {
	case <-b.Notify():
	default:
		t.Fatal("not notified")
	}
	in, ok := b.Poll()
	require.True(t, ok)
	assert.Equal(t, PeerID("a"), in.From)
	assert.Equal(t, TagTx, in.Msg.Tag)
	_, ok = b.Poll()
	assert.False(t, ok, "duplicate broadcast delivered")
	assert.Equal(t, 1, c.Pending())

	// inner overlay reaches members only
	a.Join(Inner, nil)
	b.Join(Inner, nil)
	a.Broadcast(Inner, MustMessage(TagProposal, uint64(1)))
	in, ok = b.Poll()
	require.True(t, ok)
	assert.Equal(t, Inner, in.Overlay)
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, []PeerID{"b"}, a.Peers(Inner))

	// direct sends are never de-duplicated
	sync := MustMessage(TagSync, uint64(3))
	a.Send(Outer, []PeerID{"c"}, sync)
	a.Send(Outer, []PeerID{"c"}, sync)
	assert.Equal(t, 3, c.Pending())

	net.SetDrop(func(from, to PeerID, m Message) bool { return to == "b" })
	a.Broadcast(Outer, MustMessage(TagTx, []byte("lost")))
	assert.Equal(t, 0, b.Pending())

	b.Leave(Inner)
	assert.Empty(t, b.Peers(Inner))

	net.Detach("c")
	assert.Equal(t, []PeerID{"b"}, a.Peers(Outer))
}

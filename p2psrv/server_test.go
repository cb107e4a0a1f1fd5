// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package p2psrv

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sile/Khora-sub000/comm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *Server {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	srv := New(&Options{
		Name:       "khora-test",
		PrivateKey: key,
		ListenAddr: "127.0.0.1:0",
	})
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func TestServer(t *testing.T) {
	a, b := newServer(t), newServer(t)
	assert.NotEmpty(t, a.Self())

	a.Join(comm.Outer, []comm.PeerID{b.Self()})
	require.Eventually(t, func() bool {
		return len(a.Peers(comm.Outer)) == 1 && len(b.Peers(comm.Outer)) == 1
	}, 10*time.Second, 50*time.Millisecond)

	a.Broadcast(comm.Outer, comm.MustMessage(comm.TagSync, uint64(7)))
	var in comm.Inbound
	require.Eventually(t, func() bool {
		var ok bool
		in, ok = b.Poll()
		return ok
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, comm.TagSync, in.Msg.Tag)
	assert.Equal(t, comm.Outer, in.Overlay)
	assert.NotEmpty(t, in.From)

	// inner traffic is ignored until joined
	assert.Empty(t, a.Peers(comm.Inner))
	a.Join(comm.Inner, []comm.PeerID{b.Self()})
	assert.Len(t, a.Peers(comm.Inner), 1)
	b.Join(comm.Inner, []comm.PeerID{a.Self()})

	a.Broadcast(comm.Inner, comm.MustMessage(comm.TagProposal, uint64(1)))
	require.Eventually(t, func() bool {
		var ok bool
		in, ok = b.Poll()
		return ok
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, comm.Inner, in.Overlay)

	a.Leave(comm.Inner)
	assert.Empty(t, a.Peers(comm.Inner))
}

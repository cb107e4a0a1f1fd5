// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/kv"
)

// flakyStore fails batch writes while fail is set.
type flakyStore struct {
	kv.Store
	fail atomic.Bool
}

func (s *flakyStore) NewBatch() kv.Batch { return &flakyBatch{s.Store.NewBatch(), s} }

type flakyBatch struct {
	kv.Batch
	s *flakyStore
}

func (b *flakyBatch) Write() error {
	if b.s.fail.Load() {
		return errors.New("disk full")
	}
	return b.Batch.Write()
}

// joinRecorder remembers the peers handed to every Join.
type joinRecorder struct {
	*comm.MemBus
	mu    sync.Mutex
	inner [][]comm.PeerID
}

func (r *joinRecorder) Join(o comm.Overlay, peers []comm.PeerID) {
	if o == comm.Inner {
		r.mu.Lock()
		r.inner = append(r.inner, append([]comm.PeerID(nil), peers...))
		r.mu.Unlock()
	}
	r.MemBus.Join(o, peers)
}

func TestCommitFailureKeepsState(t *testing.T) {
	params := khora.DevParams(4)
	store := &flakyStore{Store: kv.NewMem()}
	c := newCluster(t, 4, params, false, nil, func(i int, o *Options) {
		if i == 2 {
			o.Store = store
		}
	})
	c.settle()

	store.fail.Store(true)
	others := func() bool {
		for i, n := range c.nodes {
			if i != 2 && n.Height() < 1 {
				return false
			}
		}
		return true
	}
	require.True(t, c.runUntil(4*params.EmptyRoundTimeout, others))

	n := c.nodes[2]
	assert.Zero(t, n.Height())
	assert.Equal(t, c.gen.State().Digest(), n.State().Digest())
	assert.Equal(t, c.gen.State().HistoryHeight, n.hist.Height())
	_, err := n.Light(1)
	assert.True(t, n.IsNotFound(err))

	store.fail.Store(false)
	n.RequestSync(peerOf(0))
	c.settle()
	assert.GreaterOrEqual(t, n.Height(), uint64(1))
	assert.Equal(t, c.nodes[0].State().LastName, n.State().LastName)
	assert.Equal(t, n.State().HistoryHeight, n.hist.Height())
}

func TestCheckpointFailureHalts(t *testing.T) {
	params := khora.DevParams(4)
	c := newCluster(t, 4, params, true, nil)
	c.settle()

	// a non-empty directory in place of the checkpoint cannot be renamed over
	path := filepath.Join(c.dirs[2], checkpointFile)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(path, "x"), nil, 0o600))

	// block 1 pays inflation to every seat, so node 2 checkpoints its wallet
	require.True(t, c.runUntil(2*params.EmptyRoundTimeout, c.allAt(1)))

	n := c.nodes[2]
	err := n.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint")
	assert.Equal(t, err, n.Run(context.Background()))

	// halted nodes ignore further input
	height := n.Height()
	c.runUntil(2*params.EmptyRoundTimeout, c.allAt(height+1))
	assert.Equal(t, height, n.Height())
}

func TestRestartRejoinsInner(t *testing.T) {
	params := khora.DevParams(4)
	c := newCluster(t, 4, params, true, nil)
	require.True(t, c.runUntil(2*params.EmptyRoundTimeout, c.allAt(1)))

	n := c.nodes[2]
	inner := n.bus.Peers(comm.Inner)
	require.NotEmpty(t, inner)
	validators := make(map[string]comm.PeerID)
	for pk, p := range n.validators {
		validators[pk.String()] = p
	}
	require.NotEmpty(t, validators)
	require.NoError(t, n.Save())
	require.NoError(t, n.Close())

	cp, err := loadCheckpoint(filepath.Join(c.dirs[2], checkpointFile))
	require.NoError(t, err)
	assert.ElementsMatch(t, peerStrings(inner), cp.Inner)
	assert.Len(t, cp.Known, len(validators))

	rec := &joinRecorder{}
	c.opts = append(c.opts, func(i int, o *Options) {
		if i == 2 {
			rec.MemBus = o.Bus.(*comm.MemBus)
			o.Bus = rec
		}
	})
	c.nodes[2] = c.open(2)
	n = c.nodes[2]

	restored := make(map[string]comm.PeerID)
	for pk, p := range n.validators {
		restored[pk.String()] = p
	}
	assert.Equal(t, validators, restored)

	n.Poll()
	rec.mu.Lock()
	require.NotEmpty(t, rec.inner)
	assert.ElementsMatch(t, inner, rec.inner[0])
	rec.mu.Unlock()

	require.True(t, c.runUntil(2*params.EmptyRoundTimeout, c.allAt(2)))
	assert.Equal(t, c.nodes[0].State().LastName, n.State().LastName)
}

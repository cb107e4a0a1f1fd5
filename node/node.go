// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package node runs the per-node state machine: intake, block production, acceptance,
// persistence and sync. A single poll loop owns all protocol state.
package node

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/pkg/errors"

	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/bloom"
	"github.com/sile/Khora-sub000/cache"
	"github.com/sile/Khora-sub000/chain"
	"github.com/sile/Khora-sub000/co"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/genesis"
	"github.com/sile/Khora-sub000/history"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/kv"
	"github.com/sile/Khora-sub000/log"
	"github.com/sile/Khora-sub000/seal"
	"github.com/sile/Khora-sub000/state"
	"github.com/sile/Khora-sub000/tx"
	"github.com/sile/Khora-sub000/txpool"
	"github.com/sile/Khora-sub000/wallet"
)

var logger = log.WithContext("pkg", "node")

const (
	tickInterval    = 100 * time.Millisecond
	maxFutureBlocks = 256
	maxSyncBlocks   = 64
	bannedLimit     = 1024
	memBloomBits    = 1 << 20
	maxPollPasses   = 4
)

// Options for Node.
type Options struct {
	Genesis *genesis.Genesis
	Keys    *wallet.Keys
	Bus     comm.Bus
	Clock   mclock.Clock // defaults to the system clock
	Oracle  tx.Oracle    // defaults to seal.Oracle

	DataDir   string   // empty keeps history, bloom filter and checkpoint in memory
	Store     kv.Store // block store; defaults to blocks/ under DataDir
	BloomBits uint64
	RingSize  int
	TxPool    txpool.Options
	LightOnly bool // store only light blocks, dropping tx bodies

	SyncSource comm.PeerID   // trusted peer whose blocks may skip missing heights
	Contacts   []comm.PeerID // joined on start
}

// Node is the local participant. Poll drives it; every exported method is safe for
// concurrent use.
type Node struct {
	gen      *genesis.Genesis
	params   *khora.Params
	keys     *wallet.Keys
	bus      comm.Bus
	clock    mclock.Clock
	oracle   tx.Oracle
	dataDir  string
	ringSize int
	salt     uint64 // mixed into empty-round secrets, fresh per process
	wake     *co.Notifier

	mu        sync.Mutex
	st        *state.State
	lastBlock *block.LightBlock
	store     kv.Store
	repo      *chain.Repository
	hist      *history.File
	bloom     *bloom.Filter
	bloomBits uint64
	lightOnly bool
	wallet    *wallet.Wallet
	pool      *txpool.TxPool
	poolOpts  txpool.Options
	loop      []comm.Inbound

	role       state.Role
	started    bool
	syncSource comm.PeerID
	contacts   []comm.PeerID
	inner      []comm.PeerID // inner peers restored from the checkpoint
	validators map[cry.PublicKey]comm.PeerID
	banned     *cache.RandSet[comm.PeerID]
	future     map[uint64]*block.LightBlock
	futureFull map[uint64]*block.Block
	forks      *forkTracker

	prev          *state.State    // state before the last applied block
	acks          map[uint64]bool // countersigners of the last block
	countersigned bool

	lastProgress mclock.AbsTime // last applied block or overthrow
	lastAlive    mclock.AbsTime
	lastAnnounce mclock.AbsTime
	lastSyncReq  mclock.AbsTime
	lastMerged   []mclock.AbsTime // per shard

	cur    *height
	halted error // checkpoint failure; the node stops handling input
}

// New opens or restores a node.
func New(opts Options) (*Node, error) {
	if opts.Genesis == nil || opts.Keys == nil || opts.Bus == nil {
		return nil, errors.New("node: genesis, keys and bus are required")
	}
	n := &Node{
		gen:        opts.Genesis,
		params:     opts.Genesis.Params(),
		keys:       opts.Keys,
		bus:        opts.Bus,
		clock:      opts.Clock,
		oracle:     opts.Oracle,
		dataDir:    opts.DataDir,
		ringSize:   opts.RingSize,
		wake:       co.NewNotifier(),
		store:      opts.Store,
		bloomBits:  opts.BloomBits,
		lightOnly:  opts.LightOnly,
		syncSource: opts.SyncSource,
		contacts:   opts.Contacts,
		validators: make(map[cry.PublicKey]comm.PeerID),
		banned:     cache.NewRandSet[comm.PeerID](bannedLimit),
		forks:      newForkTracker(),
		future:     make(map[uint64]*block.LightBlock),
		futureFull: make(map[uint64]*block.Block),
		acks:       make(map[uint64]bool),
	}
	if n.clock == nil {
		n.clock = mclock.System{}
	}
	if n.oracle == nil {
		n.oracle = seal.Oracle{}
	}
	var salt [8]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	n.salt = binary.LittleEndian.Uint64(salt[:])

	poolOpts := opts.TxPool
	if poolOpts.Limit == 0 {
		poolOpts.Limit = 10_000
	}
	if poolOpts.MaxTxSize == 0 {
		poolOpts.MaxTxSize = n.params.MaxTxSize
	}
	if poolOpts.MaxLifetime == 0 {
		poolOpts.MaxLifetime = 20 * time.Minute
	}
	n.poolOpts = poolOpts
	n.pool = txpool.New(poolOpts, n.clock)

	if err := n.open(); err != nil {
		n.closeFiles()
		return nil, err
	}
	now := n.clock.Now()
	n.lastProgress = now
	n.lastMerged = make([]mclock.AbsTime, len(n.st.Shards))
	for i := range n.lastMerged {
		n.lastMerged[i] = now
	}
	n.resetHeight()
	metricChainHeight().Set(int64(n.st.Height))

	// the role is taken on the first poll, so that joining the inner overlay and
	// announcing happen from the poll loop
	role, _ := n.st.Role(n.stakePK(), n.params)
	logger.Info("node ready",
		"height", n.st.Height,
		"account", n.keys.Account.Public().AbbrevString(),
		"stake", n.stakePK().AbbrevString(),
		"role", role,
	)
	return n, nil
}

// Close releases the files. The node must not be polled afterwards.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closeFiles()
}

func (n *Node) closeFiles() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if n.hist != nil {
		keep(n.hist.Close())
	}
	if n.bloom != nil {
		keep(n.bloom.Close())
	}
	if n.store != nil {
		keep(n.store.Close())
	}
	return firstErr
}

// Run polls until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	logger.Debug("enter poll loop")
	defer logger.Debug("leave poll loop")

	timer := n.clock.NewTimer(tickInterval)
	defer timer.Stop()
	for {
		n.Poll()
		if err := n.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-n.bus.Notify():
		case <-n.wake.C():
		case <-timer.C():
			timer.Reset(tickInterval)
		}
	}
}

// Poll drains both overlays until quiescent, then runs the clock-driven transitions.
func (n *Node) Poll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.halted != nil {
		n.discard()
		return
	}
	if !n.started {
		n.start()
	}
	n.updateRole()
	for range maxPollPasses {
		for n.halted == nil {
			in, ok := n.next()
			if !ok {
				break
			}
			n.handle(in)
		}
		if n.halted != nil {
			n.discard()
			return
		}
		n.tick()
		if len(n.loop) == 0 {
			return
		}
	}
}

func (n *Node) next() (comm.Inbound, bool) {
	if len(n.loop) > 0 {
		in := n.loop[0]
		n.loop = n.loop[1:]
		return in, true
	}
	return n.bus.Poll()
}

func (n *Node) handle(in comm.Inbound) {
	self := in.From == n.bus.Self()
	if !self && n.banned.Contains(in.From) {
		return
	}
	var err error
	switch in.Msg.Tag {
	case comm.TagTx:
		err = n.handleTx(in)
	case comm.TagProposal:
		err = n.handleProposal(in)
	case comm.TagCandidate:
		err = n.handleCandidate(in)
	case comm.TagBlock:
		err = n.handleBlock(in)
	case comm.TagLight:
		err = n.handleLight(in)
	case comm.TagCommit:
		err = n.handleCommit(in)
	case comm.TagAggregate:
		err = n.handleAggregate(in)
	case comm.TagResponse:
		err = n.handleResponse(in)
	case comm.TagCountersign:
		err = n.handleCountersign(in)
	case comm.TagAnnounce:
		err = n.handleAnnounce(in)
	case comm.TagSync:
		err = n.handleSync(in)
	case comm.TagAlive, comm.TagTipReply:
		err = n.handleTip(in)
	case comm.TagTip:
		err = n.handleTipRequest(in)
	case comm.TagPeers:
		err = n.handlePeersRequest(in)
	case comm.TagPeerList:
		err = n.handlePeerList(in)
	default:
		logger.Debug("unknown message", "tag", in.Msg.Tag, "from", in.From)
	}
	if err != nil {
		n.reject(in, err)
	}
}

// reject logs a failure by kind. Peers sending invalid data are banned.
// Err returns the error that halted the node, if any.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.halted
}

// mustCheckpoint writes the checkpoint. Failing to do so is the one fatal error: the
// node halts and Run returns it.
func (n *Node) mustCheckpoint() {
	if err := n.checkpoint(); err != nil && n.halted == nil {
		n.halted = errors.WithMessage(err, "checkpoint")
		logger.Error("failed to checkpoint, halting", "height", n.st.Height, "err", err)
	}
}

// discard drops queued input of a halted node.
func (n *Node) discard() {
	n.loop = nil
	for {
		if _, ok := n.bus.Poll(); !ok {
			return
		}
	}
}

func (n *Node) reject(in comm.Inbound, err error) {
	kind := consensus.KindOf(err)
	switch kind {
	case consensus.CryptoInvalid, consensus.ProtocolInvalid:
		if in.From != n.bus.Self() && n.banned.Add(in.From) {
			metricBannedPeerCount().Add(1)
			logger.Warn("peer banned", "peer", in.From, "tag", in.Msg.Tag, "kind", kind, "err", err)
			return
		}
		logger.Debug("message rejected", "tag", in.Msg.Tag, "kind", kind, "err", err)
	case 0:
		logger.Warn("failed to handle message", "tag", in.Msg.Tag, "from", in.From, "err", err)
	default:
		logger.Debug("message rejected", "tag", in.Msg.Tag, "kind", kind, "err", err)
	}
}

// tick runs the transitions driven by the clock.
func (n *Node) tick() {
	now := n.clock.Now()
	n.maintain(now)
	n.checkOverthrow(now)
	n.lead(now)
	n.emptyTick(now)
}

func (n *Node) stakePK() cry.PublicKey { return n.keys.Stake.Public() }

func (n *Node) bnum() uint64 { return n.st.Height + 1 }

// seats returns the distinct stake indices the node holds in the committee of shard,
// and every committee position they occupy.
func (n *Node) seats(shard uint64) (indices, positions []uint64) {
	mine := n.st.Stakes.IndexesOf(n.stakePK())
	if len(mine) == 0 || shard >= uint64(len(n.st.Shards)) {
		return nil, nil
	}
	owned := make(map[uint64]bool, len(mine))
	for _, i := range mine {
		owned[i] = true
	}
	seen := make(map[uint64]bool)
	for pos, idx := range n.st.Shards[shard].Committee {
		if !owned[idx] {
			continue
		}
		positions = append(positions, uint64(pos))
		if !seen[idx] {
			seen[idx] = true
			indices = append(indices, idx)
		}
	}
	return indices, positions
}

// leaderOf returns the elected leader of shard and its key.
func (n *Node) leaderOf(shard uint64) (uint64, cry.PublicKey) {
	idx, _ := n.st.NextLeader(shard, n.params)
	if idx >= uint64(len(n.st.Stakes)) {
		return idx, cry.PublicKey{}
	}
	return idx, n.st.Stakes[idx].PK
}

func (n *Node) isLeader(shard uint64) bool {
	if shard >= uint64(len(n.st.Shards)) {
		return false
	}
	_, pk := n.leaderOf(shard)
	return pk == n.stakePK()
}

// seatCount counts the committee positions held by the given stake indices.
func seatCount(committee []uint64, signers map[uint64]cry.Signature) int {
	count := 0
	for _, idx := range committee {
		if _, ok := signers[idx]; ok {
			count++
		}
	}
	return count
}

func (n *Node) loopback(o comm.Overlay, m comm.Message) {
	n.loop = append(n.loop, comm.Inbound{From: n.bus.Self(), Overlay: o, Msg: m})
}

// broadcast sends m to the overlay and delivers it locally.
func (n *Node) broadcast(o comm.Overlay, m comm.Message) {
	n.bus.Broadcast(o, m)
	n.loopback(o, m)
}

// reply answers a peer, which may be the node itself.
func (n *Node) reply(o comm.Overlay, to comm.PeerID, m comm.Message) {
	if to == n.bus.Self() {
		n.loopback(o, m)
		return
	}
	n.bus.Send(o, []comm.PeerID{to}, m)
}

// sendToKey reaches the holder of a stake key directly when its peer is known and
// through the inner overlay otherwise.
func (n *Node) sendToKey(pk cry.PublicKey, m comm.Message) {
	if pk == n.stakePK() {
		n.loopback(comm.Inner, m)
		return
	}
	if peer, ok := n.validators[pk]; ok {
		n.bus.Send(comm.Inner, []comm.PeerID{peer}, m)
		return
	}
	n.bus.Broadcast(comm.Inner, m)
}

// updateRole recomputes the role and joins or leaves the inner overlay.
func (n *Node) updateRole() {
	role, shard := n.st.Role(n.stakePK(), n.params)
	if role == n.role {
		return
	}
	prev := n.role
	n.role = role
	metricNodeRole().Set(int64(role))
	logger.Info("role changed", "from", prev, "to", role, "shard", shard, "height", n.st.Height)

	switch {
	case role == state.Validator:
		n.bus.Join(comm.Inner, n.validatorPeers())
		n.announce(n.clock.Now())
		n.mustCheckpoint()
	case prev == state.Validator:
		n.bus.Leave(comm.Inner)
	}
	if role == state.PreValidator {
		n.announce(n.clock.Now())
	}
}

func (n *Node) validatorPeers() []comm.PeerID {
	peers := make([]comm.PeerID, 0, len(n.validators))
	for _, p := range n.validators {
		peers = append(peers, p)
	}
	return peers
}

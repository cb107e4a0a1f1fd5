// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"maps"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/state"
)

// emptyState tracks the empty-block multi-signature at the current height. Rounds
// only move forward; a secret answers at most one challenge.
type emptyState struct {
	active     bool
	round      uint64
	roundStart mclock.AbsTime
	secrets    map[uint64]cry.Scalar // by round
	responded  map[uint64]bool

	// leader side
	commits  map[uint64]map[uint64]cry.Point // round -> position -> X_i
	firstAt  map[uint64]mclock.AbsTime
	agg      *aggregation
	excluded map[uint64]bool // positions
	finished bool
}

// aggregation is a challenge the leader is collecting responses for.
type aggregation struct {
	round     uint64
	x         cry.Point
	e         cry.Scalar
	commits   map[uint64]cry.Point // participating positions
	absentees []uint64
	responses map[uint64]cry.Scalar
	at        mclock.AbsTime
}

func newEmptyState() emptyState {
	return emptyState{
		secrets:   make(map[uint64]cry.Scalar),
		responded: make(map[uint64]bool),
		commits:   make(map[uint64]map[uint64]cry.Point),
		firstAt:   make(map[uint64]mclock.AbsTime),
		excluded:  make(map[uint64]bool),
	}
}

// restart opens a fresh round, used when the leader changes.
func (e *emptyState) restart(now mclock.AbsTime) {
	if e.active {
		e.advance(now)
	}
	clear(e.commits)
	clear(e.firstAt)
	clear(e.excluded)
	e.agg = nil
	e.finished = false
}

func (e *emptyState) advance(now mclock.AbsTime) {
	e.round++
	e.roundStart = now
	for r := range e.commits {
		if r+1 < e.round {
			delete(e.commits, r)
			delete(e.firstAt, r)
		}
	}
}

// adopt follows a later round seen from the leader.
func (e *emptyState) adopt(round uint64, now mclock.AbsTime) {
	if round > e.round || !e.active {
		e.active = true
		e.round = max(e.round, round)
		e.roundStart = now
	}
}

func (n *Node) roundDuration() time.Duration {
	return 3 * n.params.ResponseTimeout
}

// emptyTick starts, retries and aggregates empty rounds.
func (n *Node) emptyTick(now mclock.AbsTime) {
	e := &n.cur.empty
	_, positions := n.seats(state.HeadShard)
	if len(positions) == 0 {
		return
	}
	if lead := n.cur.leading[state.HeadShard]; lead != nil && lead.done {
		return
	}

	if !e.active {
		since := n.cur.started
		if n.cur.proposalSeen > since {
			since = n.cur.proposalSeen
		}
		if now.Sub(since) < n.params.EmptyRoundTimeout {
			return
		}
		e.active = true
		e.roundStart = now
		metricEmptyRoundCount().Add(1)
		logger.Debug("empty round started", "number", n.cur.number, "round", e.round)
	} else if now.Sub(e.roundStart) >= n.roundDuration() {
		e.advance(now)
		metricEmptyRoundCount().Add(1)
		logger.Debug("empty round retried", "number", n.cur.number, "round", e.round, "excluded", len(e.excluded))
	}

	if _, ok := e.secrets[e.round]; !ok {
		n.sendCommits(positions)
	}
	if n.isLeader(state.HeadShard) {
		n.aggregateTick(now)
	}
}

func (n *Node) sendCommits(positions []uint64) {
	e := &n.cur.empty
	x := cry.CommitSecret(n.keys.Stake, n.cur.number, n.salt^e.round)
	e.secrets[e.round] = x
	X := cry.Commitment(x)

	_, leaderPK := n.leaderOf(state.HeadShard)
	for _, pos := range positions {
		m := &commitMsg{Number: n.cur.number, Round: e.round, Position: pos, X: X}
		m.Sig = cry.SignNonced(m.payload(), m.Number, n.keys.Stake)
		n.sendToKey(leaderPK, comm.MustMessage(comm.TagCommit, m))
	}
}

func (n *Node) handleCommit(in comm.Inbound) error {
	var m commitMsg
	if err := in.Msg.Decode(&m); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	if m.Number != n.cur.number || !n.isLeader(state.HeadShard) {
		return nil
	}
	committee := n.st.Shards[state.HeadShard].Committee
	if m.Position >= uint64(len(committee)) {
		return consensus.New(consensus.ProtocolInvalid, "commit position %d out of committee", m.Position)
	}
	pk := n.st.Stakes[committee[m.Position]].PK
	if !m.Sig.Verify(m.payload(), m.Number, pk) {
		return consensus.New(consensus.CryptoInvalid, "commit signature of position %d", m.Position)
	}

	e := &n.cur.empty
	if e.excluded[m.Position] || m.Round+1 < e.round {
		return nil
	}
	commits, ok := e.commits[m.Round]
	if !ok {
		commits = make(map[uint64]cry.Point)
		e.commits[m.Round] = commits
		e.firstAt[m.Round] = n.clock.Now()
	}
	commits[m.Position] = m.X
	return nil
}

// aggregateTick publishes the sum of a round's commits once every eligible position
// committed, or after the response timeout with at least a quorum.
func (n *Node) aggregateTick(now mclock.AbsTime) {
	e := &n.cur.empty
	if e.finished {
		return
	}
	committee := n.st.Shards[state.HeadShard].Committee
	cutoff := n.params.SigningCutoff()

	if a := e.agg; a != nil {
		if now.Sub(a.at) < n.params.ResponseTimeout {
			return
		}
		for pos := range a.commits {
			if _, ok := a.responses[pos]; !ok {
				e.excluded[pos] = true
			}
		}
		if len(committee)-len(e.excluded) < cutoff {
			clear(e.excluded)
		}
		logger.Debug("empty aggregation expired", "number", n.cur.number, "round", a.round,
			"responses", len(a.responses), "participants", len(a.commits))
		e.agg = nil
		return
	}

	rounds := slices.Sorted(maps.Keys(e.commits))
	slices.Reverse(rounds)
	for _, r := range rounds {
		commits := make(map[uint64]cry.Point)
		for pos, X := range e.commits[r] {
			if !e.excluded[pos] {
				commits[pos] = X
			}
		}
		full := len(commits) == len(committee)-len(e.excluded)
		late := now.Sub(e.firstAt[r]) >= n.params.ResponseTimeout && len(commits) >= cutoff
		if !full && !late {
			continue
		}
		n.aggregate(r, commits, now)
		delete(e.commits, r)
		return
	}
}

func (n *Node) aggregate(round uint64, commits map[uint64]cry.Point, now mclock.AbsTime) {
	e := &n.cur.empty
	committee := n.st.Shards[state.HeadShard].Committee

	positions := slices.Sorted(maps.Keys(commits))
	points := make([]cry.Point, 0, len(positions))
	for _, pos := range positions {
		points = append(points, commits[pos])
	}
	X, err := cry.SumPoints(points...)
	if err != nil || X.IsIdentity() {
		logger.Warn("failed to aggregate commits", "number", n.cur.number, "round", round, "err", err)
		return
	}
	var absentees []uint64
	for pos := range committee {
		if _, ok := commits[uint64(pos)]; !ok {
			absentees = append(absentees, uint64(pos))
		}
	}

	leaderIdx, leaderPK := n.leaderOf(state.HeadShard)
	e.agg = &aggregation{
		round:     round,
		x:         X,
		e:         cry.Challenge(block.EmptyMessage(leaderPK, n.st.LastName, state.HeadShard), X),
		commits:   commits,
		absentees: absentees,
		responses: make(map[uint64]cry.Scalar),
		at:        now,
	}
	m := &aggregateMsg{Number: n.cur.number, Round: round, Leader: leaderIdx, X: X, Absentees: absentees}
	m.Sig = cry.SignNonced(m.payload(), m.Number, n.keys.Stake)
	logger.Debug("commits aggregated", "number", n.cur.number, "round", round, "participants", len(commits))
	n.broadcast(comm.Inner, comm.MustMessage(comm.TagAggregate, m))
}

func (n *Node) handleAggregate(in comm.Inbound) error {
	var m aggregateMsg
	if err := in.Msg.Decode(&m); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	if m.Number != n.cur.number {
		return nil
	}
	leaderIdx, leaderPK := n.leaderOf(state.HeadShard)
	if m.Leader != leaderIdx {
		return nil
	}
	if !m.Sig.Verify(m.payload(), m.Number, leaderPK) {
		return consensus.New(consensus.CryptoInvalid, "aggregate signature")
	}

	e := &n.cur.empty
	e.adopt(m.Round, n.clock.Now())
	x, ok := e.secrets[m.Round]
	if !ok || e.responded[m.Round] {
		return nil
	}
	_, positions := n.seats(state.HeadShard)
	absent := make(map[uint64]bool, len(m.Absentees))
	for _, pos := range m.Absentees {
		absent[pos] = true
	}
	challenge := cry.Challenge(block.EmptyMessage(leaderPK, n.st.LastName, state.HeadShard), m.X)
	y := cry.Respond(x, n.keys.Stake, challenge)
	e.responded[m.Round] = true

	for _, pos := range positions {
		if absent[pos] {
			continue
		}
		r := &responseMsg{Number: m.Number, Round: m.Round, Position: pos, Y: y}
		r.Sig = cry.SignNonced(r.payload(), r.Number, n.keys.Stake)
		n.sendToKey(leaderPK, comm.MustMessage(comm.TagResponse, r))
	}
	return nil
}

func (n *Node) handleResponse(in comm.Inbound) error {
	var m responseMsg
	if err := in.Msg.Decode(&m); err != nil {
		return consensus.New(consensus.ProtocolInvalid, "%v", err)
	}
	e := &n.cur.empty
	a := e.agg
	if m.Number != n.cur.number || a == nil || a.round != m.Round || !n.isLeader(state.HeadShard) {
		return nil
	}
	X, ok := a.commits[m.Position]
	if !ok {
		return nil
	}
	committee := n.st.Shards[state.HeadShard].Committee
	pk := n.st.Stakes[committee[m.Position]].PK
	if !m.Sig.Verify(m.payload(), m.Number, pk) {
		return consensus.New(consensus.CryptoInvalid, "response signature of position %d", m.Position)
	}
	if !cry.CheckResponse(X, pk, a.e, m.Y) {
		e.excluded[m.Position] = true
		return consensus.New(consensus.CryptoInvalid, "response of position %d fails its commit", m.Position)
	}
	a.responses[m.Position] = m.Y
	if len(a.responses) == len(a.commits) {
		n.finishEmpty(a)
	}
	return nil
}

func (n *Node) finishEmpty(a *aggregation) {
	e := &n.cur.empty
	ys := make([]cry.Scalar, 0, len(a.responses))
	for _, pos := range slices.Sorted(maps.Keys(a.responses)) {
		ys = append(ys, a.responses[pos])
	}
	ms := &block.MultiSignature{X: a.x, Y: cry.SumScalars(ys...), Absentees: a.absentees}

	leaderIdx, _ := n.leaderOf(state.HeadShard)
	forker := n.forks.evidence(n.st.Stakes, n.cur.number)
	b := block.NewEmpty(leaderIdx, n.keys.Stake, state.HeadShard, n.cur.number, n.st.LastName, ms, forker)

	e.agg = nil
	e.finished = true
	metricBlockProposedCount().AddWithLabel(1, map[string]string{"kind": "empty"})
	logger.Info("empty block sealed",
		"number", n.cur.number,
		"round", a.round,
		"absentees", len(a.absentees),
		"forker", forker != nil,
	)
	n.broadcast(comm.Outer, comm.MustMessage(comm.TagBlock, b))
}

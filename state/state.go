// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package state holds the consensus state every participant derives from finalised blocks.
package state

import (
	"io"
	"slices"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/log"
	"github.com/sile/Khora-sub000/schedule"
	"github.com/sile/Khora-sub000/stake"
)

var logger = log.WithContext("pkg", "state")

// HeadShard is the shard whose committee finalises blocks.
const HeadShard = 0

// State is the consensus state after applying blocks up to Height.
type State struct {
	Height        uint64
	HistoryHeight uint64
	LastName      khora.Bytes32
	Stakes        stake.Set
	Shards        []schedule.Shard
	Votes         []int64  // per head committee position
	Overthrown    []uint64 // stake indices
}

// Genesis creates the state at height 0. name seeds the schedules.
func Genesis(name khora.Bytes32, stakes stake.Set, shards int, params *khora.Params) (*State, error) {
	if shards <= 0 || shards > khora.MaxShards {
		return nil, errors.Errorf("invalid shard count %d", shards)
	}
	s := &State{
		LastName: name,
		Stakes:   stakes.Copy(),
		Votes:    make([]int64, params.NumberOfValidators),
	}
	for i := range shards {
		sh, err := schedule.Genesis(name, uint64(i), s.Stakes, params)
		if err != nil {
			return nil, err
		}
		s.Shards = append(s.Shards, *sh)
	}
	return s, nil
}

// Copy returns a deep copy.
func (s *State) Copy() *State {
	cpy := *s
	cpy.Stakes = s.Stakes.Copy()
	cpy.Shards = make([]schedule.Shard, len(s.Shards))
	for i := range s.Shards {
		cpy.Shards[i] = s.Shards[i].Copy()
	}
	cpy.Votes = slices.Clone(s.Votes)
	cpy.Overthrown = slices.Clone(s.Overthrown)
	return &cpy
}

// CommitteeOf returns the committee of a shard, or nil if the shard does not exist.
func (s *State) CommitteeOf(shard uint64) []uint64 {
	if shard >= uint64(len(s.Shards)) {
		return nil
	}
	return slices.Clone(s.Shards[shard].Committee)
}

// Overthrow marks a stake index as unfit to lead until the next vote reset.
func (s *State) Overthrow(index uint64) {
	if !slices.Contains(s.Overthrown, index) {
		s.Overthrown = append(s.Overthrown, index)
	}
}

// NextLeader elects the leader of a shard: the committee member with the most votes,
// skipping members about to exit and overthrown members. Ties go to the lowest
// position. Exclusions are relaxed when they leave nobody.
func (s *State) NextLeader(shard uint64, params *khora.Params) (index, position uint64) {
	if shard >= uint64(len(s.Shards)) || len(s.Shards[shard].Committee) == 0 {
		return 0, 0
	}
	sh := &s.Shards[shard]
	exiting := sh.Exiting(params.LeaderExitLookahead)

	votes := func(pos int) int64 {
		if shard == HeadShard && pos < len(s.Votes) {
			return s.Votes[pos]
		}
		return 0
	}
	pick := func(skipExiting, skipOverthrown bool) (uint64, uint64, bool) {
		best := -1
		for pos, idx := range sh.Committee {
			if skipExiting && slices.Contains(exiting, idx) {
				continue
			}
			if skipOverthrown && slices.Contains(s.Overthrown, idx) {
				continue
			}
			if best < 0 || votes(pos) > votes(best) {
				best = pos
			}
		}
		if best < 0 {
			return 0, 0, false
		}
		return sh.Committee[best], uint64(best), true
	}
	for _, rule := range [][2]bool{{true, true}, {false, true}, {false, false}} {
		if idx, pos, ok := pick(rule[0], rule[1]); ok {
			return idx, pos
		}
	}
	return sh.Committee[0], 0
}

// Role is what a key does in the protocol.
type Role int

const (
	Staker Role = iota
	PreValidator
	Validator
)

func (r Role) String() string {
	switch r {
	case PreValidator:
		return "pre-validator"
	case Validator:
		return "validator"
	}
	return "staker"
}

// Role classifies a stake key against the head shard schedule. shard is the first
// shard whose committee holds the key, meaningful only for validators.
func (s *State) Role(pk cry.PublicKey, params *khora.Params) (role Role, shard uint64) {
	indices := s.Stakes.IndexesOf(pk)
	if len(indices) == 0 || len(s.Shards) == 0 {
		return Staker, 0
	}
	for i := range s.Shards {
		for _, idx := range indices {
			if slices.Contains(s.Shards[i].Committee, idx) {
				return Validator, uint64(i)
			}
		}
	}
	head := &s.Shards[HeadShard]
	entering := head.Entering(params.ReplaceRate)
	warned := head.Warned(params.WarningTime)
	for _, idx := range indices {
		if slices.Contains(entering, idx) {
			return Validator, HeadShard
		}
	}
	for _, idx := range indices {
		if slices.Contains(warned, idx) {
			return PreValidator, HeadShard
		}
	}
	return Staker, 0
}

type stateRLP struct {
	Height        uint64
	HistoryHeight uint64
	LastName      khora.Bytes32
	Stakes        stake.Set
	Shards        []schedule.Shard
	Votes         []uint64
	Overthrown    []uint64
}

// EncodeRLP implements rlp.Encoder. Votes are stored in two's complement.
func (s *State) EncodeRLP(w io.Writer) error {
	votes := make([]uint64, len(s.Votes))
	for i, v := range s.Votes {
		votes[i] = uint64(v)
	}
	return rlp.Encode(w, &stateRLP{
		s.Height, s.HistoryHeight, s.LastName, s.Stakes, s.Shards, votes, s.Overthrown,
	})
}

// DecodeRLP implements rlp.Decoder.
func (s *State) DecodeRLP(st *rlp.Stream) error {
	var dec stateRLP
	if err := st.Decode(&dec); err != nil {
		return err
	}
	votes := make([]int64, len(dec.Votes))
	for i, v := range dec.Votes {
		votes[i] = int64(v)
	}
	*s = State{dec.Height, dec.HistoryHeight, dec.LastName, dec.Stakes, dec.Shards, votes, dec.Overthrown}
	return nil
}

// Digest commits to the whole state. Honest nodes at the same height agree on it.
func (s *State) Digest() khora.Bytes32 {
	return khora.Blake2bFn(func(w io.Writer) {
		rlp.Encode(w, s)
	})
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"slices"

	"github.com/sile/Khora-sub000/block"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/schedule"
	"github.com/sile/Khora-sub000/stake"
)

// Outcome reports what applying a block did. Indices refer to the stake set before
// the block unless stated otherwise.
type Outcome struct {
	Winners    []uint64 // one entry per winning committee seat
	Masochists []uint64 // one entry per seat that failed to sign
	Feelovers  []uint64
	Lucky      []uint64

	Inflation uint64 // credited per winner seat
	Fee       uint64 // credited per feelover
	Pot       uint64 // punishments redistributed to lucky

	Rewards map[uint64]int64 // net change per stake index
	Removed []uint64         // removed indices, descending, in removal order
	Forker  bool             // forker entries were removed
	Added   int              // entries appended

	Entrants [][]uint64 // per shard, after the stake update
}

func (o *Outcome) credit(stakes stake.Set, idx, amount uint64) {
	if idx >= uint64(len(stakes)) || amount == 0 {
		return
	}
	stakes[idx].Amount += amount
	o.Rewards[idx] += int64(amount)
}

func (o *Outcome) debit(stakes stake.Set, idx, amount uint64) uint64 {
	if idx >= uint64(len(stakes)) {
		return 0
	}
	amount = min(amount, stakes[idx].Amount)
	stakes[idx].Amount -= amount
	o.Rewards[idx] -= int64(amount)
	return amount
}

// inflation returns the per-winner inflation at bnum.
func inflation(bnum uint64, winners int, params *khora.Params) uint64 {
	if winners == 0 {
		return 0
	}
	halvings := bnum / params.InflationExponent
	if halvings >= 64 {
		return 0
	}
	return (params.InflationConstant >> halvings) / uint64(winners)
}

// lucky returns who receives punishments: the committee of the shard after the
// highest merged one, or the head shard's next entrant when that shard does not exist.
func (s *State) lucky(shards []uint64) []uint64 {
	next := slices.Max(shards) + 1
	if next < uint64(len(s.Shards)) {
		return slices.Clone(s.Shards[next].Committee)
	}
	head := &s.Shards[HeadShard]
	if len(head.Entry) > 0 {
		return []uint64{head.Entry[0]}
	}
	return nil
}

// Apply applies a verified block at height Height+1. The state is left untouched on error.
func (s *State) Apply(lb *block.LightBlock, params *khora.Params) (*Outcome, error) {
	next := s.Copy()
	o, err := next.apply(lb, params)
	if err != nil {
		return nil, err
	}
	*s = *next
	return o, nil
}

func (s *State) apply(lb *block.LightBlock, params *khora.Params) (*Outcome, error) {
	h := lb.Header()
	if h.Number() != s.Height+1 {
		return nil, consensus.New(consensus.StateMismatch, "block %d does not follow %d", h.Number(), s.Height)
	}
	if h.LastName() != s.LastName {
		return nil, consensus.New(consensus.StateMismatch, "block %d last name %v, want %v",
			h.Number(), h.LastName().AbbrevString(), s.LastName.AbbrevString())
	}
	shards := h.Shards()
	if len(shards) == 0 || shards[0] != HeadShard {
		return nil, consensus.New(consensus.ProtocolInvalid, "block not headed by shard %d", HeadShard)
	}
	for _, sh := range shards {
		if sh >= uint64(len(s.Shards)) {
			return nil, consensus.New(consensus.StateMismatch, "unknown shard %d", sh)
		}
	}

	o := &Outcome{Rewards: make(map[uint64]int64)}
	committee := s.Shards[HeadShard].Committee

	// 1. rewards and punishments
	var signedSeat []bool
	if ms := h.Emptiness(); ms != nil {
		signedSeat = make([]bool, len(committee))
		for i := range signedSeat {
			signedSeat[i] = true
		}
		for _, pos := range ms.Absentees {
			if pos < uint64(len(signedSeat)) {
				signedSeat[pos] = false
			}
		}
	} else {
		signers := make(map[uint64]bool)
		for _, v := range h.Validators() {
			signers[v.Index] = true
		}
		signedSeat = make([]bool, len(committee))
		for pos, idx := range committee {
			signedSeat[pos] = signers[idx]
		}
	}
	for pos, idx := range committee {
		if signedSeat[pos] {
			o.Winners = append(o.Winners, idx)
		} else {
			o.Masochists = append(o.Masochists, idx)
		}
	}
	o.Feelovers = slices.Clone(o.Winners)
	for _, sh := range shards[1:] {
		o.Feelovers = append(o.Feelovers, s.Shards[sh].Committee...)
	}
	o.Lucky = s.lucky(shards)

	o.Inflation = inflation(h.Number(), len(o.Winners), params)
	for _, idx := range o.Winners {
		o.credit(s.Stakes, idx, o.Inflation)
	}
	if len(o.Feelovers) > 0 {
		o.Fee = lb.Delta().Fees / uint64(len(o.Feelovers))
		for _, idx := range o.Feelovers {
			o.credit(s.Stakes, idx, o.Fee)
		}
	}
	for _, idx := range o.Masochists {
		if idx < uint64(len(s.Stakes)) {
			o.Pot += o.debit(s.Stakes, idx, s.Stakes[idx].Amount/params.PunishmentFraction)
		}
	}
	o.distributePot(s.Stakes)

	// 6 (votes are positional, so they are counted before the committee moves)
	for pos := range committee {
		if pos >= len(s.Votes) {
			break
		}
		switch {
		case signedSeat[pos]:
			s.Votes[pos]++
		case h.IsEmpty():
			s.Votes[pos]--
		}
	}

	// 2, 3. stake set update and padding
	var forkerPK *cry.PublicKey
	if f := h.Forker(); f != nil {
		if pk, ok := f.PK(s.Stakes); ok {
			forkerPK = &pk
		}
	}
	seated := s.seatKeys()
	delta := lb.Delta()
	s.removeStake(delta.StakeOut, o)
	s.Stakes = append(s.Stakes, delta.StakeIn...)
	o.Added = len(delta.StakeIn)
	if forkerPK != nil {
		if idx := s.Stakes.IndexesOf(*forkerPK); len(idx) > 0 {
			o.Forker = true
			s.removeStake(idx, o)
			logger.Info("forker removed", "number", h.Number(), "pk", forkerPK.AbbrevString(), "entries", len(idx))
		}
	}
	if err := s.pad(seated, params); err != nil {
		return nil, err
	}

	// 4. history
	s.HistoryHeight += uint64(len(delta.TxOut))

	// 6. vote reset, rotation, chaining
	name := h.Name()
	if err := s.advance(name, h.Number(), o, params); err != nil {
		return nil, err
	}
	s.LastName = name
	return o, nil
}

func (o *Outcome) distributePot(stakes stake.Set) {
	if o.Pot == 0 || len(o.Lucky) == 0 {
		return
	}
	n := uint64(len(o.Lucky))
	share, rem := o.Pot/n, o.Pot%n
	for i, idx := range o.Lucky {
		amount := share
		if uint64(i) < rem {
			amount++
		}
		o.credit(stakes, idx, amount)
	}
}

// seatKeys returns the key seated at every head committee position.
func (s *State) seatKeys() []cry.PublicKey {
	committee := s.Shards[HeadShard].Committee
	keys := make([]cry.PublicKey, len(committee))
	for pos, idx := range committee {
		if idx < uint64(len(s.Stakes)) {
			keys[pos] = s.Stakes[idx].PK
		}
	}
	return keys
}

// removeStake deletes stake entries and rewrites every index that refers to the set.
func (s *State) removeStake(indices []uint64, o *Outcome) {
	removed := s.Stakes.Remove(indices)
	if len(removed) == 0 {
		return
	}
	o.Removed = append(o.Removed, removed...)
	for i := range s.Shards {
		s.Shards[i].RemoveStake(removed)
	}
	s.Overthrown = schedule.ShiftIndices(s.Overthrown, removed)
}

// pad restores schedule lengths and clears the votes of head seats whose holder changed.
func (s *State) pad(seated []cry.PublicKey, params *khora.Params) error {
	for i := range s.Shards {
		if err := s.Shards[i].Pad(s.Stakes, params); err != nil {
			return consensus.New(consensus.SelfInconsistency, "pad shard %d: %v", i, err)
		}
	}
	for pos, key := range s.seatKeys() {
		if pos < len(s.Votes) && (pos >= len(seated) || seated[pos] != key) {
			s.Votes[pos] = 0
		}
	}
	return nil
}

// advance resets votes when due, rotates every shard with the given name and moves to bnum.
func (s *State) advance(name khora.Bytes32, bnum uint64, o *Outcome, params *khora.Params) error {
	if bnum%params.VoteResetPeriod == 0 {
		clear(s.Votes)
		s.Overthrown = nil
	}
	o.Entrants = make([][]uint64, len(s.Shards))
	for i := range s.Shards {
		entrants, exits, err := s.Shards[i].Rotate(name, bnum, uint64(i), s.Stakes, params)
		if err != nil {
			return consensus.New(consensus.SelfInconsistency, "rotate shard %d: %v", i, err)
		}
		o.Entrants[i] = entrants
		if i == HeadShard {
			for _, pos := range exits {
				if pos < uint64(len(s.Votes)) {
					s.Votes[pos] = 0
				}
			}
		}
	}
	s.Height = bnum
	return nil
}

// Skip advances over a height for which no block is known, as an empty block signed by
// the whole head committee: inflation is paid and the schedules rotate.
func (s *State) Skip(params *khora.Params) (*Outcome, error) {
	next := s.Copy()
	o, err := next.skip(params)
	if err != nil {
		return nil, err
	}
	*s = *next
	return o, nil
}

func (s *State) skip(params *khora.Params) (*Outcome, error) {
	o := &Outcome{Rewards: make(map[uint64]int64)}
	o.Winners = slices.Clone(s.Shards[HeadShard].Committee)
	o.Feelovers = slices.Clone(o.Winners)
	bnum := s.Height + 1
	o.Inflation = inflation(bnum, len(o.Winners), params)
	for _, idx := range o.Winners {
		o.credit(s.Stakes, idx, o.Inflation)
	}
	if err := s.advance(s.LastName, bnum, o, params); err != nil {
		return nil, err
	}
	return o, nil
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package schedule rotates validator committees.
package schedule

import (
	"encoding/binary"
	"io"
	"slices"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/stake"
)

// ErrNoStake is returned when a draw is requested from an empty or zero-weight stake set.
var ErrNoStake = errors.New("schedule: no stake to select from")

const (
	keyEntry = 0
	keyExit  = 1
)

// Shard is the schedule of one shard. Committee and Entry hold stake-set indices,
// Exit holds committee positions.
type Shard struct {
	Committee []uint64
	Entry     []uint64
	Exit      []uint64
}

// Copy returns a deep copy.
func (s *Shard) Copy() Shard {
	return Shard{
		Committee: slices.Clone(s.Committee),
		Entry:     slices.Clone(s.Entry),
		Exit:      slices.Clone(s.Exit),
	}
}

// drawer is a counter-mode keyed hash stream.
type drawer struct {
	seed    khora.Bytes32
	counter uint64
}

func newDrawer(key byte, shardID uint64, name khora.Bytes32, bnum uint64) *drawer {
	return &drawer{
		seed: khora.KeyedBlake2b([]byte{key}, khora.Uint64Bytes(shardID), name[:], khora.Uint64Bytes(bnum)),
	}
}

func (d *drawer) next() *uint256.Int {
	h := khora.Blake2b(d.seed[:], khora.Uint64Bytes(d.counter))
	d.counter++
	return new(uint256.Int).SetBytes32(h[:])
}

// SelectWeighted maps r onto a stake index with probability proportional to the entry amount.
func SelectWeighted(stakes stake.Set, r *uint256.Int) (uint64, error) {
	total := stakes.Total()
	if total.IsZero() {
		return 0, ErrNoStake
	}
	target := new(uint256.Int).Mod(r, total)
	acc := new(uint256.Int)
	for i, e := range stakes {
		acc.AddUint64(acc, e.Amount)
		if target.Lt(acc) {
			return uint64(i), nil
		}
	}
	// unreachable: target < total == acc after the loop
	return uint64(len(stakes) - 1), nil
}

func drawStakes(d *drawer, stakes stake.Set, n uint64) ([]uint64, error) {
	out := make([]uint64, 0, n)
	for range n {
		i, err := SelectWeighted(stakes, d.next())
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

func drawPositions(d *drawer, validators, n uint64) []uint64 {
	out := make([]uint64, 0, n)
	for range n {
		out = append(out, d.next().Uint64()%validators)
	}
	return out
}

// Genesis creates the initial schedule of a shard. The committee cycles through the
// stake set in order, both queues are filled with draws seeded by the genesis name.
func Genesis(name khora.Bytes32, shardID uint64, stakes stake.Set, params *khora.Params) (*Shard, error) {
	if len(stakes) == 0 {
		return nil, ErrNoStake
	}
	s := &Shard{Committee: make([]uint64, params.NumberOfValidators)}
	for i := range s.Committee {
		s.Committee[i] = uint64(i) % uint64(len(stakes))
	}
	var err error
	if s.Entry, err = drawStakes(newDrawer(keyEntry, shardID, name, 0), stakes, params.QueueLength); err != nil {
		return nil, err
	}
	s.Exit = drawPositions(newDrawer(keyExit, shardID, name, 0), params.NumberOfValidators, params.QueueLength)
	return s, nil
}

// Rotate advances the schedule by one block. It returns the entering stake indices and
// the committee positions they took.
func (s *Shard) Rotate(prevName khora.Bytes32, bnum, shardID uint64, stakes stake.Set, params *khora.Params) (entrants, exits []uint64, err error) {
	n := params.ReplaceRate

	drawn, err := drawStakes(newDrawer(keyEntry, shardID, prevName, bnum), stakes, n)
	if err != nil {
		return nil, nil, err
	}
	s.Entry = append(s.Entry, drawn...)
	entrants = slices.Clone(s.Entry[:n])
	s.Entry = slices.Clone(s.Entry[n:])

	s.Exit = append(s.Exit, drawPositions(newDrawer(keyExit, shardID, prevName, bnum), params.NumberOfValidators, n)...)
	exits = slices.Clone(s.Exit[:n])
	s.Exit = slices.Clone(s.Exit[n:])

	for i, pos := range exits {
		if pos < uint64(len(s.Committee)) {
			s.Committee[pos] = entrants[i]
		}
	}
	return entrants, exits, nil
}

// ShiftIndices drops removed indices from seq and renumbers the others. removed
// must be sorted descending and free of duplicates.
func ShiftIndices(seq []uint64, removed []uint64) []uint64 {
	out := seq[:0]
	for _, v := range seq {
		below := 0
		gone := false
		for _, r := range removed {
			if r == v {
				gone = true
				break
			}
			if r < v {
				below++
			}
		}
		if !gone {
			out = append(out, v-uint64(below))
		}
	}
	return out
}

// RemoveStake rewrites committee and entry queue after the stake entries at the given
// indices (sorted descending) left the set. Sequences may shrink; call Pad afterwards.
func (s *Shard) RemoveStake(removed []uint64) {
	if len(removed) == 0 {
		return
	}
	s.Committee = ShiftIndices(s.Committee, removed)
	s.Entry = ShiftIndices(s.Entry, removed)
}

// chain is a hash chain seeded by the contents it pads.
type chain khora.Bytes32

func seedChain(kind string, seq []uint64) *chain {
	c := chain(khora.Blake2bFn(func(w io.Writer) {
		w.Write([]byte(kind))
		rlp.Encode(w, seq)
	}))
	return &c
}

func (c *chain) next() uint64 {
	*c = chain(khora.Blake2b(c[:]))
	return binary.BigEndian.Uint64(c[:8])
}

func padFromSelf(kind string, seq []uint64, target uint64) []uint64 {
	base := slices.Clone(seq)
	c := seedChain(kind, base)
	for uint64(len(seq)) < target {
		seq = append(seq, base[c.next()%uint64(len(base))])
	}
	return seq
}

func padFromStakes(kind string, stakes stake.Set, target uint64) ([]uint64, error) {
	digest := stakes.Digest()
	d := &drawer{seed: khora.Blake2b([]byte(kind), digest[:])}
	return drawStakes(d, stakes, target)
}

// Pad restores committee and queue lengths. Remaining elements are resampled through a
// hash chain seeded by the sequence itself; a sequence left empty is refilled by
// stake-weighted draws.
func (s *Shard) Pad(stakes stake.Set, params *khora.Params) error {
	pad := func(kind string, seq []uint64, target uint64) ([]uint64, error) {
		switch {
		case uint64(len(seq)) >= target:
			return seq, nil
		case len(seq) == 0:
			return padFromStakes(kind, stakes, target)
		default:
			return padFromSelf(kind, seq, target), nil
		}
	}
	var err error
	if s.Committee, err = pad("committee", s.Committee, params.NumberOfValidators); err != nil {
		return err
	}
	if s.Entry, err = pad("entry", s.Entry, params.QueueLength); err != nil {
		return err
	}
	if uint64(len(s.Exit)) < params.QueueLength {
		if len(s.Exit) == 0 {
			s.Exit = drawPositions(&drawer{seed: khora.Blake2b([]byte("exit"))}, params.NumberOfValidators, params.QueueLength)
		} else {
			s.Exit = padFromSelf("exit", s.Exit, params.QueueLength)
		}
	}
	return nil
}

// Exiting returns the stake indices leaving the committee in the next lookahead exit slots.
func (s *Shard) Exiting(lookahead uint64) []uint64 {
	var out []uint64
	for i, pos := range s.Exit {
		if uint64(i) >= lookahead {
			break
		}
		if pos < uint64(len(s.Committee)) {
			out = append(out, s.Committee[pos])
		}
	}
	return out
}

// Position returns the first committee position held by stake index i.
func (s *Shard) Position(i uint64) (uint64, bool) {
	if p := slices.Index(s.Committee, i); p >= 0 {
		return uint64(p), true
	}
	return 0, false
}

// Entering returns the stake indices that join at the next n rotations.
func (s *Shard) Entering(n uint64) []uint64 {
	return slices.Clone(s.Entry[:min(n, uint64(len(s.Entry)))])
}

// Warned returns the stake indices in the last n positions of the entry queue.
func (s *Shard) Warned(n uint64) []uint64 {
	l := uint64(len(s.Entry))
	return slices.Clone(s.Entry[l-min(n, l):])
}

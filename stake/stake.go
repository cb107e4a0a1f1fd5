// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package stake holds the ordered stake set. Every committee seat and queue slot
// refers to validators by their index in this set.
package stake

import (
	"os"
	"slices"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/renameio/v2"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
)

// Entry is a stake: the validator key and the staked amount.
type Entry struct {
	PK     cry.PublicKey
	Amount uint64
}

// Set is the ordered stake set.
type Set []Entry

// Total returns the sum of all amounts.
func (s Set) Total() *uint256.Int {
	total := new(uint256.Int)
	for _, e := range s {
		total.AddUint64(total, e.Amount)
	}
	return total
}

// IndexesOf returns the ascending indices of entries owned by pk.
func (s Set) IndexesOf(pk cry.PublicKey) []uint64 {
	var out []uint64
	for i, e := range s {
		if e.PK == pk {
			out = append(out, uint64(i))
		}
	}
	return out
}

// Copy returns a deep copy.
func (s Set) Copy() Set {
	return slices.Clone(s)
}

// Remove deletes the given indices, ignoring duplicates and indices out of range,
// and returns the removed indices in descending order.
func (s *Set) Remove(indices []uint64) []uint64 {
	removed := NormalizeRemoval(indices, uint64(len(*s)))
	for _, i := range removed {
		*s = slices.Delete(*s, int(i), int(i)+1)
	}
	return removed
}

// NormalizeRemoval sorts indices descending, dropping duplicates and those >= n.
func NormalizeRemoval(indices []uint64, n uint64) []uint64 {
	out := make([]uint64, 0, len(indices))
	for _, i := range indices {
		if i < n {
			out = append(out, i)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	slices.Reverse(out)
	return out
}

// Digest commits to the whole set.
func (s Set) Digest() khora.Bytes32 {
	data, err := rlp.EncodeToBytes(s)
	if err != nil {
		panic(err)
	}
	return khora.Blake2b(data)
}

// Save writes the set to path atomically.
func Save(path string, s Set) error {
	data, err := rlp.EncodeToBytes(s)
	if err != nil {
		return err
	}
	return errors.Wrap(renameio.WriteFile(path, data, 0o600), "write stake file")
}

// Load reads a set written by Save.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Set
	if err := rlp.DecodeBytes(data, &s); err != nil {
		return nil, errors.Wrap(err, "decode stake file")
	}
	return s, nil
}

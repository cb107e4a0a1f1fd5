// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"github.com/sile/Khora-sub000/khora"
)

// SpentChecker reports tags already spent, typically the bloom filter.
type SpentChecker interface {
	Contains(tag khora.Bytes32) bool
}

// DropReason tells why intake filtering discarded a tx.
type DropReason string

const (
	DropDuplicateStake DropReason = "duplicate-stake-input"
	DropDuplicateTag   DropReason = "duplicate-tag"
	DropSpentTag       DropReason = "spent-tag"
	DropDuplicateTx    DropReason = "duplicate-tx"
)

// Dropped is a tx rejected by Filter.
type Dropped struct {
	ID     khora.Bytes32
	Reason DropReason
}

// Filter applies the intake rules to txs in order: the first occurrence of a stake
// input or tag wins, and any tx with a tag already spent is discarded.
func Filter(txs Transactions, spent SpentChecker) (Transactions, []Dropped) {
	var (
		kept    = make(Transactions, 0, len(txs))
		dropped []Dropped
		ids     = make(map[khora.Bytes32]bool)
		stakes  = make(map[uint64]bool)
		tags    = make(map[khora.Bytes32]bool)
	)

	for _, t := range txs {
		id := t.ID()
		reason := DropReason("")
		switch {
		case ids[id]:
			reason = DropDuplicateTx
		case t.IsStake() && stakes[t.StakeIndex()]:
			reason = DropDuplicateStake
		default:
			for i, tag := range t.body.Tags {
				if tags[tag] || dupWithin(t.body.Tags[:i], tag) {
					reason = DropDuplicateTag
					break
				}
				if spent != nil && spent.Contains(tag) {
					reason = DropSpentTag
					break
				}
			}
		}
		if reason != "" {
			dropped = append(dropped, Dropped{id, reason})
			continue
		}

		ids[id] = true
		if t.IsStake() {
			stakes[t.StakeIndex()] = true
		}
		for _, tag := range t.body.Tags {
			tags[tag] = true
		}
		kept = append(kept, t)
	}
	return kept, dropped
}

func dupWithin(prev []khora.Bytes32, tag khora.Bytes32) bool {
	for _, p := range prev {
		if p == tag {
			return true
		}
	}
	return false
}

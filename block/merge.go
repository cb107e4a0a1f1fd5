// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/tx"
)

// Part is the content a shard contributes to a merged block.
type Part struct {
	Shard uint64
	Txs   tx.Transactions
}

// Merge concatenates sibling shard content onto the head shard's txs. Parts are taken
// in order and conflicts are resolved first-shard-wins; a sibling is merged only when
// more than MergeThreshold of its txs survive. It returns the shard list, head first.
func Merge(head Part, siblings []Part, spent tx.SpentChecker, params *khora.Params) ([]uint64, tx.Transactions) {
	shards := []uint64{head.Shard}
	merged, _ := tx.Filter(head.Txs, spent)
	seen := map[uint64]bool{head.Shard: true}

	for _, p := range siblings {
		if seen[p.Shard] {
			continue
		}
		seen[p.Shard] = true

		all := append(merged.Copy(), p.Txs...)
		kept, _ := tx.Filter(all, spent)
		if uint64(len(kept)-len(merged)) <= params.MergeThreshold {
			continue
		}
		shards = append(shards, p.Shard)
		merged = kept
	}
	return shards, merged
}

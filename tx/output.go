// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"github.com/sile/Khora-sub000/history"
	"github.com/sile/Khora-sub000/khora"
)

// Output is a one-time account created by a transaction. Payload is readable only by
// the recipient, or by everybody for stake deposits.
type Output struct {
	PK         khora.Bytes32
	Commitment khora.Bytes32
	Payload    []byte
}

// Record returns the history entry of the output.
func (o *Output) Record() history.Record {
	return history.Record{PK: o.PK, Commitment: o.Commitment}
}

// Owned is an output decoded by its owner.
type Owned struct {
	Output Output
	Index  uint64 // position in history
	Amount uint64
	Tag    khora.Bytes32 // revealed when spent
	Secret []byte        // opening, opaque to consensus
}

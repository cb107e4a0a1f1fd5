// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/history"
	"github.com/sile/Khora-sub000/stake"
)

// ErrNotMine is returned by Oracle.Receive for outputs of other accounts.
var ErrNotMine = errors.New("not my account")

// History is the read side of the OTA history.
type History interface {
	Height() uint64
	Get(i uint64) (history.Record, error)
}

// StakeReader recognises stake deposits among outputs.
type StakeReader interface {
	// ReadStake returns the stake entry an output deposits, if it is a stake output.
	ReadStake(out *Output) (stake.Entry, bool)
}

// Oracle checks the zero-knowledge validity of transactions and decodes outputs.
// Consensus treats it as opaque.
type Oracle interface {
	StakeReader

	// Verify checks a ring transaction against the history it references.
	Verify(tx *Transaction, h History) error
	// VerifyStake checks a transaction spending a stake entry.
	VerifyStake(tx *Transaction, stakes stake.Set) error
	// Receive decodes an output owned by the account key, or returns ErrNotMine.
	Receive(out *Output, account *cry.PrivateKey) (*Owned, error)
}

// Check runs the verification matching the tx kind.
func Check(o Oracle, t *Transaction, h History, stakes stake.Set) error {
	if t.IsStake() {
		return o.VerifyStake(t, stakes)
	}
	return o.Verify(t, h)
}

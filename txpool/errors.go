// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package txpool

import "github.com/pkg/errors"

var (
	errKnownTx     = errors.New("known transaction")
	errTooLarge    = errors.New("tx too large")
	errPoolFull    = errors.New("tx pool full")
	errTagConflict = errors.New("tag already pooled")
	errSpent       = errors.New("tag already spent")
)

func IsErrKnownTx(err error) bool {
	return err == errKnownTx
}

func IsErrTooLarge(err error) bool {
	return err == errTooLarge
}

func IsErrPoolFull(err error) bool {
	return err == errPoolFull
}

// IsErrDoubleSpend reports rejections caused by a tag spent on chain or by another pooled tx.
func IsErrDoubleSpend(err error) bool {
	return err == errTagConflict || err == errSpent
}

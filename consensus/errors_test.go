// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package consensus

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	err := New(ProtocolInvalid, "duplicate signer %d", 3)
	assert.Equal(t, "ProtocolInvalid: duplicate signer 3", err.Error())
	assert.Equal(t, ProtocolInvalid, KindOf(err))
	assert.True(t, Is(err, ProtocolInvalid))
	assert.False(t, Is(err, CryptoInvalid))
	assert.False(t, IsCritical(err))

	wrapped := errors.Wrap(err, "verify block 7")
	assert.True(t, Is(wrapped, ProtocolInvalid))

	io := errors.New("disk full")
	assert.True(t, IsCritical(io))
	assert.False(t, IsCritical(nil))
	assert.False(t, Is(nil, Timeout))

	assert.Equal(t, "Kind(42)", Kind(42).String())
}

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co_test

import (
	"testing"

	"github.com/sile/Khora-sub000/co"
	"github.com/stretchr/testify/assert"
)

func TestNotifierCoalesces(t *testing.T) {
	n := co.NewNotifier()
	n.Notify()
	n.Notify()
	n.Notify()

	<-n.C()
	select {
	case <-n.C():
		t.Fatal("notifications should coalesce")
	default:
	}

	n.Notify()
	select {
	case <-n.C():
	default:
		assert.Fail(t, "missed notification")
	}
}

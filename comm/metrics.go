// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package comm

import "github.com/sile/Khora-sub000/metrics"

var metricMessagesCount = metrics.LazyLoadCounterVec("comm_messages_count", []string{"overlay", "tag", "direction"})

// CountMessage records a message in the transport metrics.
func CountMessage(o Overlay, tag Tag, direction string) {
	metricMessagesCount().AddWithLabel(1, map[string]string{
		"overlay":   o.String(),
		"tag":       tag.String(),
		"direction": direction,
	})
}

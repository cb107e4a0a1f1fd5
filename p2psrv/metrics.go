// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package p2psrv

import "github.com/sile/Khora-sub000/metrics"

var (
	metricConnectedPeers = metrics.LazyLoadGauge("p2p_connected_peers_count")
	metricDroppedInbound = metrics.LazyLoadCounter("p2p_dropped_inbound_count")
)

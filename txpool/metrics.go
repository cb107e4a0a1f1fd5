// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package txpool

import "github.com/sile/Khora-sub000/metrics"

var (
	metricTxPoolGauge  = metrics.LazyLoadGauge("txpool_current_tx_count")
	metricTxPoolReject = metrics.LazyLoadCounterVec("txpool_rejected_tx_count", []string{"reason"})
)

// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"time"

	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/metrics"
)

var (
	metricBlockProposedCount = metrics.LazyLoadCounterVec("block_proposed_count", []string{"kind"})
	metricBlockProposedTxs   = metrics.LazyLoadHistogram("block_proposed_tx_count", metrics.BucketSizes)

	metricBlockReceivedCount    = metrics.LazyLoadCounterVec("block_received_count", []string{"status"})
	metricBlockReceivedDuration = metrics.LazyLoadHistogramVec(
		"block_received_duration_ms", []string{"status"}, metrics.Bucket10s,
	)
	metricBlockSkippedCount = metrics.LazyLoadCounter("block_skipped_count")

	metricLeaderOverthrowCount = metrics.LazyLoadCounter("leader_overthrow_count")
	metricEmptyRoundCount      = metrics.LazyLoadCounter("empty_round_count")
	metricForkerEvidenceCount  = metrics.LazyLoadCounter("forker_evidence_count")
	metricBannedPeerCount      = metrics.LazyLoadCounter("banned_peer_count")

	metricNodeRole    = metrics.LazyLoadGauge("node_role")
	metricChainHeight = metrics.LazyLoadGauge("chain_height")
)

func evalBlockReceivedMetrics(f func() error) error {
	startTime := time.Now()

	status := map[string]string{"status": "received"}
	err := f()
	switch consensus.KindOf(err) {
	case 0:
		if err != nil {
			status["status"] = "failed"
		}
	case consensus.StateMismatch:
		status["status"] = "mismatch"
	default:
		status["status"] = "invalid"
	}
	metricBlockReceivedCount().AddWithLabel(1, status)
	metricBlockReceivedDuration().ObserveWithLabels(time.Since(startTime).Milliseconds(), status)
	return err
}

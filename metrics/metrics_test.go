// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T) map[string]*dto.MetricFamily {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func TestNoopByDefault(t *testing.T) {
	metrics = defaultNoopMetrics()
	require.False(t, Enabled())
	require.Nil(t, HTTPHandler())

	for _, a := range []any{
		Gauge("noopGauge"),
		GaugeVec("noopGauge", nil),
		Counter("noopCounter"),
		CounterVec("noopCounter", nil),
		Histogram("noopHist", nil),
		HistogramVec("noopHist", nil, nil),
	} {
		require.IsType(t, &noopMeters{}, a)
	}
}

func TestPromMetrics(t *testing.T) {
	metrics = defaultNoopMetrics()
	lazyCounter := LazyLoadCounter("blocks_applied_count")
	lazyGaugeVec := LazyLoadGaugeVec("stake_gauge", []string{"shard"})

	InitializePrometheusMetrics()
	require.True(t, Enabled())
	require.NotNil(t, HTTPHandler())

	lazyCounter().Add(2)
	Counter("blocks_applied_count").Add(1)
	require.Same(t, lazyCounter(), Counter("blocks_applied_count"))

	lazyGaugeVec().SetWithLabel(10, map[string]string{"shard": "0"})
	lazyGaugeVec().AddWithLabel(5, map[string]string{"shard": "0"})
	lazyGaugeVec().SetWithLabel(1, map[string]string{"shard": "1"})

	hist := HistogramVec("round_ms", []string{"kind"}, Bucket10s)
	hist.ObserveWithLabels(700, map[string]string{"kind": "empty"})
	hist.ObserveWithLabels(300, map[string]string{"kind": "empty"})

	CounterVec("verify_failures_count", []string{"kind"}).AddWithLabel(3, map[string]string{"kind": "CryptoInvalid"})

	fams := gather(t)
	require.Equal(t, float64(3), fams["khora_blocks_applied_count"].Metric[0].GetCounter().GetValue())

	gauges := fams["khora_stake_gauge"].Metric
	require.Len(t, gauges, 2)
	require.Equal(t, float64(16), gauges[0].GetGauge().GetValue()+gauges[1].GetGauge().GetValue())

	require.Equal(t, float64(1000), fams["khora_round_ms"].Metric[0].GetHistogram().GetSampleSum())
	require.Equal(t, float64(3), fams["khora_verify_failures_count"].Metric[0].GetCounter().GetValue())
}

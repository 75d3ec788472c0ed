// Copyright 2025 The agentd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersDistinctCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.PacketsSent.Inc()
	c.HandshakeFailures.WithLabelValues("replay").Inc()
	c.CongestionWindow.Set(14720)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	var found bool
	for _, f := range families {
		if f.GetName() == "agentd_transport_packets_sent_total" {
			found = true
			require.Len(t, f.Metric, 1)
			assert.Equal(t, float64(1), f.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestRecordUptimeSetsNonNegativeGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordUptime()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "agentd_transport_process_uptime_seconds" {
			found = true
			require.Len(t, f.Metric, 1)
			assert.GreaterOrEqual(t, f.Metric[0].GetGauge().GetValue(), float64(0))
		}
	}
	assert.True(t, found)
}

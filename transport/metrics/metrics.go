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

// Package metrics holds the transport's Prometheus collectors. A
// *Collectors value is built once and passed explicitly into every
// component that emits a metric — per the design note on replacing
// global mutable state, nothing here is a package-level singleton.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agentd/agentd/common"
	"github.com/agentd/agentd/internal/fasttime"
)

// Collectors groups every Prometheus metric the transport emits.
type Collectors struct {
	PacketsSent       prometheus.Counter
	PacketsReceived   prometheus.Counter
	PacketsLost       prometheus.Counter
	HandshakeFailures *prometheus.CounterVec
	BytesInFlight     prometheus.Gauge
	CongestionWindow  prometheus.Gauge
	SmoothedRTTSecs   prometheus.Gauge
	ActiveConnections prometheus.Gauge
	ProcessUptime     prometheus.Gauge
}

// RecordUptime sets ProcessUptime from fasttime's low-resolution clock
// rather than time.Now, since a metrics scrape has no need for
// sub-second precision.
func (c *Collectors) RecordUptime() {
	c.ProcessUptime.Set(float64(fasttime.UnixTimestamp() - common.Started()))
}

// New registers every collector against reg and returns the bundle. reg
// is typically prometheus.NewRegistry() for tests or the default
// registry in production, passed in rather than assumed.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		PacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: common.App,
			Subsystem: "transport",
			Name:      "packets_sent_total",
			Help:      "packets sealed and handed to the socket",
		}),
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: common.App,
			Subsystem: "transport",
			Name:      "packets_received_total",
			Help:      "packets successfully opened",
		}),
		PacketsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: common.App,
			Subsystem: "transport",
			Name:      "packets_lost_total",
			Help:      "packets declared lost by the loss manager",
		}),
		HandshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: common.App,
			Subsystem: "transport",
			Name:      "handshake_failures_total",
			Help:      "handshake attempts that failed, by reason",
		}, []string{"reason"}),
		BytesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: common.App,
			Subsystem: "transport",
			Name:      "bytes_in_flight",
			Help:      "bytes sent but not yet acknowledged or declared lost",
		}),
		CongestionWindow: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: common.App,
			Subsystem: "transport",
			Name:      "congestion_window_bytes",
			Help:      "current congestion window",
		}),
		SmoothedRTTSecs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: common.App,
			Subsystem: "transport",
			Name:      "smoothed_rtt_seconds",
			Help:      "smoothed round-trip time estimate",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: common.App,
			Subsystem: "transport",
			Name:      "active_connections",
			Help:      "connections currently open on this endpoint",
		}),
		ProcessUptime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: common.App,
			Subsystem: "transport",
			Name:      "process_uptime_seconds",
			Help:      "seconds since the process started",
		}),
	}
}

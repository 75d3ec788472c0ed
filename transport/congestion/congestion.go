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

// Package congestion implements a BBR-inspired congestion controller:
// an additive-increase/multiplicative-decrease window plus an
// eight-phase pacing gain cycle. The pacing rate it computes drives a
// golang.org/x/time/rate.Limiter the Controller owns, so callers pace
// sends through AllowSend rather than managing a limiter themselves.
package congestion

import (
	"time"

	"golang.org/x/time/rate"
)

// Default tuning constants for the congestion controller.
const (
	DefaultMinWindow = 14720 // ~10 max-size packets
	DefaultMaxWindow = 16 << 20

	DefaultMinPacingRate = 1 << 10       // 1 KiB/s
	DefaultMaxPacingRate = 1 << 30       // 1 GiB/s
	CwndIncreaseStep     = 1500          // bytes, additive increase per ACK batch that acknowledges data
	CycleInterval        = 55 * time.Millisecond

	// PacingBurstBytes bounds the limiter's token bucket to roughly one
	// maximum-size datagram, so a send is paced per-packet rather than
	// let through in large bursts after an idle stretch.
	PacingBurstBytes = 1500
)

// gainCycle is the eight-phase pacing gain schedule.
var gainCycle = [8]float64{1.25, 1, 1, 1, 1, 1, 0.75, 1}

// Config tunes the controller's window bounds.
type Config struct {
	MinWindow     int64
	MaxWindow     int64
	MinPacingRate float64
	MaxPacingRate float64
}

// DefaultConfig returns the spec's default bounds.
func DefaultConfig() Config {
	return Config{
		MinWindow:     DefaultMinWindow,
		MaxWindow:     DefaultMaxWindow,
		MinPacingRate: DefaultMinPacingRate,
		MaxPacingRate: DefaultMaxPacingRate,
	}
}

// AckedPacket describes one packet the ACK outcome reported as
// acknowledged, for the purposes of bandwidth estimation.
type AckedPacket struct {
	Size int
}

// Outcome is fed to OnAckOutcome: the packets acknowledged and lost in
// one ACK processing pass, plus the RTT sample the loss manager
// computed for that pass (used for the bandwidth estimate).
type Outcome struct {
	Acked     []AckedPacket
	LostCount int
	RTTSample time.Duration
}

// Controller tracks inflight bytes, the congestion window, the
// bandwidth estimate, and the pacing-gain cycle. One connection owns
// one Controller; it is not safe for concurrent use.
type Controller struct {
	cfg Config

	inflightBytes     int64
	congestionWindow  int64
	bandwidthEstimate float64 // bytes/sec
	pacingRate        float64 // bytes/sec

	cycleIndex    int
	lastCycleTick time.Time
	hasCycleTick  bool

	limiter *rate.Limiter
}

// NewController builds a Controller starting at the minimum window.
func NewController(cfg Config) *Controller {
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = DefaultMinWindow
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = DefaultMaxWindow
	}
	if cfg.MinPacingRate <= 0 {
		cfg.MinPacingRate = DefaultMinPacingRate
	}
	if cfg.MaxPacingRate <= 0 {
		cfg.MaxPacingRate = DefaultMaxPacingRate
	}
	return &Controller{
		cfg:              cfg,
		congestionWindow: cfg.MinWindow,
		pacingRate:       cfg.MinPacingRate,
		limiter:          rate.NewLimiter(rate.Limit(cfg.MinPacingRate), PacingBurstBytes),
	}
}

// OnPacketSent debits the congestion window for size bytes newly placed
// inflight.
func (c *Controller) OnPacketSent(size int) {
	c.inflightBytes += int64(size)
}

// OnAckOutcome applies the acked/lost packets of one ACK processing
// pass: credits inflight, grows or shrinks the window, advances the
// pacing cycle if due, and recomputes the pacing rate.
func (c *Controller) OnAckOutcome(o Outcome, now time.Time) {
	var ackedBytes int64
	for _, a := range o.Acked {
		ackedBytes += int64(a.Size)
	}
	c.inflightBytes -= ackedBytes
	if c.inflightBytes < 0 {
		c.inflightBytes = 0
	}

	if len(o.Acked) > 0 && o.RTTSample > 0 {
		sample := float64(ackedBytes) / o.RTTSample.Seconds()
		if sample > c.bandwidthEstimate {
			c.bandwidthEstimate = sample
		}
		c.congestionWindow += CwndIncreaseStep
		if c.congestionWindow > c.cfg.MaxWindow {
			c.congestionWindow = c.cfg.MaxWindow
		}
	}

	if o.LostCount > 0 {
		c.congestionWindow /= 2
		if c.congestionWindow < c.cfg.MinWindow {
			c.congestionWindow = c.cfg.MinWindow
		}
		if c.inflightBytes > c.congestionWindow {
			c.inflightBytes = c.congestionWindow
		}
	}

	if !c.hasCycleTick || now.Sub(c.lastCycleTick) >= CycleInterval {
		c.cycleIndex = (c.cycleIndex + 1) % len(gainCycle)
		c.lastCycleTick = now
		c.hasCycleTick = true
	}

	paced := c.bandwidthEstimate * gainCycle[c.cycleIndex]
	c.pacingRate = clamp(paced, c.cfg.MinPacingRate, c.cfg.MaxPacingRate)
	c.limiter.SetLimit(rate.Limit(c.pacingRate))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CongestionWindow returns the current window in bytes.
func (c *Controller) CongestionWindow() int64 { return c.congestionWindow }

// InflightBytes returns the current lower-bound estimate of bytes in
// flight.
func (c *Controller) InflightBytes() int64 { return c.inflightBytes }

// BandwidthEstimate returns the current bandwidth estimate in
// bytes/sec.
func (c *Controller) BandwidthEstimate() float64 { return c.bandwidthEstimate }

// PacingRate returns the current pacing rate in bytes/sec.
func (c *Controller) PacingRate() float64 { return c.pacingRate }

// Available reports how many bytes may currently be sent without
// exceeding the congestion window.
func (c *Controller) Available() int64 {
	avail := c.congestionWindow - c.inflightBytes
	if avail < 0 {
		return 0
	}
	return avail
}

// AllowSend reports whether sending n bytes at now stays within the
// current pacing rate, consuming n tokens from the limiter if so. It
// never blocks — a caller denied a send tries again on its next poll.
func (c *Controller) AllowSend(now time.Time, n int) bool {
	return c.limiter.AllowN(now, n)
}

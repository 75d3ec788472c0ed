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

// Package loss implements the outstanding-packet set, RTT estimator,
// and packet/time-threshold loss detector.
package loss

import (
	"time"

	"github.com/agentd/agentd/transport/ack"
)

// Default tuning constants for loss detection and RTT estimation.
const (
	DefaultPacketThreshold = 3
	DefaultInitialRTT      = 333 * time.Millisecond
	DefaultMaxAckDelay     = 25 * time.Millisecond

	timeThresholdNumerator   = 9
	timeThresholdDenominator = 8
)

// Config tunes the loss manager.
type Config struct {
	PacketThreshold int
	InitialRTT      time.Duration
	MaxAckDelay     time.Duration
}

// DefaultConfig returns the spec's default tuning.
func DefaultConfig() Config {
	return Config{
		PacketThreshold: DefaultPacketThreshold,
		InitialRTT:      DefaultInitialRTT,
		MaxAckDelay:     DefaultMaxAckDelay,
	}
}

// SentPacket is one outstanding packet record.
type SentPacket struct {
	PacketNumber uint64
	TimeSent     time.Time
	Size         int
	AckEliciting bool
}

// Outcome reports the result of feeding an ACK frame or a loss timeout
// into the Manager.
type Outcome struct {
	Acknowledged []SentPacket
	Lost         []SentPacket
	RTTSample    time.Duration
}

// Manager tracks outstanding sent packets and detects loss, either by
// the spec's packet-threshold/time-threshold rule or an explicit
// timeout. It is not safe for concurrent use; one connection owns one
// Manager.
type Manager struct {
	cfg Config

	outstanding []SentPacket

	largestAcked    uint64
	hasLargestAcked bool

	latestRTT   time.Duration
	smoothedRTT time.Duration
	rttVar      time.Duration
	minRTT      time.Duration
	hasRTT      bool

	lossTime    time.Time
	hasLossTime bool
}

// NewManager builds a Manager with cfg (zero-value fields fall back to
// the spec defaults).
func NewManager(cfg Config) *Manager {
	if cfg.PacketThreshold <= 0 {
		cfg.PacketThreshold = DefaultPacketThreshold
	}
	if cfg.InitialRTT <= 0 {
		cfg.InitialRTT = DefaultInitialRTT
	}
	if cfg.MaxAckDelay <= 0 {
		cfg.MaxAckDelay = DefaultMaxAckDelay
	}
	return &Manager{cfg: cfg, smoothedRTT: cfg.InitialRTT}
}

// timeThreshold returns max(latest_rtt, smoothed_rtt, initial_rtt) *
// 9/8, bounded below by 1 microsecond.
func (m *Manager) timeThreshold() time.Duration {
	base := m.cfg.InitialRTT
	if m.latestRTT > base {
		base = m.latestRTT
	}
	if m.smoothedRTT > base {
		base = m.smoothedRTT
	}
	t := base * timeThresholdNumerator / timeThresholdDenominator
	if t < time.Microsecond {
		t = time.Microsecond
	}
	return t
}

// OnPacketSent records a freshly sent packet and arms the loss-timeout
// deadline if it isn't already running.
func (m *Manager) OnPacketSent(pn uint64, sentAt time.Time, size int, ackEliciting bool) {
	m.outstanding = append(m.outstanding, SentPacket{
		PacketNumber: pn,
		TimeSent:     sentAt,
		Size:         size,
		AckEliciting: ackEliciting,
	})
	if ackEliciting && !m.hasLossTime {
		m.lossTime = sentAt.Add(m.timeThreshold())
		m.hasLossTime = true
	}
}

// OnAckFrame partitions outstanding packets into acknowledged and
// retained, updates the RTT estimator from the largest newly-
// acknowledged packet, detects loss among the retained set, and
// recomputes the loss-timeout deadline.
func (m *Manager) OnAckFrame(f ack.Frame, now time.Time) Outcome {
	var acked, retained []SentPacket
	var largest *SentPacket

	for i := range m.outstanding {
		p := m.outstanding[i]
		if f.Covers(p.PacketNumber) {
			acked = append(acked, p)
			if largest == nil || p.PacketNumber > largest.PacketNumber {
				largest = &m.outstanding[i]
			}
		} else {
			retained = append(retained, p)
		}
	}

	var rttSample time.Duration
	if largest != nil {
		if !m.hasLargestAcked || largest.PacketNumber > m.largestAcked {
			m.largestAcked = largest.PacketNumber
			m.hasLargestAcked = true
		}

		ackDelay := f.AckDelay
		if ackDelay > m.cfg.MaxAckDelay {
			ackDelay = m.cfg.MaxAckDelay
		}
		rttSample = now.Sub(largest.TimeSent) - ackDelay
		if rttSample < 0 {
			rttSample = 0
		}
		m.updateRTT(rttSample)
	}

	lost, remaining := m.detectLoss(retained, now)
	m.outstanding = remaining
	m.recomputeLossTime()

	return Outcome{Acknowledged: acked, Lost: lost, RTTSample: rttSample}
}

func (m *Manager) updateRTT(sample time.Duration) {
	if !m.hasRTT {
		m.smoothedRTT = sample
		m.rttVar = sample / 2
		m.minRTT = sample
		m.latestRTT = sample
		m.hasRTT = true
		return
	}

	m.latestRTT = sample
	diff := m.smoothedRTT - sample
	if diff < 0 {
		diff = -diff
	}
	m.rttVar = (m.rttVar*3 + diff) / 4
	m.smoothedRTT = (m.smoothedRTT*7 + sample) / 8
	if sample < m.minRTT {
		m.minRTT = sample
	}
}

// detectLoss declares lost any retained record that is either
// packet-threshold or time-threshold behind the largest acknowledged
// packet number, using the *current* largestAcked.
func (m *Manager) detectLoss(retained []SentPacket, now time.Time) (lost, stillOutstanding []SentPacket) {
	if !m.hasLargestAcked {
		return nil, retained
	}
	for _, p := range retained {
		pnGap := m.largestAcked >= p.PacketNumber && (m.largestAcked-p.PacketNumber) >= uint64(m.cfg.PacketThreshold)
		timeGap := now.Sub(p.TimeSent) >= m.timeThreshold()
		if pnGap || timeGap {
			lost = append(lost, p)
		} else {
			stillOutstanding = append(stillOutstanding, p)
		}
	}
	return lost, stillOutstanding
}

// OnLossTimeout declares lost any remaining ack-eliciting packet older
// than the time threshold and recomputes the deadline.
func (m *Manager) OnLossTimeout(now time.Time) []SentPacket {
	var lost, remaining []SentPacket
	threshold := m.timeThreshold()
	for _, p := range m.outstanding {
		if p.AckEliciting && now.Sub(p.TimeSent) >= threshold {
			lost = append(lost, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	m.outstanding = remaining
	m.recomputeLossTime()
	return lost
}

func (m *Manager) recomputeLossTime() {
	m.hasLossTime = false
	for _, p := range m.outstanding {
		if !p.AckEliciting {
			continue
		}
		deadline := p.TimeSent.Add(m.timeThreshold())
		if !m.hasLossTime || deadline.Before(m.lossTime) {
			m.lossTime = deadline
			m.hasLossTime = true
		}
	}
}

// LossTime returns the next loss-timeout deadline, if one is armed.
func (m *Manager) LossTime() (time.Time, bool) {
	return m.lossTime, m.hasLossTime
}

// SmoothedRTT, RTTVar and MinRTT expose the current RTT estimator
// state.
func (m *Manager) SmoothedRTT() time.Duration { return m.smoothedRTT }
func (m *Manager) RTTVar() time.Duration      { return m.rttVar }
func (m *Manager) MinRTT() time.Duration      { return m.minRTT }

// Outstanding returns a copy of the currently outstanding packets.
func (m *Manager) Outstanding() []SentPacket {
	return append([]SentPacket(nil), m.outstanding...)
}

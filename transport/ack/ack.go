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

// Package ack tracks received packet numbers as a small set of
// inclusive ranges and builds the ACK frame a connection flushes back
// to its peer.
package ack

import (
	"encoding/binary"
	"time"

	"github.com/agentd/agentd/transport/terr"
)

// DefaultMaxRanges bounds the number of inclusive ranges ReceiveHistory
// keeps before truncating the oldest.
const DefaultMaxRanges = 32

// Range is an inclusive packet-number range [Start, End].
type Range struct {
	Start uint64
	End   uint64
}

// Frame is the decoded ACK frame: the largest acknowledged packet
// number, the sender's ack delay, and a sorted-descending, non-
// overlapping, non-adjacent list of ranges. ranges[0].End always equals
// Largest.
type Frame struct {
	Largest   uint64
	AckDelay  time.Duration
	Ranges    []Range
}

// EncodedLen returns the encoded byte length of f.
func (f Frame) EncodedLen() int {
	return 8 + 8 + 2 + len(f.Ranges)*16
}

// Encode serializes f as largest(u64 LE) || ack_delay_micros(u64 LE) ||
// range_count(u16 LE) || repeat(start, end as u64 LE).
func (f Frame) Encode(dst []byte) error {
	need := f.EncodedLen()
	if len(dst) < need {
		return &terr.BufferTooSmall{Needed: need, Got: len(dst)}
	}
	binary.LittleEndian.PutUint64(dst[0:8], f.Largest)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(f.AckDelay.Microseconds()))
	binary.LittleEndian.PutUint16(dst[16:18], uint16(len(f.Ranges)))

	off := 18
	for _, r := range f.Ranges {
		binary.LittleEndian.PutUint64(dst[off:off+8], r.Start)
		binary.LittleEndian.PutUint64(dst[off+8:off+16], r.End)
		off += 16
	}
	return nil
}

// Decode parses a Frame from src and validates ranges[0].End == Largest.
func Decode(src []byte) (Frame, error) {
	if len(src) < 18 {
		return Frame{}, &terr.BufferTooSmall{Needed: 18, Got: len(src)}
	}

	var f Frame
	f.Largest = binary.LittleEndian.Uint64(src[0:8])
	f.AckDelay = time.Duration(binary.LittleEndian.Uint64(src[8:16])) * time.Microsecond
	count := binary.LittleEndian.Uint16(src[16:18])

	need := 18 + int(count)*16
	if len(src) < need {
		return Frame{}, &terr.BufferTooSmall{Needed: need, Got: len(src)}
	}

	f.Ranges = make([]Range, count)
	off := 18
	for i := 0; i < int(count); i++ {
		f.Ranges[i].Start = binary.LittleEndian.Uint64(src[off : off+8])
		f.Ranges[i].End = binary.LittleEndian.Uint64(src[off+8 : off+16])
		off += 16
	}

	if count > 0 && f.Ranges[0].End != f.Largest {
		return Frame{}, terr.ErrInvalidRange
	}
	return f, nil
}

// Covers reports whether pn falls within any range of f.
func (f Frame) Covers(pn uint64) bool {
	for _, r := range f.Ranges {
		if pn >= r.Start && pn <= r.End {
			return true
		}
	}
	return false
}

// ReceiveHistory maintains up to maxRanges inclusive ranges of packet
// numbers this side has accepted, sorted descending by End, and tracks
// the pending-ack timer used to decide when to flush an ACK frame.
type ReceiveHistory struct {
	maxRanges int
	ranges    []Range

	ackDelay time.Duration

	pendingAckStart time.Time
	hasPendingAck   bool

	lastAckTime time.Time
	hasLastAck  bool
}

// NewReceiveHistory builds a ReceiveHistory that truncates to maxRanges
// ranges (DefaultMaxRanges if maxRanges <= 0) and flushes no sooner than
// ackDelay after an ack-eliciting packet is recorded.
func NewReceiveHistory(maxRanges int, ackDelay time.Duration) *ReceiveHistory {
	if maxRanges <= 0 {
		maxRanges = DefaultMaxRanges
	}
	return &ReceiveHistory{maxRanges: maxRanges, ackDelay: ackDelay}
}

// Record accounts for a newly received packet number. It returns true
// iff the pending-ack timer has been running for at least the
// configured ack delay, signaling the caller should flush an ACK.
func (h *ReceiveHistory) Record(pn uint64, ackEliciting bool, now time.Time) bool {
	h.insert(pn)

	if ackEliciting && !h.hasPendingAck {
		h.pendingAckStart = now
		h.hasPendingAck = true
	}

	if h.hasPendingAck && now.Sub(h.pendingAckStart) >= h.ackDelay {
		return true
	}
	return false
}

func (h *ReceiveHistory) insert(pn uint64) {
	for _, r := range h.ranges {
		if pn >= r.Start && pn <= r.End {
			return
		}
	}

	idx := -1
	for i, r := range h.ranges {
		switch {
		case pn == r.End+1:
			h.ranges[i].End = pn
			idx = i
		case pn+1 == r.Start:
			h.ranges[i].Start = pn
			idx = i
		}
		if idx >= 0 {
			break
		}
	}

	if idx < 0 {
		h.ranges = append(h.ranges, Range{Start: pn, End: pn})
		idx = len(h.ranges) - 1
	}

	h.mergeAdjacent(idx)
	h.sortDescending()
	h.truncate()
}

func (h *ReceiveHistory) mergeAdjacent(idx int) {
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(h.ranges); i++ {
			if i == idx {
				continue
			}
			a, b := h.ranges[idx], h.ranges[i]
			if b.Start == a.End+1 {
				h.ranges[idx].End = b.End
				h.removeAt(i)
				changed = true
				break
			}
			if a.Start == b.End+1 {
				h.ranges[idx].Start = b.Start
				h.removeAt(i)
				changed = true
				break
			}
		}
	}
}

func (h *ReceiveHistory) removeAt(i int) {
	h.ranges = append(h.ranges[:i], h.ranges[i+1:]...)
}

func (h *ReceiveHistory) sortDescending() {
	// insertion sort: ranges is always nearly sorted and small (<= maxRanges+1)
	for i := 1; i < len(h.ranges); i++ {
		for j := i; j > 0 && h.ranges[j].End > h.ranges[j-1].End; j-- {
			h.ranges[j], h.ranges[j-1] = h.ranges[j-1], h.ranges[j]
		}
	}
}

func (h *ReceiveHistory) truncate() {
	if len(h.ranges) > h.maxRanges {
		h.ranges = h.ranges[:h.maxRanges]
	}
}

// BuildFrame returns the ACK frame covering everything currently
// tracked, or false if nothing has been recorded. After building, the
// last-ack timestamp is updated and the pending-ack timer is cleared.
func (h *ReceiveHistory) BuildFrame(now time.Time) (Frame, bool) {
	if len(h.ranges) == 0 {
		return Frame{}, false
	}

	var delay time.Duration
	if h.hasLastAck {
		delay = now.Sub(h.lastAckTime)
	}

	f := Frame{
		Largest:  h.ranges[0].End,
		AckDelay: delay,
		Ranges:   append([]Range(nil), h.ranges...),
	}

	h.lastAckTime = now
	h.hasLastAck = true
	h.hasPendingAck = false
	return f, true
}

// PendingAckDeadline reports when an outstanding ack-eliciting packet's
// ACK must be flushed by, or false if none is pending.
func (h *ReceiveHistory) PendingAckDeadline() (time.Time, bool) {
	if !h.hasPendingAck {
		return time.Time{}, false
	}
	return h.pendingAckStart.Add(h.ackDelay), true
}

// Ranges returns a copy of the currently tracked ranges, descending by
// End.
func (h *ReceiveHistory) Ranges() []Range {
	return append([]Range(nil), h.ranges...)
}

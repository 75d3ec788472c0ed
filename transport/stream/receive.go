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

package stream

import (
	"bytes"

	"github.com/agentd/agentd/transport/terr"
)

// ReceiveBuffer reassembles possibly-reordered, possibly-overlapping
// inbound chunks into an in-order ready stream.
type ReceiveBuffer struct {
	pending        map[uint64][]byte
	ready          []byte
	deliveredOffset uint64
	finalOffset    *uint64
}

// NewReceiveBuffer builds an empty ReceiveBuffer.
func NewReceiveBuffer() *ReceiveBuffer {
	return &ReceiveBuffer{pending: make(map[uint64][]byte)}
}

// Ingest records data received at offset, optionally marking the final
// offset of the stream when fin is set. It detects data arriving past
// an already-known final offset, and conflicting retransmissions of
// the same offset with different bytes.
func (b *ReceiveBuffer) Ingest(offset uint64, data []byte, fin bool) error {
	end := offset + uint64(len(data))
	if b.finalOffset != nil && end > *b.finalOffset {
		return &terr.DataBeyondFinalOffset{Offset: end, FinalOffset: *b.finalOffset}
	}

	if existing, ok := b.pending[offset]; ok {
		if !bytes.Equal(existing, data) {
			return &terr.ConflictingData{Offset: offset}
		}
	} else if offset >= b.deliveredOffset+uint64(len(b.ready)) {
		// Only store if not already fully covered by the ready buffer.
		b.pending[offset] = append([]byte(nil), data...)
	} else if offset+uint64(len(data)) > b.deliveredOffset+uint64(len(b.ready)) {
		// Partial overlap with already-promoted ready data: store the
		// tail not yet covered to preserve any new bytes it carries.
		covered := b.deliveredOffset + uint64(len(b.ready))
		b.pending[covered] = append([]byte(nil), data[covered-offset:]...)
	}

	if fin {
		if b.finalOffset == nil || end > *b.finalOffset {
			b.finalOffset = &end
		}
	}

	b.promote()
	return nil
}

// promote moves any pending chunk starting exactly where the ready
// buffer ends into the ready buffer, repeatedly.
func (b *ReceiveBuffer) promote() {
	for {
		frontier := b.deliveredOffset + uint64(len(b.ready))
		chunk, ok := b.pending[frontier]
		if !ok {
			return
		}
		delete(b.pending, frontier)
		b.ready = append(b.ready, chunk...)
	}
}

// Read pops up to maxLen bytes from the ready buffer.
func (b *ReceiveBuffer) Read(maxLen int) []byte {
	n := len(b.ready)
	if n > maxLen {
		n = maxLen
	}
	out := b.ready[:n]
	b.ready = b.ready[n:]
	b.deliveredOffset += uint64(n)
	return out
}

// IsReceiveFinished reports whether the final offset is known and all
// bytes up to it have been promoted into (or already drained from) the
// ready buffer.
func (b *ReceiveBuffer) IsReceiveFinished() bool {
	if b.finalOffset == nil {
		return false
	}
	return b.deliveredOffset+uint64(len(b.ready)) >= *b.finalOffset
}

// DeliveredOffset reports how many bytes have been read out so far.
func (b *ReceiveBuffer) DeliveredOffset() uint64 {
	return b.deliveredOffset
}

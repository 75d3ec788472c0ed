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
	"github.com/agentd/agentd/transport/terr"
)

// Chunk is a piece of stream data ready to be framed and sent.
type Chunk struct {
	Offset  uint64
	Payload []byte
	Fin     bool
}

// SendBuffer accumulates outbound bytes for one stream and hands them
// out in offset order.
type SendBuffer struct {
	pending    []byte
	nextOffset uint64
	finQueued  bool
	finSent    bool
}

// Queue appends data to the send buffer. It fails with
// ErrAlreadyFinished once Fin has already been queued.
func (b *SendBuffer) Queue(data []byte) error {
	if b.finQueued {
		return terr.ErrAlreadyFinished
	}
	b.pending = append(b.pending, data...)
	return nil
}

// QueueFin marks the stream as finished once all queued bytes are
// sent. A second call fails with ErrAlreadyFinished.
func (b *SendBuffer) QueueFin() error {
	if b.finQueued {
		return terr.ErrAlreadyFinished
	}
	b.finQueued = true
	return nil
}

// NextChunk pops up to maxLen bytes from the front of the pending
// buffer. Fin is set once the buffer is drained, Fin was queued, and
// Fin has not already been sent.
func (b *SendBuffer) NextChunk(maxLen int) Chunk {
	n := len(b.pending)
	if n > maxLen {
		n = maxLen
	}
	payload := b.pending[:n]
	b.pending = b.pending[n:]

	fin := len(b.pending) == 0 && b.finQueued && !b.finSent
	offset := b.nextOffset
	b.nextOffset += uint64(n)
	if fin {
		b.finSent = true
	}
	return Chunk{Offset: offset, Payload: payload, Fin: fin}
}

// Pending reports how many bytes remain queued to send.
func (b *SendBuffer) Pending() int {
	return len(b.pending)
}

// HasWork reports whether NextChunk would return a non-empty chunk:
// either queued bytes remain, or a Fin is due and unsent.
func (b *SendBuffer) HasWork() bool {
	return len(b.pending) > 0 || (b.finQueued && !b.finSent)
}

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
	"github.com/agentd/agentd/transport/flow"
	"github.com/agentd/agentd/transport/terr"
)

// state holds the send and receive halves of one stream.
type state struct {
	send *SendBuffer
	recv *ReceiveBuffer
}

// Manager owns every stream's send/receive state for a connection and
// enforces flow control across them via a shared flow.Controller.
type Manager struct {
	flow    *flow.Controller
	streams map[ID]*state
}

// NewManager builds a Manager backed by the given flow controller. The
// controller's lifetime must match the Manager's.
func NewManager(fc *flow.Controller) *Manager {
	return &Manager{flow: fc, streams: make(map[ID]*state)}
}

// Open registers a new stream with the given initial per-stream flow
// limit. It is a no-op if the stream already exists.
func (m *Manager) Open(id ID, initialMax int64) {
	if _, ok := m.streams[id]; ok {
		return
	}
	m.flow.OpenStream(uint64(id), initialMax)
	m.streams[id] = &state{send: &SendBuffer{}, recv: NewReceiveBuffer()}
}

// QueueSend appends data to a stream's send buffer.
func (m *Manager) QueueSend(id ID, data []byte) error {
	st, ok := m.streams[id]
	if !ok {
		return terr.ErrUnknownStream
	}
	return st.send.Queue(data)
}

// QueueFin marks a stream's send side as finished.
func (m *Manager) QueueFin(id ID) error {
	st, ok := m.streams[id]
	if !ok {
		return terr.ErrUnknownStream
	}
	return st.send.QueueFin()
}

// HasSendWork reports whether the stream has bytes or a pending Fin to
// send.
func (m *Manager) HasSendWork(id ID) bool {
	st, ok := m.streams[id]
	if !ok {
		return false
	}
	return st.send.HasWork()
}

// PollSendChunk computes the effective byte budget for id — the
// minimum of its stream flow credit, the connection's flow credit, and
// maxLen — pulls a chunk of that size from the stream's send buffer,
// and debits both flow windows for the bytes actually produced.
func (m *Manager) PollSendChunk(id ID, maxLen int) (Chunk, error) {
	st, ok := m.streams[id]
	if !ok {
		return Chunk{}, terr.ErrUnknownStream
	}

	limit := maxLen
	if avail := m.flow.StreamAvailable(uint64(id)); int(avail) < limit {
		limit = int(avail)
	}
	if avail := m.flow.ConnectionAvailable(); int(avail) < limit {
		limit = int(avail)
	}
	if limit < 0 {
		limit = 0
	}

	chunk := st.send.NextChunk(limit)
	if len(chunk.Payload) > 0 {
		if err := m.flow.Consume(uint64(id), int64(len(chunk.Payload))); err != nil {
			return Chunk{}, err
		}
	}
	return chunk, nil
}

// IngestReceive feeds inbound data into a stream's receive buffer.
func (m *Manager) IngestReceive(id ID, offset uint64, data []byte, fin bool) error {
	st, ok := m.streams[id]
	if !ok {
		return terr.ErrUnknownStream
	}
	return st.recv.Ingest(offset, data, fin)
}

// Read pops up to maxLen ready bytes from a stream's receive buffer.
func (m *Manager) Read(id ID, maxLen int) ([]byte, error) {
	st, ok := m.streams[id]
	if !ok {
		return nil, terr.ErrUnknownStream
	}
	return st.recv.Read(maxLen), nil
}

// IsReceiveFinished reports whether a stream's receive side has
// delivered every byte up to its final offset.
func (m *Manager) IsReceiveFinished(id ID) bool {
	st, ok := m.streams[id]
	if !ok {
		return false
	}
	return st.recv.IsReceiveFinished()
}

// UpdateStreamLimit raises a stream's flow-control limit.
func (m *Manager) UpdateStreamLimit(id ID, newLimit int64) {
	m.flow.UpdateStreamLimit(uint64(id), newLimit)
}

// UpdateConnectionLimit raises the connection-wide flow-control limit.
func (m *Manager) UpdateConnectionLimit(newLimit int64) {
	m.flow.UpdateConnectionLimit(newLimit)
}

// Remove retires a stream and its flow-control window.
func (m *Manager) Remove(id ID) {
	delete(m.streams, id)
	m.flow.RemoveStream(uint64(id))
}

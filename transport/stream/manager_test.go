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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd/agentd/transport/flow"
	"github.com/agentd/agentd/transport/terr"
)

func TestPollSendChunkRespectsPerStreamAndConnectionLimitsUntilRaised(t *testing.T) {
	streamHigh := NewID(Bidirectional, Client, 0)
	streamLow := NewID(Bidirectional, Client, 1)

	fc := flow.NewController(8)
	m := NewManager(fc)
	m.Open(streamHigh, 6)
	m.Open(streamLow, 4)

	require.NoError(t, m.QueueSend(streamHigh, []byte("abcdef")))
	require.NoError(t, m.QueueSend(streamLow, []byte("ghij")))

	chunk, err := m.PollSendChunk(streamHigh, 16)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(chunk.Payload))

	chunk, err = m.PollSendChunk(streamLow, 16)
	require.NoError(t, err)
	assert.Equal(t, "gh", string(chunk.Payload))

	m.UpdateConnectionLimit(16)
	m.UpdateStreamLimit(streamLow, 6)

	chunk, err = m.PollSendChunk(streamLow, 16)
	require.NoError(t, err)
	assert.Equal(t, "ij", string(chunk.Payload))
}

func TestManagerUnknownStreamOperations(t *testing.T) {
	fc := flow.NewController(8)
	m := NewManager(fc)
	unknown := NewID(Bidirectional, Client, 9)

	_, err := m.PollSendChunk(unknown, 16)
	require.ErrorIs(t, err, terr.ErrUnknownStream)

	err = m.QueueSend(unknown, []byte("x"))
	require.ErrorIs(t, err, terr.ErrUnknownStream)

	err = m.IngestReceive(unknown, 0, []byte("x"), false)
	require.ErrorIs(t, err, terr.ErrUnknownStream)
}

func TestManagerReceiveRoundTrip(t *testing.T) {
	fc := flow.NewController(100)
	m := NewManager(fc)
	id := NewID(Unidirectional, Server, 0)
	m.Open(id, 100)

	require.NoError(t, m.IngestReceive(id, 0, []byte("hi"), true))
	data, err := m.Read(id, 10)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
	assert.True(t, m.IsReceiveFinished(id))
}

func TestManagerRemoveStream(t *testing.T) {
	fc := flow.NewController(100)
	m := NewManager(fc)
	id := NewID(Bidirectional, Client, 0)
	m.Open(id, 10)
	m.Remove(id)

	err := m.QueueSend(id, []byte("x"))
	require.ErrorIs(t, err, terr.ErrUnknownStream)
}

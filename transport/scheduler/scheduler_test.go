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

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd/agentd/transport/flow"
	"github.com/agentd/agentd/transport/stream"
)

func TestPopStreamPrioritizesControlThenFlowControlGatesSendSize(t *testing.T) {
	streamHigh := stream.NewID(stream.Bidirectional, stream.Client, 0)
	streamLow := stream.NewID(stream.Bidirectional, stream.Client, 1)

	fc := flow.NewController(8)
	m := stream.NewManager(fc)
	m.Open(streamHigh, 6)
	m.Open(streamLow, 4)
	require.NoError(t, m.QueueSend(streamHigh, []byte("abcdef")))
	require.NoError(t, m.QueueSend(streamLow, []byte("ghij")))

	sched := New()
	sched.Enqueue(streamLow, Bulk)
	sched.Enqueue(streamHigh, Control)

	id, ok := sched.PopStream()
	require.True(t, ok)
	assert.Equal(t, streamHigh, id)

	chunk, err := m.PollSendChunk(id, 16)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(chunk.Payload))

	id, ok = sched.PopStream()
	require.True(t, ok)
	assert.Equal(t, streamLow, id)

	chunk, err = m.PollSendChunk(id, 16)
	require.NoError(t, err)
	assert.Equal(t, "gh", string(chunk.Payload))

	m.UpdateConnectionLimit(16)
	m.UpdateStreamLimit(streamLow, 6)

	chunk, err = m.PollSendChunk(streamLow, 16)
	require.NoError(t, err)
	assert.Equal(t, "ij", string(chunk.Payload))

	_, ok = sched.PopStream()
	assert.False(t, ok)
}

func TestPopStreamPriorityOrdering(t *testing.T) {
	a := stream.NewID(stream.Bidirectional, stream.Client, 0)
	b := stream.NewID(stream.Bidirectional, stream.Client, 1)
	c := stream.NewID(stream.Bidirectional, stream.Client, 2)

	s := New()
	s.Enqueue(a, Bulk)
	s.Enqueue(b, Control)
	s.Enqueue(c, Interactive)

	first, _ := s.PopStream()
	second, _ := s.PopStream()
	third, _ := s.PopStream()
	assert.Equal(t, b, first)
	assert.Equal(t, c, second)
	assert.Equal(t, a, third)
}

func TestPopStreamFIFOWithinClass(t *testing.T) {
	a := stream.NewID(stream.Bidirectional, stream.Client, 0)
	b := stream.NewID(stream.Bidirectional, stream.Client, 1)
	c := stream.NewID(stream.Bidirectional, stream.Client, 2)

	s := New()
	s.Enqueue(a, Bulk)
	s.Enqueue(b, Bulk)
	s.Enqueue(c, Bulk)

	first, _ := s.PopStream()
	second, _ := s.PopStream()
	third, _ := s.PopStream()
	assert.Equal(t, a, first)
	assert.Equal(t, b, second)
	assert.Equal(t, c, third)
}

func TestEnqueueAlreadyQueuedIsNoop(t *testing.T) {
	a := stream.NewID(stream.Bidirectional, stream.Client, 0)
	s := New()
	s.Enqueue(a, Bulk)
	s.Enqueue(a, Control)
	assert.Equal(t, 1, s.Len())
}

func TestPopStreamEmptySchedulerReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.PopStream()
	assert.False(t, ok)
}

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

	"github.com/agentd/agentd/transport/terr"
)

func TestSendBufferNextChunkSplitsAcrossCalls(t *testing.T) {
	var b SendBuffer
	require.NoError(t, b.Queue([]byte("hello world")))

	first := b.NextChunk(5)
	assert.Equal(t, uint64(0), first.Offset)
	assert.Equal(t, "hello", string(first.Payload))
	assert.False(t, first.Fin)

	second := b.NextChunk(100)
	assert.Equal(t, uint64(5), second.Offset)
	assert.Equal(t, " world", string(second.Payload))
	assert.False(t, second.Fin)
}

func TestSendBufferFinOnLastChunk(t *testing.T) {
	var b SendBuffer
	require.NoError(t, b.Queue([]byte("hi")))
	require.NoError(t, b.QueueFin())

	chunk := b.NextChunk(100)
	assert.Equal(t, "hi", string(chunk.Payload))
	assert.True(t, chunk.Fin)

	again := b.NextChunk(100)
	assert.Empty(t, again.Payload)
	assert.False(t, again.Fin)
}

func TestSendBufferQueueAfterFinFails(t *testing.T) {
	var b SendBuffer
	require.NoError(t, b.QueueFin())
	err := b.Queue([]byte("late"))
	require.ErrorIs(t, err, terr.ErrAlreadyFinished)
}

func TestSendBufferQueueFinTwiceFails(t *testing.T) {
	var b SendBuffer
	require.NoError(t, b.QueueFin())
	err := b.QueueFin()
	require.ErrorIs(t, err, terr.ErrAlreadyFinished)
}

func TestSendBufferHasWork(t *testing.T) {
	var b SendBuffer
	assert.False(t, b.HasWork())
	require.NoError(t, b.Queue([]byte("x")))
	assert.True(t, b.HasWork())
	b.NextChunk(1)
	assert.False(t, b.HasWork())
	require.NoError(t, b.QueueFin())
	assert.True(t, b.HasWork())
}

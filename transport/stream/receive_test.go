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

func TestIngestReassemblesOutOfOrderChunksWithFin(t *testing.T) {
	b := NewReceiveBuffer()

	require.NoError(t, b.Ingest(2, []byte("llo"), false))
	require.NoError(t, b.Ingest(0, []byte("he"), false))
	require.NoError(t, b.Ingest(5, nil, true))

	assert.Equal(t, "hello", string(b.Read(10)))
	assert.True(t, b.IsReceiveFinished())
}

func TestReceiveBufferDuplicateIdenticalIsNoop(t *testing.T) {
	b := NewReceiveBuffer()
	require.NoError(t, b.Ingest(0, []byte("ab"), false))
	require.NoError(t, b.Ingest(0, []byte("ab"), false))
	assert.Equal(t, "ab", string(b.Read(10)))
}

func TestReceiveBufferConflictingDataFails(t *testing.T) {
	b := NewReceiveBuffer()
	require.NoError(t, b.Ingest(2, []byte("llo"), false))
	err := b.Ingest(2, []byte("xyz"), false)
	require.Error(t, err)
	var conflict *terr.ConflictingData
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(2), conflict.Offset)
}

func TestReceiveBufferDataBeyondFinalOffsetFails(t *testing.T) {
	b := NewReceiveBuffer()
	require.NoError(t, b.Ingest(0, []byte("hi"), true))
	err := b.Ingest(2, []byte("!"), false)
	require.Error(t, err)
	var beyond *terr.DataBeyondFinalOffset
	assert.ErrorAs(t, err, &beyond)
}

func TestReceiveBufferNotFinishedWithoutFin(t *testing.T) {
	b := NewReceiveBuffer()
	require.NoError(t, b.Ingest(0, []byte("hi"), false))
	assert.False(t, b.IsReceiveFinished())
	b.Read(10)
	assert.False(t, b.IsReceiveFinished())
}

func TestReceiveBufferReadPartial(t *testing.T) {
	b := NewReceiveBuffer()
	require.NoError(t, b.Ingest(0, []byte("hello"), false))
	assert.Equal(t, "he", string(b.Read(2)))
	assert.Equal(t, "llo", string(b.Read(10)))
	assert.Equal(t, uint64(5), b.DeliveredOffset())
}

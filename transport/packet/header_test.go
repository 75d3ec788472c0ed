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

package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd/agentd/transport/terr"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		ConnID:     0xAA55,
		PacketNum:  42,
		Flags:      FlagAckEliciting | FlagHandshake,
		PayloadLen: 128,
		Nonce:      [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}

	buf := make([]byte, HeaderLen)
	require.NoError(t, h.Encode(buf))

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeReservedBitsSet(t *testing.T) {
	buf := make([]byte, HeaderLen)
	buf[17] = 1

	_, err := Decode(buf)
	require.Error(t, err)
	var rbs *terr.ReservedBitsSet
	assert.ErrorAs(t, err, &rbs)
}

func TestDecodeBufferTooSmall(t *testing.T) {
	_, err := Decode(make([]byte, HeaderLen-1))
	require.Error(t, err)
	var bts *terr.BufferTooSmall
	assert.ErrorAs(t, err, &bts)
}

func TestEncodeBufferTooSmall(t *testing.T) {
	h := Header{}
	err := h.Encode(make([]byte, HeaderLen-1))
	require.Error(t, err)
	var bts *terr.BufferTooSmall
	assert.ErrorAs(t, err, &bts)
}

func TestPeekConnIDSurvivesHeaderProtection(t *testing.T) {
	h := Header{ConnID: 0x1122334455667788, PacketNum: 9, Flags: FlagAckEliciting}
	buf := make([]byte, HeaderLen)
	require.NoError(t, h.Encode(buf))

	key := make([]byte, 32)
	body := []byte("ciphertext-body-bytes")
	require.NoError(t, ApplyHeaderProtection(buf, key, body))

	id, err := PeekConnID(buf)
	require.NoError(t, err)
	assert.Equal(t, h.ConnID, id)
}

func TestPeekConnIDBufferTooSmall(t *testing.T) {
	_, err := PeekConnID(make([]byte, 4))
	require.Error(t, err)
	var bts *terr.BufferTooSmall
	assert.ErrorAs(t, err, &bts)
}

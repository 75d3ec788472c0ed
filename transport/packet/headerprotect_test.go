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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderProtectionIsInvolution(t *testing.T) {
	key := bytes.Repeat([]byte{0x44}, 32)
	body := bytes.Repeat([]byte{0xAB}, 32)

	hdr := Header{ConnID: 1, PacketNum: 7, Flags: FlagAckEliciting, PayloadLen: 32}
	buf := make([]byte, HeaderLen)
	require.NoError(t, hdr.Encode(buf))

	original := append([]byte(nil), buf...)

	require.NoError(t, ApplyHeaderProtection(buf, key, body))
	assert.NotEqual(t, original, buf)

	require.NoError(t, ApplyHeaderProtection(buf, key, body))
	assert.Equal(t, original, buf)
}

func TestHeaderProtectionDependsOnFullSample(t *testing.T) {
	key := bytes.Repeat([]byte{0x55}, 32)

	hdr := Header{ConnID: 1, PacketNum: 1}
	bufA := make([]byte, HeaderLen)
	bufB := make([]byte, HeaderLen)
	require.NoError(t, hdr.Encode(bufA))
	require.NoError(t, hdr.Encode(bufB))

	bodyA := bytes.Repeat([]byte{0x01}, 16)
	bodyB := bytes.Repeat([]byte{0x02}, 16)

	require.NoError(t, ApplyHeaderProtection(bufA, key, bodyA))
	require.NoError(t, ApplyHeaderProtection(bufB, key, bodyB))

	assert.NotEqual(t, bufA, bufB)
}

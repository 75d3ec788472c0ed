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

package udpsocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendToRecvFromRoundTrip(t *testing.T) {
	a, err := Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	b, err := Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	_, err = a.SendTo([]byte("hello"), b.LocalAddr())
	require.NoError(t, err)

	require.NoError(t, b.SetReadTimeout(time.Second))
	buf := make([]byte, 64)
	n, from, err := b.RecvFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.NotNil(t, from)
}

func TestSetReadTimeoutExpires(t *testing.T) {
	s, err := Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetReadTimeout(10*time.Millisecond))
	buf := make([]byte, 64)
	_, _, err = s.RecvFrom(buf)
	assert.Error(t, err)
}

func TestSetNonblockingReturnsImmediately(t *testing.T) {
	s, err := Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetNonblocking(true))
	buf := make([]byte, 64)
	_, _, err = s.RecvFrom(buf)
	assert.Error(t, err)
}

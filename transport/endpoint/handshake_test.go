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

package endpoint

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd/agentd/confengine"
	"github.com/agentd/agentd/transport/conn"
	"github.com/agentd/agentd/transport/cryptoprim"
)

func newIdentityEndpoint(t *testing.T, priv, pub, peer [32]byte) *Endpoint {
	t.Helper()
	content := fmt.Sprintf(`
endpoint:
  address: "127.0.0.1:0"
  readTimeout: 100ms
  staticPrivateKey: %q
  staticPublicKey: %q
  peerStaticKey: %q
server:
  enabled: false
`, hex.EncodeToString(priv[:]), hex.EncodeToString(pub[:]), hex.EncodeToString(peer[:]))

	conf, err := confengine.LoadContent([]byte(content))
	require.NoError(t, err)
	ep, err := New(conf, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(ep.Stop)
	return ep
}

// TestDialAndAcceptCompleteHandshake drives a full three-message
// handshake between two Endpoints: the client's Dial blocks on the
// socket while the server answers each message from receiveOne,
// ending with both sides holding a registered Connection over
// matching directional keys.
func TestDialAndAcceptCompleteHandshake(t *testing.T) {
	serverPriv, serverPub, err := cryptoprim.GenerateKeypair()
	require.NoError(t, err)
	clientPriv, clientPub, err := cryptoprim.GenerateKeypair()
	require.NoError(t, err)

	server := newIdentityEndpoint(t, serverPriv, serverPub, clientPub)
	client := newIdentityEndpoint(t, clientPriv, clientPub, serverPub)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.receiveOne(); err != nil {
			serverErr <- err
			return
		}
		serverErr <- server.receiveOne()
	}()

	clientConn, err := client.Dial(server.LocalAddr(), conn.Config{})
	require.NoError(t, err)
	require.NoError(t, <-serverErr)

	require.Len(t, server.conns, 1)
	require.NotNil(t, clientConn.Cipher())

	_, ok := clientConn.SessionTicket()
	assert.True(t, ok)
	assert.Equal(t, 1, client.tickets.Len())

	for _, sc := range server.conns {
		_, ok := sc.SessionTicket()
		assert.True(t, ok)
	}
	assert.Equal(t, 1, server.tickets.Len())
}

// TestHandleHandshakeDatagramRejectsWithoutIdentity confirms a server
// with no configured static identity drops a handshake attempt instead
// of panicking or silently accepting it.
func TestHandleHandshakeDatagramRejectsWithoutIdentity(t *testing.T) {
	server := newTestEndpoint(t)
	require.Error(t, server.handleHandshakeDatagram([]byte{1, 2, 3}, server.LocalAddr()))
}

// TestHandleHandshakeDatagramCountsFailureOnMalformedMessage confirms a
// malformed handshake datagram is both rejected and counted, since an
// endpoint under attack needs that visible in its metrics.
func TestHandleHandshakeDatagramCountsFailureOnMalformedMessage(t *testing.T) {
	var priv, pub, peer [32]byte
	server := newIdentityEndpoint(t, priv, pub, peer)

	require.Error(t, server.handleHandshakeDatagram([]byte{1, 2, 3}, server.LocalAddr()))
	assert.Equal(t, float64(1), testutil.ToFloat64(server.metrics.HandshakeFailures.WithLabelValues("decode_message")))
}

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

package handshake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd/agentd/transport/cryptoprim"
	"github.com/agentd/agentd/transport/terr"
)

func staticKeys(t *testing.T) (clientStatic, serverStatic []byte) {
	t.Helper()
	_, pubA, err := cryptoprim.GenerateKeypair()
	require.NoError(t, err)
	_, pubB, err := cryptoprim.GenerateKeypair()
	require.NoError(t, err)
	return pubA[:], pubB[:]
}

func TestFullHandshakeDerivesMatchingKeys(t *testing.T) {
	clientStatic, serverStatic := staticKeys(t)

	initiator := NewInitiator(clientStatic, serverStatic)
	responder := NewResponder(serverStatic, clientStatic)

	hello, err := initiator.Start()
	require.NoError(t, err)

	responderHello, err := responder.HandleInitiatorHello(hello)
	require.NoError(t, err)
	assert.Equal(t, AwaitingFinal, responder.Stage())

	finish, err := initiator.HandleResponderHello(responderHello)
	require.NoError(t, err)
	assert.Equal(t, Complete, initiator.Stage())

	err = responder.HandleInitiatorFinish(finish)
	require.NoError(t, err)
	assert.Equal(t, Complete, responder.Stage())

	assert.Equal(t, initiator.Result.Keys.SendKey, responder.Result.Keys.RecvKey)
	assert.Equal(t, initiator.Result.Keys.RecvKey, responder.Result.Keys.SendKey)
	assert.Equal(t, initiator.Result.Keys.SendHPKey, responder.Result.Keys.RecvHPKey)
	assert.Equal(t, initiator.Result.Keys.RecvHPKey, responder.Result.Keys.SendHPKey)
	assert.Equal(t, initiator.Result.SendIV, responder.Result.RecvIV)
	assert.Equal(t, initiator.Result.RecvIV, responder.Result.SendIV)
	assert.Equal(t, initiator.Result.TicketSeed, responder.Result.TicketSeed)
}

func TestResponderRejectsWrongKindAtReady(t *testing.T) {
	clientStatic, serverStatic := staticKeys(t)
	responder := NewResponder(serverStatic, clientStatic)

	bogus := Encode(Message{Kind: KindResponderHello, Ephemeral: [32]byte{}})
	_, err := responder.HandleInitiatorHello(bogus)
	require.ErrorIs(t, err, terr.ErrUnexpectedMessage)
}

func TestInitiatorRejectsTamperedConfirmation(t *testing.T) {
	clientStatic, serverStatic := staticKeys(t)
	initiator := NewInitiator(clientStatic, serverStatic)
	responder := NewResponder(serverStatic, clientStatic)

	hello, err := initiator.Start()
	require.NoError(t, err)
	responderHello, err := responder.HandleInitiatorHello(hello)
	require.NoError(t, err)

	tampered := append([]byte(nil), responderHello...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = initiator.HandleResponderHello(tampered)
	require.ErrorIs(t, err, terr.ErrAuthenticationFail)
}

func TestDecodeMessageTooShortFails(t *testing.T) {
	_, err := DecodeMessage([]byte{1, 2, 3})
	require.ErrorIs(t, err, terr.ErrMalformedMessage)
}

func TestDecodeMessageTruncatedPayloadFails(t *testing.T) {
	msg := Encode(Message{Kind: KindInitiatorHello, Ephemeral: [32]byte{}, Payload: []byte("hello")})
	_, err := DecodeMessage(msg[:len(msg)-2])
	require.ErrorIs(t, err, terr.ErrMalformedMessage)
}

func TestReplayStoreDetectsReplay(t *testing.T) {
	store := NewReplayStore(8, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	msg := []byte("handshake-message-bytes")

	require.NoError(t, store.CheckAndRecord(msg, now))
	err := store.CheckAndRecord(msg, now.Add(time.Second))
	require.ErrorIs(t, err, terr.ErrReplayDetected)
}

func TestReplayStoreForgetsAfterTTL(t *testing.T) {
	store := NewReplayStore(8, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	msg := []byte("handshake-message-bytes")

	require.NoError(t, store.CheckAndRecord(msg, now))
	require.NoError(t, store.CheckAndRecord(msg, now.Add(2*time.Minute)))
}

func TestReplayStoreEvictsOldestAtCapacity(t *testing.T) {
	store := NewReplayStore(2, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, store.CheckAndRecord([]byte("a"), now))
	require.NoError(t, store.CheckAndRecord([]byte("b"), now))
	require.NoError(t, store.CheckAndRecord([]byte("c"), now))

	// "a" should have been evicted, so it is accepted again without
	// triggering ReplayDetected.
	require.NoError(t, store.CheckAndRecord([]byte("a"), now))
}

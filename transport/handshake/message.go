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

// Package handshake implements the three-message authenticated key
// exchange that establishes a connection's directional AEAD and
// header-protection keys.
package handshake

import (
	"encoding/binary"

	"github.com/agentd/agentd/transport/terr"
)

// Kind identifies which of the three handshake messages a wire blob
// carries.
type Kind uint8

const (
	KindInitiatorHello Kind = 1
	KindResponderHello Kind = 2
	KindInitiatorFinish Kind = 3
)

// EphemeralSize is the width of the ephemeral X25519 public key every
// message carries.
const EphemeralSize = 32

// minMessageLen is kind(1) + ephemeral(32) + payload length prefix(2).
const minMessageLen = 1 + EphemeralSize + 2

// Message is one decoded handshake wire message: kind || ephemeral ||
// u16 LE payload length || payload.
type Message struct {
	Kind      Kind
	Ephemeral [EphemeralSize]byte
	Payload   []byte
}

// Encode serializes m in little-endian wire format.
func Encode(m Message) []byte {
	out := make([]byte, minMessageLen+len(m.Payload))
	out[0] = byte(m.Kind)
	copy(out[1:1+EphemeralSize], m.Ephemeral[:])
	binary.LittleEndian.PutUint16(out[1+EphemeralSize:minMessageLen], uint16(len(m.Payload)))
	copy(out[minMessageLen:], m.Payload)
	return out
}

// DecodeMessage parses a wire message, failing with MalformedMessage
// if it is too short or its declared payload length overruns src.
func DecodeMessage(src []byte) (Message, error) {
	if len(src) < minMessageLen {
		return Message{}, terr.ErrMalformedMessage
	}
	var m Message
	m.Kind = Kind(src[0])
	copy(m.Ephemeral[:], src[1:1+EphemeralSize])
	payloadLen := int(binary.LittleEndian.Uint16(src[1+EphemeralSize : minMessageLen]))
	if len(src) < minMessageLen+payloadLen {
		return Message{}, terr.ErrMalformedMessage
	}
	m.Payload = append([]byte(nil), src[minMessageLen:minMessageLen+payloadLen]...)
	return m, nil
}

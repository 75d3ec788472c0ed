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
	"bytes"
	"time"

	"github.com/pkg/errors"

	"github.com/agentd/agentd/transport/cryptoprim"
	"github.com/agentd/agentd/transport/packet"
	"github.com/agentd/agentd/transport/terr"
)

// Stage enumerates a side's position in the three-message exchange.
type Stage int

const (
	Ready Stage = iota
	AwaitingResponse // initiator only: sent Hello, awaiting ResponderHello
	AwaitingFinal    // responder only: sent ResponderHello, awaiting InitiatorFinish
	Complete
)

const (
	confirmLen = 16
	keyMixLen  = 64 // 32-byte next chaining key || 32-byte temp key
)

var (
	initLabel             = []byte("agentd handshake init")
	mixLabel              = []byte("agentd handshake mix")
	responderConfirmLabel = []byte("agentd handshake responder confirm")
	initiatorConfirmLabel = []byte("agentd handshake initiator confirm")
	sessionKeysLabel      = []byte("agentd handshake session keys")
	sessionIVsLabel       = []byte("agentd handshake session ivs")
	ticketSeedLabel       = []byte("agentd handshake ticket seed")
)

// Result is the material a completed handshake produces for its side:
// directional packet-cipher keys and IVs, plus the seed used to derive
// session tickets (identical on both sides, since both compute the
// same final chaining key).
type Result struct {
	Keys       packet.Keys
	SendIV     [12]byte
	RecvIV     [12]byte
	TicketSeed []byte
}

// prologue builds the commutative binding of both static public keys:
// sorted lexicographically so either side computes the same bytes
// regardless of its role.
func prologue(staticA, staticB []byte) []byte {
	if bytes.Compare(staticA, staticB) <= 0 {
		return append(append([]byte(nil), staticA...), staticB...)
	}
	return append(append([]byte(nil), staticB...), staticA...)
}

// mix advances the chaining key with ikm, returning the next chaining
// key and a temporary key derived alongside it.
func mix(chainKey, ikm []byte) (nextChain, temp []byte, err error) {
	out, err := cryptoprim.HKDF(ikm, chainKey, mixLabel, keyMixLen)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mix chaining key")
	}
	return out[:32], out[32:64], nil
}

// initialChainKey derives ck0 from the prologue of both static keys.
func initialChainKey(staticA, staticB []byte) ([]byte, error) {
	ck, err := cryptoprim.HKDF(prologue(staticA, staticB), nil, initLabel, 32)
	if err != nil {
		return nil, errors.Wrap(err, "derive initial chaining key")
	}
	return ck, nil
}

// deriveResult expands the final chaining key into directional keys,
// IVs and a ticket seed, assigning send/recv by role.
func deriveResult(finalChain []byte, initiator bool) (Result, error) {
	keyBytes, err := cryptoprim.HKDF(finalChain, nil, sessionKeysLabel, 4*32)
	if err != nil {
		return Result{}, errors.Wrap(err, "derive session keys")
	}
	ivBytes, err := cryptoprim.HKDF(finalChain, nil, sessionIVsLabel, 2*12)
	if err != nil {
		return Result{}, errors.Wrap(err, "derive session ivs")
	}
	ticketSeed, err := cryptoprim.HKDF(finalChain, nil, ticketSeedLabel, 32)
	if err != nil {
		return Result{}, errors.Wrap(err, "derive ticket seed")
	}

	i2rKey, r2iKey := keyBytes[0:32], keyBytes[32:64]
	i2rHP, r2iHP := keyBytes[64:96], keyBytes[96:128]
	i2rIV, r2iIV := ivBytes[0:12], ivBytes[12:24]

	var res Result
	res.TicketSeed = ticketSeed
	if initiator {
		copy(res.Keys.SendKey[:], i2rKey)
		copy(res.Keys.RecvKey[:], r2iKey)
		copy(res.Keys.SendHPKey[:], i2rHP)
		copy(res.Keys.RecvHPKey[:], r2iHP)
		copy(res.SendIV[:], i2rIV)
		copy(res.RecvIV[:], r2iIV)
	} else {
		copy(res.Keys.SendKey[:], r2iKey)
		copy(res.Keys.RecvKey[:], i2rKey)
		copy(res.Keys.SendHPKey[:], r2iHP)
		copy(res.Keys.RecvHPKey[:], i2rHP)
		copy(res.SendIV[:], r2iIV)
		copy(res.RecvIV[:], i2rIV)
	}
	return res, nil
}

// Initiator drives the Ready -> AwaitingResponse -> Complete side of
// the exchange.
type Initiator struct {
	stage Stage

	staticPub  []byte
	peerStatic []byte
	ephPriv    [32]byte
	ephPub     [32]byte

	chainKey []byte

	Result Result
}

// NewInitiator builds an Initiator bound to both sides' static public
// keys (used only to compute the commutative prologue).
func NewInitiator(staticPub, peerStatic []byte) *Initiator {
	return &Initiator{staticPub: staticPub, peerStatic: peerStatic}
}

// Stage reports the initiator's current position in the exchange.
func (i *Initiator) Stage() Stage { return i.stage }

// Start generates the initiator's ephemeral keypair, mixes it into the
// chaining key, and returns the wire bytes of InitiatorHello.
func (i *Initiator) Start() ([]byte, error) {
	if i.stage != Ready {
		return nil, terr.ErrUnexpectedMessage
	}

	ephPriv, ephPub, err := cryptoprim.GenerateKeypair()
	if err != nil {
		return nil, errors.Wrap(err, "generate initiator ephemeral")
	}
	i.ephPriv, i.ephPub = ephPriv, ephPub

	ck0, err := initialChainKey(i.staticPub, i.peerStatic)
	if err != nil {
		return nil, err
	}

	msg := Message{Kind: KindInitiatorHello, Ephemeral: i.ephPub}
	wire := Encode(msg)

	ck1, _, err := mix(ck0, append(append([]byte(nil), i.ephPub[:]...), msg.Payload...))
	if err != nil {
		return nil, err
	}
	i.chainKey = ck1
	i.stage = AwaitingResponse
	return wire, nil
}

// HandleResponderHello verifies and consumes ResponderHello, producing
// the wire bytes of InitiatorFinish.
func (i *Initiator) HandleResponderHello(wire []byte) ([]byte, error) {
	if i.stage != AwaitingResponse {
		return nil, terr.ErrUnexpectedMessage
	}
	msg, err := DecodeMessage(wire)
	if err != nil {
		return nil, err
	}
	if msg.Kind != KindResponderHello {
		return nil, terr.ErrUnexpectedMessage
	}
	if len(msg.Payload) != confirmLen {
		return nil, terr.ErrMalformedMessage
	}

	dh, err := cryptoprim.ECDH(i.ephPriv, msg.Ephemeral)
	if err != nil {
		return nil, errors.Wrap(err, "initiator dh with responder ephemeral")
	}
	ck2, tk2, err := mix(i.chainKey, dh[:])
	if err != nil {
		return nil, err
	}

	expected := cryptoprim.MAC(tk2, responderConfirmLabel, confirmLen)
	if !cryptoprim.ConstantTimeEqual(expected, msg.Payload) {
		return nil, terr.ErrAuthenticationFail
	}

	ck3, tk3, err := mix(ck2, append(append([]byte(nil), msg.Ephemeral[:]...), msg.Payload...))
	if err != nil {
		return nil, err
	}

	confirm3 := cryptoprim.MAC(tk3, initiatorConfirmLabel, confirmLen)
	finish := Message{Kind: KindInitiatorFinish, Ephemeral: i.ephPub, Payload: confirm3}
	wireFinish := Encode(finish)

	ck4, _, err := mix(ck3, append(append([]byte(nil), finish.Ephemeral[:]...), finish.Payload...))
	if err != nil {
		return nil, err
	}

	res, err := deriveResult(ck4, true)
	if err != nil {
		return nil, err
	}
	i.Result = res
	i.stage = Complete
	return wireFinish, nil
}

// Responder drives the Ready -> AwaitingFinal -> Complete side of the
// exchange.
type Responder struct {
	stage Stage

	staticPub  []byte
	peerStatic []byte
	ephPriv    [32]byte
	ephPub     [32]byte

	chainKey []byte
	tempKey3 []byte

	Result Result
}

// NewResponder builds a Responder bound to both sides' static public
// keys.
func NewResponder(staticPub, peerStatic []byte) *Responder {
	return &Responder{staticPub: staticPub, peerStatic: peerStatic}
}

// Stage reports the responder's current position in the exchange.
func (r *Responder) Stage() Stage { return r.stage }

// HandleInitiatorHello verifies and consumes InitiatorHello, producing
// the wire bytes of ResponderHello.
func (r *Responder) HandleInitiatorHello(wire []byte) ([]byte, error) {
	if r.stage != Ready {
		return nil, terr.ErrUnexpectedMessage
	}
	msg, err := DecodeMessage(wire)
	if err != nil {
		return nil, err
	}
	if msg.Kind != KindInitiatorHello {
		return nil, terr.ErrUnexpectedMessage
	}

	ck0, err := initialChainKey(r.staticPub, r.peerStatic)
	if err != nil {
		return nil, err
	}
	ck1, _, err := mix(ck0, append(append([]byte(nil), msg.Ephemeral[:]...), msg.Payload...))
	if err != nil {
		return nil, err
	}

	ephPriv, ephPub, err := cryptoprim.GenerateKeypair()
	if err != nil {
		return nil, errors.Wrap(err, "generate responder ephemeral")
	}
	r.ephPriv, r.ephPub = ephPriv, ephPub

	dh, err := cryptoprim.ECDH(r.ephPriv, msg.Ephemeral)
	if err != nil {
		return nil, errors.Wrap(err, "responder dh with initiator ephemeral")
	}
	ck2, tk2, err := mix(ck1, dh[:])
	if err != nil {
		return nil, err
	}

	confirm2 := cryptoprim.MAC(tk2, responderConfirmLabel, confirmLen)
	reply := Message{Kind: KindResponderHello, Ephemeral: r.ephPub, Payload: confirm2}
	wireReply := Encode(reply)

	ck3, tk3, err := mix(ck2, append(append([]byte(nil), reply.Ephemeral[:]...), reply.Payload...))
	if err != nil {
		return nil, err
	}

	r.chainKey = ck3
	r.tempKey3 = tk3
	r.stage = AwaitingFinal
	return wireReply, nil
}

// HandleInitiatorFinish verifies and consumes InitiatorFinish,
// completing the exchange.
func (r *Responder) HandleInitiatorFinish(wire []byte) error {
	if r.stage != AwaitingFinal {
		return terr.ErrUnexpectedMessage
	}
	msg, err := DecodeMessage(wire)
	if err != nil {
		return err
	}
	if msg.Kind != KindInitiatorFinish {
		return terr.ErrUnexpectedMessage
	}
	if len(msg.Payload) != confirmLen {
		return terr.ErrMalformedMessage
	}

	expected := cryptoprim.MAC(r.tempKey3, initiatorConfirmLabel, confirmLen)
	if !cryptoprim.ConstantTimeEqual(expected, msg.Payload) {
		return terr.ErrAuthenticationFail
	}

	ck4, _, err := mix(r.chainKey, append(append([]byte(nil), msg.Ephemeral[:]...), msg.Payload...))
	if err != nil {
		return err
	}

	res, err := deriveResult(ck4, false)
	if err != nil {
		return err
	}
	r.Result = res
	r.stage = Complete
	return nil
}

// CurrentTime is a seam over time.Now so callers (and tests) can
// supply a deterministic clock where the anti-replay store is shared.
var CurrentTime = time.Now

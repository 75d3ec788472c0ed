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
	"encoding/binary"
	"math"

	"github.com/agentd/agentd/transport/cryptoprim"
	"github.com/agentd/agentd/transport/terr"
)

// Keys bundles the four directional keys a Cipher needs: a send/receive
// AEAD key pair and a send/receive header-protection key pair.
type Keys struct {
	SendKey   [cryptoprim.KeySize]byte
	RecvKey   [cryptoprim.KeySize]byte
	SendHPKey [cryptoprim.KeySize]byte
	RecvHPKey [cryptoprim.KeySize]byte
}

// Cipher owns one directional pair of AEAD + header-protection keys for
// a single connection, plus the send packet-number counter and the
// high-water mark used for replay rejection. It is not safe for
// concurrent use; each connection owns exactly one Cipher (§5).
type Cipher struct {
	keys Keys

	sendIV [12]byte
	recvIV [12]byte

	sendPacketNumber uint64
	highestReceived  uint64
	hasReceived      bool
}

// NewCipher builds a Cipher from keys. sendIV/recvIV are the per-
// direction nonce initialization vectors the packet number is XORed
// against (design note 2: XOR of packet number with a per-direction IV
// is the canonical, interoperable nonce derivation).
func NewCipher(keys Keys, sendIV, recvIV [12]byte) *Cipher {
	return &Cipher{keys: keys, sendIV: sendIV, recvIV: recvIV}
}

func deriveNonce(iv [12]byte, pn uint64) [12]byte {
	var pnBytes [12]byte
	binary.BigEndian.PutUint64(pnBytes[4:], pn)

	var nonce [12]byte
	for i := range nonce {
		nonce[i] = iv[i] ^ pnBytes[i]
	}
	return nonce
}

// maxPlaintextLen is u16::MAX - 16, the largest plaintext that still
// fits a payload_len field once the AEAD tag is appended.
const maxPlaintextLen = math.MaxUint16 - cryptoprim.TagSize

// SealInto seals plaintext for connID with the given flags into buf,
// returning the assigned packet number and the total encoded length.
// buf must be at least HeaderLen + len(plaintext) + TagSize bytes.
func (c *Cipher) SealInto(connID uint64, flags uint8, plaintext []byte, buf []byte) (pn uint64, total int, err error) {
	if len(plaintext) > maxPlaintextLen {
		return 0, 0, &terr.PayloadTooLarge{Len: len(plaintext), Max: maxPlaintextLen}
	}
	needed := HeaderLen + len(plaintext) + cryptoprim.TagSize
	if len(buf) < needed {
		return 0, 0, &terr.BufferTooSmall{Needed: needed, Got: len(buf)}
	}

	pn = c.sendPacketNumber
	c.sendPacketNumber++

	nonce := deriveNonce(c.sendIV, pn)
	h := Header{
		ConnID:     connID,
		PacketNum:  pn,
		Flags:      flags,
		PayloadLen: uint16(len(plaintext) + cryptoprim.TagSize),
		Nonce:      nonce,
	}
	if err := h.Encode(buf[:HeaderLen]); err != nil {
		return 0, 0, err
	}

	sealed, err := cryptoprim.Seal(buf[:HeaderLen], c.keys.SendKey[:], nonce[:], buf[:HeaderLen], plaintext)
	if err != nil {
		return 0, 0, err
	}
	total = len(sealed)

	body := sealed[HeaderLen:]
	if err := ApplyHeaderProtection(sealed[:HeaderLen], c.keys.SendHPKey[:], body); err != nil {
		return 0, 0, err
	}
	return pn, total, nil
}

// Open authenticates and decrypts a received packet, rejecting replays
// and tampered ciphertexts. It never advances internal state on
// failure.
func (c *Cipher) Open(pkt []byte) (Header, []byte, error) {
	if len(pkt) < HeaderLen+cryptoprim.TagSize {
		return Header{}, nil, &terr.BufferTooSmall{Needed: HeaderLen + cryptoprim.TagSize, Got: len(pkt)}
	}

	body := pkt[HeaderLen:]

	scratch := make([]byte, HeaderLen)
	copy(scratch, pkt[:HeaderLen])
	if err := ApplyHeaderProtection(scratch, c.keys.RecvHPKey[:], body); err != nil {
		return Header{}, nil, err
	}

	h, err := Decode(scratch)
	if err != nil {
		return Header{}, nil, err
	}
	if h.PayloadLen < cryptoprim.TagSize {
		return Header{}, nil, &terr.BufferTooSmall{Needed: cryptoprim.TagSize, Got: int(h.PayloadLen)}
	}
	if len(body) < int(h.PayloadLen) {
		return Header{}, nil, &terr.BufferTooSmall{Needed: int(h.PayloadLen), Got: len(body)}
	}

	if c.hasReceived && h.PacketNum <= c.highestReceived {
		return Header{}, nil, &terr.ReplayDetected{PacketNumber: h.PacketNum, HighestSeen: c.highestReceived}
	}

	nonce := deriveNonce(c.recvIV, h.PacketNum)
	plaintext, err := cryptoprim.Open(nil, c.keys.RecvKey[:], nonce[:], scratch, body[:h.PayloadLen])
	if err != nil {
		return Header{}, nil, terr.ErrAuthenticationFail
	}

	if !c.hasReceived || h.PacketNum > c.highestReceived {
		c.highestReceived = h.PacketNum
		c.hasReceived = true
	}
	return h, plaintext, nil
}

// NextSendPacketNumber returns the packet number SealInto will assign on
// its next call, without consuming it.
func (c *Cipher) NextSendPacketNumber() uint64 {
	return c.sendPacketNumber
}

// HighestReceived returns the largest accepted packet number and
// whether any packet has been accepted yet.
func (c *Cipher) HighestReceived() (uint64, bool) {
	return c.highestReceived, c.hasReceived
}

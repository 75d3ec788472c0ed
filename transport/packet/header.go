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

// Package packet implements the fixed 32-byte wire header, header
// protection, and the packet cipher that seals/opens packets.
package packet

import (
	"encoding/binary"

	"github.com/agentd/agentd/transport/terr"
)

// HeaderLen is the fixed, little-endian on-wire header length.
const HeaderLen = 32

// Flag bits carried in the header's flags byte.
const (
	FlagHandshake    uint8 = 1 << 0
	FlagAckEliciting uint8 = 1 << 1
	FlagAck          uint8 = 1 << 2
	FlagKeyPhase     uint8 = 1 << 3
	FlagProbe        uint8 = 1 << 4
)

// Header is the decoded form of the 32-byte packet header.
type Header struct {
	ConnID     uint64
	PacketNum  uint64
	Flags      uint8
	PayloadLen uint16
	Nonce      [12]byte
}

// Encode writes h into dst (which must be at least HeaderLen bytes) in
// the layout: conn_id(8) || packet_number(8) || flags(1) || reserved(1)
// || payload_len(2) || nonce(12).
func (h Header) Encode(dst []byte) error {
	if len(dst) < HeaderLen {
		return &terr.BufferTooSmall{Needed: HeaderLen, Got: len(dst)}
	}
	binary.LittleEndian.PutUint64(dst[0:8], h.ConnID)
	binary.LittleEndian.PutUint64(dst[8:16], h.PacketNum)
	dst[16] = h.Flags
	dst[17] = 0 // reserved, MUST be zero
	binary.LittleEndian.PutUint16(dst[18:20], h.PayloadLen)
	copy(dst[20:32], h.Nonce[:])
	return nil
}

// Decode parses a Header from src. It fails with ReservedBitsSet when
// the reserved byte is non-zero and with BufferTooSmall when src is
// shorter than HeaderLen. Decode does not validate flag combinations;
// that policy lives in the cipher and handshake layers.
func Decode(src []byte) (Header, error) {
	if len(src) < HeaderLen {
		return Header{}, &terr.BufferTooSmall{Needed: HeaderLen, Got: len(src)}
	}
	if src[17] != 0 {
		return Header{}, &terr.ReservedBitsSet{Bits: src[17]}
	}

	var h Header
	h.ConnID = binary.LittleEndian.Uint64(src[0:8])
	h.PacketNum = binary.LittleEndian.Uint64(src[8:16])
	h.Flags = src[16]
	h.PayloadLen = binary.LittleEndian.Uint16(src[18:20])
	copy(h.Nonce[:], src[20:32])
	return h, nil
}

// PeekConnID reads the connection id straight off a possibly
// header-protected wire packet. ConnID occupies the header's first 8
// bytes, which header protection never touches, so a dispatcher can
// route a packet to the right connection before it knows which cipher
// can open it.
func PeekConnID(src []byte) (uint64, error) {
	if len(src) < 8 {
		return 0, &terr.BufferTooSmall{Needed: 8, Got: len(src)}
	}
	return binary.LittleEndian.Uint64(src[0:8]), nil
}

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

// Package frame implements the intra-packet frame encoding: a tagged
// variant dispatched on a leading kind byte. There is no virtual
// dispatch table — Decode matches the kind byte and calls the
// matching decoder directly.
package frame

import (
	"encoding/binary"

	"github.com/agentd/agentd/transport/ack"
	"github.com/agentd/agentd/transport/terr"
)

// Kind identifies the frame variant.
type Kind uint8

const (
	KindStreamOpen Kind = iota + 1
	KindStreamData
	KindStreamFin
	KindDatagram
	KindAck
	KindCrypto
	KindControl
	KindStreamMaxData
	KindConnectionMaxData
)

// Frame is the tagged-union decode result. Exactly one of the typed
// fields is populated, selected by Kind.
type Frame struct {
	Kind Kind

	StreamData        StreamDataFrame
	Datagram          []byte
	Ack               ack.Frame
	Crypto            []byte
	Control           []byte
	StreamID          uint64
	StreamMaxData     uint64
	ConnectionMaxData uint64
}

// StreamDataFrame carries a contiguous chunk of one stream's byte
// stream.
type StreamDataFrame struct {
	StreamID uint64
	Offset   uint64
	Data     []byte
	Fin      bool
}

// EncodeStreamOpen encodes a StreamOpen frame: kind || stream_id.
func EncodeStreamOpen(streamID uint64) []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(KindStreamOpen)
	binary.LittleEndian.PutUint64(buf[1:], streamID)
	return buf
}

// EncodeStreamFin encodes a StreamFin frame: kind || stream_id.
func EncodeStreamFin(streamID uint64) []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(KindStreamFin)
	binary.LittleEndian.PutUint64(buf[1:], streamID)
	return buf
}

// EncodeStreamData encodes a StreamData frame: kind || stream_id ||
// offset || fin(1) || length(u32 LE) || data.
func EncodeStreamData(f StreamDataFrame) []byte {
	buf := make([]byte, 1+8+8+1+4+len(f.Data))
	buf[0] = byte(KindStreamData)
	binary.LittleEndian.PutUint64(buf[1:9], f.StreamID)
	binary.LittleEndian.PutUint64(buf[9:17], f.Offset)
	if f.Fin {
		buf[17] = 1
	}
	binary.LittleEndian.PutUint32(buf[18:22], uint32(len(f.Data)))
	copy(buf[22:], f.Data)
	return buf
}

// EncodeDatagram encodes a Datagram frame: kind || length(u32 LE) ||
// payload.
func EncodeDatagram(payload []byte) []byte {
	buf := make([]byte, 1+4+len(payload))
	buf[0] = byte(KindDatagram)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// EncodeCrypto encodes a Crypto frame: kind || length(u32 LE) || data.
func EncodeCrypto(data []byte) []byte {
	buf := make([]byte, 1+4+len(data))
	buf[0] = byte(KindCrypto)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(data)))
	copy(buf[5:], data)
	return buf
}

// EncodeControl encodes a Control frame: kind || length(u32 LE) || data.
func EncodeControl(data []byte) []byte {
	buf := make([]byte, 1+4+len(data))
	buf[0] = byte(KindControl)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(data)))
	copy(buf[5:], data)
	return buf
}

// EncodeAck encodes an Ack frame: kind || ack.Frame encoding.
func EncodeAck(f ack.Frame) ([]byte, error) {
	buf := make([]byte, 1+f.EncodedLen())
	buf[0] = byte(KindAck)
	if err := f.Encode(buf[1:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeStreamMaxData encodes: kind || stream_id(u64 LE) ||
// new_limit(u64 LE).
func EncodeStreamMaxData(streamID, newLimit uint64) []byte {
	buf := make([]byte, 1+8+8)
	buf[0] = byte(KindStreamMaxData)
	binary.LittleEndian.PutUint64(buf[1:9], streamID)
	binary.LittleEndian.PutUint64(buf[9:17], newLimit)
	return buf
}

// EncodeConnectionMaxData encodes: kind || new_limit(u64 LE).
func EncodeConnectionMaxData(newLimit uint64) []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(KindConnectionMaxData)
	binary.LittleEndian.PutUint64(buf[1:], newLimit)
	return buf
}

// Decode parses a single self-delimiting frame from the head of src and
// returns it along with the number of bytes consumed.
func Decode(src []byte) (Frame, int, error) {
	if len(src) < 1 {
		return Frame{}, 0, &terr.BufferTooSmall{Needed: 1, Got: 0}
	}

	switch Kind(src[0]) {
	case KindStreamOpen:
		if len(src) < 9 {
			return Frame{}, 0, &terr.BufferTooSmall{Needed: 9, Got: len(src)}
		}
		return Frame{Kind: KindStreamOpen, StreamID: binary.LittleEndian.Uint64(src[1:9])}, 9, nil

	case KindStreamFin:
		if len(src) < 9 {
			return Frame{}, 0, &terr.BufferTooSmall{Needed: 9, Got: len(src)}
		}
		return Frame{Kind: KindStreamFin, StreamID: binary.LittleEndian.Uint64(src[1:9])}, 9, nil

	case KindStreamData:
		if len(src) < 22 {
			return Frame{}, 0, &terr.BufferTooSmall{Needed: 22, Got: len(src)}
		}
		streamID := binary.LittleEndian.Uint64(src[1:9])
		offset := binary.LittleEndian.Uint64(src[9:17])
		fin := src[17] != 0
		length := int(binary.LittleEndian.Uint32(src[18:22]))
		total := 22 + length
		if len(src) < total {
			return Frame{}, 0, &terr.BufferTooSmall{Needed: total, Got: len(src)}
		}
		data := append([]byte(nil), src[22:total]...)
		return Frame{Kind: KindStreamData, StreamData: StreamDataFrame{
			StreamID: streamID, Offset: offset, Data: data, Fin: fin,
		}}, total, nil

	case KindDatagram:
		n, payload, err := decodeLengthPrefixed(src)
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Kind: KindDatagram, Datagram: payload}, n, nil

	case KindCrypto:
		n, payload, err := decodeLengthPrefixed(src)
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Kind: KindCrypto, Crypto: payload}, n, nil

	case KindControl:
		n, payload, err := decodeLengthPrefixed(src)
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Kind: KindControl, Control: payload}, n, nil

	case KindAck:
		f, err := ack.Decode(src[1:])
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Kind: KindAck, Ack: f}, 1 + f.EncodedLen(), nil

	case KindStreamMaxData:
		if len(src) < 17 {
			return Frame{}, 0, &terr.BufferTooSmall{Needed: 17, Got: len(src)}
		}
		return Frame{
			Kind:          KindStreamMaxData,
			StreamID:      binary.LittleEndian.Uint64(src[1:9]),
			StreamMaxData: binary.LittleEndian.Uint64(src[9:17]),
		}, 17, nil

	case KindConnectionMaxData:
		if len(src) < 9 {
			return Frame{}, 0, &terr.BufferTooSmall{Needed: 9, Got: len(src)}
		}
		return Frame{
			Kind:              KindConnectionMaxData,
			ConnectionMaxData: binary.LittleEndian.Uint64(src[1:9]),
		}, 9, nil

	default:
		return Frame{}, 0, terr.ErrUnexpectedFrameType
	}
}

func decodeLengthPrefixed(src []byte) (int, []byte, error) {
	if len(src) < 5 {
		return 0, nil, &terr.BufferTooSmall{Needed: 5, Got: len(src)}
	}
	length := int(binary.LittleEndian.Uint32(src[1:5]))
	total := 5 + length
	if len(src) < total {
		return 0, nil, &terr.BufferTooSmall{Needed: total, Got: len(src)}
	}
	return total, append([]byte(nil), src[5:total]...), nil
}

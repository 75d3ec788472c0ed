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

package stream

// ID is a u64 stream identifier. Its low bit encodes kind
// (bidirectional/unidirectional), the next bit encodes which side
// opened the stream, and the remaining bits are a sequence index. It
// is immutable once created.
type ID uint64

// Kind distinguishes bidirectional from unidirectional streams.
type Kind uint8

const (
	Bidirectional Kind = 0
	Unidirectional Kind = 1
)

// Initiator distinguishes which endpoint opened a stream.
type Initiator uint8

const (
	Client Initiator = 0
	Server Initiator = 1
)

// NewID packs kind, initiator and a monotonically increasing sequence
// index into a stream ID.
func NewID(kind Kind, initiator Initiator, sequence uint64) ID {
	return ID(sequence<<2 | uint64(initiator)<<1 | uint64(kind))
}

// Kind reports whether the stream is bidirectional or unidirectional.
func (id ID) Kind() Kind {
	return Kind(id & 1)
}

// Initiator reports which endpoint opened the stream.
func (id ID) Initiator() Initiator {
	return Initiator((id >> 1) & 1)
}

// Sequence reports the stream's sequence index within its
// kind/initiator space.
func (id ID) Sequence() uint64 {
	return uint64(id) >> 2
}

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

// Package terr defines the typed error taxonomy shared across the
// transport packages. Every leaf variant is a sentinel or a typed
// struct so callers can discriminate with errors.Is / errors.As instead
// of matching on message text.
package terr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for conditions that carry no extra payload.
var (
	ErrReplayDetected     = errors.New("replay detected")
	ErrAuthenticationFail = errors.New("authentication failed")
	ErrUnexpectedMessage  = errors.New("unexpected handshake message")
	ErrMalformedMessage   = errors.New("malformed handshake message")
	ErrMissingKeyMaterial = errors.New("missing key material")
	ErrAlreadyFinished    = errors.New("send buffer already finished")
	ErrUnknownStream      = errors.New("unknown stream")
	ErrQueueFull          = errors.New("datagram queue full")
	ErrEmptyHistory       = errors.New("ack history is empty")
	ErrRangeCountMismatch = errors.New("ack range count mismatch")
	ErrInvalidRange       = errors.New("ack range invalid")
	ErrUnexpectedFrameType = errors.New("unexpected frame type")
)

// BufferTooSmall reports an input or output buffer short of the
// required length.
type BufferTooSmall struct {
	Needed int
	Got    int
}

func (e *BufferTooSmall) Error() string {
	return fmt.Sprintf("buffer too small: needed %d, got %d", e.Needed, e.Got)
}

// ReservedBitsSet reports a protocol-level invariant violation on the
// wire: the header's reserved byte was non-zero.
type ReservedBitsSet struct {
	Bits uint8
}

func (e *ReservedBitsSet) Error() string {
	return fmt.Sprintf("reserved bits set: 0x%02x", e.Bits)
}

// PayloadTooLarge reports that an input exceeds the encodable range.
type PayloadTooLarge struct {
	Len int
	Max int
}

func (e *PayloadTooLarge) Error() string {
	return fmt.Sprintf("payload too large: %d exceeds max %d", e.Len, e.Max)
}

// ReplayDetected reports a duplicate or reordered packet number at or
// below the high-water mark.
type ReplayDetected struct {
	PacketNumber uint64
	HighestSeen  uint64
}

func (e *ReplayDetected) Error() string {
	return fmt.Sprintf("replay detected: pn=%d highest_seen=%d", e.PacketNumber, e.HighestSeen)
}

func (e *ReplayDetected) Is(target error) bool {
	return target == ErrReplayDetected
}

// SendWindowExceeded reports an attempt to consume more flow-control
// credit than is currently available.
type SendWindowExceeded struct {
	Available int64
	Attempted int64
}

func (e *SendWindowExceeded) Error() string {
	return fmt.Sprintf("send window exceeded: available=%d attempted=%d", e.Available, e.Attempted)
}

// DataBeyondFinalOffset reports a stream ingest that writes past a
// previously announced final offset.
type DataBeyondFinalOffset struct {
	Offset      uint64
	FinalOffset uint64
}

func (e *DataBeyondFinalOffset) Error() string {
	return fmt.Sprintf("data beyond final offset: offset=%d final=%d", e.Offset, e.FinalOffset)
}

// ConflictingData reports two different byte sequences ingested for the
// same stream offset.
type ConflictingData struct {
	Offset uint64
}

func (e *ConflictingData) Error() string {
	return fmt.Sprintf("conflicting data at offset %d", e.Offset)
}

// TransportError wraps a failure from the transport facade's send or
// receive path with the step that failed.
type TransportError struct {
	Step string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Step, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

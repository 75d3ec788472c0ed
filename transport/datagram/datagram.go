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

// Package datagram implements the bounded FIFO of unreliable payloads,
// drained only when the anti-amplification guard allows it.
package datagram

import (
	"github.com/agentd/agentd/transport/terr"
)

// Default tuning constants for datagram queue depth and payload size.
const (
	DefaultMaxPayload = 1200
	DefaultMaxQueue   = 256
)

// Consumer is the narrow interface Queue needs from the
// anti-amplification guard; satisfied by *guard.Guard.
type Consumer interface {
	TryConsume(n int) bool
}

// Queue is a bounded FIFO of payload byte slices.
type Queue struct {
	maxPayload int
	maxQueue   int
	items      [][]byte
}

// New builds a Queue with the given limits (spec defaults if <= 0).
func New(maxPayload, maxQueue int) *Queue {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	return &Queue{maxPayload: maxPayload, maxQueue: maxQueue}
}

// Enqueue appends payload to the tail of the queue.
func (q *Queue) Enqueue(payload []byte) error {
	if len(payload) > q.maxPayload {
		return &terr.PayloadTooLarge{Len: len(payload), Max: q.maxPayload}
	}
	if len(q.items) >= q.maxQueue {
		return terr.ErrQueueFull
	}
	q.items = append(q.items, payload)
	return nil
}

// DequeueWithGuard peeks at the head of the queue; if guard.TryConsume
// admits its length, it is popped and returned. Otherwise the payload
// remains queued and DequeueWithGuard returns (nil, false).
func (q *Queue) DequeueWithGuard(g Consumer) ([]byte, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	if !g.TryConsume(len(head)) {
		return nil, false
	}
	q.items = q.items[1:]
	return head, true
}

// Len returns the number of currently queued payloads.
func (q *Queue) Len() int {
	return len(q.items)
}

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

// Package scheduler orders pending streams for transmission by
// priority class, breaking ties by arrival order within a class.
package scheduler

import (
	"container/heap"

	"github.com/agentd/agentd/transport/stream"
)

// Priority is a weighted scheduling class; higher weight wins.
type Priority int

// Priority classes and their relative weights.
const (
	Control     Priority = 100
	Interactive Priority = 50
	Bulk        Priority = 10
)

type entry struct {
	id       stream.ID
	priority Priority
	sequence uint64
}

// entryHeap is a max-heap on (priority, then lower sequence first).
type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].sequence < h[j].sequence
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler picks the next stream to send from, honoring priority
// class and FIFO order within a class. Datagrams are queued
// separately (see transport/datagram) and are not scheduled here.
type Scheduler struct {
	heap    entryHeap
	nextSeq uint64
	queued  map[stream.ID]bool
}

// New builds an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{queued: make(map[stream.ID]bool)}
}

// Enqueue marks a stream as having pending send work at the given
// priority. Re-enqueuing a stream already queued is a no-op — it keeps
// its original position.
func (s *Scheduler) Enqueue(id stream.ID, priority Priority) {
	if s.queued[id] {
		return
	}
	s.queued[id] = true
	heap.Push(&s.heap, entry{id: id, priority: priority, sequence: s.nextSeq})
	s.nextSeq++
}

// PopStream returns the highest-priority queued stream (ties broken by
// earliest enqueue order), removing it from the schedule. ok is false
// if nothing is queued.
func (s *Scheduler) PopStream() (id stream.ID, ok bool) {
	if s.heap.Len() == 0 {
		return 0, false
	}
	e := heap.Pop(&s.heap).(entry)
	delete(s.queued, e.id)
	return e.id, true
}

// Len reports how many streams are currently queued.
func (s *Scheduler) Len() int {
	return s.heap.Len()
}

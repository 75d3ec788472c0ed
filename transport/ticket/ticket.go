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

// Package ticket implements a bounded, TTL-expiring session ticket
// store used to resume a handshake without a full key exchange.
package ticket

import (
	"encoding/binary"
	"time"

	"github.com/agentd/agentd/transport/cryptoprim"
)

// IDSize and SecretSize are the widths of a ticket's identifier and
// its resumption secret.
const (
	IDSize     = 16
	SecretSize = 32
)

// DefaultCapacity and DefaultTTL bound the store's memory use and how
// long a ticket remains valid.
const (
	DefaultCapacity = 1024
	DefaultTTL      = 10 * time.Minute
)

var (
	idInfo     = []byte("agentd ticket id v1")
	secretInfo = []byte("agentd ticket secret v1")
)

// Ticket is an issued (or resumed) session ticket.
type Ticket struct {
	ID     [IDSize]byte
	Secret [SecretSize]byte
}

type entry struct {
	ticket  Ticket
	counter uint64
	expiry  time.Time
}

// Store is a bounded LRU of outstanding tickets, each with a TTL.
type Store struct {
	capacity int
	ttl      time.Duration
	counter  uint64

	order   []([IDSize]byte)
	entries map[[IDSize]byte]entry
}

// New builds a Store with the given capacity and TTL (spec defaults if
// either is <= 0).
func New(capacity int, ttl time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{capacity: capacity, ttl: ttl, entries: make(map[[IDSize]byte]entry)}
}

// derive computes the deterministic (id, secret) pair for a seed and
// counter via independent HKDF expansions, domain-separated by info.
func derive(seed []byte, counter uint64) (Ticket, error) {
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], counter)

	idBytes, err := cryptoprim.HKDF(seed, counterBytes[:], idInfo, IDSize)
	if err != nil {
		return Ticket{}, err
	}
	secretBytes, err := cryptoprim.HKDF(seed, counterBytes[:], secretInfo, SecretSize)
	if err != nil {
		return Ticket{}, err
	}

	var t Ticket
	copy(t.ID[:], idBytes)
	copy(t.Secret[:], secretBytes)
	return t, nil
}

// Issue derives a fresh ticket from seed and the store's monotonic
// counter, inserts it with expiry now+ttl, and evicts the least
// recently issued or resumed entry if the store is at capacity.
func (s *Store) Issue(seed []byte, now time.Time) (Ticket, error) {
	counter := s.counter
	s.counter++

	t, err := derive(seed, counter)
	if err != nil {
		return Ticket{}, err
	}

	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}

	s.entries[t.ID] = entry{ticket: t, counter: counter, expiry: now.Add(s.ttl)}
	s.order = append(s.order, t.ID)
	return t, nil
}

// Resume looks up id; if present and unexpired, it re-derives the
// expected secret from seed and the entry's stored counter, compares
// it in constant time against seed's claim, and returns the ticket on
// success, marking it most recently used.
func (s *Store) Resume(id [IDSize]byte, seed []byte, now time.Time) (Ticket, bool) {
	e, ok := s.entries[id]
	if !ok {
		return Ticket{}, false
	}
	if now.After(e.expiry) {
		delete(s.entries, id)
		return Ticket{}, false
	}

	expected, err := derive(seed, e.counter)
	if err != nil {
		return Ticket{}, false
	}
	if !cryptoprim.ConstantTimeEqual(expected.Secret[:], e.ticket.Secret[:]) {
		return Ticket{}, false
	}
	for i, oid := range s.order {
		if oid == id {
			s.order = append(append(s.order[:i:i], s.order[i+1:]...), id)
			break
		}
	}
	return e.ticket, true
}

// Len reports how many tickets are currently stored.
func (s *Store) Len() int {
	return len(s.entries)
}

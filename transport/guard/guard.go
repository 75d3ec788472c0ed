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

// Package guard implements the anti-amplification budget a connection
// consults before sending anything to a peer it has not yet verified.
package guard

// Default tuning constants for the anti-amplification budget.
const (
	DefaultFactor           = 3
	DefaultMaxPacketSize    = 1200
	DefaultInitialAllowance = 3 * DefaultMaxPacketSize
)

// Guard limits bytes sent to factor*received + initialAllowance until
// MarkVerified is called, after which it imposes no further limit.
type Guard struct {
	factor           int64
	initialAllowance int64

	sent     int64
	received int64
	verified bool
}

// New builds a Guard with the given factor and initial allowance.
func New(factor int, initialAllowance int) *Guard {
	if factor <= 0 {
		factor = DefaultFactor
	}
	if initialAllowance < 0 {
		initialAllowance = DefaultInitialAllowance
	}
	return &Guard{factor: int64(factor), initialAllowance: int64(initialAllowance)}
}

// budget returns the current send budget: factor*received +
// initialAllowance.
func (g *Guard) budget() int64 {
	return g.factor*g.received + g.initialAllowance
}

// TryConsume attempts to debit n bytes from the send budget. It always
// succeeds once the guard is verified. It returns false without
// mutating state if n would exceed the budget.
func (g *Guard) TryConsume(n int) bool {
	if g.verified {
		return true
	}
	if g.sent+int64(n) > g.budget() {
		return false
	}
	g.sent += int64(n)
	return true
}

// OnReceive credits n bytes of verified inbound traffic, raising the
// send budget.
func (g *Guard) OnReceive(n int) {
	g.received += int64(n)
}

// MarkVerified permanently lifts the restriction (e.g. once the
// handshake's address-validation step completes).
func (g *Guard) MarkVerified() {
	g.verified = true
}

// Verified reports whether the guard has been permanently lifted.
func (g *Guard) Verified() bool {
	return g.verified
}

// Remaining reports the unspent budget. It is meaningless once
// verified (no limit applies).
func (g *Guard) Remaining() int64 {
	r := g.budget() - g.sent
	if r < 0 {
		return 0
	}
	return r
}

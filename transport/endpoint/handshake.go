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

package endpoint

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/agentd/agentd/transport/conn"
	"github.com/agentd/agentd/transport/handshake"
	"github.com/agentd/agentd/transport/packet"
)

// handshakeReplyTimeout bounds how long Dial waits for each of the
// peer's handshake replies.
const handshakeReplyTimeout = 2 * time.Second

// Dial runs the initiator side of the three-message handshake against
// addr and, on success, registers and returns the resulting
// Connection. It must be called before Start, since it reads the
// handshake replies directly off the socket rather than through the
// receive loop — a Connection is driven by exactly one I/O loop at a
// time (spec §5), and the handshake is that loop until it completes.
func (e *Endpoint) Dial(addr net.Addr, cfg conn.Config) (*conn.Connection, error) {
	if !e.haveIdentity {
		return nil, errors.New("endpoint has no static identity configured")
	}
	if len(e.peerStatic) == 0 {
		return nil, errors.New("endpoint has no peer static key configured")
	}

	initiator := handshake.NewInitiator(e.staticPub[:], e.peerStatic)

	hello, err := initiator.Start()
	if err != nil {
		e.failHandshake("build_hello")
		return nil, errors.Wrap(err, "build initiator hello")
	}
	if err := e.transport.SendRaw(hello, addr); err != nil {
		e.failHandshake("send_hello")
		return nil, errors.Wrap(err, "send initiator hello")
	}

	if err := e.transport.SetReadTimeout(handshakeReplyTimeout); err != nil {
		return nil, errors.Wrap(err, "set handshake read timeout")
	}
	defer e.transport.SetReadTimeout(e.cfg.GetReadTimeout())

	reply, _, err := e.transport.RecvRaw()
	if err != nil {
		e.failHandshake("responder_hello_timeout")
		return nil, errors.Wrap(err, "await responder hello")
	}
	finish, err := initiator.HandleResponderHello(reply)
	if err != nil {
		e.failHandshake("responder_hello_invalid")
		return nil, errors.Wrap(err, "handle responder hello")
	}
	if err := e.transport.SendRaw(finish, addr); err != nil {
		e.failHandshake("send_finish")
		return nil, errors.Wrap(err, "send initiator finish")
	}

	cipher := packet.NewCipher(initiator.Result.Keys, initiator.Result.SendIV, initiator.Result.RecvIV)
	c := e.NewConnection(cfg, cipher, addr)

	// Both sides derive the same final chaining key, so the initiator
	// can issue itself a ticket from the same seed the responder used
	// — giving a later Dial to this peer a ticket to present, once the
	// wire format grows a resumption field (see DESIGN.md).
	if t, err := e.tickets.Issue(initiator.Result.TicketSeed, time.Now()); err == nil {
		c.SetSessionTicket(t)
	}
	return c, nil
}

func (e *Endpoint) failHandshake(reason string) {
	e.metrics.HandshakeFailures.WithLabelValues(reason).Inc()
}

// handleHandshakeDatagram is reached from receiveOne when a datagram's
// connection id matches no registered Connection. It advances the
// responder side of the handshake keyed by the sender's address,
// completing it into a new Connection on InitiatorFinish.
func (e *Endpoint) handleHandshakeDatagram(raw []byte, addr net.Addr) error {
	if !e.haveIdentity {
		return errors.Errorf("no connection registered for datagram from %s and no static identity to respond with", addr)
	}

	msg, err := handshake.DecodeMessage(raw)
	if err != nil {
		e.failHandshake("decode_message")
		return errors.Wrap(err, "decode handshake datagram")
	}
	if err := e.replay.CheckAndRecord(raw, time.Now()); err != nil {
		e.failHandshake("replay")
		return err
	}

	key := addr.String()
	switch msg.Kind {
	case handshake.KindInitiatorHello:
		r := handshake.NewResponder(e.staticPub[:], e.peerStatic)
		reply, err := r.HandleInitiatorHello(raw)
		if err != nil {
			e.failHandshake("initiator_hello_invalid")
			return errors.Wrap(err, "handle initiator hello")
		}
		e.pending[key] = r
		return e.transport.SendRaw(reply, addr)

	case handshake.KindInitiatorFinish:
		r, ok := e.pending[key]
		if !ok {
			e.failHandshake("no_pending_handshake")
			return errors.Errorf("initiator finish with no pending handshake from %s", addr)
		}
		if err := r.HandleInitiatorFinish(raw); err != nil {
			e.failHandshake("initiator_finish_invalid")
			return errors.Wrap(err, "handle initiator finish")
		}
		delete(e.pending, key)

		cipher := packet.NewCipher(r.Result.Keys, r.Result.SendIV, r.Result.RecvIV)
		c := e.NewConnection(conn.Config{}, cipher, addr)

		// On success the responder derives and stores a session ticket
		// seeded by the final chaining key.
		if t, err := e.tickets.Issue(r.Result.TicketSeed, time.Now()); err == nil {
			c.SetSessionTicket(t)
		}
		return nil

	default:
		e.failHandshake("unexpected_kind")
		return errors.Errorf("unexpected handshake message kind %d from %s", msg.Kind, addr)
	}
}

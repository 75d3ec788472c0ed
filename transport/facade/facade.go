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

// Package facade is the transport's outermost surface: it owns a
// socket binding and a buffer pool, and turns a cipher's seal/open
// calls into actual socket sends and receives.
package facade

import (
	"net"
	"time"

	"github.com/agentd/agentd/transport/bufpool"
	"github.com/agentd/agentd/transport/packet"
	"github.com/agentd/agentd/transport/terr"
	"github.com/agentd/agentd/transport/udpsocket"
)

// Transport owns one socket binding and one buffer pool shared across
// every connection it drives.
type Transport struct {
	socket udpsocket.Socket
	pool   *bufpool.Pool
}

// New builds a Transport over socket, with buffers sized for one
// maximum-size UDP datagram.
func New(socket udpsocket.Socket, pool *bufpool.Pool) *Transport {
	if pool == nil {
		pool = bufpool.New(bufpool.DefaultCapacity, 64)
	}
	return &Transport{socket: socket, pool: pool}
}

// SendPacket seals plaintext with cipher under connID/flags into a
// pooled buffer and hands it to the socket, returning the assigned
// packet number.
func (t *Transport) SendPacket(cipher *packet.Cipher, connID uint64, flags uint8, plaintext []byte, addr net.Addr) (uint64, error) {
	buf := t.pool.Get(packet.HeaderLen + len(plaintext) + 16)
	defer t.pool.Put(buf)

	pn, total, err := cipher.SealInto(connID, flags, plaintext, buf)
	if err != nil {
		return 0, &terr.TransportError{Step: "seal_into", Err: err}
	}

	if _, err := t.socket.SendTo(buf[:total], addr); err != nil {
		return 0, &terr.TransportError{Step: "send_to", Err: err}
	}
	return pn, nil
}

// ReceivePacket reads one datagram from the socket into a pooled
// buffer and opens it with cipher, returning the decrypted payload and
// the sender's address.
func (t *Transport) ReceivePacket(cipher *packet.Cipher) (packet.Header, []byte, net.Addr, error) {
	buf := t.pool.Get(bufpool.DefaultCapacity)
	defer t.pool.Put(buf)

	n, addr, err := t.socket.RecvFrom(buf)
	if err != nil {
		return packet.Header{}, nil, nil, &terr.TransportError{Step: "recv_from", Err: err}
	}

	h, plaintext, err := cipher.Open(buf[:n])
	if err != nil {
		return packet.Header{}, nil, addr, &terr.TransportError{Step: "open", Err: err}
	}
	return h, plaintext, addr, nil
}

// RecvRaw reads one datagram off the socket without opening it,
// returning an independent copy of its bytes. A dispatcher serving
// multiple connections on one socket uses packet.PeekConnID on the
// result to pick which connection's cipher should open it — the
// connection id is never touched by header protection.
func (t *Transport) RecvRaw() ([]byte, net.Addr, error) {
	buf := t.pool.Get(bufpool.DefaultCapacity)
	defer t.pool.Put(buf)

	n, addr, err := t.socket.RecvFrom(buf)
	if err != nil {
		return nil, nil, &terr.TransportError{Step: "recv_from", Err: err}
	}
	return append([]byte(nil), buf[:n]...), addr, nil
}

// OpenRaw opens a datagram previously read by RecvRaw with cipher.
func (t *Transport) OpenRaw(cipher *packet.Cipher, raw []byte) (packet.Header, []byte, error) {
	h, plaintext, err := cipher.Open(raw)
	if err != nil {
		return packet.Header{}, nil, &terr.TransportError{Step: "open", Err: err}
	}
	return h, plaintext, nil
}

// SendRaw writes payload to the socket unencrypted. It exists for the
// handshake, which has no packet cipher to seal under until it
// completes.
func (t *Transport) SendRaw(payload []byte, addr net.Addr) error {
	if _, err := t.socket.SendTo(payload, addr); err != nil {
		return &terr.TransportError{Step: "send_to", Err: err}
	}
	return nil
}

// SetReadTimeout adjusts the underlying socket's read deadline.
func (t *Transport) SetReadTimeout(d time.Duration) error {
	return t.socket.SetReadTimeout(d)
}

// LocalAddr reports the address the underlying socket is bound to.
func (t *Transport) LocalAddr() net.Addr {
	return t.socket.LocalAddr()
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.socket.Close()
}

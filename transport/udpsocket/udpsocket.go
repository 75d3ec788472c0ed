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

// Package udpsocket wraps net.UDPConn behind the narrow socket
// collaborator interface the transport facade depends on, so tests can
// substitute an in-memory fake without touching the kernel.
package udpsocket

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// Socket is the collaborator surface a transport facade needs from a
// UDP socket.
type Socket interface {
	SendTo(b []byte, addr net.Addr) (int, error)
	RecvFrom(buf []byte) (int, net.Addr, error)
	SetReadTimeout(d time.Duration) error
	SetWriteTimeout(d time.Duration) error
	SetNonblocking(nonblocking bool) error
	LocalAddr() net.Addr
	Close() error
}

// UDPSocket adapts *net.UDPConn to Socket.
type UDPSocket struct {
	conn *net.UDPConn
}

// Bind opens a UDP socket on addr (host:port, or ":0" for an
// ephemeral port).
func Bind(addr string) (*UDPSocket, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve udp address")
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrap(err, "listen udp")
	}
	return &UDPSocket{conn: conn}, nil
}

// SendTo writes b to addr.
func (s *UDPSocket) SendTo(b []byte, addr net.Addr) (int, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, errors.New("udpsocket: addr is not a *net.UDPAddr")
	}
	n, err := s.conn.WriteToUDP(b, udpAddr)
	if err != nil {
		return n, errors.Wrap(err, "send to peer")
	}
	return n, nil
}

// RecvFrom reads into buf, returning how much was read and the sender.
func (s *UDPSocket) RecvFrom(buf []byte) (int, net.Addr, error) {
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return n, addr, errors.Wrap(err, "receive from socket")
	}
	return n, addr, nil
}

// SetReadTimeout bounds how long RecvFrom blocks; a zero duration
// disables the deadline.
func (s *UDPSocket) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return s.conn.SetReadDeadline(time.Time{})
	}
	return s.conn.SetReadDeadline(time.Now().Add(d))
}

// SetWriteTimeout bounds how long SendTo blocks; a zero duration
// disables the deadline.
func (s *UDPSocket) SetWriteTimeout(d time.Duration) error {
	if d <= 0 {
		return s.conn.SetWriteDeadline(time.Time{})
	}
	return s.conn.SetWriteDeadline(time.Now().Add(d))
}

// SetNonblocking toggles between a blocking socket and one that
// returns immediately via a past-due deadline, mirroring the
// SO_NONBLOCK toggle the spec's collaborator interface names.
func (s *UDPSocket) SetNonblocking(nonblocking bool) error {
	if nonblocking {
		return s.conn.SetDeadline(time.Now())
	}
	return s.conn.SetDeadline(time.Time{})
}

// LocalAddr reports the address the socket is bound to.
func (s *UDPSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close releases the underlying file descriptor.
func (s *UDPSocket) Close() error {
	return s.conn.Close()
}

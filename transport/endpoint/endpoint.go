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

// Package endpoint binds one UDP socket and multiplexes the
// connections reachable through it by connection id, wiring in the
// config, logger, metrics HTTP server and signal handling a daemon
// needs around the transport core.
package endpoint

import (
	"context"
	"encoding/hex"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentd/agentd/common"
	"github.com/agentd/agentd/confengine"
	"github.com/agentd/agentd/internal/rescue"
	"github.com/agentd/agentd/internal/sigs"
	"github.com/agentd/agentd/logger"
	"github.com/agentd/agentd/server"
	"github.com/agentd/agentd/transport/bufpool"
	"github.com/agentd/agentd/transport/conn"
	"github.com/agentd/agentd/transport/connid"
	"github.com/agentd/agentd/transport/cryptoprim"
	"github.com/agentd/agentd/transport/facade"
	"github.com/agentd/agentd/transport/frame"
	"github.com/agentd/agentd/transport/handshake"
	"github.com/agentd/agentd/transport/metrics"
	"github.com/agentd/agentd/transport/packet"
	"github.com/agentd/agentd/transport/ticket"
	"github.com/agentd/agentd/transport/udpsocket"
)

// streamDataOverhead is the StreamData frame's fixed header: kind(1) ||
// stream_id(8) || offset(8) || fin(1) || length(4).
const streamDataOverhead = 1 + 8 + 8 + 1 + 4

// maxFramePayload bounds how much stream data one sealed packet can
// carry, leaving room for the StreamData frame header, the packet header
// and the AEAD tag inside one pooled buffer sized for a single
// maximum-size UDP datagram.
const maxFramePayload = bufpool.DefaultCapacity - packet.HeaderLen - cryptoprim.TagSize - streamDataOverhead

// Config configures an Endpoint's socket binding, read loop, and the
// pre-provisioned identity it uses to establish sessions. There is no
// PKI: trust is a static keypair plus the single counterparty's
// static public key, exchanged out of band.
type Config struct {
	Address     string        `config:"address"`
	ReadTimeout time.Duration `config:"readTimeout"`

	StaticPrivateKey string `config:"staticPrivateKey"`
	StaticPublicKey  string `config:"staticPublicKey"`
	PeerStaticKey    string `config:"peerStaticKey"`
}

// GetReadTimeout returns the configured read timeout, or a small
// default that keeps the receive loop responsive to Stop.
func (c Config) GetReadTimeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return 200 * time.Millisecond
	}
	return c.ReadTimeout
}

// Endpoint owns one socket binding and dispatches inbound packets to
// the Connection identified by their header's connection id.
type Endpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg       Config
	transport *facade.Transport
	svr       *server.Server
	metrics   *metrics.Collectors

	conns map[uint64]*conn.Connection

	haveIdentity bool
	staticPriv   [32]byte
	staticPub    [32]byte
	peerStatic   []byte

	replay  *handshake.ReplayStore
	pending map[string]*handshake.Responder
	tickets *ticket.Store
}

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}
	if opts.Filename == "" {
		opts.Filename = common.App + ".log"
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 10
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}
	logger.SetOptions(opts)
	return nil
}

// New builds an Endpoint from conf's "endpoint" section, binding a UDP
// socket and (if configured) an HTTP admin/metrics server.
func New(conf *confengine.Config, reg prometheus.Registerer) (*Endpoint, error) {
	if err := setupLogger(conf); err != nil {
		return nil, errors.Wrap(err, "setup logger")
	}

	var cfg Config
	if err := conf.UnpackChild("endpoint", &cfg); err != nil {
		return nil, errors.Wrap(err, "unpack endpoint config")
	}
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0:0"
	}

	socket, err := udpsocket.Bind(cfg.Address)
	if err != nil {
		return nil, errors.Wrap(err, "bind endpoint socket")
	}
	if err := socket.SetReadTimeout(cfg.GetReadTimeout()); err != nil {
		return nil, errors.Wrap(err, "set endpoint read timeout")
	}

	svr, err := server.New(conf)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &Endpoint{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		transport: facade.New(socket, bufpool.New(bufpool.DefaultCapacity, 64)),
		svr:       svr,
		metrics:   metrics.New(reg),
		conns:     make(map[uint64]*conn.Connection),
		replay:    handshake.NewReplayStore(handshake.DefaultReplayCapacity, handshake.DefaultReplayTTL),
		pending:   make(map[string]*handshake.Responder),
		tickets:   ticket.New(ticket.DefaultCapacity, ticket.DefaultTTL),
	}

	if cfg.StaticPrivateKey != "" && cfg.StaticPublicKey != "" {
		priv, err := hex.DecodeString(cfg.StaticPrivateKey)
		if err != nil || len(priv) != 32 {
			return nil, errors.New("malformed staticPrivateKey")
		}
		pub, err := hex.DecodeString(cfg.StaticPublicKey)
		if err != nil || len(pub) != 32 {
			return nil, errors.New("malformed staticPublicKey")
		}
		copy(ep.staticPriv[:], priv)
		copy(ep.staticPub[:], pub)
		ep.haveIdentity = true
	}
	if cfg.PeerStaticKey != "" {
		peerStatic, err := hex.DecodeString(cfg.PeerStaticKey)
		if err != nil || len(peerStatic) != 32 {
			return nil, errors.New("malformed peerStaticKey")
		}
		ep.peerStatic = peerStatic
	}

	ep.setupRoutes()
	return ep, nil
}

// LocalAddr reports the address the endpoint's socket is bound to.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.transport.LocalAddr()
}

// AddConnection registers c so inbound packets addressed to its
// connection id are dispatched to it.
func (e *Endpoint) AddConnection(c *conn.Connection) {
	e.conns[c.ConnID()] = c
	e.metrics.ActiveConnections.Set(float64(len(e.conns)))
}

// NewConnection builds a Connection bound to peer over cipher, assigns
// it a fresh connection id if cfg.ConnID is zero, registers it for
// dispatch, and returns it.
func (e *Endpoint) NewConnection(cfg conn.Config, cipher *packet.Cipher, peer net.Addr) *conn.Connection {
	if cfg.ConnID == 0 {
		cfg.ConnID = connid.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = e.metrics
	}
	c := conn.New(cfg, cipher, peer)
	e.AddConnection(c)
	return c
}

// RemoveConnection retires a connection id from dispatch.
func (e *Endpoint) RemoveConnection(connID uint64) {
	delete(e.conns, connID)
	e.metrics.ActiveConnections.Set(float64(len(e.conns)))
}

// Start launches the HTTP server (if configured) and the blocking
// receive loop in background goroutines.
func (e *Endpoint) Start() {
	if e.svr != nil {
		go func() {
			defer rescue.HandleCrash()
			if err := e.svr.ListenAndServe(); err != nil {
				logger.Errorf("endpoint http server stopped: %v", err)
			}
		}()
	}
	go e.receiveLoop()
}

// receiveLoop repeatedly pulls one raw datagram off the socket,
// dispatches it to the matching connection, and then drains every
// connection's outbound send queue. It tolerates read timeouts so Stop
// can interrupt it promptly (§5: a receive blocks at most for the
// socket's configured read timeout) — that same timeout sets the
// cadence sends are drained at. A panic handling one datagram or one
// connection's sends is contained so it cannot take down the whole
// daemon. Running both directions from one goroutine keeps every
// Connection driven by exactly one I/O loop, per package conn's
// invariant.
func (e *Endpoint) receiveLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		e.receiveOneGuarded()
		e.sendPendingGuarded()
	}
}

func (e *Endpoint) receiveOneGuarded() {
	defer rescue.HandleCrash()
	if err := e.receiveOne(); err != nil {
		return
	}
}

func (e *Endpoint) sendPendingGuarded() {
	defer rescue.HandleCrash()
	now := time.Now()
	for _, c := range e.conns {
		e.drainConnection(c, now)
	}
}

// drainConnection pushes every frame c is ready to send — due ACKs,
// scheduled stream data, queued datagrams — onto the wire until
// NextSendFrame reports nothing left or the pacer holds it back.
func (e *Endpoint) drainConnection(c *conn.Connection, now time.Time) {
	for {
		payload, ackEliciting, ok, err := c.NextSendFrame(now, maxFramePayload)
		if err != nil {
			logger.Errorf("building send frame for conn %d: %v", c.ConnID(), err)
			return
		}
		if !ok {
			return
		}

		var flags uint8
		if ackEliciting {
			flags |= packet.FlagAckEliciting
		}
		pn, err := e.transport.SendPacket(c.Cipher(), c.ConnID(), flags, payload, c.Peer())
		if err != nil {
			logger.Errorf("sending packet for conn %d: %v", c.ConnID(), err)
			return
		}
		e.metrics.PacketsSent.Inc()
		c.OnPacketSent(pn, now, len(payload), ackEliciting)
	}
}

// receiveOne reads exactly one datagram, routes it by its
// header-protection-exempt connection id, and opens it with the
// owning connection's cipher. A datagram addressed to an unknown
// connection id is handed to the handshake path instead, since that
// is exactly the state a not-yet-established peer is in.
func (e *Endpoint) receiveOne() error {
	raw, addr, err := e.transport.RecvRaw()
	if err != nil {
		return err
	}

	connID, err := packet.PeekConnID(raw)
	if err != nil {
		return err
	}

	c, ok := e.conns[connID]
	if !ok {
		return e.handleHandshakeDatagram(raw, addr)
	}

	h, payload, err := e.transport.OpenRaw(c.Cipher(), raw)
	if err != nil {
		return err
	}

	e.metrics.PacketsReceived.Inc()
	now := time.Now()
	c.OnPacketReceived(h.PacketNum, h.Flags&packet.FlagAckEliciting != 0, len(payload), now)
	e.dispatchPayload(c, h, payload, addr)
	return nil
}

// dispatchPayload decodes every frame packed into a decrypted packet's
// payload and hands each to the owning connection in turn. A malformed
// trailing frame stops decoding for this packet without affecting
// frames already applied.
func (e *Endpoint) dispatchPayload(c *conn.Connection, h packet.Header, payload []byte, addr net.Addr) {
	_ = h
	_ = addr

	now := time.Now()
	for len(payload) > 0 {
		f, n, err := frame.Decode(payload)
		if err != nil {
			logger.Errorf("decoding frame from conn %d: %v", c.ConnID(), err)
			return
		}
		if err := c.HandleFrame(f, now); err != nil {
			logger.Errorf("applying frame %d from conn %d: %v", f.Kind, c.ConnID(), err)
		}
		payload = payload[n:]
	}
}

func (e *Endpoint) setupRoutes() {
	if e.svr == nil {
		return
	}
	e.svr.RegisterGetRoute("/metrics", func(w http.ResponseWriter, r *http.Request) {
		e.metrics.RecordUptime()
		promhttp.Handler().ServeHTTP(w, r)
	})
	e.svr.RegisterGetRoute("/debug/pprof/", func(w http.ResponseWriter, r *http.Request) {
		pprof.Index(w, r)
	})
	e.svr.RegisterPostRoute("/-/logger", func(w http.ResponseWriter, r *http.Request) {
		logger.SetLoggerLevel(r.FormValue("level"))
		w.Write([]byte(`{"status":"success"}`))
	})
	e.svr.RegisterPostRoute("/-/reload", func(w http.ResponseWriter, r *http.Request) {
		if err := sigs.SelfReload(); err != nil {
			w.WriteHeader(500)
			w.Write([]byte(err.Error()))
		}
	})
}

// Reload applies a freshly loaded config to the running endpoint. Only
// the read timeout is reloadable; the socket binding and registered
// connections survive a reload untouched.
func (e *Endpoint) Reload(conf *confengine.Config) error {
	var cfg Config
	if err := conf.UnpackChild("endpoint", &cfg); err != nil {
		return errors.Wrap(err, "unpack endpoint config")
	}
	e.cfg.ReadTimeout = cfg.ReadTimeout
	return e.transport.SetReadTimeout(e.cfg.GetReadTimeout())
}

// Stop cancels the receive loop and releases the socket.
func (e *Endpoint) Stop() {
	e.cancel()
	if err := e.transport.Close(); err != nil {
		logger.Errorf("closing endpoint socket: %v", err)
	}
}

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

// Package conn assembles the per-peer Connection: the single owner of
// a packet cipher, loss manager, congestion controller, stream
// manager, scheduler, datagram queue and anti-amplification guard. No
// component here is internally concurrent (spec §5) — a Connection is
// driven exclusively by one external I/O loop.
package conn

import (
	"net"
	"time"

	"github.com/agentd/agentd/transport/ack"
	"github.com/agentd/agentd/transport/congestion"
	"github.com/agentd/agentd/transport/datagram"
	"github.com/agentd/agentd/transport/flow"
	"github.com/agentd/agentd/transport/frame"
	"github.com/agentd/agentd/transport/guard"
	"github.com/agentd/agentd/transport/loss"
	"github.com/agentd/agentd/transport/metrics"
	"github.com/agentd/agentd/transport/packet"
	"github.com/agentd/agentd/transport/scheduler"
	"github.com/agentd/agentd/transport/stream"
	"github.com/agentd/agentd/transport/ticket"
)

// DefaultStreamInitialMax is the per-stream flow-control credit a
// Connection grants a peer-initiated stream the first time it sees a
// frame naming it.
const DefaultStreamInitialMax = 1 << 16

// Config bundles the tunables needed to build a Connection's
// components; zero values fall back to each component's spec default.
type Config struct {
	ConnID             uint64
	ConnectionMaxData  int64
	MaxAckRanges       int
	AckDelay           time.Duration
	LossConfig         loss.Config
	CongestionConfig   congestion.Config
	GuardFactor        int
	GuardInitialBudget int
	DatagramMaxPayload int
	DatagramMaxQueue   int

	// Metrics, if non-nil, receives loss/congestion observations as
	// they're computed. It is nil in unit tests that don't care.
	Metrics *metrics.Collectors
}

// Connection is the single-threaded state machine driving one peer
// relationship: cipher, loss detection, congestion control, streams,
// scheduling, datagrams and the anti-amplification guard.
type Connection struct {
	connID  uint64
	peer    net.Addr
	cipher  *packet.Cipher
	history *ack.ReceiveHistory

	loss        *loss.Manager
	congestion  *congestion.Controller
	flow        *flow.Controller
	streams     *stream.Manager
	scheduler   *scheduler.Scheduler
	datagrams   *datagram.Queue
	guard       *guard.Guard
	metrics     *metrics.Collectors

	inboundDatagrams [][]byte
	streamPriority   map[stream.ID]scheduler.Priority

	sessionTicket    ticket.Ticket
	hasSessionTicket bool
}

// New assembles a Connection around an already-completed handshake's
// cipher and the peer's address.
func New(cfg Config, cipher *packet.Cipher, peer net.Addr) *Connection {
	lossCfg := cfg.LossConfig
	if lossCfg == (loss.Config{}) {
		lossCfg = loss.DefaultConfig()
	}
	congestionCfg := cfg.CongestionConfig
	if congestionCfg == (congestion.Config{}) {
		congestionCfg = congestion.DefaultConfig()
	}
	connMax := cfg.ConnectionMaxData
	if connMax <= 0 {
		connMax = 1 << 20
	}

	fc := flow.NewController(connMax)
	return &Connection{
		connID:         cfg.ConnID,
		peer:           peer,
		cipher:         cipher,
		history:        ack.NewReceiveHistory(cfg.MaxAckRanges, cfg.AckDelay),
		loss:           loss.NewManager(lossCfg),
		congestion:     congestion.NewController(congestionCfg),
		flow:           fc,
		streams:        stream.NewManager(fc),
		scheduler:      scheduler.New(),
		datagrams:      datagram.New(cfg.DatagramMaxPayload, cfg.DatagramMaxQueue),
		guard:          guard.New(cfg.GuardFactor, cfg.GuardInitialBudget),
		metrics:        cfg.Metrics,
		streamPriority: make(map[stream.ID]scheduler.Priority),
	}
}

// ConnID reports the connection identifier this Connection was built
// with.
func (c *Connection) ConnID() uint64 { return c.connID }

// Peer reports the address packets are sent to and expected from.
func (c *Connection) Peer() net.Addr { return c.peer }

// Cipher exposes the connection's packet cipher for the transport
// facade's seal/open calls.
func (c *Connection) Cipher() *packet.Cipher { return c.cipher }

// Streams exposes the stream manager for queuing/reading application
// data.
func (c *Connection) Streams() *stream.Manager { return c.streams }

// Scheduler exposes the priority scheduler for enqueuing streams with
// pending work.
func (c *Connection) Scheduler() *scheduler.Scheduler { return c.scheduler }

// Datagrams exposes the unreliable datagram queue.
func (c *Connection) Datagrams() *datagram.Queue { return c.datagrams }

// Guard exposes the anti-amplification guard.
func (c *Connection) Guard() *guard.Guard { return c.guard }

// Loss exposes the loss manager and RTT estimator.
func (c *Connection) Loss() *loss.Manager { return c.loss }

// Congestion exposes the congestion controller.
func (c *Connection) Congestion() *congestion.Controller { return c.congestion }

// SetSessionTicket records the session ticket issued for this
// connection at handshake completion, so it can later be offered to
// the peer to resume without a full exchange.
func (c *Connection) SetSessionTicket(t ticket.Ticket) {
	c.sessionTicket = t
	c.hasSessionTicket = true
}

// SessionTicket returns the ticket issued for this connection, if any.
func (c *Connection) SessionTicket() (ticket.Ticket, bool) {
	return c.sessionTicket, c.hasSessionTicket
}

// OnPacketSent records a sent packet with the loss manager and debits
// the congestion window.
func (c *Connection) OnPacketSent(pn uint64, sentAt time.Time, size int, ackEliciting bool) {
	c.loss.OnPacketSent(pn, sentAt, size, ackEliciting)
	c.congestion.OnPacketSent(size)
}

// OnPacketReceived records a received packet number for future ACK
// generation and credits the anti-amplification guard.
func (c *Connection) OnPacketReceived(pn uint64, ackEliciting bool, size int, now time.Time) {
	c.history.Record(pn, ackEliciting, now)
	c.guard.OnReceive(size)
}

// OnAckFrame feeds a received ACK frame through loss detection and
// congestion control, then publishes the resulting loss/congestion/RTT
// observations to the connection's metrics, if any were configured.
func (c *Connection) OnAckFrame(f ack.Frame, now time.Time) {
	outcome := c.loss.OnAckFrame(f, now)

	var acked []congestion.AckedPacket
	for _, p := range outcome.Acknowledged {
		acked = append(acked, congestion.AckedPacket{Size: p.Size})
	}
	c.congestion.OnAckOutcome(congestion.Outcome{
		Acked:     acked,
		LostCount: len(outcome.Lost),
		RTTSample: outcome.RTTSample,
	}, now)

	if c.metrics == nil {
		return
	}
	if len(outcome.Lost) > 0 {
		c.metrics.PacketsLost.Add(float64(len(outcome.Lost)))
	}
	c.metrics.BytesInFlight.Set(float64(c.congestion.InflightBytes()))
	c.metrics.CongestionWindow.Set(float64(c.congestion.CongestionWindow()))
	c.metrics.SmoothedRTTSecs.Set(c.loss.SmoothedRTT().Seconds())
}

// BuildAckFrame returns a pending ACK frame if one is due.
func (c *Connection) BuildAckFrame(now time.Time) (ack.Frame, bool) {
	if deadline, pending := c.history.PendingAckDeadline(); !pending || now.Before(deadline) {
		return ack.Frame{}, false
	}
	return c.history.BuildFrame(now)
}

// Poll returns the earliest deadline this Connection needs to be
// driven again for — the loss timer or the pending-ACK deadline —
// matching the "no internal timer thread" rule of §5: callers poll at
// a cadence of their own choosing rather than this type spawning one.
func (c *Connection) Poll(now time.Time) (time.Time, bool) {
	var deadline time.Time
	have := false

	if lt, ok := c.loss.LossTime(); ok {
		deadline = lt
		have = true
	}

	if ad, ok := c.history.PendingAckDeadline(); ok {
		if !have || ad.Before(deadline) {
			deadline = ad
			have = true
		}
	}

	return deadline, have
}

// HandleFrame applies one decoded frame's effect to the connection's
// state: stream data reassembly, datagram delivery, ack/loss/congestion
// feedback, and flow-control limit updates. It is the single place
// wire frames turn into calls against the components above.
func (c *Connection) HandleFrame(f frame.Frame, now time.Time) error {
	switch f.Kind {
	case frame.KindStreamOpen:
		c.streams.Open(stream.ID(f.StreamID), DefaultStreamInitialMax)
		return nil

	case frame.KindStreamData:
		id := stream.ID(f.StreamData.StreamID)
		c.streams.Open(id, DefaultStreamInitialMax)
		return c.streams.IngestReceive(id, f.StreamData.Offset, f.StreamData.Data, f.StreamData.Fin)

	case frame.KindStreamFin:
		// Subsumed in practice by StreamData's inline fin bit; a
		// standalone Fin carries no offset and so cannot be placed in
		// the byte stream.
		return nil

	case frame.KindDatagram:
		c.inboundDatagrams = append(c.inboundDatagrams, f.Datagram)
		return nil

	case frame.KindAck:
		c.OnAckFrame(f.Ack, now)
		return nil

	case frame.KindCrypto, frame.KindControl:
		return nil

	case frame.KindStreamMaxData:
		c.streams.UpdateStreamLimit(stream.ID(f.StreamID), int64(f.StreamMaxData))
		return nil

	case frame.KindConnectionMaxData:
		c.streams.UpdateConnectionLimit(int64(f.ConnectionMaxData))
		return nil

	default:
		return nil
	}
}

// DrainReceivedDatagrams returns every unreliable datagram delivered
// since the last call and clears the backlog.
func (c *Connection) DrainReceivedDatagrams() [][]byte {
	out := c.inboundDatagrams
	c.inboundDatagrams = nil
	return out
}

// OpenStream opens id (a no-op if it already exists) and records
// priority for every future enqueue of id, so a caller only has to
// name a stream's class once.
func (c *Connection) OpenStream(id stream.ID, priority scheduler.Priority) {
	c.streams.Open(id, DefaultStreamInitialMax)
	c.streamPriority[id] = priority
}

// Write queues data (and, if fin is set, a stream Fin) on id's send
// side and schedules id for transmission at its recorded priority —
// scheduler.Bulk if OpenStream was never called for it. id must
// already be open, via OpenStream or an inbound StreamOpen/StreamData
// frame.
func (c *Connection) Write(id stream.ID, data []byte, fin bool) error {
	if len(data) > 0 {
		if err := c.streams.QueueSend(id, data); err != nil {
			return err
		}
	}
	if fin {
		if err := c.streams.QueueFin(id); err != nil {
			return err
		}
	}
	c.enqueueStream(id)
	return nil
}

// WriteDatagram queues payload for best-effort delivery, unordered and
// without retransmission.
func (c *Connection) WriteDatagram(payload []byte) error {
	return c.datagrams.Enqueue(payload)
}

func (c *Connection) enqueueStream(id stream.ID) {
	priority, ok := c.streamPriority[id]
	if !ok {
		priority = scheduler.Bulk
	}
	c.scheduler.Enqueue(id, priority)
}

// NextSendFrame returns the next single frame this connection is ready
// to push onto the wire, encoded as packet payload bytes, in priority
// order: a due ACK first (never itself ack-eliciting, so acking never
// requires an ack), then the highest-priority stream with queued send
// work, then one datagram admitted by the anti-amplification guard.
// ok is false once nothing remains for this poll. maxLen bounds how
// much stream payload one call will pull, and also gates the
// congestion pacer — see congestion.Controller.AllowSend.
func (c *Connection) NextSendFrame(now time.Time, maxLen int) (payload []byte, ackEliciting bool, ok bool, err error) {
	if f, due := c.BuildAckFrame(now); due {
		encoded, encErr := frame.EncodeAck(f)
		if encErr != nil {
			return nil, false, false, encErr
		}
		return encoded, false, true, nil
	}

	if !c.congestion.AllowSend(now, maxLen) {
		return nil, false, false, nil
	}

	if id, popped := c.scheduler.PopStream(); popped {
		chunk, chunkErr := c.streams.PollSendChunk(id, maxLen)
		if chunkErr != nil {
			return nil, false, false, chunkErr
		}
		if c.streams.HasSendWork(id) {
			c.enqueueStream(id)
		}
		encoded := frame.EncodeStreamData(frame.StreamDataFrame{
			StreamID: uint64(id),
			Offset:   chunk.Offset,
			Data:     chunk.Payload,
			Fin:      chunk.Fin,
		})
		return encoded, true, true, nil
	}

	if dgram, dequeued := c.datagrams.DequeueWithGuard(c.guard); dequeued {
		return frame.EncodeDatagram(dgram), true, true, nil
	}

	return nil, false, false, nil
}

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

// Package flow implements per-stream and per-connection flow-control
// windows, and a controller that enforces both simultaneously.
package flow

import (
	"github.com/agentd/agentd/transport/terr"
)

// Window is one credit window: consumed bytes must never exceed
// max_data, and max_data only ever moves up.
type Window struct {
	maxData  int64
	consumed int64
}

// NewWindow builds a Window with an initial credit limit.
func NewWindow(initialMax int64) Window {
	return Window{maxData: initialMax}
}

// UpdateLimit raises max_data to newLimit. Decreases are silently
// ignored: a peer cannot take back credit it already advertised.
func (w *Window) UpdateLimit(newLimit int64) {
	if newLimit > w.maxData {
		w.maxData = newLimit
	}
}

// Available returns the unconsumed credit.
func (w *Window) Available() int64 {
	return w.maxData - w.consumed
}

// Consume debits n bytes of credit, failing with SendWindowExceeded if
// that would exceed max_data.
func (w *Window) Consume(n int64) error {
	if n > w.Available() {
		return &terr.SendWindowExceeded{Available: w.Available(), Attempted: n}
	}
	w.consumed += n
	return nil
}

// MaxData and Consumed expose the window's raw fields.
func (w *Window) MaxData() int64  { return w.maxData }
func (w *Window) Consumed() int64 { return w.consumed }

// Controller holds one connection-level window plus one window per
// stream, and enforces both on every Consume call.
type Controller struct {
	conn    Window
	streams map[uint64]*Window
}

// NewController builds a Controller with the given connection-level
// initial limit.
func NewController(connInitialMax int64) *Controller {
	return &Controller{conn: NewWindow(connInitialMax), streams: make(map[uint64]*Window)}
}

// OpenStream registers a stream with an initial per-stream limit. It is
// a no-op if the stream is already registered.
func (c *Controller) OpenStream(streamID uint64, initialMax int64) {
	if _, ok := c.streams[streamID]; ok {
		return
	}
	w := NewWindow(initialMax)
	c.streams[streamID] = &w
}

// Consume debits n bytes from both the stream's window and the
// connection window, failing if either lacks sufficient credit. No
// partial debit occurs on failure.
func (c *Controller) Consume(streamID uint64, n int64) error {
	w, ok := c.streams[streamID]
	if !ok {
		return terr.ErrUnknownStream
	}
	if n > w.Available() {
		return &terr.SendWindowExceeded{Available: w.Available(), Attempted: n}
	}
	if n > c.conn.Available() {
		return &terr.SendWindowExceeded{Available: c.conn.Available(), Attempted: n}
	}
	_ = w.Consume(n)
	_ = c.conn.Consume(n)
	return nil
}

// UpdateStreamLimit raises the per-stream credit limit (MAX_DATA frame
// for that stream).
func (c *Controller) UpdateStreamLimit(streamID uint64, newLimit int64) {
	if w, ok := c.streams[streamID]; ok {
		w.UpdateLimit(newLimit)
	}
}

// UpdateConnectionLimit raises the connection-level credit limit
// (CONNECTION_MAX_DATA frame).
func (c *Controller) UpdateConnectionLimit(newLimit int64) {
	c.conn.UpdateLimit(newLimit)
}

// ConnectionAvailable returns the unconsumed connection-level credit.
func (c *Controller) ConnectionAvailable() int64 {
	return c.conn.Available()
}

// StreamAvailable returns the unconsumed per-stream credit, or 0 if the
// stream is unknown.
func (c *Controller) StreamAvailable(streamID uint64) int64 {
	if w, ok := c.streams[streamID]; ok {
		return w.Available()
	}
	return 0
}

// RemoveStream drops the per-stream window once the stream is retired.
func (c *Controller) RemoveStream(streamID uint64) {
	delete(c.streams, streamID)
}

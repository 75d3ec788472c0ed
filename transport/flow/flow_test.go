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

package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd/agentd/transport/terr"
)

func TestWindowConsumeWithinLimit(t *testing.T) {
	w := NewWindow(10)
	require.NoError(t, w.Consume(4))
	assert.Equal(t, int64(6), w.Available())
}

func TestWindowConsumeExceedsLimit(t *testing.T) {
	w := NewWindow(10)
	err := w.Consume(11)
	require.Error(t, err)
	var exceeded *terr.SendWindowExceeded
	assert.ErrorAs(t, err, &exceeded)
	assert.Equal(t, int64(10), exceeded.Available)
	assert.Equal(t, int64(11), exceeded.Attempted)
}

func TestWindowUpdateLimitIgnoresDecrease(t *testing.T) {
	w := NewWindow(10)
	w.UpdateLimit(5)
	assert.Equal(t, int64(10), w.MaxData())
	w.UpdateLimit(20)
	assert.Equal(t, int64(20), w.MaxData())
}

func TestConsumeRespectsPerStreamAndConnectionLimitsUntilRaised(t *testing.T) {
	c := NewController(8)
	c.OpenStream(1, 6) // stream_high
	c.OpenStream(2, 4) // stream_low

	require.NoError(t, c.Consume(1, 5))
	assert.Equal(t, int64(3), c.ConnectionAvailable())
	assert.Equal(t, int64(1), c.StreamAvailable(1))

	err := c.Consume(2, 4)
	require.Error(t, err)
	var exceeded *terr.SendWindowExceeded
	assert.ErrorAs(t, err, &exceeded)
	assert.Equal(t, int64(3), exceeded.Available)

	c.UpdateConnectionLimit(12)
	require.NoError(t, c.Consume(2, 4))
	assert.Equal(t, int64(0), c.StreamAvailable(2))
	assert.Equal(t, int64(3), c.ConnectionAvailable())
}

func TestControllerConsumeUnknownStream(t *testing.T) {
	c := NewController(10)
	err := c.Consume(99, 1)
	require.ErrorIs(t, err, terr.ErrUnknownStream)
}

func TestControllerOpenStreamIdempotent(t *testing.T) {
	c := NewController(10)
	c.OpenStream(1, 4)
	require.NoError(t, c.Consume(1, 4))
	c.OpenStream(1, 100)
	assert.Equal(t, int64(0), c.StreamAvailable(1))
}

func TestControllerRemoveStream(t *testing.T) {
	c := NewController(10)
	c.OpenStream(1, 4)
	c.RemoveStream(1)
	err := c.Consume(1, 1)
	require.ErrorIs(t, err, terr.ErrUnknownStream)
}

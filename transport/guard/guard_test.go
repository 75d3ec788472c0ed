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

package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryConsumeDeniesOverAmplificationBudgetUntilMoreBytesReceived(t *testing.T) {
	g := New(DefaultFactor, DefaultInitialAllowance)

	assert.True(t, g.TryConsume(1200))
	assert.False(t, g.TryConsume(4000))

	g.OnReceive(2000)
	assert.True(t, g.TryConsume(4000))
}

func TestMarkVerifiedLiftsLimit(t *testing.T) {
	g := New(DefaultFactor, 0)
	assert.False(t, g.TryConsume(1))
	g.MarkVerified()
	assert.True(t, g.TryConsume(1<<30))
}

func TestTryConsumeCumulativeBound(t *testing.T) {
	g := New(3, 0)
	g.OnReceive(100)
	assert.Equal(t, int64(300), g.Remaining())

	assert.True(t, g.TryConsume(300))
	assert.False(t, g.TryConsume(1))
}

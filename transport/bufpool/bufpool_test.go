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

package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsZeroedBuffer(t *testing.T) {
	p := New(16, 4)
	buf := p.Get(8)
	assert.Len(t, buf, 8)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestPutGetReusesBackingArray(t *testing.T) {
	p := New(16, 4)
	buf := p.Get(10)
	buf[0] = 0xFF
	p.Put(buf)
	assert.Equal(t, 1, p.Len())

	reused := p.Get(5)
	assert.Equal(t, 0, p.Len())
	assert.Len(t, reused, 5)
	assert.Equal(t, byte(0), reused[0])
}

func TestPutDiscardsBeyondMaxFree(t *testing.T) {
	p := New(16, 2)
	p.Put(make([]byte, 0, 16))
	p.Put(make([]byte, 0, 16))
	p.Put(make([]byte, 0, 16))
	assert.Equal(t, 2, p.Len())
}

func TestGetRequestLargerThanPooledCapacityAllocatesFresh(t *testing.T) {
	p := New(16, 4)
	p.Put(make([]byte, 0, 16))
	buf := p.Get(100)
	assert.Len(t, buf, 100)
	assert.Equal(t, 1, p.Len())
}

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

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIDRoundTrip(t *testing.T) {
	id := NewID(Unidirectional, Server, 42)
	assert.Equal(t, Unidirectional, id.Kind())
	assert.Equal(t, Server, id.Initiator())
	assert.Equal(t, uint64(42), id.Sequence())
}

func TestNewIDBidirectionalClient(t *testing.T) {
	id := NewID(Bidirectional, Client, 0)
	assert.Equal(t, Bidirectional, id.Kind())
	assert.Equal(t, Client, id.Initiator())
	assert.Equal(t, uint64(0), id.Sequence())
}

func TestIDsDistinctAcrossDimensions(t *testing.T) {
	a := NewID(Bidirectional, Client, 1)
	b := NewID(Unidirectional, Client, 1)
	c := NewID(Bidirectional, Server, 1)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

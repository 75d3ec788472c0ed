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

package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenResumeSucceeds(t *testing.T) {
	s := New(8, time.Minute)
	seed := []byte("seed-material")
	now := time.Unix(1_700_000_000, 0)

	issued, err := s.Issue(seed, now)
	require.NoError(t, err)

	resumed, ok := s.Resume(issued.ID, seed, now.Add(10*time.Second))
	require.True(t, ok)
	assert.Equal(t, issued, resumed)
}

func TestResumeExpiredFails(t *testing.T) {
	s := New(8, time.Minute)
	seed := []byte("seed-material")
	now := time.Unix(1_700_000_000, 0)

	issued, err := s.Issue(seed, now)
	require.NoError(t, err)

	_, ok := s.Resume(issued.ID, seed, now.Add(2*time.Minute))
	assert.False(t, ok)
}

func TestResumeUnknownIDFails(t *testing.T) {
	s := New(8, time.Minute)
	var unknown [IDSize]byte
	_, ok := s.Resume(unknown, []byte("seed"), time.Unix(0, 0))
	assert.False(t, ok)
}

func TestResumeWrongSeedFails(t *testing.T) {
	s := New(8, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	issued, err := s.Issue([]byte("seed-one"), now)
	require.NoError(t, err)

	_, ok := s.Resume(issued.ID, []byte("seed-two"), now)
	assert.False(t, ok)
}

func TestIssueEvictsOldestAtCapacity(t *testing.T) {
	s := New(2, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	first, err := s.Issue([]byte("seed-a"), now)
	require.NoError(t, err)
	_, err = s.Issue([]byte("seed-b"), now)
	require.NoError(t, err)
	_, err = s.Issue([]byte("seed-c"), now)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	_, ok := s.Resume(first.ID, []byte("seed-a"), now)
	assert.False(t, ok)
}

func TestIssueIsDeterministicPerCounter(t *testing.T) {
	seed := []byte("fixed-seed")
	s1 := New(8, time.Minute)
	s2 := New(8, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	t1, err := s1.Issue(seed, now)
	require.NoError(t, err)
	t2, err := s2.Issue(seed, now)
	require.NoError(t, err)
	assert.Equal(t, t1, t2)
}

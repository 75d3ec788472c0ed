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

// Package connid mints the locally-unique connection ids an endpoint
// assigns to each new Connection.
package connid

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// New returns a fresh connection id. It folds a random UUIDv4 down to
// 64 bits with xxhash rather than truncating it, so the low bits stay
// well mixed.
func New() uint64 {
	id := uuid.New()
	return xxhash.Sum64(id[:])
}

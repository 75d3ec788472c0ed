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

package packet

import (
	"crypto/sha256"

	"github.com/pkg/errors"
)

// sampleLen is the width of the body sample header protection derives
// its mask from.
const sampleLen = 16

// maskLen is the width of the derived mask: 1 byte for the flags field,
// 4 bytes for the first four bytes of the packet-number field.
const maskLen = 5

// sample extracts a deterministic 16-byte sample from body, starting at
// the first ciphertext byte. If body is shorter than sampleLen, it is
// zero-padded (the tag bytes that follow a short ciphertext make up the
// difference in practice; this only guards the degenerate case).
func sample(body []byte) [sampleLen]byte {
	var s [sampleLen]byte
	n := copy(s[:], body)
	_ = n
	return s
}

// mask derives a 5-byte header-protection mask from key and a 16-byte
// sample of the packet body. The function is deterministic and depends
// on the full sample: it is not itself an AEAD, only an obfuscation
// layer over plain SHA-256 of key || sample, truncated to maskLen bytes.
func mask(key []byte, s [sampleLen]byte) [maskLen]byte {
	h := sha256.New()
	h.Write(key)
	h.Write(s[:])
	sum := h.Sum(nil)

	var m [maskLen]byte
	copy(m[:], sum[:maskLen])
	return m
}

// ApplyHeaderProtection XORs the mask derived from key and a sample of
// body into hdr's flags byte (hdr[16]) and the first four bytes of the
// packet-number field (hdr[8:12]). The same operation is its own
// inverse, so it is used for both protecting and unprotecting.
func ApplyHeaderProtection(hdr []byte, key []byte, body []byte) error {
	if len(hdr) < HeaderLen {
		return errors.New("header buffer shorter than HeaderLen")
	}
	m := mask(key, sample(body))

	hdr[16] ^= m[0]
	for i := 0; i < 4; i++ {
		hdr[8+i] ^= m[i+1]
	}
	return nil
}

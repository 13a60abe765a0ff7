// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fingerprint computes and stores the 32-byte AST structural
// fingerprint used to detect structurally-equivalent artifacts regardless of
// identifier names, and the dictionary/delta codecs that keep bulk
// fingerprint storage compact (spec §4.2). There is no teacher analog for
// this exact codec — the teacher's own delta.go is git-diff delta detection,
// not a bit-level fingerprint codec — so the algorithm here is grounded
// directly in the specification.
package fingerprint

import (
	"crypto/sha256"
	"strings"
)

// Size is the fixed fingerprint length in bytes.
const Size = 32

// Compute returns the 32-byte AST fingerprint for a canonicalized sequence
// of AST node type names. It is order-dependent (structural shape matters)
// but independent of literal identifier names: callers are expected to pass
// node *kinds* (e.g. "function_declaration", "call_expression"), never
// identifier text, so renaming a symbol without changing AST shape produces
// an identical fingerprint.
func Compute(nodeTypes []string) [Size]byte {
	canon := strings.Join(nodeTypes, "\x1f")
	return sha256.Sum256([]byte(canon))
}

// ComputeBytes is Compute with a []byte result, convenient for storage.
func ComputeBytes(nodeTypes []string) []byte {
	fp := Compute(nodeTypes)
	return fp[:]
}

// HammingDistance returns the number of differing bytes between two
// same-length fingerprints (used by the delta codec's clustering step; the
// codec operates at byte granularity, not bit granularity, since SHA-256
// output has no meaningful sub-byte structure to exploit).
func HammingDistance(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	diff := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	diff += abs(len(a) - len(b))
	return diff
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// SimilarityRatio returns the fraction of matching bytes between two
// same-length fingerprints, used against the 70% clustering threshold.
func SimilarityRatio(a, b []byte) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	return 1.0 - float64(HammingDistance(a, b))/float64(len(a))
}

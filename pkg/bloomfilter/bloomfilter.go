// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package bloomfilter backs the O(1) "does this artifact exist?" check used
// by the agent query interface's fast-path (spec §4.3, §4.13). It wraps
// bits-and-blooms/bloom/v3, seeded via a non-cryptographic 64-bit hash
// (cespare/xxhash/v2) so seeds can be persisted alongside the filter and
// reproduced across process restarts.
package bloomfilter

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
)

// Filter is a persisted bloom filter with zero false negatives.
type Filter struct {
	n     uint
	fp    float64
	seed  uint64
	inner *bloom.BloomFilter
}

// New returns a Filter sized for n expected items at false-positive rate fp.
func New(n uint, fp float64) *Filter {
	return &Filter{
		n:     n,
		fp:    fp,
		seed:  0x9e3779b97f4a7c15, // fixed default seed; persisted so re-opens are reproducible
		inner: bloom.NewWithEstimates(n, fp),
	}
}

// Add records id as present. Zero false negatives: a subsequent Contains(id)
// always returns true.
func (f *Filter) Add(id string) {
	f.inner.Add(f.seededKey(id))
}

// Contains reports whether id may be present. False positives are possible
// at rate ≈fp; false negatives never occur for ids previously Add-ed.
func (f *Filter) Contains(id string) bool {
	return f.inner.Test(f.seededKey(id))
}

func (f *Filter) seededKey(id string) []byte {
	h := xxhash.New()
	var seedBuf [8]byte
	for i := range seedBuf {
		seedBuf[i] = byte(f.seed >> (8 * i))
	}
	h.Write(seedBuf[:])
	h.Write([]byte(id))
	sum := h.Sum64()
	key := make([]byte, 8)
	for i := 0; i < 8; i++ {
		key[i] = byte(sum >> (8 * i))
	}
	return key
}

// header is the persisted {N, ε, seed} metadata block (spec §6); k travels
// inside the bitset encoding that follows it.
type header struct {
	N    uint
	Eps  float64
	Seed uint64
}

// Save persists the filter to path as a single blob: header then bitset.
func (f *Filter) Save(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bloom filter file: %w", err)
	}
	defer fh.Close()

	enc := gob.NewEncoder(fh)
	if err := enc.Encode(header{N: f.n, Eps: f.fp, Seed: f.seed}); err != nil {
		return fmt.Errorf("encode bloom header: %w", err)
	}
	var buf bytes.Buffer
	if _, err := f.inner.WriteTo(&buf); err != nil {
		return fmt.Errorf("serialize bloom bitset: %w", err)
	}
	if err := enc.Encode(buf.Bytes()); err != nil {
		return fmt.Errorf("encode bloom bitset: %w", err)
	}
	return nil
}

// Load restores a Filter previously written by Save.
func Load(path string) (*Filter, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bloom filter file: %w", err)
	}
	defer fh.Close()

	dec := gob.NewDecoder(fh)
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("decode bloom header: %w", err)
	}
	var raw []byte
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode bloom bitset: %w", err)
	}
	inner := &bloom.BloomFilter{}
	if _, err := inner.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("deserialize bloom bitset: %w", err)
	}
	return &Filter{n: h.N, fp: h.Eps, seed: h.Seed, inner: inner}, nil
}

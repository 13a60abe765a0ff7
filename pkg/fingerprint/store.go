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

package fingerprint

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// record is the on-disk unit: a delta-encoded fingerprint keyed by artifact
// id.
type record struct {
	ArtifactID string
	Delta      Delta
}

// file is the gob-serialized, zstd-wrapped persisted blob (fingerprints.bin
// in the workspace layout, spec §6).
type file struct {
	DictEntries []string
	Records     []record
}

// Store is the in-memory, disk-backed fingerprint table: delta encoding
// against similarity-clustered bases, per spec §4.2. It also maintains a
// dictionary trained on ingested source text (Learn/Promote) for future
// text-compression use; dictionary substitution is not applied to stored
// fingerprints themselves, since a SHA-256 digest has no repeated byte
// sequences for a dictionary to find and substitution would only ever
// inflate it via the escape path.
type Store struct {
	mu   sync.RWMutex
	dict *Dictionary
	delt *DeltaCodec
	byID map[string]Delta
}

// NewStore returns an empty fingerprint store with a freshly-seeded
// dictionary.
func NewStore() *Store {
	return &Store{
		dict: NewDictionary(),
		delt: NewDeltaCodec(),
		byID: make(map[string]Delta),
	}
}

// Put stores fp (the raw 32-byte AST fingerprint) for artifactID, delta
// encoding it against the nearest similarity-clustered base.
func (s *Store) Put(artifactID string, fp []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[artifactID] = s.delt.Encode(fp)
}

// Get retrieves and fully decodes the fingerprint for artifactID.
func (s *Store) Get(artifactID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[artifactID]
	if !ok {
		return nil, false
	}
	return s.delt.Decode(d), true
}

// Learn feeds raw source content into the dictionary's frequency learner.
// Call Promote after a batch of Learn calls to fold the winners in.
func (s *Store) Learn(content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range []int{4, 6, 8} {
		s.dict.Learn(content, n)
	}
}

// Promote folds learned n-grams into the dictionary's substitution table.
func (s *Store) Promote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dict.Promote()
}

// Save persists the store to path as a zstd-compressed gob blob.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := file{DictEntries: s.dict.entries}
	for id, d := range s.byID {
		f.Records = append(f.Records, record{ArtifactID: id, Delta: d})
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(f); err != nil {
		return fmt.Errorf("encode fingerprint store: %w", err)
	}

	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("init zstd writer: %w", err)
	}
	defer zw.Close()
	compressed := zw.EncodeAll(raw.Bytes(), nil)

	return os.WriteFile(path, compressed, 0o644)
}

// Load restores a Store previously written by Save.
func Load(path string) (*Store, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fingerprint store: %w", err)
	}

	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd reader: %w", err)
	}
	defer zr.Close()
	raw, err := zr.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress fingerprint store: %w", err)
	}

	var f file
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fingerprint store: %w", err)
	}

	s := &Store{
		dict: &Dictionary{entries: f.DictEntries, freq: make(map[string]int)},
		delt: NewDeltaCodec(),
		byID: make(map[string]Delta),
	}
	// Reconstruct delta cluster bases by replaying records in original order:
	// base records seed bases at their recorded ClusterID.
	maxCluster := -1
	for _, r := range f.Records {
		if r.Delta.IsBase && r.Delta.ClusterID > maxCluster {
			maxCluster = r.Delta.ClusterID
		}
	}
	s.delt.bases = make([][]byte, maxCluster+1)
	for _, r := range f.Records {
		if r.Delta.IsBase {
			s.delt.bases[r.Delta.ClusterID] = r.Delta.Full
		}
	}
	for _, r := range f.Records {
		s.byID[r.ArtifactID] = r.Delta
	}
	return s, nil
}

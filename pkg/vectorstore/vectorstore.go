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

// Package vectorstore implements the legacy semantic side-store: embedding
// vectors keyed by node id, with cosine-similarity top-K search (spec
// §4.4). The default SimilarityIndex is an exact linear scan; the interface
// is designed so a native vector index (the teacher hints at this via
// pkg/storage/embedded.go's CreateHNSWIndex) can be substituted later
// without touching callers — the Open Question on recall/latency this spec
// leaves unresolved (see DESIGN.md).
package vectorstore

import (
	"math"
	"sort"
	"sync"
)

// SimilarityIndex is the pluggable top-K cosine search contract.
type SimilarityIndex interface {
	Upsert(id string, vec []float32)
	Delete(id string)
	Search(query []float32, k int) []ScoredID
}

// ScoredID is one similarity-search hit.
type ScoredID struct {
	ID    string
	Score float64
}

// LinearScanIndex is the default SimilarityIndex: an exact, O(N) cosine
// scan over raw float32 rows. Adequate at single-repo scale; swap in an
// ANN-backed implementation for larger corpora.
type LinearScanIndex struct {
	mu   sync.RWMutex
	rows map[string][]float32
}

// NewLinearScanIndex returns an empty index.
func NewLinearScanIndex() *LinearScanIndex {
	return &LinearScanIndex{rows: make(map[string][]float32)}
}

func (idx *LinearScanIndex) Upsert(id string, vec []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cp := append([]float32(nil), vec...)
	idx.rows[id] = cp
}

func (idx *LinearScanIndex) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.rows, id)
}

func (idx *LinearScanIndex) Search(query []float32, k int) []ScoredID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scored := make([]ScoredID, 0, len(idx.rows))
	for id, vec := range idx.rows {
		scored = append(scored, ScoredID{ID: id, Score: cosineSimilarity(query, vec)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// TextEncoder is the optional semantic encoder trait (spec §9's "Optional
// embedding model"). The default NoopEncoder lets concept dedup degrade
// gracefully to string equality; nothing else in the core depends on it.
type TextEncoder interface {
	Encode(texts []string) ([][]float32, error)
}

// NoopEncoder is the default TextEncoder: it encodes nothing.
type NoopEncoder struct{}

func (NoopEncoder) Encode(texts []string) ([][]float32, error) {
	return nil, nil
}

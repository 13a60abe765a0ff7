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

// Package concept implements concept candidate extraction (spec §4.8):
// path-derived, symbol-token, and (optionally) docstring-keyword
// candidates, deduplicated either by an embedding model's cosine clusters
// or by string-normalized equality when no model is configured.
package concept

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kraklabs/palace/pkg/vectorstore"
)

// pathStopwords are non-trivial path components that never become concept
// candidates on their own.
var pathStopwords = map[string]bool{
	"src": true, "test": true, "tests": true, "lib": true, "__init__": true,
}

// Candidate is a ranked concept extracted from an artifact.
type Candidate struct {
	Name          string
	Confidence    float64
	SourceSymbols []string
}

const (
	pathConfidence       = 0.7
	symbolConfidence     = 0.8
	minConfidence        = 0.3
	maxConfidence        = 1.0
	clusterSimilarityMin = 0.85
)

// Extractor extracts and deduplicates concept candidates from an artifact.
// A nil Encoder falls back to string-normalized equality dedup.
type Extractor struct {
	Encoder vectorstore.TextEncoder
}

// New returns an Extractor using encoder for embedding-based dedup, or
// string-normalized dedup if encoder is nil or a vectorstore.NoopEncoder.
func New(encoder vectorstore.TextEncoder) *Extractor {
	return &Extractor{Encoder: encoder}
}

// Extract derives ranked, deduplicated concept candidates from path,
// symbols (identifiers discovered by the parser), and docstrings (may be
// empty; docstring keyword extraction is best-effort).
func (e *Extractor) Extract(ctx context.Context, path string, symbols []string, docstrings []string) ([]Candidate, error) {
	var candidates []Candidate

	for _, part := range pathComponents(path) {
		if pathStopwords[strings.ToLower(part)] || part == "" {
			continue
		}
		candidates = append(candidates, Candidate{Name: part, Confidence: pathConfidence})
	}

	for _, sym := range symbols {
		words := splitIdentifier(sym)
		if len(words) < 2 {
			continue
		}
		candidates = append(candidates, Candidate{
			Name:          strings.Join(words, " "),
			Confidence:    symbolConfidence,
			SourceSymbols: []string{sym},
		})
	}

	for _, kw := range docstringKeywords(docstrings) {
		candidates = append(candidates, Candidate{Name: kw, Confidence: symbolConfidence})
	}

	for i := range candidates {
		candidates[i].Confidence = clamp(candidates[i].Confidence, minConfidence, maxConfidence)
	}

	deduped, err := e.dedup(ctx, candidates)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Confidence > deduped[j].Confidence
	})
	return deduped, nil
}

func pathComponents(path string) []string {
	path = strings.TrimSuffix(path, extOf(path))
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	return parts
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	slash := strings.LastIndexAny(path, "/\\")
	if idx <= slash {
		return ""
	}
	return path[idx:]
}

// splitIdentifier splits a camelCase or snake_case identifier into
// lowercase words.
func splitIdentifier(s string) []string {
	s = strings.ReplaceAll(s, "-", "_")
	var words []string
	var cur strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r == '_' {
			if cur.Len() > 0 {
				words = append(words, strings.ToLower(cur.String()))
				cur.Reset()
			}
			continue
		}
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(runes[i-1]) {
			if cur.Len() > 0 {
				words = append(words, strings.ToLower(cur.String()))
				cur.Reset()
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		words = append(words, strings.ToLower(cur.String()))
	}
	return words
}

// docstringKeywords is a best-effort, model-free keyword picker: it keeps
// capitalized or multi-syllable-looking words longer than 4 characters,
// excluding common English stopwords. It is a weak heuristic by design —
// spec marks this source optional and model-dependent.
func docstringKeywords(docstrings []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, doc := range docstrings {
		for _, word := range strings.Fields(doc) {
			w := strings.ToLower(strings.Trim(word, ".,;:()[]{}\"'"))
			if len(w) < 5 || stopword[w] || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

var stopword = map[string]bool{
	"these": true, "those": true, "which": true, "where": true,
	"there": true, "their": true, "about": true, "would": true,
	"should": true, "could": true, "return": true, "returns": true,
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// dedup merges candidates whose normalized names collide (string mode), or
// whose embeddings cosine-cluster above clusterSimilarityMin (embedding
// mode). The representative name is the shortest member of a cluster.
func (e *Extractor) dedup(ctx context.Context, candidates []Candidate) ([]Candidate, error) {
	if e.Encoder == nil {
		return dedupByNormalizedName(candidates), nil
	}
	if _, ok := e.Encoder.(vectorstore.NoopEncoder); ok {
		return dedupByNormalizedName(candidates), nil
	}
	return e.dedupByEmbedding(ctx, candidates)
}

func dedupByNormalizedName(candidates []Candidate) []Candidate {
	byKey := make(map[string]*Candidate)
	var order []string
	for _, c := range candidates {
		key := normalize(c.Name)
		if existing, ok := byKey[key]; ok {
			if c.Confidence > existing.Confidence {
				existing.Confidence = c.Confidence
			}
			existing.SourceSymbols = append(existing.SourceSymbols, c.SourceSymbols...)
			continue
		}
		cp := c
		byKey[key] = &cp
		order = append(order, key)
	}
	out := make([]Candidate, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func (e *Extractor) dedupByEmbedding(_ context.Context, candidates []Candidate) ([]Candidate, error) {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	vecs, err := e.Encoder.Encode(names)
	if err != nil {
		return nil, err
	}

	type embedded struct {
		candidate Candidate
		vec       []float32
	}
	items := make([]embedded, len(candidates))
	for i, c := range candidates {
		items[i] = embedded{candidate: c, vec: vecs[i]}
	}

	used := make([]bool, len(items))
	var clusters [][]int
	for i := range items {
		if used[i] {
			continue
		}
		cluster := []int{i}
		used[i] = true
		for j := i + 1; j < len(items); j++ {
			if used[j] {
				continue
			}
			if cosine(items[i].vec, items[j].vec) >= clusterSimilarityMin {
				used[j] = true
				cluster = append(cluster, j)
			}
		}
		clusters = append(clusters, cluster)
	}

	out := make([]Candidate, 0, len(clusters))
	for _, cluster := range clusters {
		best := items[cluster[0]].candidate
		maxConf := best.Confidence
		for _, idx := range cluster[1:] {
			c := items[idx].candidate
			if len(c.Name) < len(best.Name) {
				best.Name = c.Name
			}
			if c.Confidence > maxConf {
				maxConf = c.Confidence
			}
			best.SourceSymbols = append(best.SourceSymbols, c.SourceSymbols...)
		}
		best.Confidence = maxConf
		out = append(out, best)
	}
	return out, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

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

package concept_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/palace/pkg/concept"
)

func TestExtractPathDerivedConcepts(t *testing.T) {
	e := concept.New(nil)
	cands, err := e.Extract(context.Background(), "src/payments/invoice_builder.py", nil, nil)
	require.NoError(t, err)

	names := namesOf(cands)
	assert.Contains(t, names, "payments")
	assert.Contains(t, names, "invoice_builder")
	assert.NotContains(t, names, "src")
}

func TestExtractSymbolTokensSplitCamelAndSnakeCase(t *testing.T) {
	e := concept.New(nil)
	cands, err := e.Extract(context.Background(), "a.py", []string{"buildInvoiceTotal", "parse_config_file", "run"}, nil)
	require.NoError(t, err)

	names := namesOf(cands)
	assert.Contains(t, names, "build invoice total")
	assert.Contains(t, names, "parse config file")
	assert.NotContains(t, names, "run") // single-word identifiers are not candidates
}

func TestExtractConfidenceClamped(t *testing.T) {
	e := concept.New(nil)
	cands, err := e.Extract(context.Background(), "lib/test/foo.py", []string{"makeWidget"}, nil)
	require.NoError(t, err)
	for _, c := range cands {
		assert.GreaterOrEqual(t, c.Confidence, 0.3)
		assert.LessOrEqual(t, c.Confidence, 1.0)
	}
}

func TestExtractStringDedupMergesCaseAndWhitespace(t *testing.T) {
	e := concept.New(nil)
	cands, err := e.Extract(context.Background(), "a.py", []string{"buildInvoice", "build_invoice"}, nil)
	require.NoError(t, err)

	count := 0
	for _, c := range cands {
		if c.Name == "build invoice" {
			count++
		}
	}
	assert.Equal(t, 1, count, "identical normalized names must merge into one candidate")
}

func TestExtractSortedByConfidenceDescending(t *testing.T) {
	e := concept.New(nil)
	cands, err := e.Extract(context.Background(), "src/billing/service.py", []string{"computeMonthlyTotal"}, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(cands), 2)
	for i := 1; i < len(cands); i++ {
		assert.GreaterOrEqual(t, cands[i-1].Confidence, cands[i].Confidence)
	}
}

// stubEncoder embeds by bag-of-words overlap so near-duplicate names
// cosine-cluster together deterministically, without a real model.
type stubEncoder struct{}

func (stubEncoder) Encode(texts []string) ([][]float32, error) {
	vocab := map[string]int{}
	for _, t := range texts {
		for _, w := range strings.Fields(t) {
			if _, ok := vocab[w]; !ok {
				vocab[w] = len(vocab)
			}
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, len(vocab))
		for _, w := range strings.Fields(t) {
			vec[vocab[w]] = 1
		}
		out[i] = vec
	}
	return out, nil
}

func TestExtractEmbeddingDedupClustersSimilarNames(t *testing.T) {
	e := concept.New(stubEncoder{})
	cands, err := e.Extract(context.Background(), "a.py", []string{"buildInvoiceTotal", "buildInvoiceTotals"}, nil)
	require.NoError(t, err)
	// Both tokenize to overlapping word sets ("build invoice total(s)"); the
	// embedding path should still produce at least one merged cluster and
	// never more clusters than input candidates.
	assert.LessOrEqual(t, len(cands), 2)
	assert.GreaterOrEqual(t, len(cands), 1)
}

func namesOf(cands []concept.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Name
	}
	return out
}

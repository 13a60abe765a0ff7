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

// Package toon implements Token-Oriented Object Notation: an
// indentation-based, punctuation-light serialization used by the agent
// query interface to shrink context bundles before they reach a model
// (spec §6). Two-space indent, `-` list items, scalars unquoted unless
// ambiguous. Sections with no content are omitted entirely.
package toon

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Map is an insertion-ordered string-keyed map — the wire format's section
// order matters for humans and for the "bit-exact per file-type" contract,
// so a plain Go map (unordered) cannot back it.
type Map struct {
	keys []string
	vals map[string]any
}

// NewMap returns an empty ordered Map.
func NewMap() *Map {
	return &Map{vals: make(map[string]any)}
}

// Set inserts or overwrites key, preserving first-insertion order.
func (m *Map) Set(key string, val any) *Map {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = val
	return m
}

// Get returns the value for key, if present.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Keys returns the map's keys in insertion order.
func (m *Map) Keys() []string {
	return m.keys
}

// Len reports the number of keys.
func (m *Map) Len() int {
	return len(m.keys)
}

// List is an ordered sequence of TOON values (scalars, *Map, or nested List).
type List []any

// Marshal encodes v (a scalar, *Map, or List) as a TOON document.
func Marshal(v any) (string, error) {
	var b strings.Builder
	if err := encodeValue(&b, v, 0, true); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encodeValue(b *strings.Builder, v any, indent int, topLevel bool) error {
	switch val := v.(type) {
	case *Map:
		return encodeMap(b, val, indent)
	case List:
		return encodeList(b, val, indent)
	case []any:
		return encodeList(b, List(val), indent)
	default:
		if topLevel {
			return fmt.Errorf("toon: top-level value must be a *Map or List, got %T", v)
		}
		_, err := fmt.Fprintln(b, pad(indent)+scalarString(val))
		return err
	}
}

func encodeMap(b *strings.Builder, m *Map, indent int) error {
	for _, k := range m.keys {
		v := m.vals[k]
		if isEmpty(v) {
			continue // sections are emitted only when non-empty, per spec
		}
		switch val := v.(type) {
		case *Map:
			fmt.Fprintln(b, pad(indent)+k+":")
			if err := encodeMap(b, val, indent+1); err != nil {
				return err
			}
		case List:
			fmt.Fprintln(b, pad(indent)+k+":")
			if err := encodeList(b, val, indent+1); err != nil {
				return err
			}
		case []any:
			fmt.Fprintln(b, pad(indent)+k+":")
			if err := encodeList(b, List(val), indent+1); err != nil {
				return err
			}
		default:
			fmt.Fprintln(b, pad(indent)+k+": "+scalarString(val))
		}
	}
	return nil
}

// SummaryKey is a sentinel field name: when present on a *Map list item, its
// (already-formatted) string value becomes the inline text after "- ", and
// every other key is rendered as a nested field one indent deeper — this is
// how "- name(a, b) -> ret" followed by an indented "calls: x, y" line is
// built (spec §6's function/class list entries).
const SummaryKey = "_summary"

func encodeList(b *strings.Builder, l List, indent int) error {
	for _, item := range l {
		switch val := item.(type) {
		case *Map:
			if val.Len() == 0 {
				continue
			}
			if summary, ok := val.Get(SummaryKey); ok {
				fmt.Fprintln(b, pad(indent)+"- "+scalarString(summary))
				rest := NewMap()
				for _, k := range val.keys {
					if k != SummaryKey {
						rest.Set(k, val.vals[k])
					}
				}
				if err := encodeMap(b, rest, indent+1); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(b, pad(indent)+"-")
			if err := encodeMap(b, val, indent+1); err != nil {
				return err
			}
		case List:
			fmt.Fprintln(b, pad(indent)+"-")
			if err := encodeList(b, val, indent+1); err != nil {
				return err
			}
		default:
			fmt.Fprintln(b, pad(indent)+"- "+scalarString(val))
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case *Map:
		return val.Len() == 0
	case List:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case string:
		return false
	default:
		return false
	}
}

func pad(indent int) string {
	return strings.Repeat("  ", indent)
}

// scalarString renders v unquoted unless it contains ':', '#', or leading
// whitespace, in which case it is single-quoted (spec §6's exact rule).
func scalarString(v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case bool:
		s = strconv.FormatBool(val)
	case float64:
		s = strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		s = strconv.Itoa(val)
	case fmt.Stringer:
		s = val.String()
	case nil:
		return ""
	default:
		s = fmt.Sprintf("%v", val)
	}
	if needsQuoting(s) {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return s
}

func needsQuoting(s string) bool {
	if s == "" {
		return false
	}
	if strings.ContainsAny(s, ":#") {
		return true
	}
	if s[0] == ' ' || s[0] == '\t' {
		return true
	}
	return false
}

// EstimateTokens approximates token count at chars/4, the heuristic the
// agent query interface reports alongside a TOON payload (spec §4.13).
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// sortedKeys is a small helper for callers building a *Map from an
// unordered Go map who want deterministic key order (e.g. alphabetical)
// rather than insertion order of a prior traversal.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromUnorderedMap builds a *Map from a plain Go map, with keys sorted
// alphabetically for determinism.
func FromUnorderedMap(m map[string]any) *Map {
	out := NewMap()
	for _, k := range sortedKeys(m) {
		out.Set(k, m[k])
	}
	return out
}

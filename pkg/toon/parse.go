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

package toon

import (
	"fmt"
	"strings"
)

type line struct {
	indent int
	text   string
}

// Unmarshal parses a TOON document back into a *Map or List, the inverse of
// Marshal. A parser must round-trip a well-formed document (spec §6).
func Unmarshal(doc string) (any, error) {
	lines := splitLines(doc)
	if len(lines) == 0 {
		return NewMap(), nil
	}
	val, rest, err := parseBlock(lines, lines[0].indent)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("toon: unconsumed trailing content at indent %d", rest[0].indent)
	}
	return val, nil
}

func splitLines(doc string) []line {
	var out []line
	for _, raw := range strings.Split(doc, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		trimmed := strings.TrimLeft(raw, " ")
		leadingSpaces := len(raw) - len(trimmed)
		out = append(out, line{indent: leadingSpaces / 2, text: trimmed})
	}
	return out
}

// parseBlock parses all consecutive lines at exactly `indent`, returning
// either a *Map (key: value / key: lines) or a List (- item lines), plus
// whatever lines remain unconsumed (indent < the block's indent).
func parseBlock(lines []line, indent int) (any, []line, error) {
	if len(lines) == 0 {
		return NewMap(), nil, nil
	}
	if strings.HasPrefix(lines[0].text, "- ") || lines[0].text == "-" {
		return parseList(lines, indent)
	}
	return parseMap(lines, indent)
}

func parseList(lines []line, indent int) (List, []line, error) {
	var out List
	for len(lines) > 0 && lines[0].indent == indent && (strings.HasPrefix(lines[0].text, "- ") || lines[0].text == "-") {
		item := lines[0]
		lines = lines[1:]

		if item.text == "-" {
			child, rest, err := consumeChildBlock(lines, indent)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, child)
			lines = rest
			continue
		}

		content := strings.TrimPrefix(item.text, "- ")
		if key, val, ok := splitKeyValue(content); ok {
			m := NewMap()
			m.Set(key, unquote(val))
			child, rest, err := consumeSiblingFields(lines, indent, m)
			if err != nil {
				return nil, nil, err
			}
			lines = rest
			out = append(out, child)
			continue
		}

		// Plain scalar item, possibly followed by a deeper "_summary" block.
		if len(lines) > 0 && lines[0].indent > indent {
			m := NewMap()
			m.Set(SummaryKey, unquote(content))
			child, rest, err := consumeSiblingFields(lines, indent, m)
			if err != nil {
				return nil, nil, err
			}
			lines = rest
			out = append(out, child)
			continue
		}
		out = append(out, unquote(content))
	}
	return out, lines, nil
}

// consumeChildBlock parses a nested block introduced by a bare "-" line.
func consumeChildBlock(lines []line, parentIndent int) (any, []line, error) {
	if len(lines) == 0 || lines[0].indent <= parentIndent {
		return NewMap(), lines, nil
	}
	childIndent := lines[0].indent
	return parseBlock(lines, childIndent)
}

// consumeSiblingFields reads any lines indented one deeper than indent into
// m, treating them as the fields alongside a "_summary" or "key: value"
// list-item opener.
func consumeSiblingFields(lines []line, indent int, m *Map) (*Map, []line, error) {
	if len(lines) == 0 || lines[0].indent <= indent {
		return m, lines, nil
	}
	childIndent := lines[0].indent
	for len(lines) > 0 && lines[0].indent == childIndent {
		key, val, ok := splitKeyValue(lines[0].text)
		if !ok {
			break
		}
		if val == "" && len(lines) > 1 && lines[1].indent > childIndent {
			sub, rest, err := parseBlock(lines[1:], lines[1].indent)
			if err != nil {
				return nil, nil, err
			}
			m.Set(key, sub)
			lines = rest
			continue
		}
		m.Set(key, unquote(val))
		lines = lines[1:]
	}
	return m, lines, nil
}

func parseMap(lines []line, indent int) (*Map, []line, error) {
	m := NewMap()
	for len(lines) > 0 && lines[0].indent == indent {
		key, val, ok := splitKeyValue(lines[0].text)
		if !ok {
			return nil, nil, fmt.Errorf("toon: expected key at indent %d, got %q", indent, lines[0].text)
		}
		lines = lines[1:]
		if val == "" && len(lines) > 0 && lines[0].indent > indent {
			sub, rest, err := parseBlock(lines, lines[0].indent)
			if err != nil {
				return nil, nil, err
			}
			m.Set(key, sub)
			lines = rest
			continue
		}
		m.Set(key, unquote(val))
	}
	return m, lines, nil
}

// splitKeyValue splits "key: value" / "key:" on the first unquoted colon.
func splitKeyValue(text string) (key, val string, ok bool) {
	idx := -1
	inQuote := false
	for i := 0; i < len(text); i++ {
		if text[i] == '\'' {
			inQuote = !inQuote
		} else if text[i] == ':' && !inQuote {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", "", false
	}
	key = text[:idx]
	rest := strings.TrimSpace(text[idx+1:])
	return key, rest, true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		inner := s[1 : len(s)-1]
		return strings.ReplaceAll(inner, "''", "'")
	}
	return s
}

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

import "sort"

// escapeByte marks a literal pass-through byte in the encoded stream, so
// dictionary codes can occupy the rest of the byte space unambiguously.
const escapeByte = 0x00

// maxDictEntries is the largest number of substitution codes a Dictionary
// can hold: one byte value (0x01-0xFF) per entry.
const maxDictEntries = 255

// seededEntries are the 24 built-in code-pattern byte sequences, chosen to
// cover common tokens across the languages the ingestion pipeline parses
// (spec §4.2 names "def ", "class ", "import " as examples from the
// Python-only original; extended here for Go/TS/JS/Proto since this engine
// is multi-language).
var seededEntries = []string{
	"def ", "class ", "import ", "func ", "package ",
	"return ", "public ", "private ", "function ", "const ",
	"let ", "var ", "struct ", "interface ", "type ",
	"if (", "for (", "while (", "try {", "catch (",
	"message ", "service ", "rpc ", "extends ",
}

// Dictionary implements lossless dictionary substitution compression: a
// global table of up to 255 common byte sequences, each collapsed to a
// single code byte. Codes occupy 0x01-0xFF; every input byte not covered by
// a dictionary match is emitted as escapeByte followed by the byte itself,
// so the codec is lossless over arbitrary input, not just text containing
// the seeded entries.
type Dictionary struct {
	entries []string          // code (index+1) -> byte sequence
	freq    map[string]int    // learned n-gram frequency, for Learn
}

// NewDictionary returns a Dictionary pre-seeded with the 24 built-in
// entries.
func NewDictionary() *Dictionary {
	d := &Dictionary{
		entries: append([]string(nil), seededEntries...),
		freq:    make(map[string]int),
	}
	return d
}

// Learn records n-gram observations from ingested content. Call Promote
// periodically to fold the highest-frequency n-grams (up to the 231-entry
// learned budget) into the substitution table.
func (d *Dictionary) Learn(content []byte, n int) {
	if n <= 0 || len(content) < n {
		return
	}
	for i := 0; i+n <= len(content); i++ {
		d.freq[string(content[i:i+n])]++
	}
}

// Promote folds the highest-frequency learned n-grams into the dictionary,
// up to the maxDictEntries budget (24 seeded + up to 231 learned).
func (d *Dictionary) Promote() {
	type kv struct {
		s string
		n int
	}
	cands := make([]kv, 0, len(d.freq))
	for s, n := range d.freq {
		if n < 2 || len(s) < 2 {
			continue
		}
		cands = append(cands, kv{s, n})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].n != cands[j].n {
			return cands[i].n > cands[j].n
		}
		return cands[i].s < cands[j].s
	})
	have := make(map[string]bool, len(d.entries))
	for _, e := range d.entries {
		have[e] = true
	}
	for _, c := range cands {
		if len(d.entries) >= maxDictEntries {
			break
		}
		if have[c.s] {
			continue
		}
		d.entries = append(d.entries, c.s)
		have[c.s] = true
	}
}

// Encode replaces the longest matching dictionary entry at each position
// with its 1-byte code; unmatched bytes are escaped with escapeByte.
func (d *Dictionary) Encode(data []byte) []byte {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if code, n, ok := d.longestMatch(data[i:]); ok {
			out = append(out, code)
			i += n
			continue
		}
		out = append(out, escapeByte, data[i])
		i++
	}
	return out
}

func (d *Dictionary) longestMatch(data []byte) (code byte, n int, ok bool) {
	bestLen := 0
	bestIdx := -1
	for idx, entry := range d.entries {
		el := len(entry)
		if el == 0 || el > len(data) || el <= bestLen {
			continue
		}
		if string(data[:el]) == entry {
			bestLen = el
			bestIdx = idx
		}
	}
	if bestIdx < 0 {
		return 0, 0, false
	}
	return byte(bestIdx + 1), bestLen, true
}

// Decode reverses Encode, lossless for any byte stream Encode produced.
func (d *Dictionary) Decode(data []byte) []byte {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		b := data[i]
		if b == escapeByte {
			if i+1 < len(data) {
				out = append(out, data[i+1])
			}
			i += 2
			continue
		}
		idx := int(b) - 1
		if idx >= 0 && idx < len(d.entries) {
			out = append(out, d.entries[idx]...)
		}
		i++
	}
	return out
}

// Len reports the number of dictionary entries currently in the table.
func (d *Dictionary) Len() int { return len(d.entries) }

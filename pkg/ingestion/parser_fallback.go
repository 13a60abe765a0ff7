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

package ingestion

import (
	"regexp"
	"strings"

	"github.com/kraklabs/palace/pkg/fingerprint"
)

// regexFallbackParser serves any extension with no dedicated parser: it
// finds lines that look like a definition header of some kind (a word
// followed by an identifier and an opening delimiter) and yields one
// Symbol per match. It extracts no dependencies — generic source has no
// reliable import syntax to key off of.
type regexFallbackParser struct{}

func newRegexFallbackParser() *regexFallbackParser { return &regexFallbackParser{} }

func (regexFallbackParser) name() string { return "fallback" }

// SupportedExtensions is empty: ParserRegistry routes to this parser only
// when no extension-specific registration exists.
func (regexFallbackParser) SupportedExtensions() []string { return nil }

var fallbackDefPattern = regexp.MustCompile(`(?i)\b(function|func|def|class|sub|proc|method)\s+([A-Za-z_]\w*)`)

func (regexFallbackParser) ParseDependencies(_, _ string) ([]Dependency, error) {
	return nil, nil
}

func (regexFallbackParser) ExtractSymbols(content string) ([]Symbol, error) {
	var symbols []Symbol
	for i, line := range strings.Split(content, "\n") {
		m := fallbackDefPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		kind := SymbolFunction
		if strings.EqualFold(m[1], "class") {
			kind = SymbolClass
		}
		symbols = append(symbols, Symbol{
			Name:       m[2],
			Kind:       kind,
			Line:       i + 1,
			EndLine:    i + 1,
			IsExported: true,
		})
	}
	return symbols, nil
}

func (regexFallbackParser) ComputeFingerprint(content string) [32]byte {
	var nodeTypes []string
	for _, line := range strings.Split(content, "\n") {
		if fallbackDefPattern.MatchString(line) {
			nodeTypes = append(nodeTypes, "def")
		}
	}
	return fingerprint.Compute(nodeTypes)
}

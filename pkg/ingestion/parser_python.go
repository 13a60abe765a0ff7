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

// pythonHeuristicParser is the mandatory, never-dropped parser for .py
// files: indentation-based block detection plus regex signature matching.
// Go has no bindings to Python's own ast module, so this is the idiomatic
// stand-in for "stdlib-AST-backed" (spec §4.5).
type pythonHeuristicParser struct{}

func newPythonHeuristicParser() *pythonHeuristicParser { return &pythonHeuristicParser{} }

func (pythonHeuristicParser) name() string { return "python" }

func (pythonHeuristicParser) SupportedExtensions() []string { return []string{".py"} }

var (
	pyImportPattern     = regexp.MustCompile(`^\s*import\s+([\w.]+)`)
	pyFromImportPattern = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\s`)
	pyDefPattern        = regexp.MustCompile(`^(\s*)def\s+(\w+)\s*\(([^)]*)\)\s*(->\s*[\w\[\], ]+)?\s*:`)
	pyClassPattern      = regexp.MustCompile(`^(\s*)class\s+(\w+)`)
)

func (pythonHeuristicParser) ParseDependencies(_, content string) ([]Dependency, error) {
	var deps []Dependency
	for i, line := range strings.Split(content, "\n") {
		if m := pyFromImportPattern.FindStringSubmatch(line); m != nil {
			deps = append(deps, Dependency{Path: m[1], Kind: "import", Line: i + 1})
			continue
		}
		if m := pyImportPattern.FindStringSubmatch(line); m != nil {
			for _, mod := range strings.Split(m[1], ",") {
				deps = append(deps, Dependency{Path: strings.TrimSpace(mod), Kind: "import", Line: i + 1})
			}
		}
	}
	return deps, nil
}

// ExtractSymbols uses indentation to find each def/class's extent: a block
// ends at the first subsequent line indented no deeper than its header.
func (pythonHeuristicParser) ExtractSymbols(content string) ([]Symbol, error) {
	lines := strings.Split(content, "\n")
	var symbols []Symbol

	for i, line := range lines {
		if m := pyDefPattern.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			name := m[2]
			params := m[3]
			hasReturn := m[4] != ""
			end := pyBlockEnd(lines, i, indent)
			symbols = append(symbols, Symbol{
				Name:         name,
				Kind:         SymbolFunction,
				Line:         i + 1,
				EndLine:      end,
				HasTypeHints: hasReturn && strings.Contains(params, ":"),
				IsExported:   !strings.HasPrefix(name, "_"),
			})
			continue
		}
		if m := pyClassPattern.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			name := m[2]
			end := pyBlockEnd(lines, i, indent)
			methodCount := 0
			for j := i + 1; j < end && j < len(lines); j++ {
				if dm := pyDefPattern.FindStringSubmatch(lines[j]); dm != nil && len(dm[1]) > indent {
					methodCount++
				}
			}
			symbols = append(symbols, Symbol{
				Name:        name,
				Kind:        SymbolClass,
				Line:        i + 1,
				EndLine:     end,
				MethodCount: methodCount,
				IsExported:  !strings.HasPrefix(name, "_"),
			})
		}
	}
	return symbols, nil
}

func pyBlockEnd(lines []string, headerIdx, headerIndent int) int {
	for j := headerIdx + 1; j < len(lines); j++ {
		trimmed := strings.TrimRight(lines[j], " \t")
		if trimmed == "" {
			continue
		}
		indent := len(lines[j]) - len(strings.TrimLeft(lines[j], " \t"))
		if indent <= headerIndent {
			return j
		}
	}
	return len(lines)
}

func (pythonHeuristicParser) ComputeFingerprint(content string) [32]byte {
	var nodeTypes []string
	for _, line := range strings.Split(content, "\n") {
		switch {
		case pyDefPattern.MatchString(line):
			nodeTypes = append(nodeTypes, "def")
		case pyClassPattern.MatchString(line):
			nodeTypes = append(nodeTypes, "class")
		case pyImportPattern.MatchString(line), pyFromImportPattern.MatchString(line):
			nodeTypes = append(nodeTypes, "import")
		}
	}
	return fingerprint.Compute(nodeTypes)
}

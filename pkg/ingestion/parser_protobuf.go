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
	"strings"

	"github.com/kraklabs/palace/pkg/fingerprint"
)

// protoParser is a regex/line-based LanguageParser for .proto files; no
// tree-sitter grammar for protobuf is bundled, so services/messages/enums
// are detected by brace-counting over lines (spec §4.5).
type protoParser struct{}

func newProtoParser() *protoParser { return &protoParser{} }

func (protoParser) name() string { return "protobuf" }

func (protoParser) SupportedExtensions() []string { return []string{".proto"} }

func (protoParser) ParseDependencies(_, content string) ([]Dependency, error) {
	var deps []Dependency
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "import ") {
			continue
		}
		trimmed = strings.TrimPrefix(trimmed, "import ")
		trimmed = strings.TrimPrefix(trimmed, "public ")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), ";")
		path := strings.Trim(trimmed, "\"")
		if path == "" {
			continue
		}
		deps = append(deps, Dependency{Path: path, Kind: "import", Line: i + 1})
	}
	return deps, nil
}

func (protoParser) ExtractSymbols(content string) ([]Symbol, error) {
	var symbols []Symbol
	lines := strings.Split(content, "\n")

	var currentService string
	var serviceStart int
	var rpcCount int
	braceCount := 0

	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}

		if currentService == "" && strings.HasPrefix(trimmed, "service ") && strings.Contains(trimmed, "{") {
			currentService = strings.TrimSuffix(strings.Fields(trimmed)[1], "{")
			serviceStart = lineNum
			rpcCount = 0
			braceCount = strings.Count(trimmed, "{") - strings.Count(trimmed, "}")
			continue
		}
		if currentService != "" {
			braceCount += strings.Count(trimmed, "{") - strings.Count(trimmed, "}")
			if strings.HasPrefix(trimmed, "rpc ") {
				rpcCount++
			}
			if braceCount == 0 {
				symbols = append(symbols, Symbol{
					Name:        currentService,
					Kind:        SymbolClass,
					Line:        serviceStart,
					EndLine:     lineNum,
					MethodCount: rpcCount,
					IsExported:  true,
				})
				currentService = ""
			}
			continue
		}

		if strings.HasPrefix(trimmed, "message ") && strings.Contains(trimmed, "{") {
			name := strings.TrimSuffix(strings.Fields(trimmed)[1], "{")
			end := findProtoBlockEnd(lines, i)
			symbols = append(symbols, Symbol{Name: name, Kind: SymbolClass, Line: lineNum, EndLine: end, IsExported: true})
		}
		if strings.HasPrefix(trimmed, "enum ") && strings.Contains(trimmed, "{") {
			name := strings.TrimSuffix(strings.Fields(trimmed)[1], "{")
			end := findProtoBlockEnd(lines, i)
			symbols = append(symbols, Symbol{Name: name, Kind: SymbolConstant, Line: lineNum, EndLine: end, IsExported: true})
		}
	}
	return symbols, nil
}

func findProtoBlockEnd(lines []string, startIdx int) int {
	braceCount := 0
	started := false
	for i := startIdx; i < len(lines); i++ {
		braceCount += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if !started && strings.Contains(lines[i], "{") {
			started = true
		}
		if started && braceCount == 0 {
			return i + 1
		}
	}
	return len(lines)
}

func (protoParser) ComputeFingerprint(content string) [32]byte {
	var nodeTypes []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "service "):
			nodeTypes = append(nodeTypes, "service")
		case strings.HasPrefix(trimmed, "message "):
			nodeTypes = append(nodeTypes, "message")
		case strings.HasPrefix(trimmed, "enum "):
			nodeTypes = append(nodeTypes, "enum")
		case strings.HasPrefix(trimmed, "rpc "):
			nodeTypes = append(nodeTypes, "rpc")
		case strings.HasPrefix(trimmed, "import "):
			nodeTypes = append(nodeTypes, "import")
		}
	}
	return fingerprint.Compute(nodeTypes)
}

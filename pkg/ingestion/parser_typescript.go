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
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/palace/pkg/fingerprint"
)

// typeScriptParser is the tree-sitter-backed LanguageParser for
// TypeScript/TSX and JavaScript/JSX; both grammars share a walk shape so one
// parser handles all four extensions.
type typeScriptParser struct {
	ts *sitter.Parser
	js *sitter.Parser
}

func newTypeScriptParser() *typeScriptParser {
	ts := sitter.NewParser()
	ts.SetLanguage(typescript.GetLanguage())
	js := sitter.NewParser()
	js.SetLanguage(javascript.GetLanguage())
	return &typeScriptParser{ts: ts, js: js}
}

func (p *typeScriptParser) name() string { return "typescript" }

func (p *typeScriptParser) SupportedExtensions() []string {
	return []string{".ts", ".tsx", ".js", ".jsx"}
}

func (p *typeScriptParser) parserFor(path string) *sitter.Parser {
	if strings.HasSuffix(path, ".ts") || strings.HasSuffix(path, ".tsx") {
		return p.ts
	}
	return p.js
}

func (p *typeScriptParser) parse(path, content string) (*sitter.Tree, error) {
	return p.parserFor(path).ParseCtx(context.Background(), nil, []byte(content))
}

func (p *typeScriptParser) ParseDependencies(path, content string) ([]Dependency, error) {
	tree, err := p.parse(path, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var deps []Dependency
	walkNodes(tree.RootNode(), func(n *sitter.Node) {
		if n.Type() != "import_statement" {
			return
		}
		sourceNode := n.ChildByFieldName("source")
		if sourceNode == nil {
			return
		}
		source := strings.Trim(nodeText(sourceNode, content), "\"'")
		deps = append(deps, Dependency{Path: source, Kind: "import", Line: int(n.StartPoint().Row) + 1})
	})
	return deps, nil
}

func (p *typeScriptParser) ExtractSymbols(content string) ([]Symbol, error) {
	// path-agnostic: fingerprint/symbol canary calls use the TS grammar,
	// which is a superset-compatible parse for plain JS constructs too.
	tree, err := p.ts.ParseCtx(context.Background(), nil, []byte(content))
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var symbols []Symbol
	walkNodes(tree.RootNode(), func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			nameNode := n.ChildByFieldName("name")
			if nameNode == nil {
				return
			}
			name := nodeText(nameNode, content)
			symbols = append(symbols, Symbol{
				Name:         name,
				Kind:         SymbolFunction,
				Line:         int(n.StartPoint().Row) + 1,
				EndLine:      int(n.EndPoint().Row) + 1,
				HasTypeHints: n.ChildByFieldName("return_type") != nil,
				IsExported:   hasExportAncestor(n),
			})
		case "class_declaration":
			nameNode := n.ChildByFieldName("name")
			if nameNode == nil {
				return
			}
			body := n.ChildByFieldName("body")
			methodCount := 0
			if body != nil {
				for i := 0; i < int(body.NamedChildCount()); i++ {
					if body.NamedChild(i).Type() == "method_definition" {
						methodCount++
					}
				}
			}
			symbols = append(symbols, Symbol{
				Name:        nodeText(nameNode, content),
				Kind:        SymbolClass,
				Line:        int(n.StartPoint().Row) + 1,
				EndLine:     int(n.EndPoint().Row) + 1,
				MethodCount: methodCount,
				IsExported:  hasExportAncestor(n),
			})
		}
	})
	return symbols, nil
}

func (p *typeScriptParser) ComputeFingerprint(content string) [32]byte {
	tree, err := p.ts.ParseCtx(context.Background(), nil, []byte(content))
	if err != nil {
		return fingerprint.Compute(nil)
	}
	defer tree.Close()
	var types []string
	walkNodes(tree.RootNode(), func(n *sitter.Node) {
		types = append(types, n.Type())
	})
	return fingerprint.Compute(types)
}

func hasExportAncestor(n *sitter.Node) bool {
	parent := n.Parent()
	return parent != nil && parent.Type() == "export_statement"
}

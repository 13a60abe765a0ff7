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
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/kraklabs/palace/pkg/fingerprint"
)

// goParser is the tree-sitter-backed LanguageParser for Go source.
type goParser struct {
	sitterParser *sitter.Parser
}

func newGoParser() *goParser {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &goParser{sitterParser: p}
}

func (p *goParser) name() string { return "go" }

func (p *goParser) SupportedExtensions() []string { return []string{".go"} }

func (p *goParser) parse(content string) (*sitter.Tree, error) {
	return p.sitterParser.ParseCtx(context.Background(), nil, []byte(content))
}

func (p *goParser) ParseDependencies(path, content string) ([]Dependency, error) {
	tree, err := p.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var deps []Dependency
	root := tree.RootNode()
	walkNodes(root, func(n *sitter.Node) {
		if n.Type() != "import_declaration" {
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if spec.Type() != "import_spec" {
				continue
			}
			pathNode := spec.ChildByFieldName("path")
			if pathNode == nil {
				continue
			}
			importPath := strings.Trim(nodeText(pathNode, content), "\"")
			deps = append(deps, Dependency{
				Path: importPath,
				Kind: "import",
				Line: int(spec.StartPoint().Row) + 1,
			})
		}
	})
	return deps, nil
}

func (p *goParser) ExtractSymbols(content string) ([]Symbol, error) {
	tree, err := p.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var symbols []Symbol
	root := tree.RootNode()
	walkNodes(root, func(n *sitter.Node) {
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
				HasTypeHints: hasGoResultTypes(n),
				IsExported:   isExportedGoName(name),
			})
		case "method_declaration":
			nameNode := n.ChildByFieldName("name")
			if nameNode == nil {
				return
			}
			name := nodeText(nameNode, content)
			symbols = append(symbols, Symbol{
				Name:         name,
				Kind:         SymbolMethod,
				Line:         int(n.StartPoint().Row) + 1,
				EndLine:      int(n.EndPoint().Row) + 1,
				HasTypeHints: hasGoResultTypes(n),
				IsExported:   isExportedGoName(name),
			})
		case "type_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				name := nodeText(nameNode, content)
				typeNode := spec.ChildByFieldName("type")
				methodCount := 0
				if typeNode != nil && typeNode.Type() == "interface_type" {
					methodCount = int(typeNode.NamedChildCount())
				}
				symbols = append(symbols, Symbol{
					Name:         name,
					Kind:         SymbolClass,
					Line:         int(spec.StartPoint().Row) + 1,
					EndLine:      int(spec.EndPoint().Row) + 1,
					MethodCount:  methodCount,
					HasTypeHints: true, // Go is statically typed; always considered annotated
					IsExported:   isExportedGoName(name),
				})
			}
		}
	})

	// A struct's method count is determined by counting method_declaration
	// receivers that name it, done as a second pass since methods are
	// declared independently of their receiver type in Go's grammar.
	receiverCounts := make(map[string]int)
	walkNodes(root, func(n *sitter.Node) {
		if n.Type() != "method_declaration" {
			return
		}
		recv := n.ChildByFieldName("receiver")
		if recv == nil {
			return
		}
		receiverCounts[receiverTypeName(recv, content)]++
	})
	for i := range symbols {
		if symbols[i].Kind == SymbolClass {
			if c, ok := receiverCounts[symbols[i].Name]; ok {
				symbols[i].MethodCount = c
			}
		}
	}
	return symbols, nil
}

func (p *goParser) ComputeFingerprint(content string) [32]byte {
	tree, err := p.parse(content)
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

func walkNodes(n *sitter.Node, visit func(*sitter.Node)) {
	if n == nil {
		return
	}
	visit(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		walkNodes(n.Child(i), visit)
	}
}

func nodeText(n *sitter.Node, content string) string {
	return n.Content([]byte(content))
}

func isExportedGoName(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

func hasGoResultTypes(n *sitter.Node) bool {
	return n.ChildByFieldName("result") != nil
}

func receiverTypeName(recv *sitter.Node, content string) string {
	text := nodeText(recv, content)
	text = strings.Trim(text, "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	typ := fields[len(fields)-1]
	return strings.TrimPrefix(typ, "*")
}

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

// Package query implements the agent-facing query interface (spec §4.13):
// a bloom pre-check, a bounded spreading-activation fetch, and a TOON
// serialization of the resulting context bundle.
package query

import (
	"context"
	"sort"
	"time"

	"github.com/kraklabs/palace/pkg/activation"
	"github.com/kraklabs/palace/pkg/bloomfilter"
	"github.com/kraklabs/palace/pkg/graph"
	"github.com/kraklabs/palace/pkg/toon"
)

const (
	defaultMaxDepth        = 2
	defaultEnergyThreshold = 0.3
	defaultDecayFactor     = 0.8
)

// Store is the subset of graph.Store the query interface needs: everything
// activation.Spread/BuildContextBundle needs plus edge lookups for
// rendering a file's own dependency list.
type Store interface {
	activation.Store
	OutgoingEdges(ctx context.Context, nodeID string) ([]graph.Edge, error)
}

// TOONResult is query_artifact's return value (spec §4.13).
type TOONResult struct {
	FilesParsed       int
	DependenciesFound int
	DurationMs        int64
	TokensEstimated   int
	ToonFormat        string
}

// Options parameterizes query_artifact the way the CLI's `context --depth
// --threshold` flags do. Zero values fall back to the spec defaults.
type Options struct {
	MaxDepth        int
	EnergyThreshold float64
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = defaultMaxDepth
	}
	if o.EnergyThreshold <= 0 {
		o.EnergyThreshold = defaultEnergyThreshold
	}
	return o
}

// QueryArtifact implements query_artifact(artifact_id, include_dependencies,
// max_depth): bloom pre-check, bounded spread, TOON serialization.
func QueryArtifact(ctx context.Context, filter *bloomfilter.Filter, store Store, artifactID string, includeDependencies bool, opts Options) (*TOONResult, error) {
	start := time.Now()
	opts = opts.withDefaults()

	if filter != nil && !filter.Contains(artifactID) {
		return notFound(start), nil
	}

	seed, err := store.GetNode(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		return notFound(start), nil
	}

	results, err := activation.Spread(ctx, store, artifactID, opts.MaxDepth, opts.EnergyThreshold, defaultDecayFactor)
	if err != nil {
		return nil, err
	}
	bundle, err := activation.BuildContextBundle(ctx, store, results)
	if err != nil {
		return nil, err
	}

	artifacts := bundle.TopologicalNeighbors
	if !containsNode(artifacts, seed.ID) {
		artifacts = append([]graph.Node{*seed}, artifacts...)
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return pathOf(artifacts[i]) < pathOf(artifacts[j])
	})

	root := toon.NewMap()
	depsFound := 0
	for _, n := range artifacts {
		entry, deps := buildArtifactEntry(ctx, store, n, includeDependencies)
		depsFound += deps
		root.Set(pathOf(n), entry)
	}
	if len(bundle.Invariants) > 0 {
		root.Set("invariants", invariantList(bundle.Invariants))
	}
	if len(bundle.ActiveConcepts) > 0 {
		root.Set("active_concepts", conceptList(bundle.ActiveConcepts))
	}
	if len(bundle.RelevantDecisions) > 0 {
		root.Set("relevant_decisions", decisionList(bundle.RelevantDecisions))
	}

	toonStr, err := toon.Marshal(root)
	if err != nil {
		return nil, err
	}

	return &TOONResult{
		FilesParsed:       len(artifacts),
		DependenciesFound: depsFound,
		DurationMs:        time.Since(start).Milliseconds(),
		TokensEstimated:   toon.EstimateTokens(toonStr),
		ToonFormat:        toonStr,
	}, nil
}

func notFound(start time.Time) *TOONResult {
	doc := toon.NewMap()
	doc.Set("status", "not_found")
	s, _ := toon.Marshal(doc)
	return &TOONResult{
		DurationMs:      time.Since(start).Milliseconds(),
		TokensEstimated: toon.EstimateTokens(s),
		ToonFormat:      s,
	}
}

func containsNode(nodes []graph.Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func pathOf(n graph.Node) string {
	path, _ := n.Props["path"].(string)
	if path == "" {
		return n.ID
	}
	return path
}

// buildArtifactEntry renders one Artifact's TOON section: language,
// imports (from DEPENDS_ON edges, if requested), exports, functions, and
// classes (from the symbol summary persisted at ingest time). Function and
// class entries are name-only — no call-graph or base-class tracking is
// in scope, so the wire format's "calls"/"methods" name lists are omitted
// in favor of the data actually available.
func buildArtifactEntry(ctx context.Context, store Store, n graph.Node, includeDependencies bool) (*toon.Map, int) {
	m := toon.NewMap()
	lang, _ := n.Props["language"].(string)
	m.Set("language", lang)

	depsFound := 0
	if includeDependencies {
		imports := toon.List{}
		edges, err := store.OutgoingEdges(ctx, n.ID)
		if err == nil {
			for _, e := range edges {
				if e.Type != graph.EdgeDependsOn {
					continue
				}
				dst, err := store.GetNode(ctx, e.Dst)
				if err != nil || dst == nil {
					continue
				}
				imports = append(imports, pathOf(*dst))
				depsFound++
			}
		}
		m.Set("imports", imports)
	}

	functions, classes, exports := symbolSections(n)
	m.Set("exports", exports)
	m.Set("functions", functions)
	m.Set("classes", classes)
	return m, depsFound
}

func symbolSections(n graph.Node) (functions, classes, exports toon.List) {
	raw, _ := n.Props["symbols"].([]any)
	for _, item := range raw {
		sym, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := sym["name"].(string)
		kind, _ := sym["kind"].(string)
		exported, _ := sym["exported"].(bool)
		if exported {
			exports = append(exports, name)
		}
		switch kind {
		case "function", "method":
			functions = append(functions, toon.NewMap().Set(toon.SummaryKey, name+"()"))
		case "class":
			classes = append(classes, toon.NewMap().Set(toon.SummaryKey, name))
		}
	}
	return functions, classes, exports
}

func invariantList(nodes []graph.Node) toon.List {
	out := toon.List{}
	for _, n := range nodes {
		rule, _ := n.Props["rule"].(string)
		severity, _ := n.Props["severity"].(string)
		out = append(out, toon.NewMap().Set(toon.SummaryKey, rule).Set("severity", severity))
	}
	return out
}

func conceptList(nodes []graph.Node) toon.List {
	out := toon.List{}
	for _, n := range nodes {
		name, _ := n.Props["name"].(string)
		out = append(out, name)
	}
	return out
}

func decisionList(nodes []graph.Node) toon.List {
	out := toon.List{}
	for _, n := range nodes {
		title, _ := n.Props["title"].(string)
		if title == "" {
			title = n.ID
		}
		out = append(out, title)
	}
	return out
}

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

// Package activation implements bounded weighted spreading activation
// (spec §4.10) and the ContextBundle it feeds (graph traversal style
// grounded in the teacher's pkg/tools/trace.go).
package activation

import (
	"context"
	"sort"
	"time"

	"github.com/kraklabs/palace/pkg/graph"
)

// TransmissionFactor is F[type] from spec §4.10.
var TransmissionFactor = map[graph.EdgeType]float64{
	graph.EdgeConstrains: 1.0,
	graph.EdgeEvokes:     0.9,
	graph.EdgeDependsOn:  0.7,
	graph.EdgePrecedes:   0.6,
	graph.EdgeRelatedTo:  0.5,
}

// Result is one node's position in a spread's output.
type Result struct {
	NodeID string
	Energy float64
}

// Store is the subset of graph.Store that spreading activation needs.
type Store interface {
	GetNode(ctx context.Context, id string) (*graph.Node, error)
	OutgoingEdges(ctx context.Context, nodeID string) ([]graph.Edge, error)
	IncomingEdges(ctx context.Context, nodeID string) ([]graph.Edge, error)
	TouchEdgeActivation(ctx context.Context, edgeID string, when time.Time) error
}

type queueItem struct {
	id     string
	energy float64
	depth  int
}

// Spread performs the bounded weighted BFS of spec §4.10 from seedID.
// A seed not present in the graph yields an empty result, not an error.
func Spread(ctx context.Context, store Store, seedID string, maxDepth int, energyThreshold, decayFactor float64) ([]Result, error) {
	seed, err := store.GetNode(ctx, seedID)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, nil
	}

	visited := make(map[string]bool)
	energies := make(map[string]float64)
	queue := []queueItem{{id: seedID, energy: 1.0, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if visited[item.id] {
			continue
		}
		visited[item.id] = true
		if item.energy >= energyThreshold {
			energies[item.id] = item.energy
		}
		if item.depth == maxDepth {
			continue
		}

		edges, err := store.OutgoingEdges(ctx, item.id)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if visited[e.Dst] {
				continue
			}
			factor := TransmissionFactor[e.Type]
			transmitted := item.energy * e.Weight * decayFactor * factor
			if transmitted >= energyThreshold {
				queue = append(queue, queueItem{id: e.Dst, energy: transmitted, depth: item.depth + 1})
				_ = store.TouchEdgeActivation(ctx, e.ID, time.Now())
			}
		}

		// CONSTRAINS points Invariant -> Artifact (spec §4.1), but an
		// artifact should still feel the invariants that constrain it when
		// spread is seeded at the artifact. Walk CONSTRAINS backward too.
		incoming, err := store.IncomingEdges(ctx, item.id)
		if err != nil {
			return nil, err
		}
		for _, e := range incoming {
			if e.Type != graph.EdgeConstrains || visited[e.Src] {
				continue
			}
			factor := TransmissionFactor[e.Type]
			transmitted := item.energy * e.Weight * decayFactor * factor
			if transmitted >= energyThreshold {
				queue = append(queue, queueItem{id: e.Src, energy: transmitted, depth: item.depth + 1})
				_ = store.TouchEdgeActivation(ctx, e.ID, time.Now())
			}
		}
	}

	results := make([]Result, 0, len(energies))
	for id, energy := range energies {
		results = append(results, Result{NodeID: id, Energy: energy})
	}
	// Deterministic tie-break: sort by (-energy, id), spec §4.10.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Energy != results[j].Energy {
			return results[i].Energy > results[j].Energy
		}
		return results[i].NodeID < results[j].NodeID
	})
	return results, nil
}

// ContextBundle partitions a spread result by node kind and computes the
// aggregate total_activation / risk_score (spec §4.10).
type ContextBundle struct {
	Invariants          []graph.Node
	ActiveConcepts      []graph.Node
	RelevantDecisions   []graph.Node
	TopologicalNeighbors []graph.Node
	TotalActivation     float64
	RiskScore           float64
}

// BuildContextBundle fetches each activated node and partitions it by kind.
func BuildContextBundle(ctx context.Context, store Store, results []Result) (*ContextBundle, error) {
	bundle := &ContextBundle{}
	var maxSeverity float64
	criticalCount := 0

	for _, r := range results {
		bundle.TotalActivation += r.Energy
		n, err := store.GetNode(ctx, r.NodeID)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		switch n.Kind {
		case graph.KindInvariant:
			bundle.Invariants = append(bundle.Invariants, *n)
			sevStr, _ := n.Props["severity"].(string)
			sev := graph.Severity(sevStr)
			if w := graph.SeverityWeight(sev); w > maxSeverity {
				maxSeverity = w
			}
			if sev == graph.SeverityCritical {
				criticalCount++
			}
		case graph.KindConcept:
			bundle.ActiveConcepts = append(bundle.ActiveConcepts, *n)
		case graph.KindDecision:
			bundle.RelevantDecisions = append(bundle.RelevantDecisions, *n)
		case graph.KindArtifact:
			bundle.TopologicalNeighbors = append(bundle.TopologicalNeighbors, *n)
		}
	}

	risk := maxSeverity + 0.05*float64(criticalCount)
	if risk > 1.0 {
		risk = 1.0
	}
	bundle.RiskScore = risk
	return bundle, nil
}

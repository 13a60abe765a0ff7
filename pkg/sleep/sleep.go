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

// Package sleep implements the maintenance cycle (spec §4.12): decay, prune,
// consolidation and community detection, run in that fixed order. Every
// phase operates on the graph store directly; callers must invalidate any
// plasticity edge-weight cache after a cycle runs (see
// plasticity.Engine.ClearEdgeCache).
package sleep

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/palace/pkg/graph"
	"github.com/kraklabs/palace/pkg/plasticity"
)

// Options configures a sleep cycle. Zero-value LambdaDecay/PruneThreshold
// fall back to the spec's documented defaults.
type Options struct {
	LambdaDecay        float64
	PruneThreshold     float64
	Consolidate        bool
	DetectCommunities  bool
	ConsolidationHours int
	// Now pins the cycle's notion of "current time"; tests set this
	// explicitly. A zero value means time.Now().
	Now time.Time
}

const (
	defaultLambdaDecay    = 0.05
	defaultPruneThreshold = 0.1
	defaultConsolidationHours = 24
	evokesConsolidationMinWeight = 0.5
	consolidationLearningRate    = 0.1
)

func (o Options) withDefaults() Options {
	if o.LambdaDecay == 0 {
		o.LambdaDecay = defaultLambdaDecay
	}
	if o.PruneThreshold == 0 {
		o.PruneThreshold = defaultPruneThreshold
	}
	if o.ConsolidationHours == 0 {
		o.ConsolidationHours = defaultConsolidationHours
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// Report summarizes one sleep cycle's effect on the graph.
type Report struct {
	RunID                string
	Nodes                int
	Edges                int
	EdgesDecayed         int
	EdgesPruned          int
	PairsReinforced      int
	CommunitiesDetected  int
	DurationMs           int64
}

// Engine runs sleep cycles against a graph store, reusing a plasticity
// engine for the consolidation phase's reinforcement calls.
type Engine struct {
	store      *graph.Store
	plasticity *plasticity.Engine
}

// New returns a sleep Engine over store.
func New(store *graph.Store) *Engine {
	return &Engine{store: store, plasticity: plasticity.New(store)}
}

// Run executes decay -> prune -> consolidate -> detect_communities, in that
// fixed order (spec §4.12), and returns a Report. Every phase is
// independently idempotent except the exponential decay, which keeps
// contracting weights on repeated cycles by design.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	started := time.Now()
	runID := uuid.New().String()
	opts = opts.withDefaults()

	edgesBefore, err := e.store.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("sleep: list edges: %w", err)
	}

	if err := e.store.DecayAllEdges(ctx, opts.LambdaDecay, opts.Now); err != nil {
		return nil, fmt.Errorf("sleep: decay: %w", err)
	}

	pruned, err := e.store.PruneEdgesBelow(ctx, opts.PruneThreshold)
	if err != nil {
		return nil, fmt.Errorf("sleep: prune: %w", err)
	}

	pairsReinforced := 0
	if opts.Consolidate {
		pairsReinforced, err = e.consolidate(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("sleep: consolidate: %w", err)
		}
	}

	communities := 0
	if opts.DetectCommunities {
		communities, err = e.detectCommunities(ctx)
		if err != nil {
			return nil, fmt.Errorf("sleep: detect communities: %w", err)
		}
	}

	e.plasticity.ClearEdgeCache()

	nodeCounts, err := e.store.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("sleep: count: %w", err)
	}
	totalNodes := 0
	for _, n := range nodeCounts.NodesByKind {
		totalNodes += n
	}
	totalEdges := 0
	for _, n := range nodeCounts.EdgesByType {
		totalEdges += n
	}

	return &Report{
		RunID:               runID,
		Nodes:               totalNodes,
		Edges:               totalEdges,
		EdgesDecayed:        len(edgesBefore),
		EdgesPruned:         int(pruned),
		PairsReinforced:     pairsReinforced,
		CommunitiesDetected: communities,
		DurationMs:          time.Since(started).Milliseconds(),
	}, nil
}

// consolidate gathers concepts co-activated via a strong, recent EVOKES
// edge and reinforces their RELATED_TO weight (spec §4.12 phase 3).
func (e *Engine) consolidate(ctx context.Context, opts Options) (int, error) {
	evokes, err := e.store.EdgesByType(ctx, graph.EdgeEvokes)
	if err != nil {
		return 0, err
	}

	window := time.Duration(opts.ConsolidationHours) * time.Hour
	seen := make(map[string]bool)
	var coactivated []string
	for _, ed := range evokes {
		if ed.Weight < evokesConsolidationMinWeight {
			continue
		}
		if ed.LastActivated == nil || opts.Now.Sub(*ed.LastActivated) > window {
			continue
		}
		if !seen[ed.Dst] {
			seen[ed.Dst] = true
			coactivated = append(coactivated, ed.Dst)
		}
	}
	if len(coactivated) < 2 {
		return 0, nil
	}
	return e.plasticity.ReinforceCoactivation(ctx, coactivated, consolidationLearningRate)
}

// detectCommunities runs label propagation over the undirected RELATED_TO
// subgraph and materializes an Anchor node plus MEMBER_OF edges for every
// component of size >= 2 (spec §4.12 phase 4). Pre-existing Anchors for the
// same concept set are updated in place, never duplicated.
func (e *Engine) detectCommunities(ctx context.Context) (int, error) {
	edges, err := e.store.EdgesByType(ctx, graph.EdgeRelatedTo)
	if err != nil {
		return 0, err
	}
	if len(edges) == 0 {
		return 0, nil
	}

	adjacency := make(map[string]map[string]float64)
	addEdge := func(a, b string, w float64) {
		if adjacency[a] == nil {
			adjacency[a] = make(map[string]float64)
		}
		adjacency[a][b] += w
	}
	for _, ed := range edges {
		addEdge(ed.Src, ed.Dst, ed.Weight)
		addEdge(ed.Dst, ed.Src, ed.Weight)
	}

	nodeIDs := make([]string, 0, len(adjacency))
	for id := range adjacency {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	labels := labelPropagation(nodeIDs, adjacency)

	byLabel := make(map[string][]string)
	for _, id := range nodeIDs {
		l := labels[id]
		byLabel[l] = append(byLabel[l], id)
	}

	labelKeys := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labelKeys = append(labelKeys, l)
	}
	sort.Strings(labelKeys)

	communities := 0
	for _, l := range labelKeys {
		members := byLabel[l]
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		if err := e.materializeAnchor(ctx, members); err != nil {
			return communities, err
		}
		communities++
	}
	return communities, nil
}

// labelPropagation runs asynchronous label propagation to convergence (or a
// bounded iteration count for graphs with oscillating ties). Each node
// starts with its own id as its label; every round, nodes are visited in
// sorted order and labels are updated in place, so a node adopts the
// weighted-majority label among its neighbors, breaking ties by the
// lexicographically smallest label for determinism.
func labelPropagation(nodeIDs []string, adjacency map[string]map[string]float64) map[string]string {
	labels := make(map[string]string, len(nodeIDs))
	for _, id := range nodeIDs {
		labels[id] = id
	}

	const maxIterations = 100
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, id := range nodeIDs {
			neighbors := adjacency[id]
			if len(neighbors) == 0 {
				continue
			}

			scores := make(map[string]float64)
			for nb, w := range neighbors {
				scores[labels[nb]] += w
			}

			best := labels[id]
			bestScore := -1.0
			candidates := make([]string, 0, len(scores))
			for l := range scores {
				candidates = append(candidates, l)
			}
			sort.Strings(candidates)
			for _, l := range candidates {
				if scores[l] > bestScore {
					bestScore = scores[l]
					best = l
				}
			}

			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return labels
}

// materializeAnchor creates or updates the Anchor node for a community of
// concept ids, plus MEMBER_OF edges from each concept to it.
func (e *Engine) materializeAnchor(ctx context.Context, members []string) error {
	anchorID := anchorIDFor(members)

	existing, err := e.store.GetNode(ctx, anchorID)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := e.store.CreateNode(ctx, anchorID, graph.KindAnchor, map[string]any{
			"description":  fmt.Sprintf("community of %d concepts", len(members)),
			"member_count": float64(len(members)),
		}); err != nil {
			return err
		}
	}

	for _, m := range members {
		edgeID := fmt.Sprintf("edge:%s:%s:member_of", m, anchorID)
		if err := e.store.CreateEdge(ctx, edgeID, m, anchorID, graph.EdgeMemberOf, 1.0, nil); err != nil {
			return err
		}
	}
	return nil
}

// anchorIDFor derives a stable id for a community from its sorted member
// set, so repeated sleep cycles over the same community update the same
// Anchor node instead of duplicating it.
func anchorIDFor(sortedMembers []string) string {
	h := sha256.Sum256([]byte(strings.Join(sortedMembers, "|")))
	return "anchor:" + hex.EncodeToString(h[:8])
}

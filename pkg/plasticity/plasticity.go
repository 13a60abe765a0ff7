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

// Package plasticity implements the Hebbian online-learning engine (spec
// §4.11): reinforce_coactivation, punish_mistake, and a memoized
// get_edge_weight. It is stateless apart from its store handle and LRU
// cache, per the "neurons that fire together, wire together" design note
// (spec §9) — no shared mutable graph object, just data operations over the
// edge table.
package plasticity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kraklabs/palace/pkg/graph"
)

// DefaultPruneThreshold mirrors the sleep engine's default (spec §4.12).
// PunishMistake does not read it; it prunes against its pruneThreshold argument.
const DefaultPruneThreshold = 0.1

// Engine is the plasticity engine. Construct one per store; it is safe for
// concurrent use.
type Engine struct {
	store *graph.Store
	cache *lru.Cache[string, float64]
}

// New returns a plasticity Engine backed by store, with a 2048-entry
// memoized edge-weight cache (spec §4.11).
func New(store *graph.Store) *Engine {
	cache, _ := lru.New[string, float64](2048)
	return &Engine{store: store, cache: cache}
}

// ReinforceCoactivation strengthens RELATED_TO edges between every pair in
// nodeSet, creating them at weight=rate if absent. Enumeration is
// deterministic: pairs are sorted, and edge direction is always
// (min_id -> max_id).
func (e *Engine) ReinforceCoactivation(ctx context.Context, nodeSet []string, rate float64) (int, error) {
	ids := append([]string(nil), nodeSet...)
	sort.Strings(ids)
	ids = dedup(ids)

	pairsTouched := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			touched, err := e.reinforcePair(ctx, a, b, rate)
			if err != nil {
				return pairsTouched, err
			}
			if touched {
				pairsTouched++
			}
		}
	}
	return pairsTouched, nil
}

func (e *Engine) reinforcePair(ctx context.Context, a, b string, rate float64) (bool, error) {
	nodeA, err := e.store.GetNode(ctx, a)
	if err != nil {
		return false, err
	}
	nodeB, err := e.store.GetNode(ctx, b)
	if err != nil {
		return false, err
	}
	if nodeA == nil || nodeB == nil {
		return false, nil // missing node silently skips the pair, per spec §4.11
	}

	existing, err := e.store.EdgeBetween(ctx, a, b, graph.EdgeRelatedTo)
	if err != nil {
		return false, err
	}
	if existing == nil {
		existing, err = e.store.EdgeBetween(ctx, b, a, graph.EdgeRelatedTo)
		if err != nil {
			return false, err
		}
	}

	if existing != nil {
		newWeight := existing.Weight + rate
		if newWeight > 1.0 {
			newWeight = 1.0
		}
		if err := e.store.UpdateEdgeWeight(ctx, existing.ID, newWeight); err != nil {
			return false, err
		}
	} else {
		id := fmt.Sprintf("edge:%s:%s:related_to", a, b)
		if err := e.store.CreateEdge(ctx, id, a, b, graph.EdgeRelatedTo, rate, nil); err != nil {
			return false, err
		}
	}
	e.invalidate(a, b)
	return true, nil
}

// PunishMistake weakens the RELATED_TO edge between a and b, deleting it if
// the result crosses pruneThreshold. Non-existent endpoints are a no-op.
func (e *Engine) PunishMistake(ctx context.Context, a, b string, penalty, pruneThreshold float64) error {
	edge, err := e.store.EdgeBetween(ctx, a, b, graph.EdgeRelatedTo)
	if err != nil {
		return err
	}
	if edge == nil {
		edge, err = e.store.EdgeBetween(ctx, b, a, graph.EdgeRelatedTo)
		if err != nil {
			return err
		}
	}
	if edge == nil {
		return nil
	}

	newWeight := edge.Weight - penalty
	if newWeight < 0 {
		newWeight = 0
	}
	e.invalidate(a, b)
	if newWeight < pruneThreshold {
		return e.store.DeleteEdge(ctx, edge.ID)
	}
	return e.store.UpdateEdgeWeight(ctx, edge.ID, newWeight)
}

// GetEdgeWeight returns the current weight of the edge between a and b
// (either direction), memoized via LRU. Returns 0, false if no such edge.
func (e *Engine) GetEdgeWeight(ctx context.Context, a, b string, edgeType graph.EdgeType) (float64, bool, error) {
	key := cacheKey(a, b, edgeType)
	if w, ok := e.cache.Get(key); ok {
		return w, true, nil
	}

	edge, err := e.store.EdgeBetween(ctx, a, b, edgeType)
	if err != nil {
		return 0, false, err
	}
	if edge == nil {
		edge, err = e.store.EdgeBetween(ctx, b, a, edgeType)
		if err != nil {
			return 0, false, err
		}
	}
	if edge == nil {
		return 0, false, nil
	}
	e.cache.Add(key, edge.Weight)
	return edge.Weight, true, nil
}

// ClearEdgeCache invalidates every memoized edge weight. Callers must
// invoke this after any write that bypasses this engine, most notably after
// a sleep cycle's decay/prune phases (spec §5, §9).
func (e *Engine) ClearEdgeCache() {
	e.cache.Purge()
}

func (e *Engine) invalidate(a, b string) {
	for _, t := range []graph.EdgeType{graph.EdgeRelatedTo} {
		e.cache.Remove(cacheKey(a, b, t))
	}
}

func cacheKey(a, b string, t graph.EdgeType) string {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	h := sha256.Sum256([]byte(lo + "|" + hi + "|" + string(t)))
	return hex.EncodeToString(h[:])
}

func dedup(sorted []string) []string {
	out := sorted[:0:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

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

package activation_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kraklabs/palace/pkg/activation"
	"github.com/kraklabs/palace/pkg/graph"
)

// TestMain verifies spreading-activation BFS leaves nothing running behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// buildMicroGraph constructs the spec §8 S4 micro-graph:
// L --EVOKES w=0.9--> C1 --RELATED_TO w=0.8--> C3
// L --EVOKES w=0.5--> C2
func buildMicroGraph(t *testing.T) *graph.Store {
	t.Helper()
	s, err := graph.Open(graph.Config{Path: filepath.Join(t.TempDir(), "brain.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "L", graph.KindArtifact, map[string]any{"path": "l.py"}))
	require.NoError(t, s.CreateNode(ctx, "C1", graph.KindConcept, map[string]any{"name": "c1"}))
	require.NoError(t, s.CreateNode(ctx, "C2", graph.KindConcept, map[string]any{"name": "c2"}))
	require.NoError(t, s.CreateNode(ctx, "C3", graph.KindConcept, map[string]any{"name": "c3"}))

	require.NoError(t, s.CreateEdge(ctx, "e1", "L", "C1", graph.EdgeEvokes, 0.9, nil))
	require.NoError(t, s.CreateEdge(ctx, "e2", "L", "C2", graph.EdgeEvokes, 0.5, nil))
	require.NoError(t, s.CreateEdge(ctx, "e3", "C1", "C3", graph.EdgeRelatedTo, 0.8, nil))
	return s
}

func TestSpreadS4MicroGraph(t *testing.T) {
	s := buildMicroGraph(t)
	ctx := context.Background()

	results, err := activation.Spread(ctx, s, "L", 2, 0.2, 0.8)
	require.NoError(t, err)

	byID := make(map[string]float64, len(results))
	for _, r := range results {
		byID[r.NodeID] = r.Energy
	}

	require.Contains(t, byID, "L")
	assert.InDelta(t, 1.0, byID["L"], 1e-9)

	require.Contains(t, byID, "C1")
	assert.InDelta(t, 0.648, byID["C1"], 1e-9)

	require.Contains(t, byID, "C2")
	assert.InDelta(t, 0.360, byID["C2"], 1e-9)

	require.Contains(t, byID, "C3")
	assert.InDelta(t, 0.2073, byID["C3"], 1e-3)
}

func TestSpreadMaxDepthExcludesDeeperNodes(t *testing.T) {
	s := buildMicroGraph(t)
	ctx := context.Background()

	results, err := activation.Spread(ctx, s, "L", 1, 0.2, 0.8)
	require.NoError(t, err)

	for _, r := range results {
		assert.NotEqual(t, "C3", r.NodeID)
	}
}

func TestSpreadSeedNotFoundReturnsEmpty(t *testing.T) {
	s := buildMicroGraph(t)
	results, err := activation.Spread(context.Background(), s, "does-not-exist", 2, 0.2, 0.8)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSpreadMonotonicityLoweringThreshold(t *testing.T) {
	s := buildMicroGraph(t)
	ctx := context.Background()

	loose, err := activation.Spread(ctx, s, "L", 2, 0.1, 0.8)
	require.NoError(t, err)
	strict, err := activation.Spread(ctx, s, "L", 2, 0.5, 0.8)
	require.NoError(t, err)

	looseIDs := make(map[string]bool)
	for _, r := range loose {
		looseIDs[r.NodeID] = true
	}
	for _, r := range strict {
		assert.True(t, looseIDs[r.NodeID], "lowering threshold must never remove a node")
	}
}

func TestBuildContextBundleRiskScore(t *testing.T) {
	s, err := graph.Open(graph.Config{Path: filepath.Join(t.TempDir(), "brain.db")})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "a.py"}))
	require.NoError(t, s.CreateNode(ctx, "inv:1", graph.KindInvariant, map[string]any{
		"rule": "hardcoded_secrets", "severity": string(graph.SeverityCritical),
	}))
	require.NoError(t, s.CreateEdge(ctx, "e1", "inv:1", "art:a", graph.EdgeConstrains, 1.0, nil))

	results, err := activation.Spread(ctx, s, "inv:1", 2, 0.2, 0.8)
	require.NoError(t, err)
	bundle, err := activation.BuildContextBundle(ctx, s, results)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, bundle.RiskScore, 1.0)
	require.Len(t, bundle.Invariants, 1)
	require.Len(t, bundle.TopologicalNeighbors, 1)
}

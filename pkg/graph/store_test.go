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

package graph_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/palace/pkg/graph"
)

func openTestStore(t *testing.T) *graph.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := graph.Open(graph.Config{Path: filepath.Join(dir, "brain.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateNodeIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	props := map[string]any{"path": "a.py", "language": "python"}
	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, props))
	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, props))

	n, err := s.GetNode(ctx, "art:a")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "a.py", n.Props["path"])
}

func TestCreateNodeConflictingPropertiesIsSchemaError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "a.py"}))
	err := s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "b.py"})
	require.Error(t, err)
	var schemaErr *graph.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestCreateNodeUnknownKind(t *testing.T) {
	s := openTestStore(t)
	err := s.CreateNode(context.Background(), "x:1", graph.NodeKind("Bogus"), nil)
	require.Error(t, err)
	var schemaErr *graph.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestCreateEdgeMissingEndpointIsIntegrityError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "a.py"}))

	err := s.CreateEdge(ctx, "e1", "art:a", "art:missing", graph.EdgeDependsOn, 0.9, nil)
	require.Error(t, err)
	var integrityErr *graph.IntegrityError
	assert.ErrorAs(t, err, &integrityErr)
}

func TestCreateEdgeClampsWeight(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "a.py"}))
	require.NoError(t, s.CreateNode(ctx, "art:b", graph.KindArtifact, map[string]any{"path": "b.py"}))

	require.NoError(t, s.CreateEdge(ctx, "e1", "art:a", "art:b", graph.EdgeDependsOn, 1.7, nil))
	e, err := s.EdgeBetween(ctx, "art:a", "art:b", graph.EdgeDependsOn)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1.0, e.Weight)
}

func TestBatchCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	nodes := []graph.Node{
		{ID: "art:a", Kind: graph.KindArtifact, Props: map[string]any{"path": "a.py"}},
		{ID: "art:b", Kind: graph.KindArtifact, Props: map[string]any{"path": "b.py"}},
	}
	require.NoError(t, s.CreateNodesBatch(ctx, nodes))

	edges := []graph.Edge{
		{ID: "e1", Src: "art:a", Dst: "art:b", Type: graph.EdgeDependsOn, Weight: 0.5},
	}
	require.NoError(t, s.CreateEdgesBatch(ctx, edges))

	out, err := s.OutgoingEdges(ctx, "art:a")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "art:b", out[0].Dst)
}

func TestTouchEdgeActivationPersists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "a.py"}))
	require.NoError(t, s.CreateNode(ctx, "art:b", graph.KindArtifact, map[string]any{"path": "b.py"}))
	require.NoError(t, s.CreateEdge(ctx, "e1", "art:a", "art:b", graph.EdgeDependsOn, 0.5, nil))

	e, err := s.EdgeBetween(ctx, "art:a", "art:b", graph.EdgeDependsOn)
	require.NoError(t, err)
	assert.Nil(t, e.LastActivated)

	now := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.TouchEdgeActivation(ctx, "e1", now))

	e, err = s.EdgeBetween(ctx, "art:a", "art:b", graph.EdgeDependsOn)
	require.NoError(t, err)
	require.NotNil(t, e.LastActivated)
	assert.True(t, e.LastActivated.Equal(now))
}

func TestDecayAllEdgesReducesWeight(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "a.py"}))
	require.NoError(t, s.CreateNode(ctx, "art:b", graph.KindArtifact, map[string]any{"path": "b.py"}))
	require.NoError(t, s.CreateEdge(ctx, "e1", "art:a", "art:b", graph.EdgeDependsOn, 1.0, nil))

	e, err := s.EdgeBetween(ctx, "art:a", "art:b", graph.EdgeDependsOn)
	require.NoError(t, err)
	past := e.CreatedAt.Add(-10 * 24 * time.Hour)
	require.NoError(t, s.TouchEdgeActivation(ctx, "e1", past))

	require.NoError(t, s.DecayAllEdges(ctx, 0.05, e.CreatedAt))

	e, err = s.EdgeBetween(ctx, "art:a", "art:b", graph.EdgeDependsOn)
	require.NoError(t, err)
	assert.Less(t, e.Weight, 1.0)
}

func TestPruneEdgesBelowDeletesWeakEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "a.py"}))
	require.NoError(t, s.CreateNode(ctx, "art:b", graph.KindArtifact, map[string]any{"path": "b.py"}))
	require.NoError(t, s.CreateEdge(ctx, "e1", "art:a", "art:b", graph.EdgeDependsOn, 0.05, nil))

	n, err := s.PruneEdgesBelow(ctx, 0.1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	e, err := s.EdgeBetween(ctx, "art:a", "art:b", graph.EdgeDependsOn)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestCountAllGroupsByKindAndType(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "a.py"}))
	require.NoError(t, s.CreateNode(ctx, "art:b", graph.KindArtifact, map[string]any{"path": "b.py"}))
	require.NoError(t, s.CreateEdge(ctx, "e1", "art:a", "art:b", graph.EdgeDependsOn, 0.5, nil))

	counts, err := s.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.NodesByKind[graph.KindArtifact])
	assert.Equal(t, 1, counts.EdgesByType[graph.EdgeDependsOn])
}

func TestQueryCacheClearedOnMutation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "art:a", graph.KindArtifact, map[string]any{"path": "a.py"}))

	res, err := s.Query(ctx, `SELECT count(*) FROM nodes`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	require.NoError(t, s.CreateNode(ctx, "art:b", graph.KindArtifact, map[string]any{"path": "b.py"}))
	res2, err := s.Query(ctx, `SELECT count(*) FROM nodes`)
	require.NoError(t, err)
	assert.NotEqual(t, res.Rows[0][0], res2.Rows[0][0])
}

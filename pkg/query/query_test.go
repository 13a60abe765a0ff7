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

package query_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/palace/pkg/activation"
	"github.com/kraklabs/palace/pkg/bloomfilter"
	"github.com/kraklabs/palace/pkg/graph"
	"github.com/kraklabs/palace/pkg/query"
)

func buildQueryGraph(t *testing.T) *graph.Store {
	t.Helper()
	s, err := graph.Open(graph.Config{Path: filepath.Join(t.TempDir(), "brain.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "art:main.py", graph.KindArtifact, map[string]any{
		"path":     "main.py",
		"language": "python",
		"symbols": []map[string]any{
			{"name": "run", "kind": "function", "method_count": 0, "exported": true},
			{"name": "_helper", "kind": "function", "method_count": 0, "exported": false},
		},
	}))
	require.NoError(t, s.CreateNode(ctx, "art:helper.py", graph.KindArtifact, map[string]any{
		"path":     "helper.py",
		"language": "python",
	}))
	require.NoError(t, s.CreateNode(ctx, "concept:run", graph.KindConcept, map[string]any{"name": "run"}))
	require.NoError(t, s.CreateNode(ctx, "inv:secret", graph.KindInvariant, map[string]any{"rule": "hardcoded_secrets", "severity": "CRITICAL"}))

	require.NoError(t, s.CreateEdge(ctx, "e1", "art:main.py", "art:helper.py", graph.EdgeDependsOn, 1.0, nil))
	require.NoError(t, s.CreateEdge(ctx, "e2", "art:main.py", "concept:run", graph.EdgeEvokes, 0.9, nil))
	require.NoError(t, s.CreateEdge(ctx, "e3", "inv:secret", "art:main.py", graph.EdgeConstrains, 1.0, nil))
	return s
}

func TestQueryArtifactBloomMissReturnsNotFound(t *testing.T) {
	s := buildQueryGraph(t)
	filter := bloomfilter.New(100, 0.01)

	res, err := query.QueryArtifact(context.Background(), filter, s, "art:main.py", true, query.Options{MaxDepth: 2})
	require.NoError(t, err)
	assert.Contains(t, res.ToonFormat, "not_found")
	assert.Equal(t, 0, res.FilesParsed)
}

func TestQueryArtifactRendersTOONWithImportsAndFunctions(t *testing.T) {
	s := buildQueryGraph(t)
	filter := bloomfilter.New(100, 0.01)
	filter.Add("art:main.py")

	res, err := query.QueryArtifact(context.Background(), filter, s, "art:main.py", true, query.Options{MaxDepth: 2})
	require.NoError(t, err)
	assert.Contains(t, res.ToonFormat, "main.py:")
	assert.Contains(t, res.ToonFormat, "language: python")
	assert.Contains(t, res.ToonFormat, "helper.py")
	assert.Contains(t, res.ToonFormat, "run()")
	assert.NotContains(t, res.ToonFormat, "- _helper\n") // unexported symbol excluded from exports
	assert.Contains(t, res.ToonFormat, "invariants:")
	assert.Contains(t, res.ToonFormat, "hardcoded_secrets")
	assert.True(t, res.TokensEstimated > 0)
}

// TestQueryArtifactSurfacesOwnInvariants covers spec scenario S3: querying
// an artifact constrained by a CRITICAL invariant must surface that
// invariant even though CONSTRAINS points Invariant -> Artifact, not the
// other way around — activation.Spread walks that edge type backward too.
func TestQueryArtifactSurfacesOwnInvariants(t *testing.T) {
	s := buildQueryGraph(t)
	filter := bloomfilter.New(100, 0.01)
	filter.Add("art:main.py")

	results, err := activation.Spread(context.Background(), s, "art:main.py", 2, 0.2, 0.8)
	require.NoError(t, err)
	bundle, err := activation.BuildContextBundle(context.Background(), s, results)
	require.NoError(t, err)
	require.Len(t, bundle.Invariants, 1)
	assert.GreaterOrEqual(t, bundle.RiskScore, 1.0)
}

func TestQueryArtifactOmitsDependenciesWhenNotRequested(t *testing.T) {
	s := buildQueryGraph(t)
	filter := bloomfilter.New(100, 0.01)
	filter.Add("art:main.py")

	res, err := query.QueryArtifact(context.Background(), filter, s, "art:main.py", false, query.Options{MaxDepth: 2})
	require.NoError(t, err)
	lines := strings.Split(res.ToonFormat, "\n")
	for _, l := range lines {
		assert.NotContains(t, l, "imports:")
	}
}

func TestQueryArtifactUnknownSeedReturnsNotFound(t *testing.T) {
	s := buildQueryGraph(t)
	filter := bloomfilter.New(100, 0.01)
	filter.Add("art:ghost.py")

	res, err := query.QueryArtifact(context.Background(), filter, s, "art:ghost.py", true, query.Options{MaxDepth: 2})
	require.NoError(t, err)
	assert.Contains(t, res.ToonFormat, "not_found")
}

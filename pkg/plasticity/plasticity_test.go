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

package plasticity_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/palace/pkg/graph"
	"github.com/kraklabs/palace/pkg/plasticity"
)

func newEngine(t *testing.T) (*plasticity.Engine, *graph.Store) {
	t.Helper()
	s, err := graph.Open(graph.Config{Path: filepath.Join(t.TempDir(), "brain.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return plasticity.New(s), s
}

func TestReinforceCoactivationCreatesEdge(t *testing.T) {
	eng, s := newEngine(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "c1", graph.KindConcept, map[string]any{"name": "c1"}))
	require.NoError(t, s.CreateNode(ctx, "c2", graph.KindConcept, map[string]any{"name": "c2"}))

	touched, err := eng.ReinforceCoactivation(ctx, []string{"c2", "c1"}, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 1, touched)

	w, ok, err := eng.GetEdgeWeight(ctx, "c1", "c2", graph.EdgeRelatedTo)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.1, w, 1e-9)
}

func TestReinforceCoactivationSaturatesAtOne(t *testing.T) {
	eng, s := newEngine(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "c1", graph.KindConcept, map[string]any{"name": "c1"}))
	require.NoError(t, s.CreateNode(ctx, "c2", graph.KindConcept, map[string]any{"name": "c2"}))

	for i := 0; i < 20; i++ {
		_, err := eng.ReinforceCoactivation(ctx, []string{"c1", "c2"}, 0.3)
		require.NoError(t, err)
	}
	w, ok, err := eng.GetEdgeWeight(ctx, "c1", "c2", graph.EdgeRelatedTo)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, w)
}

func TestReinforceCoactivationSkipsMissingNode(t *testing.T) {
	eng, s := newEngine(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "c1", graph.KindConcept, map[string]any{"name": "c1"}))

	touched, err := eng.ReinforceCoactivation(ctx, []string{"c1", "does-not-exist"}, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0, touched)
}

func TestPunishMistakePrunesBelowThreshold(t *testing.T) {
	eng, s := newEngine(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "c1", graph.KindConcept, map[string]any{"name": "c1"}))
	require.NoError(t, s.CreateNode(ctx, "c2", graph.KindConcept, map[string]any{"name": "c2"}))
	require.NoError(t, s.CreateEdge(ctx, "e1", "c1", "c2", graph.EdgeRelatedTo, 0.25, nil))

	require.NoError(t, eng.PunishMistake(ctx, "c1", "c2", 0.2, 0.1))

	_, ok, err := eng.GetEdgeWeight(ctx, "c1", "c2", graph.EdgeRelatedTo)
	require.NoError(t, err)
	assert.False(t, ok, "pruned edge should no longer be found")
	edge, err := s.EdgeBetween(ctx, "c1", "c2", graph.EdgeRelatedTo)
	require.NoError(t, err)
	assert.Nil(t, edge, "edge should have been pruned below threshold")
}

func TestPunishMistakeNonExistentIsNoOp(t *testing.T) {
	eng, _ := newEngine(t)
	err := eng.PunishMistake(context.Background(), "ghost-a", "ghost-b", 0.2, 0.1)
	assert.NoError(t, err)
}

func TestGetEdgeWeightMemoizedUntilInvalidated(t *testing.T) {
	eng, s := newEngine(t)
	ctx := context.Background()
	require.NoError(t, s.CreateNode(ctx, "c1", graph.KindConcept, map[string]any{"name": "c1"}))
	require.NoError(t, s.CreateNode(ctx, "c2", graph.KindConcept, map[string]any{"name": "c2"}))
	require.NoError(t, s.CreateEdge(ctx, "e1", "c1", "c2", graph.EdgeRelatedTo, 0.4, nil))

	w1, ok, err := eng.GetEdgeWeight(ctx, "c1", "c2", graph.EdgeRelatedTo)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.4, w1)

	require.NoError(t, s.UpdateEdgeWeight(ctx, "e1", 0.9))
	eng.ClearEdgeCache()

	w2, ok, err := eng.GetEdgeWeight(ctx, "c1", "c2", graph.EdgeRelatedTo)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.9, w2)
}

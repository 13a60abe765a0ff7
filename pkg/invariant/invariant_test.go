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

package invariant_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/palace/internal/config"
	"github.com/kraklabs/palace/pkg/graph"
	"github.com/kraklabs/palace/pkg/invariant"
)

func boolPtr(b bool) *bool { return &b }

func TestHardcodedSecretsDetectsLiteralAssignment(t *testing.T) {
	r := invariant.NewRegistry(nil, slog.Default())
	content := "api_key = \"sk-abcdef1234567890\"\nx = 1\n"
	violations := r.Run("a.py", content, nil)

	var found bool
	for _, v := range violations {
		if v.Rule == "hardcoded_secrets" {
			found = true
			assert.Equal(t, 1, v.Line)
			assert.Equal(t, graph.SeverityCritical, v.Severity)
		}
	}
	assert.True(t, found)
}

func TestEvalUsageDetectsDynamicExecution(t *testing.T) {
	r := invariant.NewRegistry(nil, slog.Default())
	violations := r.Run("a.py", "eval(user_input)\n", nil)
	require.Len(t, violations, 1)
	assert.Equal(t, "eval_usage", violations[0].Rule)
}

func TestUnparameterizedSQLDetectsBareExecute(t *testing.T) {
	r := invariant.NewRegistry(nil, slog.Default())
	content := "cursor.execute(\"SELECT * FROM users\")\n"
	violations := r.Run("a.py", content, nil)
	require.Len(t, violations, 1)
	assert.Equal(t, "unparameterized_sql", violations[0].Rule)
}

func TestLongFunctionFlagsOverThreshold(t *testing.T) {
	r := invariant.NewRegistry(nil, slog.Default())
	symbols := []invariant.Symbol{
		{Name: "big", Kind: "function", StartLine: 1, EndLine: 80},
		{Name: "small", Kind: "function", StartLine: 90, EndLine: 95},
	}
	violations := r.Run("a.py", "", symbols)
	require.Len(t, violations, 1)
	assert.Equal(t, "long_function", violations[0].Rule)
	assert.Equal(t, 1, violations[0].Line)
}

func TestMissingTypeHintsOnlyFlagsExported(t *testing.T) {
	r := invariant.NewRegistry(nil, slog.Default())
	symbols := []invariant.Symbol{
		{Name: "Public", Kind: "function", IsExported: true, HasTypeHints: false},
		{Name: "private", Kind: "function", IsExported: false, HasTypeHints: false},
		{Name: "Typed", Kind: "function", IsExported: true, HasTypeHints: true},
	}
	violations := r.Run("a.py", "", symbols)
	require.Len(t, violations, 1)
	assert.Equal(t, "Public", extractName(violations[0].Message))
}

func extractName(msg string) string {
	// messages are "exported function <name> has no type annotations"
	const prefix = "exported function "
	if len(msg) > len(prefix) {
		rest := msg[len(prefix):]
		for i, c := range rest {
			if c == ' ' {
				return rest[:i]
			}
		}
	}
	return ""
}

func TestGodObjectFlagsOverMethodLimit(t *testing.T) {
	r := invariant.NewRegistry(nil, slog.Default())
	symbols := []invariant.Symbol{
		{Name: "Manager", Kind: "class", MethodCount: 15},
		{Name: "Small", Kind: "class", MethodCount: 3},
	}
	violations := r.Run("a.py", "", symbols)
	require.Len(t, violations, 1)
	assert.Equal(t, "god_object", violations[0].Rule)
}

func TestMissingErrorHandlingSkippedWhenTryPresent(t *testing.T) {
	r := invariant.NewRegistry(nil, slog.Default())
	content := "try:\n    open(\"f\")\nexcept Exception:\n    pass\n"
	violations := r.Run("a.py", content, nil)
	for _, v := range violations {
		assert.NotEqual(t, "missing_error_handling", v.Rule)
	}
}

func TestMissingErrorHandlingFlagsBareIO(t *testing.T) {
	r := invariant.NewRegistry(nil, slog.Default())
	violations := r.Run("a.py", "open(\"f\")\n", nil)
	require.Len(t, violations, 1)
	assert.Equal(t, "missing_error_handling", violations[0].Rule)
}

func TestRegistryDisablesRuleViaOverride(t *testing.T) {
	cfg := &config.InvariantsConfig{Rules: map[string]config.RuleOverride{
		"eval_usage": {Enabled: boolPtr(false)},
	}}
	r := invariant.NewRegistry(cfg, slog.Default())
	violations := r.Run("a.py", "eval(x)\n", nil)
	assert.Empty(t, violations)
}

func TestRegistryOverridesSeverity(t *testing.T) {
	cfg := &config.InvariantsConfig{Rules: map[string]config.RuleOverride{
		"eval_usage": {Severity: "low"},
	}}
	r := invariant.NewRegistry(cfg, slog.Default())
	violations := r.Run("a.py", "eval(x)\n", nil)
	require.Len(t, violations, 1)
	assert.Equal(t, graph.SeverityLow, violations[0].Severity)
}

func TestRegistryIgnoresUnknownRuleKey(t *testing.T) {
	cfg := &config.InvariantsConfig{Rules: map[string]config.RuleOverride{
		"no_such_rule": {Enabled: boolPtr(false)},
	}}
	require.NotPanics(t, func() {
		invariant.NewRegistry(cfg, slog.Default())
	})
}

func TestRunSortsBySeverityThenRuleThenLine(t *testing.T) {
	r := invariant.NewRegistry(nil, slog.Default())
	content := "open(\"f\")\neval(x)\n"
	violations := r.Run("a.py", content, nil)
	require.GreaterOrEqual(t, len(violations), 2)
	for i := 1; i < len(violations); i++ {
		wi := graph.SeverityWeight(violations[i-1].Severity)
		wj := graph.SeverityWeight(violations[i].Severity)
		assert.GreaterOrEqual(t, wi, wj)
	}
}

func TestDetectCircularImportsFindsDirectCycle(t *testing.T) {
	adjacency := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	violations := invariant.DetectCircularImports(adjacency)
	require.Len(t, violations, 1)
	assert.Equal(t, "circular_import", violations[0].Rule)
}

func TestDetectCircularImportsNoCycleInDAG(t *testing.T) {
	adjacency := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {},
	}
	violations := invariant.DetectCircularImports(adjacency)
	assert.Empty(t, violations)
}

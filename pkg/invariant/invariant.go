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

// Package invariant implements the pluggable invariant checker registry
// (spec §4.9): a fixed set of security, quality, and architecture rules,
// each overridable via invariants.toml.
package invariant

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kraklabs/palace/internal/config"
	"github.com/kraklabs/palace/pkg/graph"
)

// Violation is one rule hit against an artifact.
type Violation struct {
	Rule     string
	Severity graph.Severity
	Message  string
	Line     int // 0 if not line-addressable
}

// Symbol is the minimal function/class shape checkers need; the ingestion
// pipeline supplies these from its parse tree.
type Symbol struct {
	Name      string
	Kind      string // "function", "method", "class" or "constant"
	StartLine int
	EndLine   int
	MethodCount int // classes only
	HasTypeHints bool
	IsExported   bool
}

// Checker is a single invariant rule.
type Checker interface {
	ID() string
	DefaultSeverity() graph.Severity
	Check(path, content string, symbols []Symbol) []Violation
}

// Registry holds the active checker set, each with its enabled/severity
// state resolved from invariants.toml overrides.
type Registry struct {
	checkers []Checker
	enabled  map[string]bool
	severity map[string]graph.Severity
	log      *slog.Logger
}

// NewRegistry builds the default checker set, applying cfg's overrides.
// Unknown rule keys in cfg are logged at Warn and ignored, per spec §4.9.
func NewRegistry(cfg *config.InvariantsConfig, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		checkers: defaultCheckers(),
		enabled:  make(map[string]bool),
		severity: make(map[string]graph.Severity),
		log:      log,
	}

	known := make(map[string]bool, len(r.checkers))
	for _, c := range r.checkers {
		known[c.ID()] = true
		r.enabled[c.ID()] = true
		r.severity[c.ID()] = c.DefaultSeverity()
	}

	if cfg != nil {
		for id, override := range cfg.Rules {
			if !known[id] {
				log.Warn("invariants.toml: unknown rule key ignored", "rule", id)
				continue
			}
			if override.Enabled != nil {
				r.enabled[id] = *override.Enabled
			}
			if override.Severity != "" {
				r.severity[id] = graph.Severity(strings.ToUpper(override.Severity))
			}
		}
	}
	return r
}

// Run executes every enabled checker against the artifact, returning
// violations sorted by (severity weight desc, rule, line).
func (r *Registry) Run(path, content string, symbols []Symbol) []Violation {
	var out []Violation
	for _, c := range r.checkers {
		if !r.enabled[c.ID()] {
			continue
		}
		for _, v := range c.Check(path, content, symbols) {
			v.Severity = r.severity[c.ID()]
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := graph.SeverityWeight(out[i].Severity), graph.SeverityWeight(out[j].Severity)
		if wi != wj {
			return wi > wj
		}
		if out[i].Rule != out[j].Rule {
			return out[i].Rule < out[j].Rule
		}
		return out[i].Line < out[j].Line
	})
	return out
}

func defaultCheckers() []Checker {
	return []Checker{
		hardcodedSecretsChecker{},
		evalUsageChecker{},
		sqlInjectionChecker{},
		unparameterizedSQLChecker{},
		longFunctionChecker{threshold: 50},
		missingTypeHintsChecker{},
		godObjectChecker{methodLimit: 10},
		missingErrorHandlingChecker{},
		circularImportChecker{},
	}
}

var secretAssignmentPattern = regexp.MustCompile(
	`(?i)(password|api_key|secret|token|private_key)\s*[:=]\s*["']([^"']{8,})["']`)

type hardcodedSecretsChecker struct{}

func (hardcodedSecretsChecker) ID() string                      { return "hardcoded_secrets" }
func (hardcodedSecretsChecker) DefaultSeverity() graph.Severity { return graph.SeverityCritical }
func (hardcodedSecretsChecker) Check(path, content string, _ []Symbol) []Violation {
	var out []Violation
	for i, line := range strings.Split(content, "\n") {
		if m := secretAssignmentPattern.FindStringSubmatch(line); m != nil {
			out = append(out, Violation{
				Rule:    "hardcoded_secrets",
				Message: "literal assigned to " + strings.ToLower(m[1]) + "-like identifier",
				Line:    i + 1,
			})
		}
	}
	return out
}

var evalUsagePattern = regexp.MustCompile(`\b(eval|exec|__import__)\s*\(`)

type evalUsageChecker struct{}

func (evalUsageChecker) ID() string                      { return "eval_usage" }
func (evalUsageChecker) DefaultSeverity() graph.Severity { return graph.SeverityCritical }
func (evalUsageChecker) Check(_, content string, _ []Symbol) []Violation {
	var out []Violation
	for i, line := range strings.Split(content, "\n") {
		if evalUsagePattern.MatchString(line) {
			out = append(out, Violation{Rule: "eval_usage", Message: "dynamic code execution call", Line: i + 1})
		}
	}
	return out
}

var sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete)\b.*\+`)

type sqlInjectionChecker struct{}

func (sqlInjectionChecker) ID() string                      { return "sql_injection" }
func (sqlInjectionChecker) DefaultSeverity() graph.Severity { return graph.SeverityCritical }
func (sqlInjectionChecker) Check(_, content string, _ []Symbol) []Violation {
	var out []Violation
	for i, line := range strings.Split(content, "\n") {
		if sqlKeywordPattern.MatchString(line) {
			out = append(out, Violation{Rule: "sql_injection", Message: "SQL keyword concatenated with string data", Line: i + 1})
		}
	}
	return out
}

var executeNoParamsPattern = regexp.MustCompile(`(?i)\.execute\(\s*["'][^"']*["']\s*\)`)

type unparameterizedSQLChecker struct{}

func (unparameterizedSQLChecker) ID() string                      { return "unparameterized_sql" }
func (unparameterizedSQLChecker) DefaultSeverity() graph.Severity { return graph.SeverityCritical }
func (unparameterizedSQLChecker) Check(_, content string, _ []Symbol) []Violation {
	var out []Violation
	for i, line := range strings.Split(content, "\n") {
		if executeNoParamsPattern.MatchString(line) {
			out = append(out, Violation{Rule: "unparameterized_sql", Message: "execute() call with no parameter list", Line: i + 1})
		}
	}
	return out
}

type longFunctionChecker struct{ threshold int }

func (longFunctionChecker) ID() string                      { return "long_function" }
func (longFunctionChecker) DefaultSeverity() graph.Severity { return graph.SeverityHigh }
func (c longFunctionChecker) Check(_, _ string, symbols []Symbol) []Violation {
	var out []Violation
	for _, s := range symbols {
		if s.Kind != "function" {
			continue
		}
		lines := s.EndLine - s.StartLine
		if lines > c.threshold {
			out = append(out, Violation{
				Rule:    "long_function",
				Message: s.Name + " is " + strconv.Itoa(lines) + " lines, over the limit",
				Line:    s.StartLine,
			})
		}
	}
	return out
}

type missingTypeHintsChecker struct{}

func (missingTypeHintsChecker) ID() string                      { return "missing_type_hints" }
func (missingTypeHintsChecker) DefaultSeverity() graph.Severity { return graph.SeverityMedium }
func (missingTypeHintsChecker) Check(_, _ string, symbols []Symbol) []Violation {
	var out []Violation
	for _, s := range symbols {
		if s.Kind != "function" || !s.IsExported || s.HasTypeHints {
			continue
		}
		out = append(out, Violation{
			Rule:    "missing_type_hints",
			Message: "exported function " + s.Name + " has no type annotations",
			Line:    s.StartLine,
		})
	}
	return out
}

type godObjectChecker struct{ methodLimit int }

func (godObjectChecker) ID() string                      { return "god_object" }
func (godObjectChecker) DefaultSeverity() graph.Severity { return graph.SeverityHigh }
func (c godObjectChecker) Check(_, _ string, symbols []Symbol) []Violation {
	var out []Violation
	for _, s := range symbols {
		if s.Kind != "class" {
			continue
		}
		if s.MethodCount > c.methodLimit {
			out = append(out, Violation{
				Rule:    "god_object",
				Message: s.Name + " has " + strconv.Itoa(s.MethodCount) + " methods, over the limit",
				Line:    s.StartLine,
			})
		}
	}
	return out
}

var ioOrNetworkCallPattern = regexp.MustCompile(`\b(open|requests\.|http\.|os\.remove|socket\.)\w*\(`)
var tryPattern = regexp.MustCompile(`\btry\b`)

type missingErrorHandlingChecker struct{}

func (missingErrorHandlingChecker) ID() string                      { return "missing_error_handling" }
func (missingErrorHandlingChecker) DefaultSeverity() graph.Severity { return graph.SeverityHigh }
func (missingErrorHandlingChecker) Check(_, content string, _ []Symbol) []Violation {
	if tryPattern.MatchString(content) {
		return nil // a file-wide heuristic: presence of any try block is treated as handled
	}
	var out []Violation
	for i, line := range strings.Split(content, "\n") {
		if ioOrNetworkCallPattern.MatchString(line) {
			out = append(out, Violation{
				Rule:    "missing_error_handling",
				Message: "I/O or network call with no try/except in this file",
				Line:    i + 1,
			})
		}
	}
	return out
}

// circularImportChecker operates on the DEPENDS_ON subgraph, not per-file
// content, so its Check reports nothing inside Registry.Run's per-file loop;
// cycle detection over an adjacency map is the exported DetectCircularImports.
type circularImportChecker struct{}

func (circularImportChecker) ID() string                      { return "circular_import" }
func (circularImportChecker) DefaultSeverity() graph.Severity { return graph.SeverityHigh }
func (circularImportChecker) Check(_, _ string, _ []Symbol) []Violation {
	return nil
}

// DetectCircularImports walks the DEPENDS_ON subgraph (adjacency keyed by
// artifact id) for cycles via DFS, returning one Violation per distinct
// cycle found.
func DetectCircularImports(adjacency map[string][]string) []Violation {
	const ruleID = "circular_import"
	color := make(map[string]int) // 0=white 1=gray 2=black
	var out []Violation

	ids := make([]string, 0, len(adjacency))
	for id := range adjacency {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var stack []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = 1
		stack = append(stack, id)
		neighbors := append([]string(nil), adjacency[id]...)
		sort.Strings(neighbors)
		for _, n := range neighbors {
			if color[n] == 1 {
				cyclePath := append(append([]string(nil), stack...), n)
				out = append(out, Violation{
					Rule:    ruleID,
					Message: "import cycle: " + strings.Join(cyclePath, " -> "),
				})
				continue
			}
			if color[n] == 0 {
				if visit(n) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = 2
		return false
	}

	for _, id := range ids {
		if color[id] == 0 {
			visit(id)
		}
	}
	return out
}

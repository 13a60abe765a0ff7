// Copyright 2026 KrakLabs
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

package main

import (
	"context"
	"flag"
	"sort"

	palerr "github.com/kraklabs/palace/internal/errors"
	"github.com/kraklabs/palace/internal/output"
	"github.com/kraklabs/palace/internal/ui"
	"github.com/kraklabs/palace/pkg/graph"
	"github.com/kraklabs/palace/pkg/palace"
)

type statsResult struct {
	NodesByKind map[graph.NodeKind]int `json:"nodes_by_kind"`
	EdgesByType map[graph.EdgeType]int `json:"edges_by_type"`
	TotalNodes  int                    `json:"total_nodes"`
	TotalEdges  int                    `json:"total_edges"`
}

func runStats(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)

	ui.InitColors(globals.NoColor)

	dir, err := resolveWorkspaceDir(globals)
	if err != nil {
		palerr.FatalError(palerr.NewInternalError("cannot resolve workspace directory", err.Error(), "", err), globals.JSON)
	}

	ws, err := palace.Open(dir, nil)
	if err != nil {
		palerr.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	counts, err := ws.Stats(context.Background())
	if err != nil {
		palerr.FatalError(palerr.NewStoreError("cannot read stats", err.Error(), "", err), globals.JSON)
	}

	result := statsResult{NodesByKind: counts.NodesByKind, EdgesByType: counts.EdgesByType}
	for _, n := range counts.NodesByKind {
		result.TotalNodes += n
	}
	for _, n := range counts.EdgesByType {
		result.TotalEdges += n
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}

	ui.Header("Workspace Stats")
	printCounts("Nodes", toStringCounts(result.NodesByKind), result.TotalNodes)
	printCounts("Edges", toStringCounts(result.EdgesByType), result.TotalEdges)
}

func toStringCounts[K ~string](m map[K]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func printCounts(label string, counts map[string]int, total int) {
	ui.SubHeader(label + ":")
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		ui.Infof("  %-16s %s", k, ui.CountText(counts[k]))
	}
	ui.Infof("  %-16s %s", "total", ui.CountText(total))
}

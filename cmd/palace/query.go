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
	"fmt"
	"strings"

	palerr "github.com/kraklabs/palace/internal/errors"
	"github.com/kraklabs/palace/internal/output"
	"github.com/kraklabs/palace/internal/ui"
	"github.com/kraklabs/palace/pkg/palace"
)

type queryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// runQuery forwards a raw SQL statement to the graph store (spec §6's
// `query` command, "Forwarded to §4.1, errors surface verbatim"). SELECT
// statements run through Store.Query (cached, read-only); everything else
// runs through Store.Execute.
func runQuery(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		palerr.FatalError(palerr.NewInputError("missing query argument", "query requires a SQL statement", "palace query \"SELECT * FROM nodes LIMIT 10\""), globals.JSON)
	}
	sqlText := strings.Join(fs.Args(), " ")

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

	ctx := context.Background()

	if isSelect(sqlText) {
		res, err := ws.Store.Query(ctx, sqlText)
		if err != nil {
			palerr.FatalError(palerr.NewStoreError("query failed", err.Error(), "", err), globals.JSON)
		}
		printQueryResult(queryResult{Columns: res.Columns, Rows: res.Rows}, globals)
		return
	}

	if err := ws.Store.Execute(ctx, sqlText); err != nil {
		palerr.FatalError(palerr.NewStoreError("query failed", err.Error(), "", err), globals.JSON)
	}
	if globals.JSON {
		_ = output.JSON(map[string]string{"status": "ok"})
		return
	}
	ui.Success("Statement executed")
}

func isSelect(sqlText string) bool {
	trimmed := strings.TrimSpace(strings.ToUpper(sqlText))
	return strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH")
}

func printQueryResult(res queryResult, globals GlobalFlags) {
	if globals.JSON {
		_ = output.JSON(res)
		return
	}

	fmt.Println(strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
	ui.Infof("%d rows", len(res.Rows))
}

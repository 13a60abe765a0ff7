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
	"os"

	palerr "github.com/kraklabs/palace/internal/errors"
	"github.com/kraklabs/palace/internal/output"
	"github.com/kraklabs/palace/internal/ui"
	"github.com/kraklabs/palace/pkg/palace"
)

type ingestResult struct {
	Ingested          int      `json:"ingested"`
	Unchanged         int      `json:"unchanged"`
	Unsupported       int      `json:"unsupported"`
	Errored           int      `json:"errored"`
	DecisionsIngested int      `json:"decisions_ingested"`
	DurationMs        int64    `json:"duration_ms"`
	Errors            []string `json:"errors,omitempty"`
}

func runIngest(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	fs.Parse(args)

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

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

	progressCfg := NewProgressConfig(globals)
	spinner := NewSpinner(progressCfg, fmt.Sprintf("Ingesting %s", root))
	if spinner != nil {
		_ = spinner.RenderBlank()
	}

	ctx := context.Background()
	summary, discovered, decisionsIngested, err := ws.Ingest(ctx, root)
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		palerr.FatalError(palerr.NewIngestError("ingestion failed", err.Error(), "", err), globals.JSON)
	}

	result := ingestResult{
		Ingested:          summary.Ingested,
		Unchanged:         summary.Unchanged,
		Unsupported:       summary.Unsupported,
		Errored:           summary.Errored,
		DecisionsIngested: decisionsIngested,
		DurationMs:        summary.Duration.Milliseconds(),
	}
	for _, r := range summary.Results {
		if r.Err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Path, r.Err))
		}
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}

	ui.Success(fmt.Sprintf("Ingested %d files (%d unchanged, %d unsupported, %d errored) in %dms",
		result.Ingested, result.Unchanged, result.Unsupported, result.Errored, result.DurationMs))
	if result.DecisionsIngested > 0 {
		ui.Infof("Parsed %d decision records", result.DecisionsIngested)
	}
	for reason, count := range discovered.SkipReasons {
		ui.Infof("Skipped %d files (%s)", count, reason)
	}
	for _, e := range result.Errors {
		ui.Warning(e)
	}

	if summary.Errored > 0 {
		os.Exit(palerr.ExitInput)
	}
}

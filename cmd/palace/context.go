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

type contextResult struct {
	FilesParsed       int    `json:"files_parsed"`
	DependenciesFound int    `json:"dependencies_found"`
	DurationMs        int64  `json:"duration_ms"`
	TokensEstimated   int    `json:"tokens_estimated"`
	Toon              string `json:"toon"`
}

func runContext(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("context", flag.ExitOnError)
	depth := fs.Int("depth", 0, "Maximum spreading-activation depth (0 = workspace default)")
	threshold := fs.Float64("threshold", 0, "Minimum activation energy to keep spreading (0 = workspace default)")
	compact := fs.Bool("compact", false, "Omit dependency imports from the context bundle")
	output_ := fs.String("output", "", "Write the TOON bundle to this path instead of stdout")
	fs.Parse(args)

	if fs.NArg() < 1 {
		palerr.FatalError(palerr.NewInputError("missing file argument", "context requires exactly one file path", "palace context <file>"), globals.JSON)
	}
	path := fs.Arg(0)

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
	bundle, err := ws.Context(ctx, path, !*compact, *depth, *threshold)
	if err != nil {
		palerr.FatalError(palerr.NewNotFoundError("cannot build context bundle", err.Error(), ""), globals.JSON)
	}

	result := contextResult{
		FilesParsed:       bundle.FilesParsed,
		DependenciesFound: bundle.DependenciesFound,
		DurationMs:        bundle.DurationMs,
		TokensEstimated:   bundle.TokensEstimated,
		Toon:              bundle.ToonFormat,
	}

	if *output_ != "" {
		if err := os.WriteFile(*output_, []byte(result.Toon), 0o644); err != nil {
			palerr.FatalError(palerr.NewInternalError("cannot write output file", err.Error(), "", err), globals.JSON)
		}
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}

	if *output_ == "" {
		fmt.Println(result.Toon)
	}
	ui.Infof("%d files, %d dependencies, ~%d tokens, %dms", result.FilesParsed, result.DependenciesFound, result.TokensEstimated, result.DurationMs)
}

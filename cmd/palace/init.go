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
	"flag"
	"fmt"

	palerr "github.com/kraklabs/palace/internal/errors"
	"github.com/kraklabs/palace/internal/output"
	"github.com/kraklabs/palace/internal/ui"
	"github.com/kraklabs/palace/pkg/palace"
)

type initResult struct {
	WorkspaceDir string `json:"workspace_dir"`
	Created      bool   `json:"created"`
}

func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Reinitialize even if the workspace already exists")
	fs.Parse(args)

	ui.InitColors(globals.NoColor)

	dir, err := resolveWorkspaceDir(globals)
	if err != nil {
		palerr.FatalError(palerr.NewInternalError("cannot resolve workspace directory", err.Error(), "", err), globals.JSON)
	}

	if err := palace.Init(dir, *force); err != nil {
		palerr.FatalError(err, globals.JSON)
	}

	result := initResult{WorkspaceDir: dir, Created: true}
	if globals.JSON {
		_ = output.JSON(result)
		return
	}
	ui.Success(fmt.Sprintf("Initialized workspace at %s", dir))
}

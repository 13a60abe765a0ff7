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

// Package main implements the palace CLI: a code-intelligence memory
// engine that ingests a repository into a persistent knowledge graph and
// answers structured context queries about it.
//
// Usage:
//
//	palace init                    Create an empty workspace in .palace/
//	palace ingest [path]           Run the ingestion pipeline
//	palace [--json] context <file> Emit a TOON context bundle for a file
//	palace sleep                    Run a maintenance (decay/prune/consolidate) cycle
//	palace sleep --daemon          Run that cycle continuously on a cron schedule
//	palace [--json] stats          Show node/edge counts per kind
//	palace query <sql>             Forward a raw query to the graph store
package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are parsed ahead of the subcommand and shared by every one.
type GlobalFlags struct {
	WorkspaceDir string
	JSON         bool
	Quiet        bool
	NoColor      bool
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		workspace   = flag.String("workspace", "", "Path to the workspace directory (default: ./.palace)")
		jsonOutput  = flag.Bool("json", false, "Output as JSON")
		quiet       = flag.Bool("quiet", false, "Suppress progress output")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `palace - code-intelligence memory engine

Usage:
  palace <command> [options]

Commands:
  init       Create an empty workspace
  ingest     Run the ingestion pipeline over a directory
  context    Emit a TOON context bundle for a file
  sleep      Run a maintenance cycle (decay, prune, consolidate, communities)
             --daemon runs it continuously on the workspace's cron schedule
  stats      Show node/edge counts per kind
  query      Forward a raw query to the graph store

Global Options:
  --workspace   Path to the workspace directory (default: ./.palace)
  --json        Output as JSON
  --quiet       Suppress progress output
  --no-color    Disable colored output
  --version     Show version and exit

Examples:
  palace init
  palace ingest .
  palace context pkg/graph/store.go
  palace sleep --decay 0.05 --prune 0.1
  palace sleep --daemon
  palace --json stats
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("palace version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	globals := GlobalFlags{
		WorkspaceDir: *workspace,
		JSON:         *jsonOutput,
		Quiet:        *quiet,
		NoColor:      *noColor,
	}
	if globals.JSON {
		globals.Quiet = true
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command, cmdArgs := args[0], args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "ingest":
		runIngest(cmdArgs, globals)
	case "context":
		runContext(cmdArgs, globals)
	case "sleep":
		runSleep(cmdArgs, globals)
	case "stats":
		runStats(cmdArgs, globals)
	case "query":
		runQuery(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// resolveWorkspaceDir returns the workspace directory: the --workspace flag
// if set, else ./.palace relative to the current directory.
func resolveWorkspaceDir(globals GlobalFlags) (string, error) {
	if globals.WorkspaceDir != "" {
		return globals.WorkspaceDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current directory: %w", err)
	}
	return cwd + string(os.PathSeparator) + ".palace", nil
}

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
	"os/signal"
	"syscall"

	palerr "github.com/kraklabs/palace/internal/errors"
	"github.com/kraklabs/palace/internal/output"
	"github.com/kraklabs/palace/internal/ui"
	"github.com/kraklabs/palace/pkg/palace"
	"github.com/kraklabs/palace/pkg/sleep"
)

func runSleep(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("sleep", flag.ExitOnError)
	decay := fs.Float64("decay", 0, "Edge weight decay rate lambda (0 = workspace default)")
	prune := fs.Float64("prune", 0, "Prune edges with weight below this threshold (0 = workspace default)")
	noConsolidate := fs.Bool("no-consolidate", false, "Skip co-activation consolidation")
	noCommunities := fs.Bool("no-communities", false, "Skip community detection")
	consolidationHours := fs.Int("consolidation-hours", 0, "Lookback window for consolidation, in hours (0 = workspace default)")
	daemon := fs.Bool("daemon", false, "Run continuously, firing a sleep cycle on the workspace's cron_schedule instead of once")
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

	opts := sleep.Options{
		LambdaDecay:        *decay,
		PruneThreshold:     *prune,
		Consolidate:        !*noConsolidate,
		DetectCommunities:  !*noCommunities,
		ConsolidationHours: *consolidationHours,
	}

	if *daemon {
		runSleepDaemon(ws, opts, globals)
		return
	}

	spinner := NewSpinner(NewProgressConfig(globals), "Running maintenance cycle")
	if spinner != nil {
		_ = spinner.RenderBlank()
	}

	ctx := context.Background()
	report, err := ws.RunSleep(ctx, opts)
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		palerr.FatalError(palerr.NewStoreError("sleep cycle failed", err.Error(), "", err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(report)
		return
	}

	ui.Success(fmt.Sprintf("Sleep cycle %s complete in %dms", report.RunID, report.DurationMs))
	ui.Infof("%d nodes, %d edges (%d decayed, %d pruned, %d pairs reinforced, %d communities)",
		report.Nodes, report.Edges, report.EdgesDecayed, report.EdgesPruned, report.PairsReinforced, report.CommunitiesDetected)
}

// runSleepDaemon starts the workspace's cron-scheduled sleep cycle (spec
// §4.12.1) and blocks until interrupted, firing ws.Config.Sleep.CronSchedule
// until SIGINT/SIGTERM.
func runSleepDaemon(ws *palace.Workspace, opts sleep.Options, globals GlobalFlags) {
	schedule := ws.Config.Sleep.CronSchedule
	sched, err := sleep.NewScheduler(ws.Sleep, schedule, opts, nil)
	if err != nil {
		palerr.FatalError(palerr.NewInternalError("invalid cron_schedule", err.Error(), "fix the cron_schedule value in config.toml", err), globals.JSON)
	}

	sched.Start()
	defer sched.Stop()

	ui.Success(fmt.Sprintf("Sleep daemon running, schedule %q (Ctrl-C to stop)", schedule))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ui.Infof("Sleep daemon stopping")
}

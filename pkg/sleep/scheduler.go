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

package sleep

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultCronSchedule runs the sleep cycle once daily at 03:00, local time.
const DefaultCronSchedule = "0 3 * * *"

// Scheduler runs an Engine's sleep cycle on a cron schedule, for
// long-running agent deployments where nothing else would trigger
// consolidation (spec-adjacent, purely additive scheduling glue).
type Scheduler struct {
	engine *Engine
	opts   Options
	log    *slog.Logger
	cron   *cron.Cron
}

// NewScheduler builds a Scheduler around engine. schedule is a standard
// five-field cron expression; an empty string uses DefaultCronSchedule.
func NewScheduler(engine *Engine, schedule string, opts Options, log *slog.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultCronSchedule
	}
	if log == nil {
		log = slog.Default()
	}
	c := cron.New()
	s := &Scheduler{engine: engine, opts: opts, log: log, cron: c}

	_, err := c.AddFunc(schedule, func() {
		report, err := engine.Run(context.Background(), opts)
		if err != nil {
			log.Error("scheduled sleep cycle failed", "error", err)
			return
		}
		log.Info("scheduled sleep cycle completed",
			"nodes", report.Nodes,
			"edges", report.Edges,
			"edges_decayed", report.EdgesDecayed,
			"edges_pruned", report.EdgesPruned,
			"pairs_reinforced", report.PairsReinforced,
			"communities_detected", report.CommunitiesDetected,
			"duration_ms", report.DurationMs,
		)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running scheduled sleep cycles in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

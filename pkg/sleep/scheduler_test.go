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

package sleep_test

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/kraklabs/palace/pkg/sleep"
)

// TestMain verifies that Scheduler.Stop leaves no cron goroutine running.
// robfig/cron starts its own dispatch goroutine on Start; nothing else in
// this package spawns one, so a leak here would always trace back to a
// missing or premature Stop call.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedulerStartStopLeavesNoGoroutine(t *testing.T) {
	store := openStore(t)
	engine := sleep.New(store)
	sched, err := sleep.NewScheduler(engine, "@every 1h", sleep.Options{}, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	sched.Start()
	sched.Stop()
}

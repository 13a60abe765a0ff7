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

package remotecache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/palace/pkg/remotecache"
)

func TestKeyIsDeterministicAndParameterSensitive(t *testing.T) {
	k1 := remotecache.Key("art:main.py", true, 2, 0.3)
	k2 := remotecache.Key("art:main.py", true, 2, 0.3)
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, remotecache.Key("art:main.py", false, 2, 0.3))
	assert.NotEqual(t, k1, remotecache.Key("art:main.py", true, 3, 0.3))
	assert.NotEqual(t, k1, remotecache.Key("art:main.py", true, 2, 0.5))
	assert.NotEqual(t, k1, remotecache.Key("art:helper.py", true, 2, 0.3))
}

// TestNilCacheFailsOpen covers the no-Redis-configured path every workspace
// runs by default: a nil *Cache must behave like an always-miss, always-
// silently-no-op cache rather than panicking.
func TestNilCacheFailsOpen(t *testing.T) {
	var c *remotecache.Cache
	ctx := context.Background()

	_, ok := c.Get(ctx, "any-key")
	assert.False(t, ok)

	assert.NotPanics(t, func() { c.Set(ctx, "any-key", "value") })
	assert.NotPanics(t, func() { c.Invalidate(ctx) })
	assert.NoError(t, c.Close())
}

func TestDialRejectsUnreachableAddr(t *testing.T) {
	_, err := remotecache.Dial("127.0.0.1:1", 0, nil)
	assert.Error(t, err)
}

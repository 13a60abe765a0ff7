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

// Package remotecache is an optional Redis-backed cache tier sitting in
// front of query_artifact's spreading-activation computation. A single
// workspace has no need for it: the in-process query cache on pkg/graph
// already memoizes repeated reads. It earns its keep once several CLI
// invocations or MCP server processes share one workspace directory and
// want to skip recomputing a context bundle that a sibling process already
// built. Every call fails open: a Redis outage degrades to "always
// recompute", never to an error surfaced to the caller.
package remotecache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "palace:context:"

// Cache wraps a Redis client with palace's context-bundle cache semantics.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

// Dial connects to addr and pings it once to fail fast on misconfiguration.
// Callers that want fail-open behavior even on a bad address should treat a
// non-nil error as "remote cache unavailable" and proceed without one,
// rather than treating it as fatal.
func Dial(addr string, ttl time.Duration, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("remote cache ping %s: %w", addr, err)
	}

	return &Cache{rdb: rdb, ttl: ttl, log: log}, nil
}

// Key derives the cache key for one query_artifact call: the artifact id
// plus the parameters that change its result.
func Key(artifactID string, includeDependencies bool, maxDepth int, energyThreshold float64) string {
	return fmt.Sprintf("%s%s:%t:%d:%.3f", keyPrefix, artifactID, includeDependencies, maxDepth, energyThreshold)
}

// Get returns the cached TOON bundle for key, or ok=false on a miss or any
// Redis error (logged, not returned, so callers always fall back to a live
// computation).
func (c *Cache) Get(ctx context.Context, key string) (toonFormat string, ok bool) {
	if c == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("remotecache.get_failed", "key", key, "err", err)
		}
		return "", false
	}
	return val, true
}

// Set stores the TOON bundle for key with the configured TTL. Errors are
// logged and swallowed: a failed cache write never fails the caller's
// context query.
func (c *Cache) Set(ctx context.Context, key, toonFormat string) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, toonFormat, c.ttl).Err(); err != nil {
		c.log.Warn("remotecache.set_failed", "key", key, "err", err)
	}
}

// Invalidate drops every cached bundle. Called after a sleep cycle
// (spec §4.12/§5): decay, pruning, and consolidation all change edge
// weights that spreading activation depends on, so every cached bundle is
// stale the moment a sleep cycle commits.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("remotecache.invalidate_scan_failed", "err", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("remotecache.invalidate_del_failed", "err", err)
	}
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

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

// Package palace wires the hippocampus (graph store, bloom filter,
// fingerprint index), the ingestion pipeline, and the maintenance engines
// (plasticity, sleep) into a single workspace lifecycle, the way
// internal/bootstrap wires the teacher's embedded CozoDB backend together.
// A Workspace is the process-singleton set of shared resources spec §5
// describes: one graph store connection, one bloom filter, one fingerprint
// store, shared across every ingest/query/sleep call.
package palace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/palace/internal/config"
	palerr "github.com/kraklabs/palace/internal/errors"
	"github.com/kraklabs/palace/pkg/bloomfilter"
	"github.com/kraklabs/palace/pkg/concept"
	"github.com/kraklabs/palace/pkg/decision"
	"github.com/kraklabs/palace/pkg/fingerprint"
	"github.com/kraklabs/palace/pkg/graph"
	"github.com/kraklabs/palace/pkg/ingestion"
	"github.com/kraklabs/palace/pkg/invariant"
	"github.com/kraklabs/palace/pkg/plasticity"
	"github.com/kraklabs/palace/pkg/query"
	"github.com/kraklabs/palace/pkg/remotecache"
	"github.com/kraklabs/palace/pkg/sleep"
	"github.com/kraklabs/palace/pkg/vectorstore"
)

// defaultBloomCapacity sizes a fresh membership filter when no persisted
// one exists yet. Spec §4.3 suggests 10^7 items at the default workspace
// scale; a single-repo memory graph never gets close, but the filter
// doesn't grow, so start generously.
const defaultBloomCapacity = 1_000_000

const defaultBloomFalsePositiveRate = 0.001

// File names inside a workspace directory (spec §6).
const (
	graphFileName       = "brain.db"
	bloomFileName       = "bloom_filter.bin"
	fingerprintFileName = "fingerprints.bin"
	configFileName      = "config.toml"
	invariantsFileName  = "invariants.toml"
	decisionsDirName    = "decisions"
)

// Workspace is an opened palace: the graph store plus every engine built
// on top of it, ready for Ingest/Query/Sleep calls.
type Workspace struct {
	Dir    string
	Config *config.Config

	Store        *graph.Store
	Bloom        *bloomfilter.Filter
	Fingerprints *fingerprint.Store
	Pipeline     *ingestion.Pipeline
	Sleep        *sleep.Engine
	Plasticity   *plasticity.Engine
	Discoverer   *ingestion.Discoverer

	// RemoteCache is nil unless config.toml's [remote_cache] section is
	// enabled and reachable. Every call site treats a nil *remotecache.Cache
	// as "no cache" rather than checking for nil explicitly.
	RemoteCache *remotecache.Cache

	log *slog.Logger
}

// Init creates an empty workspace at dir: default config, an empty graph
// store, and an empty decisions directory; no invariants.toml is written.
// Returns a ConfigError if config.toml already exists and force is false.
func Init(dir string, force bool) error {
	configPath := filepath.Join(dir, configFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return palerr.NewConfigError(
			"workspace already initialized",
			configPath+" already exists",
			"pass --force to reinitialize, discarding the existing configuration",
			nil,
		)
	}

	if err := os.MkdirAll(filepath.Join(dir, decisionsDirName), 0o755); err != nil {
		return fmt.Errorf("create decisions dir: %w", err)
	}

	cfg := config.Default()
	if err := config.Save(dir, cfg); err != nil {
		return fmt.Errorf("write config.toml: %w", err)
	}

	store, err := graph.Open(graph.Config{Path: filepath.Join(dir, graphFileName)})
	if err != nil {
		return palerr.NewStoreError("cannot create graph store", err.Error(), "check write permissions on "+dir, err)
	}
	defer store.Close()

	return nil
}

// Open loads an existing workspace: config, invariant overrides, the graph
// store, the bloom filter and fingerprint index (created fresh if their
// files are absent), and wires every engine on top.
func Open(dir string, log *slog.Logger) (*Workspace, error) {
	if log == nil {
		log = slog.Default()
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	invCfg, err := config.LoadInvariants(dir)
	if err != nil {
		return nil, err
	}

	storePath := filepath.Join(dir, graphFileName)
	if _, statErr := os.Stat(storePath); os.IsNotExist(statErr) {
		return nil, palerr.NewNotInitializedError(
			"workspace not initialized",
			storePath+" does not exist",
			"run 'palace init' first",
		)
	}
	store, err := graph.Open(graph.Config{Path: storePath})
	if err != nil {
		return nil, palerr.NewStoreError("cannot open graph store", err.Error(), "check that "+storePath+" is not corrupt", err)
	}

	bloom, err := loadOrCreateBloom(filepath.Join(dir, bloomFileName))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	fpStore, err := loadOrCreateFingerprints(filepath.Join(dir, fingerprintFileName))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := ingestion.NewRegistry(log)
	extractor := concept.New(vectorstore.NoopEncoder{})
	invReg := invariant.NewRegistry(invCfg, log)
	resolver := ingestion.NewImportResolver(nil)

	maxWorkers := 0 // NewPipeline defaults to runtime.NumCPU()
	pipeline := ingestion.NewPipeline(store, registry, extractor, invReg, resolver, log, maxWorkers)
	pipeline.SetBloomFilter(bloom)
	pipeline.SetFingerprintStore(fpStore)

	var cache *remotecache.Cache
	if cfg.RemoteCache.Enabled {
		ttl := time.Duration(cfg.RemoteCache.TTLSeconds) * time.Second
		c, err := remotecache.Dial(cfg.RemoteCache.Addr, ttl, log)
		if err != nil {
			log.Warn("palace.open.remote_cache_unavailable", "addr", cfg.RemoteCache.Addr, "err", err)
		} else {
			cache = c
		}
	}

	return &Workspace{
		Dir:          dir,
		Config:       cfg,
		Store:        store,
		Bloom:        bloom,
		Fingerprints: fpStore,
		Pipeline:     pipeline,
		Sleep:        sleep.New(store),
		Plasticity:   plasticity.New(store),
		Discoverer:   ingestion.NewDiscoverer(log),
		RemoteCache:  cache,
		log:          log,
	}, nil
}

func loadOrCreateBloom(path string) (*bloomfilter.Filter, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := bloomfilter.Load(path)
		if err != nil {
			return nil, palerr.NewStoreError("cannot load bloom filter", err.Error(), "delete "+path+" to rebuild it on next ingest", err)
		}
		return f, nil
	}
	return bloomfilter.New(defaultBloomCapacity, defaultBloomFalsePositiveRate), nil
}

func loadOrCreateFingerprints(path string) (*fingerprint.Store, error) {
	if _, err := os.Stat(path); err == nil {
		fs, err := fingerprint.Load(path)
		if err != nil {
			return nil, palerr.NewStoreError("cannot load fingerprint store", err.Error(), "delete "+path+" to rebuild it on next ingest", err)
		}
		return fs, nil
	}
	return fingerprint.NewStore(), nil
}

// Close persists the bloom filter and fingerprint store, then closes the
// graph store connection.
func (w *Workspace) Close() error {
	if err := w.Bloom.Save(filepath.Join(w.Dir, bloomFileName)); err != nil {
		w.log.Warn("palace.close.bloom_save_failed", "err", err)
	}
	w.Fingerprints.Promote()
	if err := w.Fingerprints.Save(filepath.Join(w.Dir, fingerprintFileName)); err != nil {
		w.log.Warn("palace.close.fingerprint_save_failed", "err", err)
	}
	if err := w.RemoteCache.Close(); err != nil {
		w.log.Warn("palace.close.remote_cache_close_failed", "err", err)
	}
	return w.Store.Close()
}

// Ingest discovers files under root honoring the workspace's ignore
// patterns and size cap, then runs them through the ingestion pipeline.
// Alongside source files it also (re-)parses the workspace's decisions/*.md
// ADR directory into Decision nodes and PRECEDES edges; a malformed ADR
// stops that decision pass (no ADR is written in that run and the failure
// is logged) rather than failing the whole ingest run, since a typo in a
// decision record shouldn't block indexing source the agent depends on.
func (w *Workspace) Ingest(ctx context.Context, root string) (*ingestion.Summary, *ingestion.DiscoverResult, int, error) {
	maxBytes := int64(w.Config.Ingest.MaxFileSizeMB) * 1024 * 1024
	discovered, err := w.Discoverer.Discover(root, w.Config.Ingest.IgnorePatterns, maxBytes)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("discover files: %w", err)
	}

	paths := make([]string, len(discovered.Files))
	for i, f := range discovered.Files {
		paths[i] = f.Path
	}

	summary, err := w.Pipeline.IngestFilesParallel(ctx, paths)
	if err != nil {
		return nil, discovered, 0, err
	}

	decisionsIngested, err := w.ingestDecisions(ctx)
	if err != nil {
		w.log.Warn("palace.ingest.decisions_failed", "err", err)
	}

	return summary, discovered, decisionsIngested, nil
}

// ingestDecisions upserts a Decision node for every ADR under the
// workspace's decisions directory, then links supersede chains with
// PRECEDES edges. Runs in two passes: nodes first, so a "supersedes"
// reference to a file later in directory order still resolves.
func (w *Workspace) ingestDecisions(ctx context.Context) (int, error) {
	dir := filepath.Join(w.Dir, decisionsDirName)
	records, err := decision.ParseDirectory(dir)
	if err != nil {
		return 0, err
	}

	idByRelPath := make(map[string]string, len(records))
	for _, rec := range records {
		idByRelPath[rec.RelPath] = ingestion.DecisionID(rec.RelPath)
		idByRelPath[strings.TrimSuffix(rec.RelPath, filepath.Ext(rec.RelPath))] = ingestion.DecisionID(rec.RelPath)
	}

	for _, rec := range records {
		id := ingestion.DecisionID(rec.RelPath)
		props := map[string]any{
			"title":     rec.Title,
			"timestamp": rec.Timestamp.Format(time.RFC3339),
			"status":    rec.Status,
			"rationale": rec.Rationale,
		}
		existing, err := w.Store.GetNode(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("lookup decision %s: %w", rec.RelPath, err)
		}
		if existing != nil {
			err = w.Store.UpdateNode(ctx, id, props)
		} else {
			err = w.Store.CreateNode(ctx, id, graph.KindDecision, props)
		}
		if err != nil {
			return 0, fmt.Errorf("persist decision %s: %w", rec.RelPath, err)
		}
	}

	for _, rec := range records {
		if rec.Supersedes == "" {
			continue
		}
		id := ingestion.DecisionID(rec.RelPath)
		priorID, ok := idByRelPath[rec.Supersedes]
		if !ok {
			w.log.Warn("palace.ingest.decision_supersedes_unresolved", "path", rec.RelPath, "supersedes", rec.Supersedes)
			continue
		}
		edgeID := ingestion.EdgeID(priorID, id, string(graph.EdgePrecedes))
		if err := w.Store.CreateEdge(ctx, edgeID, priorID, id, graph.EdgePrecedes, 1.0, map[string]any{
			"reason": "superseded",
		}); err != nil {
			return 0, fmt.Errorf("link decision %s -> %s: %w", rec.Supersedes, rec.RelPath, err)
		}
		priorNode, err := w.Store.GetNode(ctx, priorID)
		if err != nil {
			return 0, fmt.Errorf("lookup %s before marking superseded: %w", rec.Supersedes, err)
		}
		priorProps := priorNode.Props
		priorProps["status"] = string(graph.DecisionSuperseded)
		if err := w.Store.UpdateNode(ctx, priorID, priorProps); err != nil {
			return 0, fmt.Errorf("mark %s superseded: %w", rec.Supersedes, err)
		}
	}
	return len(records), nil
}

// Context answers query_artifact(path) for a file already tracked in the
// graph (spec §4.13): bloom pre-check, bounded spread, TOON serialization.
// maxDepth/energyThreshold <= 0 fall back to the workspace's configured
// activation defaults (config.toml's [activation] section).
func (w *Workspace) Context(ctx context.Context, path string, includeDependencies bool, maxDepth int, energyThreshold float64) (*query.TOONResult, error) {
	artifactID := ingestion.ArtifactID(path)
	node, err := w.Store.GetNodeByPath(ctx, path)
	if err == nil && node != nil {
		artifactID = node.ID
	}

	if maxDepth <= 0 {
		maxDepth = w.Config.Activation.MaxDepth
	}
	if energyThreshold <= 0 {
		energyThreshold = w.Config.Activation.EnergyThreshold
	}

	cacheKey := remotecache.Key(artifactID, includeDependencies, maxDepth, energyThreshold)
	if cached, ok := w.RemoteCache.Get(ctx, cacheKey); ok {
		var result query.TOONResult
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			return &result, nil
		}
	}

	opts := query.Options{MaxDepth: maxDepth, EnergyThreshold: energyThreshold}
	result, err := query.QueryArtifact(ctx, w.Bloom, w.Store, artifactID, includeDependencies, opts)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(result); err == nil {
		w.RemoteCache.Set(ctx, cacheKey, string(encoded))
	}
	return result, nil
}

// RunSleep executes one maintenance cycle (spec §4.12) and invalidates the
// plasticity edge-weight cache afterward, since decay/prune changed
// weights out from under it.
func (w *Workspace) RunSleep(ctx context.Context, opts sleep.Options) (*sleep.Report, error) {
	report, err := w.Sleep.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	w.Plasticity.ClearEdgeCache()
	w.RemoteCache.Invalidate(ctx)
	return report, nil
}

// Stats summarizes node/edge counts per kind (the `stats` command, spec §6).
func (w *Workspace) Stats(ctx context.Context) (*graph.Counts, error) {
	return w.Store.CountAll(ctx)
}

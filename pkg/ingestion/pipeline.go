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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/palace/pkg/bloomfilter"
	"github.com/kraklabs/palace/pkg/concept"
	"github.com/kraklabs/palace/pkg/fingerprint"
	"github.com/kraklabs/palace/pkg/graph"
	"github.com/kraklabs/palace/pkg/invariant"
)

// maxSequentialFileBytes routes files over this size to the sequential
// path even in parallel mode, to bound per-worker memory (spec §4.6).
const maxSequentialFileBytes = 50 * 1024 * 1024

// minFilesForParallel: batches smaller than this fall back to sequential
// ingestion, since goroutine/errgroup overhead dominates at small N.
const minFilesForParallel = 10

// topConceptsForRelatedTo bounds the pairwise RELATED_TO strengthening in
// step 7 to avoid O(n^2) blow-up on files with many concepts.
const topConceptsForRelatedTo = 20

// FileStatus is the per-file outcome of IngestFile.
type FileStatus string

const (
	StatusIngested    FileStatus = "ingested"
	StatusUnchanged   FileStatus = "unchanged"
	StatusUnsupported FileStatus = "unsupported"
	StatusError       FileStatus = "error"
)

// FileResult is IngestFile's return value.
type FileResult struct {
	Path              string
	Status            FileStatus
	SymbolsCount      int
	DependenciesCount int
	Err               error
}

// Summary aggregates FileResults from a batch ingestion run.
type Summary struct {
	Results     []FileResult
	Ingested    int
	Unchanged   int
	Unsupported int
	Errored     int
	Duration    time.Duration
}

// Pipeline wires the parser registry, concept extractor, invariant
// registry, and import resolver together and drives the per-file
// algorithm of spec §4.6.
type Pipeline struct {
	store      *graph.Store
	registry   *ParserRegistry
	extractor  *concept.Extractor
	invariants *invariant.Registry
	resolver   *ImportResolver
	log        *slog.Logger
	maxWorkers int

	// bloom and fingerprints are optional: the hippocampus's membership
	// filter and compact fingerprint index, kept in step with the graph
	// store as files are ingested. Nil-safe; set via SetBloomFilter /
	// SetFingerprintStore once a workspace opens them.
	bloom        *bloomfilter.Filter
	fingerprints *fingerprint.Store
}

// SetBloomFilter wires the membership filter that IngestFile populates as
// artifacts are created or updated.
func (p *Pipeline) SetBloomFilter(f *bloomfilter.Filter) {
	p.bloom = f
}

// SetFingerprintStore wires the compact fingerprint index that IngestFile
// populates alongside each artifact's graph-resident ast_fingerprint prop.
func (p *Pipeline) SetFingerprintStore(fs *fingerprint.Store) {
	p.fingerprints = fs
}

// NewPipeline builds a Pipeline. maxWorkers <= 0 defaults to runtime.NumCPU().
func NewPipeline(store *graph.Store, registry *ParserRegistry, extractor *concept.Extractor, invariants *invariant.Registry, resolver *ImportResolver, log *slog.Logger, maxWorkers int) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	return &Pipeline{
		store:      store,
		registry:   registry,
		extractor:  extractor,
		invariants: invariants,
		resolver:   resolver,
		log:        log,
		maxWorkers: maxWorkers,
	}
}

var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".proto": "protobuf",
}

// IngestFile runs the nine-step per-file algorithm of spec §4.6 against a
// single path on disk.
func (p *Pipeline) IngestFile(ctx context.Context, path string) FileResult {
	start := time.Now()
	ingMetrics.init()
	defer func() { ingMetrics.ingestDuration.Observe(time.Since(start).Seconds()) }()

	ext := filepath.Ext(path)
	parser, ok := p.registry.ForExtension(ext)
	if !ok {
		ingMetrics.filesUnsupported.Inc()
		return FileResult{Path: path, Status: StatusUnsupported}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		ingMetrics.filesErrored.Inc()
		return FileResult{Path: path, Status: StatusError, Err: fmt.Errorf("read %s: %w", path, err)}
	}
	content := string(raw)
	contentHash := ContentHash(content)

	artifactID := ArtifactID(path)
	existingArtifact, err := p.store.GetNode(ctx, artifactID)
	if err != nil {
		ingMetrics.filesErrored.Inc()
		return FileResult{Path: path, Status: StatusError, Err: fmt.Errorf("lookup artifact %s: %w", path, err)}
	}
	if existingArtifact != nil {
		if hash, _ := existingArtifact.Props["content_hash"].(string); hash == contentHash {
			ingMetrics.filesUnchanged.Inc()
			return FileResult{Path: path, Status: StatusUnchanged}
		}
	}

	parseStart := time.Now()
	symbols, err := parser.ExtractSymbols(content)
	if err != nil {
		ingMetrics.filesErrored.Inc()
		return FileResult{Path: path, Status: StatusError, Err: fmt.Errorf("extract symbols %s: %w", path, err)}
	}
	deps, err := parser.ParseDependencies(path, content)
	if err != nil {
		ingMetrics.filesErrored.Inc()
		return FileResult{Path: path, Status: StatusError, Err: fmt.Errorf("parse dependencies %s: %w", path, err)}
	}
	fp := parser.ComputeFingerprint(content)
	ingMetrics.parseDuration.Observe(time.Since(parseStart).Seconds())

	language := languageByExt[ext]

	artifactProps := map[string]any{
		"path":            path,
		"language":        language,
		"content_hash":    contentHash,
		"ast_fingerprint": fp[:],
		"last_modified":   time.Now().Format(time.RFC3339),
		"symbols":         symbolSummaries(symbols),
	}
	if existingArtifact != nil {
		err = p.store.UpdateNode(ctx, artifactID, artifactProps)
	} else {
		err = p.store.CreateNode(ctx, artifactID, graph.KindArtifact, artifactProps)
	}
	if err != nil {
		ingMetrics.filesErrored.Inc()
		return FileResult{Path: path, Status: StatusError, Err: fmt.Errorf("persist artifact %s: %w", path, err)}
	}
	p.resolver.RegisterArtifact(path, artifactID)

	if p.bloom != nil {
		p.bloom.Add(artifactID)
	}
	if p.fingerprints != nil {
		p.fingerprints.Learn([]byte(content))
		p.fingerprints.Put(artifactID, fp[:])
	}

	if err := p.runConceptExtraction(ctx, path, artifactID, symbols); err != nil {
		p.log.Warn("ingestion.pipeline.concepts_failed", "path", path, "err", err)
	}

	if p.invariants != nil {
		p.runInvariantChecks(ctx, path, artifactID, content, symbols)
	}

	depCount := p.resolveDependencies(ctx, deps, path, artifactID, language)

	for _, resolved := range p.resolver.DrainDeferred(path, artifactID) {
		p.createDependsOnEdge(ctx, resolved.FromArtifactID, resolved.ToArtifactID, resolved.Dep)
	}

	ingMetrics.filesIngested.Inc()
	ingMetrics.symbolsExtracted.Add(float64(len(symbols)))
	return FileResult{Path: path, Status: StatusIngested, SymbolsCount: len(symbols), DependenciesCount: depCount}
}

// symbolSummaries reduces parsed Symbols to the lightweight form persisted
// on an Artifact node's props, so the query interface (pkg/query) can
// render a file's functions/classes/exports without re-parsing source.
func symbolSummaries(symbols []Symbol) []map[string]any {
	out := make([]map[string]any, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, map[string]any{
			"name":         s.Name,
			"kind":         string(s.Kind),
			"method_count": s.MethodCount,
			"exported":     s.IsExported,
		})
	}
	return out
}

func (p *Pipeline) runConceptExtraction(ctx context.Context, path, artifactID string, symbols []Symbol) error {
	names := make([]string, 0, len(symbols))
	var docstrings []string
	for _, s := range symbols {
		names = append(names, s.Name)
		if s.Docstring != "" {
			docstrings = append(docstrings, s.Docstring)
		}
	}
	candidates, err := p.extractor.Extract(ctx, path, names, docstrings)
	if err != nil {
		return err
	}

	type createdConcept struct {
		id         string
		confidence float64
	}
	var created []createdConcept
	for _, c := range candidates {
		conceptID := ConceptID(c.Name)
		if err := p.store.CreateNode(ctx, conceptID, graph.KindConcept, map[string]any{
			"name":          c.Name,
			"layer":         string(graph.LayerImplementation),
			"stability":     0.5,
			"embedding_ref": "",
		}); err != nil {
			return err
		}
		edgeID := EdgeID(artifactID, conceptID, string(graph.EdgeEvokes))
		if err := p.store.CreateEdge(ctx, edgeID, artifactID, conceptID, graph.EdgeEvokes, c.Confidence, nil); err != nil {
			return err
		}
		ingMetrics.conceptsCreated.Inc()
		created = append(created, createdConcept{id: conceptID, confidence: c.Confidence})
	}

	sort.SliceStable(created, func(i, j int) bool { return created[i].confidence > created[j].confidence })
	if len(created) > topConceptsForRelatedTo {
		created = created[:topConceptsForRelatedTo]
	}
	for i := 0; i < len(created); i++ {
		for j := i + 1; j < len(created); j++ {
			weight := relatedToWeight(created[i].confidence, created[j].confidence)
			p.strengthenRelatedTo(ctx, created[i].id, created[j].id, weight)
		}
	}
	return nil
}

// relatedToWeight implements spec §4.6 step 7's formula.
func relatedToWeight(a, b float64) float64 {
	w := 0.3 + 0.7*((a+b)/2)
	if w > 1 {
		w = 1
	}
	return w
}

func (p *Pipeline) strengthenRelatedTo(ctx context.Context, a, b string, weight float64) {
	existing, err := p.store.EdgeBetween(ctx, a, b, graph.EdgeRelatedTo)
	if err != nil {
		p.log.Warn("ingestion.pipeline.related_to_lookup_failed", "a", a, "b", b, "err", err)
		return
	}
	if existing != nil && existing.Weight >= weight {
		return
	}
	edgeID := EdgeID(a, b, string(graph.EdgeRelatedTo))
	if existing != nil {
		edgeID = existing.ID
	}
	if err := p.store.CreateEdge(ctx, edgeID, a, b, graph.EdgeRelatedTo, weight, nil); err != nil {
		p.log.Warn("ingestion.pipeline.related_to_create_failed", "a", a, "b", b, "err", err)
	}
}

func (p *Pipeline) runInvariantChecks(ctx context.Context, path, artifactID, content string, symbols []Symbol) {
	invSymbols := make([]invariant.Symbol, len(symbols))
	for i, s := range symbols {
		invSymbols[i] = invariant.Symbol{
			Name:         s.Name,
			Kind:         string(s.Kind),
			StartLine:    s.Line,
			EndLine:      s.EndLine,
			MethodCount:  s.MethodCount,
			HasTypeHints: s.HasTypeHints,
			IsExported:   s.IsExported,
		}
	}
	for _, v := range p.invariants.Run(path, content, invSymbols) {
		invariantID := InvariantID(artifactID, v.Rule)
		if err := p.store.CreateNode(ctx, invariantID, graph.KindInvariant, map[string]any{
			"rule":         v.Rule,
			"severity":     string(v.Severity),
			"is_automatic": true,
			"check_query":  "",
		}); err != nil {
			p.log.Warn("ingestion.pipeline.invariant_node_failed", "rule", v.Rule, "err", err)
			continue
		}
		edgeID := EdgeID(invariantID, artifactID, string(graph.EdgeConstrains))
		weight := graph.SeverityWeight(v.Severity)
		if err := p.store.CreateEdge(ctx, edgeID, invariantID, artifactID, graph.EdgeConstrains, weight, map[string]any{
			"message": v.Message,
			"line":    v.Line,
		}); err != nil {
			p.log.Warn("ingestion.pipeline.constrains_edge_failed", "rule", v.Rule, "err", err)
			continue
		}
		ingMetrics.invariantViolations.Inc()
	}
}

func (p *Pipeline) resolveDependencies(ctx context.Context, deps []Dependency, path, artifactID, language string) int {
	count := 0
	for _, dep := range deps {
		targetID, outcome := p.resolver.Resolve(dep, path, artifactID, language)
		switch outcome {
		case ResolveOK:
			p.createDependsOnEdge(ctx, artifactID, targetID, dep)
			ingMetrics.dependenciesResolved.Inc()
			count++
		case ResolveDeferred:
			ingMetrics.dependenciesDeferred.Inc()
		case ResolveExternal:
			ingMetrics.dependenciesExternal.Inc()
		}
	}
	return count
}

func (p *Pipeline) createDependsOnEdge(ctx context.Context, from, to string, dep Dependency) {
	edgeID := EdgeID(from, to, string(graph.EdgeDependsOn))
	if err := p.store.CreateEdge(ctx, edgeID, from, to, graph.EdgeDependsOn, 1.0, map[string]any{
		"dependency_type": "IMPORT",
		"line":            dep.Line,
	}); err != nil {
		p.log.Warn("ingestion.pipeline.depends_on_failed", "from", from, "to", to, "err", err)
	}
}

// IngestFilesParallel ingests paths concurrently, bounded at p.maxWorkers,
// with the sequential fallback for small batches and for any file over
// maxSequentialFileBytes (spec §4.6).
func (p *Pipeline) IngestFilesParallel(ctx context.Context, paths []string) (*Summary, error) {
	start := time.Now()
	if len(paths) < minFilesForParallel {
		return p.ingestSequential(ctx, paths, start), nil
	}

	var sequential, parallel []string
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && info.Size() > maxSequentialFileBytes {
			sequential = append(sequential, path)
			continue
		}
		parallel = append(parallel, path)
	}

	results := make([]FileResult, len(parallel))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for i, path := range parallel {
		i, path := i, path
		g.Go(func() error {
			results[i] = p.IngestFile(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seqSummary := p.ingestSequential(ctx, sequential, start)
	allResults := append(results, seqSummary.Results...)
	return summarize(allResults, time.Since(start)), nil
}

func (p *Pipeline) ingestSequential(ctx context.Context, paths []string, start time.Time) *Summary {
	var results []FileResult
	for _, path := range paths {
		results = append(results, p.IngestFile(ctx, path))
	}
	return summarize(results, time.Since(start))
}

func summarize(results []FileResult, dur time.Duration) *Summary {
	s := &Summary{Results: results, Duration: dur}
	for _, r := range results {
		switch r.Status {
		case StatusIngested:
			s.Ingested++
		case StatusUnchanged:
			s.Unchanged++
		case StatusUnsupported:
			s.Unsupported++
		case StatusError:
			s.Errored++
		}
	}
	return s
}

// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ResolveOutcome discriminates resolve(dep) results (spec §4.7).
type ResolveOutcome int

const (
	ResolveDeferred ResolveOutcome = iota
	ResolveExternal
	ResolveOK
)

// goExternalPrefixes and pyExternalPrefixes filter standard-library/external
// imports out of DEPENDS_ON resolution; they never resolve locally.
var (
	goExternalPrefixes = []string{"fmt", "os", "io", "net", "strings", "strconv", "time", "context", "sync", "errors", "encoding", "bytes", "sort", "math", "log"}
	pyExternalPrefixes = []string{"os", "sys", "re", "json", "typing", "collections", "itertools", "functools", "logging", "datetime", "math", "abc"}
)

// ArtifactCache maps normalized file paths to artifact ids, giving resolve()
// its O(1)-after-warm-up lookup (spec §4.7).
type ArtifactCache struct {
	cache *lru.Cache[string, string]
}

// NewArtifactCache builds a path -> artifact id cache with the spec's
// default capacity of 4096 entries.
func NewArtifactCache() *ArtifactCache {
	c, _ := lru.New[string, string](4096)
	return &ArtifactCache{cache: c}
}

func (a *ArtifactCache) Put(path, artifactID string) { a.cache.Add(normalizeArtifactPath(path), artifactID) }
func (a *ArtifactCache) Get(path string) (string, bool) {
	return a.cache.Get(normalizeArtifactPath(path))
}

// ImportResolver resolves a Dependency discovered by a LanguageParser to an
// already-ingested artifact id, deferring unresolved ones until a matching
// artifact shows up (spec §4.7).
type ImportResolver struct {
	mu       sync.Mutex
	cache    *ArtifactCache
	deferred map[string][]deferredEntry // normalized key -> pending (from, dep)
}

type deferredEntry struct {
	fromArtifactID string
	dep            Dependency
}

// NewImportResolver builds a resolver backed by cache (created fresh via
// NewArtifactCache if nil).
func NewImportResolver(cache *ArtifactCache) *ImportResolver {
	if cache == nil {
		cache = NewArtifactCache()
	}
	return &ImportResolver{cache: cache, deferred: make(map[string][]deferredEntry)}
}

// RegisterArtifact makes path resolvable as artifactID for future Resolve
// calls and DrainDeferred lookups.
func (r *ImportResolver) RegisterArtifact(path, artifactID string) {
	r.cache.Put(path, artifactID)
}

// Resolve attempts to resolve dep (found while parsing fromArtifactID,
// located at fromPath) to an artifact id. On ResolveDeferred, the caller
// should NOT create an edge yet; the pending entry is recorded internally
// and surfaced by a later DrainDeferred call once the target is ingested.
func (r *ImportResolver) Resolve(dep Dependency, fromPath, fromArtifactID, language string) (artifactID string, outcome ResolveOutcome) {
	candidates, external := normalizeImportCandidates(dep.Path, fromPath, language)
	if external {
		return "", ResolveExternal
	}

	for _, candidate := range candidates {
		if id, ok := r.cache.Get(candidate); ok {
			return id, ResolveOK
		}
	}

	r.mu.Lock()
	key := candidates[0]
	r.deferred[key] = append(r.deferred[key], deferredEntry{fromArtifactID: fromArtifactID, dep: dep})
	r.mu.Unlock()
	return "", ResolveDeferred
}

// ResolvedDependency is one DEPENDS_ON edge to materialize after a drain.
type ResolvedDependency struct {
	FromArtifactID string
	ToArtifactID   string
	Dep            Dependency
}

// DrainDeferred is called after a new artifact is registered; it returns
// edges to create for any pending entries keyed by the new artifact's
// normalized path, or by a trailing path-segment suffix of it, since import
// candidates are relative to a source root (spec §4.6 step 9, §4.7).
func (r *ImportResolver) DrainDeferred(newPath, newArtifactID string) []ResolvedDependency {
	key := normalizeArtifactPath(newPath)
	// Also try without extension, since import candidates are generated
	// without the source file's extension.
	keyNoExt := strings.TrimSuffix(key, filepath.Ext(key))

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ResolvedDependency
	for k, entries := range r.deferred {
		if k != key && k != keyNoExt && !strings.HasSuffix(key, "/"+k) && !strings.HasSuffix(keyNoExt, "/"+k) {
			continue
		}
		for _, e := range entries {
			out = append(out, ResolvedDependency{FromArtifactID: e.fromArtifactID, ToArtifactID: newArtifactID, Dep: e.dep})
		}
		delete(r.deferred, k)
	}
	return out
}

// normalizeImportCandidates applies the per-language rules of spec §4.7,
// returning candidate local paths to look up plus whether the import is
// external (stdlib/site-packages/node_modules) and therefore never local.
func normalizeImportCandidates(importPath, fromPath, language string) (candidates []string, external bool) {
	switch language {
	case "python":
		return pythonImportCandidates(importPath, fromPath)
	case "typescript", "javascript":
		return jsImportCandidates(importPath)
	case "go":
		return goImportCandidates(importPath)
	default:
		return []string{normalizeArtifactPath(importPath)}, false
	}
}

func pythonImportCandidates(importPath, fromPath string) ([]string, bool) {
	for _, prefix := range pyExternalPrefixes {
		if importPath == prefix || strings.HasPrefix(importPath, prefix+".") {
			return nil, true
		}
	}
	rel := strings.ReplaceAll(importPath, ".", "/")
	if strings.HasPrefix(importPath, ".") {
		// Relative import: resolve against the importing file's package dir.
		dir := filepath.Dir(fromPath)
		rel = filepath.ToSlash(filepath.Join(dir, strings.TrimLeft(importPath, ".")))
	}
	return []string{rel + ".py", rel + "/__init__.py"}, false
}

func jsImportCandidates(importPath string) ([]string, bool) {
	if strings.Contains(importPath, "node_modules") || (!strings.HasPrefix(importPath, ".") && !strings.HasPrefix(importPath, "/")) {
		return nil, true
	}
	base := strings.TrimPrefix(importPath, "./")
	var out []string
	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx"} {
		out = append(out, base+ext)
	}
	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx"} {
		out = append(out, base+"/index"+ext)
	}
	return out, false
}

func goImportCandidates(importPath string) ([]string, bool) {
	for _, prefix := range goExternalPrefixes {
		if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
			return nil, true
		}
	}
	if strings.Contains(importPath, ".") && strings.Contains(importPath, "/") {
		// Looks like a module-qualified path (has a domain component); only
		// the suffix after the module root is locally meaningful, but since
		// the module root is unknown here, try the whole path and its
		// final two segments as a fallback.
		parts := strings.Split(importPath, "/")
		if len(parts) >= 2 {
			return []string{importPath, strings.Join(parts[len(parts)-2:], "/")}, false
		}
	}
	return []string{importPath}, false
}

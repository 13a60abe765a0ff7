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
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
)

// DiscoveredFile is one file found under a workspace root, ready to be
// handed to Pipeline.IngestFile/IngestFilesParallel.
type DiscoveredFile struct {
	Path     string // absolute path
	RelPath  string // path relative to the workspace root
	Size     int64
	Language string
}

// DiscoverResult summarizes a workspace walk.
type DiscoverResult struct {
	Files       []DiscoveredFile
	SkipReasons map[string]int // "excluded" | "too_large" -> count
}

// Discoverer walks a workspace root applying ignore-glob and max-file-size
// filters, the local-filesystem counterpart of a repository loader.
type Discoverer struct {
	log *slog.Logger
}

// NewDiscoverer builds a Discoverer.
func NewDiscoverer(log *slog.Logger) *Discoverer {
	if log == nil {
		log = slog.Default()
	}
	return &Discoverer{log: log}
}

// Discover walks root, skipping paths matched by any ignorePatterns glob and
// files over maxFileSizeBytes (0 disables the size check).
func (d *Discoverer) Discover(root string, ignorePatterns []string, maxFileSizeBytes int64) (*DiscoverResult, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	result := &DiscoverResult{SkipReasons: make(map[string]int)}

	err = filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			d.log.Warn("ingestion.discover.walk_error", "path", path, "err", walkErr)
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		normalized := filepath.ToSlash(relPath)

		if entry.IsDir() {
			if matchesAnyGlob(normalized, ignorePatterns) {
				result.SkipReasons["excluded"]++
				return filepath.SkipDir
			}
			return nil
		}

		if matchesAnyGlob(normalized, ignorePatterns) {
			result.SkipReasons["excluded"]++
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if maxFileSizeBytes > 0 && info.Size() > maxFileSizeBytes {
			result.SkipReasons["too_large"]++
			d.log.Warn("ingestion.discover.skip_large_file", "path", normalized, "size", info.Size(), "limit", maxFileSizeBytes)
			return nil
		}

		result.Files = append(result.Files, DiscoveredFile{
			Path:     path,
			RelPath:  normalized,
			Size:     info.Size(),
			Language: languageByExt[strings.ToLower(filepath.Ext(normalized))],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// matchesAnyGlob reports whether path matches any of patterns, each
// interpreted as a directory/file-name substring (the common case for
// ignore_patterns entries like "node_modules" or "__pycache__") or a glob
// if it contains *, ?, or [.
func matchesAnyGlob(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchesIgnorePattern(path, pattern) {
			return true
		}
	}
	return false
}

func matchesIgnorePattern(path, pattern string) bool {
	pattern = filepath.ToSlash(pattern)
	if !strings.ContainsAny(pattern, "*?[") {
		parts := strings.Split(path, "/")
		for _, part := range parts {
			if part == pattern {
				return true
			}
		}
		return strings.Contains(path, pattern)
	}
	if ok, _ := filepath.Match(pattern, path); ok {
		return true
	}
	parts := strings.Split(path, "/")
	for i := range parts {
		subpath := strings.Join(parts[i:], "/")
		if ok, _ := filepath.Match(pattern, subpath); ok {
			return true
		}
	}
	return false
}

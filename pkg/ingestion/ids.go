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
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// ArtifactID derives a stable Artifact node id from a normalized file path.
func ArtifactID(path string) string {
	return "artifact:" + normalizeArtifactPath(path)
}

// ContentHash is the SHA-256 hex digest of a file's content, used both as
// the Artifact.content_hash property and the re-ingest short-circuit check
// (spec §4.6 step 2).
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ConceptID derives a stable Concept node id from its normalized name, so
// repeated extraction across files converges on the same node.
func ConceptID(name string) string {
	sum := sha256.Sum256([]byte("concept:" + name))
	return "concept:" + hex.EncodeToString(sum[:8])
}

// InvariantID derives a stable Invariant node id from the rule and the
// artifact it was raised against, so re-running checks upserts in place.
func InvariantID(artifactID, rule string) string {
	sum := sha256.Sum256([]byte(artifactID + "|" + rule))
	return "invariant:" + hex.EncodeToString(sum[:8])
}

// DecisionID derives a stable Decision node id from an ADR file's path
// relative to its decisions directory, so re-running decision ingestion
// upserts the same node instead of duplicating it. Unlike ContentHash, this
// is deliberately path-derived rather than body-derived: editing an ADR's
// rationale after the fact (common for ADRs, which get amended) must not
// change its identity or orphan edges pointing at it.
func DecisionID(relPath string) string {
	sum := sha256.Sum256([]byte("decision:" + normalizeArtifactPath(relPath)))
	return "decision:" + hex.EncodeToString(sum[:8])
}

// EdgeID derives a deterministic edge id from its (src, dst, type) triple so
// CreateEdge / strengthen calls on the same pair are idempotent.
func EdgeID(src, dst, edgeType string) string {
	sum := sha256.Sum256([]byte(src + "->" + dst + "|" + edgeType))
	return "edge:" + hex.EncodeToString(sum[:16])
}

func normalizeArtifactPath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.Clean(path)
	path = filepath.ToSlash(path)
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}

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

// Package decision parses architecture decision records out of a
// workspace's decisions/*.md directory (spec §6) into Decision graph nodes
// and PRECEDES edges. Every ADR is a YAML-front-matter markdown file:
//
//	---
//	date: 2026-03-01
//	status: ACCEPTED
//	supersedes: 0001-use-sqlite
//	---
//	# Use SQLite for the graph store
//
//	Rationale text goes here...
//
// The front matter's date/status/supersedes fields map directly onto
// graph.DecisionProps; the body's first heading becomes the title and the
// remaining text becomes the rationale.
package decision

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

// frontMatter is the YAML block at the top of an ADR file.
type frontMatter struct {
	Date       string `yaml:"date"`
	Status     string `yaml:"status"`
	Supersedes string `yaml:"supersedes"`
}

// Record is one parsed ADR, ready to be upserted as a Decision node.
type Record struct {
	RelPath    string // path relative to the decisions directory, e.g. "0002-adopt-bloom-filter.md"
	Title      string
	Timestamp  time.Time
	Status     string // PROPOSED | ACCEPTED | SUPERSEDED
	Rationale  string
	Supersedes string // RelPath (minus extension) of the ADR this one supersedes, or ""
}

// ParseFile reads and parses a single ADR file. relPath is recorded on the
// Record as-is; it is the caller's responsibility to pass a path relative to
// the decisions directory so Supersedes references resolve consistently.
func ParseFile(path, relPath string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fm, body, err := splitFrontMatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse front matter in %s: %w", path, err)
	}

	status := strings.ToUpper(strings.TrimSpace(fm.Status))
	if status == "" {
		status = "PROPOSED"
	}

	ts := time.Now()
	if fm.Date != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(fm.Date))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid date %q: %w", path, fm.Date, err)
		}
		ts = parsed
	}

	return &Record{
		RelPath:    relPath,
		Title:      titleFromBody(body, relPath),
		Timestamp:  ts,
		Status:     status,
		Rationale:  strings.TrimSpace(body),
		Supersedes: strings.TrimSpace(fm.Supersedes),
	}, nil
}

// ParseDirectory parses every *.md file directly under dir (non-recursive;
// ADRs don't nest). A dir that doesn't exist yet (a workspace that has never
// recorded a decision) yields an empty, error-free result.
func ParseDirectory(dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read decisions dir %s: %w", dir, err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".md") {
			continue
		}
		rec, err := ParseFile(filepath.Join(dir, entry.Name()), entry.Name())
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// splitFrontMatter extracts the "---\n...\n---\n" YAML block from the start
// of content, returning the decoded front matter and the remaining body. A
// file with no front matter delimiter yields empty front matter and its
// whole content as the body.
func splitFrontMatter(content string) (frontMatter, string, error) {
	var fm frontMatter
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return fm, content, nil
	}
	if strings.TrimSpace(scanner.Text()) != frontMatterDelim {
		return fm, content, nil
	}

	var yamlLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontMatterDelim {
			closed = true
			break
		}
		yamlLines = append(yamlLines, line)
	}
	if err := scanner.Err(); err != nil {
		return fm, content, err
	}
	if !closed {
		return fm, content, fmt.Errorf("unterminated front matter block")
	}

	if err := yaml.Unmarshal([]byte(strings.Join(yamlLines, "\n")), &fm); err != nil {
		return fm, content, err
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fm, content, err
	}
	return fm, strings.Join(bodyLines, "\n"), nil
}

// titleFromBody returns the text of the body's first Markdown heading, or
// fallback (the file's base name, extension stripped) if none is present.
func titleFromBody(body, fallback string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	base := filepath.Base(fallback)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds Prometheus metrics for the ingestion pipeline.
type metricsIngestion struct {
	once sync.Once

	filesIngested   prometheus.Counter
	filesUnchanged  prometheus.Counter
	filesUnsupported prometheus.Counter
	filesErrored    prometheus.Counter

	symbolsExtracted      prometheus.Counter
	dependenciesResolved  prometheus.Counter
	dependenciesDeferred  prometheus.Counter
	dependenciesExternal  prometheus.Counter
	conceptsCreated       prometheus.Counter
	invariantViolations   prometheus.Counter

	parseDuration    prometheus.Histogram
	ingestDuration   prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.filesIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_files_total", Help: "Files fully ingested"})
		m.filesUnchanged = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_files_unchanged_total", Help: "Files skipped: content hash unchanged"})
		m.filesUnsupported = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_files_unsupported_total", Help: "Files skipped: no parser for extension"})
		m.filesErrored = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_files_errored_total", Help: "Files that failed to parse or persist"})

		m.symbolsExtracted = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_symbols_total", Help: "Symbols extracted across all files"})
		m.dependenciesResolved = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_dependencies_resolved_total", Help: "Dependencies resolved to a local artifact"})
		m.dependenciesDeferred = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_dependencies_deferred_total", Help: "Dependencies deferred pending their target's ingestion"})
		m.dependenciesExternal = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_dependencies_external_total", Help: "Dependencies classified as external (stdlib/site-packages/node_modules)"})
		m.conceptsCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_concepts_total", Help: "Concept nodes created or reaffirmed"})
		m.invariantViolations = prometheus.NewCounter(prometheus.CounterOpts{Name: "palace_ingest_invariant_violations_total", Help: "Invariant violations recorded"})

		buckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
		m.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "palace_ingest_parse_seconds", Help: "Per-file parse duration", Buckets: buckets})
		m.ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "palace_ingest_file_seconds", Help: "Per-file total ingest duration", Buckets: buckets})

		prometheus.MustRegister(
			m.filesIngested, m.filesUnchanged, m.filesUnsupported, m.filesErrored,
			m.symbolsExtracted, m.dependenciesResolved, m.dependenciesDeferred, m.dependenciesExternal,
			m.conceptsCreated, m.invariantViolations,
			m.parseDuration, m.ingestDuration,
		)
	})
}

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

package graph

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

// Config configures an embedded Store.
type Config struct {
	// Path is the sqlite database file, conventionally "<workspace>/brain.db".
	Path string
	// QueryCacheSize bounds the read-only query LRU cache (default 1024 per spec §4.1).
	QueryCacheSize int
}

// Store is the embedded graph-store implementation, backed by
// modernc.org/sqlite (pure Go, CGO-free — see DESIGN.md for why this
// replaces the teacher's CozoDB binding). It keeps the teacher's
// mutex-guarded, idempotent-create architecture from
// pkg/storage/embedded.go's EmbeddedBackend.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool

	queryCache *lru.Cache[string, *QueryResult]
}

// QueryResult is the generic row-stream result of Query.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// Open creates or opens the embedded store at cfg.Path and ensures schema.
func Open(cfg Config) (*Store, error) {
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 1024
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	db.SetMaxOpenConns(1) // sqlite: single-writer discipline, matches the teacher's mutex-guarded embedded layout
	cache, err := lru.New[string, *QueryResult](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init query cache: %w", err)
	}
	s := &Store{db: db, queryCache: cache}
	if err := s.EnsureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates tables and secondary indexes, idempotently.
func (s *Store) EnsureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			path TEXT,
			language TEXT,
			name TEXT,
			layer TEXT,
			rule TEXT,
			severity TEXT,
			props_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_language ON nodes(language)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_layer ON nodes(layer)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_rule ON nodes(rule)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_severity ON nodes(severity)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			src TEXT NOT NULL,
			dst TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			weight REAL NOT NULL,
			created_at INTEGER NOT NULL,
			last_activated INTEGER,
			props_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(edge_type)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_triple ON edges(src, dst, edge_type)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return &SchemaError{Message: fmt.Sprintf("ensure schema: %v", err)}
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func promotedColumns(kind NodeKind, props map[string]any) (path, language, name, layer, rule, severity any) {
	switch kind {
	case KindArtifact:
		path, _ = props["path"]
		language, _ = props["language"]
	case KindConcept:
		name, _ = props["name"]
		layer, _ = props["layer"]
	case KindInvariant:
		rule, _ = props["rule"]
		severity, _ = props["severity"]
	}
	return
}

// CreateNode inserts or idempotently re-affirms a node. A duplicate id with
// different properties is a SchemaError.
func (s *Store) CreateNode(ctx context.Context, id string, kind NodeKind, props map[string]any) error {
	switch kind {
	case KindArtifact, KindConcept, KindInvariant, KindDecision, KindAnchor:
	default:
		return &SchemaError{Message: fmt.Sprintf("unknown node kind %q", kind)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok, err := s.getNodeLocked(ctx, id); err != nil {
		return err
	} else if ok {
		if !propsEqual(existing.Props, props) {
			return &SchemaError{Message: fmt.Sprintf("node %q exists with conflicting properties", id)}
		}
		return nil
	}

	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshal props: %w", err)
	}
	path, language, name, layer, rule, severity := promotedColumns(kind, props)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, kind, created_at, path, language, name, layer, rule, severity, props_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(kind), time.Now().UnixNano(), path, language, name, layer, rule, severity, string(propsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	s.queryCache.Purge()
	return nil
}

// UpdateNode overwrites an existing node's properties in place. Unlike
// CreateNode it never raises a SchemaError on conflicting properties,
// since callers use it precisely to replace a changed node (e.g. an
// Artifact whose content_hash moved). IntegrityError if the node is
// absent — UpdateNode never creates.
func (s *Store) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok, err := s.getNodeLocked(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &IntegrityError{Message: fmt.Sprintf("update node: %q does not exist", id)}
	}

	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshal props: %w", err)
	}
	path, language, name, layer, rule, severity := promotedColumns(existing.Kind, props)
	_, err = s.db.ExecContext(ctx,
		`UPDATE nodes SET path=?, language=?, name=?, layer=?, rule=?, severity=?, props_json=? WHERE id=?`,
		path, language, name, layer, rule, severity, string(propsJSON), id,
	)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	s.queryCache.Purge()
	return nil
}

// CreateNodesBatch inserts many nodes atomically, in slice order. The
// whole batch either fully applies or fails (spec §4.1).
func (s *Store) CreateNodesBatch(ctx context.Context, nodes []Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer tx.Rollback()

	for _, n := range nodes {
		switch n.Kind {
		case KindArtifact, KindConcept, KindInvariant, KindDecision, KindAnchor:
		default:
			return &SchemaError{Message: fmt.Sprintf("unknown node kind %q", n.Kind)}
		}
		propsJSON, err := json.Marshal(n.Props)
		if err != nil {
			return fmt.Errorf("marshal props: %w", err)
		}
		path, language, name, layer, rule, severity := promotedColumns(n.Kind, n.Props)
		createdAt := n.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO nodes (id, kind, created_at, path, language, name, layer, rule, severity, props_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET props_json=excluded.props_json`,
			n.ID, string(n.Kind), createdAt.UnixNano(), path, language, name, layer, rule, severity, string(propsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert node %q: %w", n.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit node batch: %w", err)
	}
	s.queryCache.Purge()
	return nil
}

// CreateEdge creates a typed edge. Fails with IntegrityError if either
// endpoint does not exist.
func (s *Store) CreateEdge(ctx context.Context, id, src, dst string, edgeType EdgeType, weight float64, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEdgeLocked(ctx, s.db, id, src, dst, edgeType, weight, props)
}

func (s *Store) createEdgeLocked(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id, src, dst string, edgeType EdgeType, weight float64, props map[string]any) error {
	var exists int
	for _, endpoint := range []string{src, dst} {
		row := execer.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, endpoint)
		if err := row.Scan(&exists); err != nil {
			return &IntegrityError{Message: fmt.Sprintf("edge endpoint %q does not exist", endpoint)}
		}
	}
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshal edge props: %w", err)
	}
	_, err = execer.ExecContext(ctx,
		`INSERT INTO edges (id, src, dst, edge_type, weight, created_at, props_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(src, dst, edge_type) DO UPDATE SET weight=excluded.weight, props_json=excluded.props_json`,
		id, src, dst, string(edgeType), weight, time.Now().UnixNano(), string(propsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	s.queryCache.Purge()
	return nil
}

// CreateEdgesBatch inserts many edges atomically, grouped by type.
func (s *Store) CreateEdgesBatch(ctx context.Context, edges []Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer tx.Rollback()

	grouped := make(map[EdgeType][]Edge)
	for _, e := range edges {
		grouped[e.Type] = append(grouped[e.Type], e)
	}
	types := make([]EdgeType, 0, len(grouped))
	for t := range grouped {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, t := range types {
		for _, e := range grouped[t] {
			if err := s.createEdgeLocked(ctx, tx, e.ID, e.Src, e.Dst, e.Type, e.Weight, e.Props); err != nil {
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit edge batch: %w", err)
	}
	s.queryCache.Purge()
	return nil
}

// GetNode fetches a node by id, returning (nil, nil) if absent.
func (s *Store) GetNode(ctx context.Context, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok, err := s.getNodeLocked(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return n, nil
}

func (s *Store) getNodeLocked(ctx context.Context, id string) (*Node, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, kind, created_at, props_json FROM nodes WHERE id = ?`, id)
	var n Node
	var createdAtNano int64
	var propsJSON string
	var kind string
	if err := row.Scan(&n.ID, &kind, &createdAtNano, &propsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get node: %w", err)
	}
	n.Kind = NodeKind(kind)
	n.CreatedAt = time.Unix(0, createdAtNano)
	if err := json.Unmarshal([]byte(propsJSON), &n.Props); err != nil {
		return nil, false, fmt.Errorf("unmarshal props: %w", err)
	}
	return &n, true, nil
}

// GetNodeByPath fetches an Artifact by its indexed path.
func (s *Store) GetNodeByPath(ctx context.Context, path string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id FROM nodes WHERE kind = ? AND path = ?`, string(KindArtifact), path)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get node by path: %w", err)
	}
	n, _, err := s.getNodeLocked(ctx, id)
	return n, err
}

const edgeColumns = `id, src, dst, edge_type, weight, created_at, last_activated, props_json`

// OutgoingEdges returns every edge whose src is nodeID.
func (s *Store) OutgoingEdges(ctx context.Context, nodeID string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE src = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("query outgoing edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// IncomingEdges returns every edge whose dst is nodeID.
func (s *Store) IncomingEdges(ctx context.Context, nodeID string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE dst = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("query incoming edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// EdgesByType returns every edge of the given type, e.g. the RELATED_TO
// subgraph the sleep engine's community-detection phase operates on.
func (s *Store) EdgesByType(ctx context.Context, edgeType EdgeType) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+edgeColumns+` FROM edges WHERE edge_type = ?`, string(edgeType))
	if err != nil {
		return nil, fmt.Errorf("query edges by type: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// AllEdges returns every edge in the store.
func (s *Store) AllEdges(ctx context.Context) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+edgeColumns+` FROM edges`)
	if err != nil {
		return nil, fmt.Errorf("query all edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// AllNodesByKind returns every node of the given kind.
func (s *Store) AllNodesByKind(ctx context.Context, kind NodeKind) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, created_at, props_json FROM nodes WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query nodes by kind: %w", err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var n Node
		var createdAtNano int64
		var propsJSON string
		var k string
		if err := rows.Scan(&n.ID, &k, &createdAtNano, &propsJSON); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Kind = NodeKind(k)
		n.CreatedAt = time.Unix(0, createdAtNano)
		_ = json.Unmarshal([]byte(propsJSON), &n.Props)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Counts reports node and edge counts for the stats command.
type Counts struct {
	NodesByKind map[NodeKind]int
	EdgesByType map[EdgeType]int
}

// CountAll returns node/edge counts grouped by kind/type.
func (s *Store) CountAll(ctx context.Context) (*Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &Counts{NodesByKind: map[NodeKind]int{}, EdgesByType: map[EdgeType]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, count(*) FROM nodes GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			rows.Close()
			return nil, err
		}
		out.NodesByKind[NodeKind(k)] = n
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT edge_type, count(*) FROM edges GROUP BY edge_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out.EdgesByType[EdgeType(t)] = n
	}
	return out, rows.Err()
}

// EdgeBetween returns the edge (src -> dst, type) if it exists.
func (s *Store) EdgeBetween(ctx context.Context, src, dst string, edgeType EdgeType) (*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE src=? AND dst=? AND edge_type=?`,
		src, dst, string(edgeType))
	e, err := scanEdgeRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func scanEdgeRow(row *sql.Row) (*Edge, error) {
	var e Edge
	var createdAtNano int64
	var lastActivated sql.NullInt64
	var propsJSON string
	var et string
	if err := row.Scan(&e.ID, &e.Src, &e.Dst, &et, &e.Weight, &createdAtNano, &lastActivated, &propsJSON); err != nil {
		return nil, err
	}
	e.Type = EdgeType(et)
	e.CreatedAt = time.Unix(0, createdAtNano)
	if lastActivated.Valid {
		t := time.Unix(0, lastActivated.Int64)
		e.LastActivated = &t
	}
	_ = json.Unmarshal([]byte(propsJSON), &e.Props)
	return &e, nil
}

// UpdateEdgeWeight sets an edge's weight in place, clamped to [0,1].
func (s *Store) UpdateEdgeWeight(ctx context.Context, edgeID string, weight float64) error {
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE edges SET weight = ? WHERE id = ?`, weight, edgeID)
	if err != nil {
		return fmt.Errorf("update edge weight: %w", err)
	}
	s.queryCache.Purge()
	return nil
}

// TouchEdgeActivation stamps last_activated = now, used by the activation
// engine and read by the sleep engine's decay phase.
func (s *Store) TouchEdgeActivation(ctx context.Context, edgeID string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE edges SET last_activated = ? WHERE id = ?`, when.UnixNano(), edgeID)
	return err
}

// DeleteEdge removes an edge by id.
func (s *Store) DeleteEdge(ctx context.Context, edgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, edgeID)
	if err != nil {
		return err
	}
	s.queryCache.Purge()
	return nil
}

func scanEdges(rows *sql.Rows) ([]Edge, error) {
	var out []Edge
	for rows.Next() {
		var e Edge
		var createdAtNano int64
		var lastActivated sql.NullInt64
		var propsJSON string
		var et string
		if err := rows.Scan(&e.ID, &e.Src, &e.Dst, &et, &e.Weight, &createdAtNano, &lastActivated, &propsJSON); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Type = EdgeType(et)
		e.CreatedAt = time.Unix(0, createdAtNano)
		if lastActivated.Valid {
			t := time.Unix(0, lastActivated.Int64)
			e.LastActivated = &t
		}
		_ = json.Unmarshal([]byte(propsJSON), &e.Props)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DecayAllEdges applies exponential decay weight <- weight * exp(-lambda *
// delta_t_days) to every edge in a single pass over the edge store (spec
// §4.12's decay phase). Edges that have never been activated decay from
// their created_at timestamp. The whole pass runs inside one transaction.
func (s *Store) DecayAllEdges(ctx context.Context, lambda float64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, weight, created_at, last_activated FROM edges`)
	if err != nil {
		return fmt.Errorf("decay edges: select: %w", err)
	}
	type decayUpdate struct {
		id     string
		weight float64
	}
	var updates []decayUpdate
	for rows.Next() {
		var id string
		var weight float64
		var createdAtNano int64
		var lastActivated sql.NullInt64
		if err := rows.Scan(&id, &weight, &createdAtNano, &lastActivated); err != nil {
			rows.Close()
			return fmt.Errorf("decay edges: scan: %w", err)
		}
		referenceNano := createdAtNano
		if lastActivated.Valid {
			referenceNano = lastActivated.Int64
		}
		deltaDays := now.Sub(time.Unix(0, referenceNano)).Hours() / 24
		if deltaDays < 0 {
			deltaDays = 0
		}
		newWeight := weight * math.Exp(-lambda*deltaDays)
		updates = append(updates, decayUpdate{id: id, weight: newWeight})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("decay edges: rows: %w", err)
	}
	rows.Close()

	stmt, err := tx.PrepareContext(ctx, `UPDATE edges SET weight = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("decay edges: prepare: %w", err)
	}
	defer stmt.Close()
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.weight, u.id); err != nil {
			return fmt.Errorf("decay edges: update %q: %w", u.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("decay edges: commit: %w", err)
	}
	s.queryCache.Purge()
	return nil
}

// PruneEdgesBelow deletes every edge with weight < threshold in a single
// batched DELETE (spec §4.12's prune phase), returning the number removed.
func (s *Store) PruneEdgesBelow(ctx context.Context, threshold float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM edges WHERE weight < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("prune edges: %w", err)
	}
	s.queryCache.Purge()
	return res.RowsAffected()
}

// Query is a read-only, parameterized query over the raw SQL tables
// (spec §4.1's "store's native graph query language", realized here as a
// parameterized SQL text rather than Datalog text — see DESIGN.md). Results
// are memoized in the LRU query cache keyed by (sql, args).
func (s *Store) Query(ctx context.Context, sqlQuery string, args ...any) (*QueryResult, error) {
	key := cacheKey(sqlQuery, args)
	if cached, ok := s.queryCache.Get(key); ok {
		return cached, nil
	}

	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.queryCache.Add(key, result)
	return result, nil
}

// Execute runs a mutating statement and clears the query cache.
func (s *Store) Execute(ctx context.Context, sqlStmt string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, sqlStmt, args...)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	s.queryCache.Purge()
	return nil
}

// ClearQueryCache drops all memoized query results. Required after any
// mutation burst that bypasses Execute/CreateNode/CreateEdge (spec §4.1).
func (s *Store) ClearQueryCache() {
	s.queryCache.Purge()
}

func cacheKey(query string, args []any) string {
	h := sha256.New()
	h.Write([]byte(query))
	for _, a := range args {
		fmt.Fprintf(h, "|%v", a)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func propsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

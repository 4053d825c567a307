package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/codegraph-mcp/internal/changes"
	"github.com/dshills/codegraph-mcp/internal/graph"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidDepth is returned for a negative subgraph depth
	ErrInvalidDepth = errors.New("invalid depth")
)

// maxBatchParams bounds the number of bound parameters in one IN (...) list
const maxBatchParams = 500

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// withTx runs fn in a transaction. fn must only use the querier it is given:
// the pool holds a single connection.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Node operations

const nodeColumns = `id, root_id, name, type, file_path, start_line, end_line, start_col, end_col, is_root, properties`

func (s *SQLiteStorage) createNodeWithQuerier(ctx context.Context, q querier, node *graph.CodeNode) (graph.NodeID, error) {
	if err := node.Type.Validate(); err != nil {
		return 0, err
	}
	props, err := encodeProperties(node.Properties)
	if err != nil {
		return 0, err
	}

	var rootID sql.NullInt64
	if node.RootID != 0 {
		rootID = sql.NullInt64{Int64: int64(node.RootID), Valid: true}
	}

	query := `
		INSERT INTO nodes (root_id, name, type, file_path, start_line, end_line, start_col, end_col, is_root, properties, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query,
		rootID, node.Name, string(node.Type), node.FilePath,
		node.Position.StartLine, node.Position.EndLine,
		nullableInt(node.Position.StartCol), nullableInt(node.Position.EndCol),
		node.IsRoot, props, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to create node: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	node.ID = graph.NodeID(id)
	return node.ID, nil
}

// CreateNode inserts a node and returns its identity
func (s *SQLiteStorage) CreateNode(ctx context.Context, node *graph.CodeNode) (graph.NodeID, error) {
	return s.createNodeWithQuerier(ctx, s.querier(), node)
}

// GetOrCreateRoot returns the root node of the repository at repoPath,
// creating it on first use
func (s *SQLiteStorage) GetOrCreateRoot(ctx context.Context, repoPath, name string) (graph.NodeID, error) {
	var id graph.NodeID
	err := s.withTx(ctx, func(q querier) error {
		err := q.QueryRowContext(ctx,
			`SELECT id FROM nodes WHERE is_root = 1 AND file_path = ?`, repoPath).Scan(&id)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to look up root: %w", err)
		}

		id, err = s.createNodeWithQuerier(ctx, q, &graph.CodeNode{
			Name:       name,
			Type:       graph.NodeModule,
			FilePath:   repoPath,
			Position:   graph.Lines(0, 0),
			IsRoot:     true,
			Properties: graph.Properties{"is_root": true},
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FindRoot returns the root node of the repository at repoPath, or
// ErrNotFound when it was never indexed
func (s *SQLiteStorage) FindRoot(ctx context.Context, repoPath string) (graph.NodeID, error) {
	var id graph.NodeID
	err := s.querier().QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE is_root = 1 AND file_path = ?`, repoPath).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up root: %w", err)
	}
	return id, nil
}

// GetNode returns the node with the given identity
func (s *SQLiteStorage) GetNode(ctx context.Context, id graph.NodeID) (*graph.CodeNode, error) {
	row := s.querier().QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, int64(id))
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

// ListNodesByFile returns the nodes of one file in creation order
func (s *SQLiteStorage) ListNodesByFile(ctx context.Context, rootID graph.NodeID, filePath string) ([]*graph.CodeNode, error) {
	rows, err := s.querier().QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE root_id = ? AND file_path = ? ORDER BY id`,
		int64(rootID), filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	nodes := make([]*graph.CodeNode, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// DeleteNodesByFile removes every node of one file together with all
// relations touching them
func (s *SQLiteStorage) DeleteNodesByFile(ctx context.Context, rootID graph.NodeID, filePath string) error {
	return s.withTx(ctx, func(q querier) error {
		const fileNodes = `SELECT id FROM nodes WHERE root_id = ? AND file_path = ? AND is_root = 0`
		if _, err := q.ExecContext(ctx,
			`DELETE FROM relations WHERE source_id IN (`+fileNodes+`) OR target_id IN (`+fileNodes+`)`,
			int64(rootID), filePath, int64(rootID), filePath); err != nil {
			return fmt.Errorf("failed to delete relations: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`DELETE FROM nodes WHERE root_id = ? AND file_path = ? AND is_root = 0`,
			int64(rootID), filePath); err != nil {
			return fmt.Errorf("failed to delete nodes: %w", err)
		}
		return nil
	})
}

// ClearRepository removes all graph content below a root. The root survives.
func (s *SQLiteStorage) ClearRepository(ctx context.Context, rootID graph.NodeID) error {
	return s.withTx(ctx, func(q querier) error {
		const repoNodes = `SELECT id FROM nodes WHERE root_id = ?`
		if _, err := q.ExecContext(ctx,
			`DELETE FROM relations WHERE source_id IN (`+repoNodes+`) OR target_id IN (`+repoNodes+`)`,
			int64(rootID), int64(rootID)); err != nil {
			return fmt.Errorf("failed to delete relations: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE root_id = ?`, int64(rootID)); err != nil {
			return fmt.Errorf("failed to delete nodes: %w", err)
		}
		return nil
	})
}

// Relation operations

// CreateRelation inserts a directed edge. Both endpoints must exist.
func (s *SQLiteStorage) CreateRelation(ctx context.Context, source, target graph.NodeID, typ graph.RelationType, props graph.Properties) error {
	if err := typ.Validate(); err != nil {
		return err
	}
	encoded, err := encodeProperties(props)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO relations (source_id, target_id, type, properties, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.querier().ExecContext(ctx, query, int64(source), int64(target), string(typ), encoded, time.Now()); err != nil {
		return fmt.Errorf("failed to create relation: %w", err)
	}
	return nil
}

// FetchSubgraph returns every node reachable from start within depth hops,
// following relations in either direction, and the relations among them
func (s *SQLiteStorage) FetchSubgraph(ctx context.Context, start graph.NodeID, depth int) (*graph.Subgraph, error) {
	if depth < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	if _, err := s.GetNode(ctx, start); err != nil {
		return nil, err
	}

	visited := map[graph.NodeID]struct{}{start: {}}
	relations := map[int64]*graph.CodeRelation{}
	frontier := []graph.NodeID{start}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		rels, err := s.relationsTouching(ctx, frontier)
		if err != nil {
			return nil, err
		}

		var next []graph.NodeID
		for _, r := range rels {
			relations[r.ID] = r
			for _, id := range []graph.NodeID{r.SourceID, r.TargetID} {
				if _, ok := visited[id]; !ok {
					visited[id] = struct{}{}
					next = append(next, id)
				}
			}
		}
		frontier = next
	}

	ids := make([]graph.NodeID, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	nodes, err := s.nodesByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	sub := &graph.Subgraph{Nodes: nodes, Relations: make([]*graph.CodeRelation, 0, len(relations))}
	for _, r := range relations {
		_, srcOK := visited[r.SourceID]
		_, tgtOK := visited[r.TargetID]
		if srcOK && tgtOK {
			sub.Relations = append(sub.Relations, r)
		}
	}
	sort.Slice(sub.Relations, func(i, j int) bool { return sub.Relations[i].ID < sub.Relations[j].ID })
	return sub, nil
}

func (s *SQLiteStorage) relationsTouching(ctx context.Context, ids []graph.NodeID) ([]*graph.CodeRelation, error) {
	var out []*graph.CodeRelation
	for _, batch := range batches(ids) {
		list, args := inList(batch)
		rows, err := s.querier().QueryContext(ctx,
			`SELECT id, source_id, target_id, type, properties FROM relations
			 WHERE source_id IN (`+list+`) OR target_id IN (`+list+`)`,
			append(args, args...)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var r graph.CodeRelation
			var src, tgt int64
			var typ string
			var props sql.NullString
			if err := rows.Scan(&r.ID, &src, &tgt, &typ, &props); err != nil {
				_ = rows.Close()
				return nil, err
			}
			r.SourceID, r.TargetID, r.Type = graph.NodeID(src), graph.NodeID(tgt), graph.RelationType(typ)
			if r.Properties, err = decodeProperties(props); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out = append(out, &r)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStorage) nodesByID(ctx context.Context, ids []graph.NodeID) ([]*graph.CodeNode, error) {
	nodes := make([]*graph.CodeNode, 0, len(ids))
	for _, batch := range batches(ids) {
		list, args := inList(batch)
		rows, err := s.querier().QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id IN (`+list+`)`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			node, err := scanNode(rows)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			nodes = append(nodes, node)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// Stats summarizes the graph content of one repository. DanglingRelations
// counts edges anywhere in the database whose endpoints are missing.
func (s *SQLiteStorage) Stats(ctx context.Context, rootID graph.NodeID) (*graph.Stats, error) {
	var stats graph.Stats
	q := s.querier()

	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT file_path) FROM nodes WHERE root_id = ?`,
		int64(rootID)).Scan(&stats.Nodes, &stats.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to count nodes: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM relations r
		JOIN nodes n ON n.id = r.target_id
		WHERE n.root_id = ?
	`, int64(rootID)).Scan(&stats.Relations)
	if err != nil {
		return nil, fmt.Errorf("failed to count relations: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM relations r
		WHERE NOT EXISTS (SELECT 1 FROM nodes WHERE id = r.source_id)
		   OR NOT EXISTS (SELECT 1 FROM nodes WHERE id = r.target_id)
	`).Scan(&stats.DanglingRelations)
	if err != nil {
		return nil, fmt.Errorf("failed to count dangling relations: %w", err)
	}

	return &stats, nil
}

// File hash operations

// LoadHashes returns the recorded content hash of every indexed file of repo
func (s *SQLiteStorage) LoadHashes(ctx context.Context, repo string) (map[string]changes.Hash, error) {
	rows, err := s.querier().QueryContext(ctx,
		`SELECT file_path, content_hash FROM file_hashes WHERE repository = ?`, repo)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]changes.Hash)
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		var h changes.Hash
		copy(h[:], raw)
		hashes[path] = h
	}
	return hashes, rows.Err()
}

func (s *SQLiteStorage) PutHash(ctx context.Context, repo, path string, hash changes.Hash) error {
	query := `
		INSERT INTO file_hashes (repository, file_path, content_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(repository, file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`
	if _, err := s.querier().ExecContext(ctx, query, repo, path, hash[:], time.Now()); err != nil {
		return fmt.Errorf("failed to store file hash: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteHash(ctx context.Context, repo, path string) error {
	_, err := s.querier().ExecContext(ctx,
		`DELETE FROM file_hashes WHERE repository = ? AND file_path = ?`, repo, path)
	return err
}

func (s *SQLiteStorage) ResetHashes(ctx context.Context, repo string) error {
	_, err := s.querier().ExecContext(ctx, `DELETE FROM file_hashes WHERE repository = ?`, repo)
	return err
}

// Run history operations

// SaveRun records the outcome of an indexing run
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *RunRecord) error {
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	var rootID sql.NullInt64
	if run.RootID != nil {
		rootID = sql.NullInt64{Int64: int64(*run.RootID), Valid: true}
	}

	query := `
		INSERT INTO index_runs (id, repository, root_id, status, incremental, indexed_files, skipped_files, errors, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.querier().ExecContext(ctx, query,
		run.ID, run.Repository, rootID, run.Status, run.Incremental,
		run.IndexedFiles, run.SkippedFiles, string(errs),
		run.StartedAt.UTC(), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run of a repository
func (s *SQLiteStorage) LastRun(ctx context.Context, repository string) (*RunRecord, error) {
	query := `
		SELECT id, repository, root_id, status, incremental, indexed_files, skipped_files, errors, started_at, duration_ms
		FROM index_runs
		WHERE repository = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`
	var run RunRecord
	var rootID sql.NullInt64
	var errs sql.NullString
	var durationMS int64
	err := s.querier().QueryRowContext(ctx, query, repository).Scan(
		&run.ID, &run.Repository, &rootID, &run.Status, &run.Incremental,
		&run.IndexedFiles, &run.SkippedFiles, &errs, &run.StartedAt, &durationMS,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if rootID.Valid {
		id := graph.NodeID(rootID.Int64)
		run.RootID = &id
	}
	if errs.Valid && errs.String != "" {
		if err := json.Unmarshal([]byte(errs.String), &run.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode run errors: %w", err)
		}
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

// Helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*graph.CodeNode, error) {
	var node graph.CodeNode
	var id int64
	var rootID, startCol, endCol sql.NullInt64
	var typ string
	var props sql.NullString

	err := row.Scan(&id, &rootID, &node.Name, &typ, &node.FilePath,
		&node.Position.StartLine, &node.Position.EndLine, &startCol, &endCol,
		&node.IsRoot, &props)
	if err != nil {
		return nil, err
	}

	node.ID = graph.NodeID(id)
	node.Type = graph.NodeType(typ)
	if rootID.Valid {
		node.RootID = graph.NodeID(rootID.Int64)
	}
	if startCol.Valid {
		c := int(startCol.Int64)
		node.Position.StartCol = &c
	}
	if endCol.Valid {
		c := int(endCol.Int64)
		node.Position.EndCol = &c
	}
	if node.Properties, err = decodeProperties(props); err != nil {
		return nil, err
	}
	return &node, nil
}

func encodeProperties(props graph.Properties) (sql.NullString, error) {
	if len(props) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode properties: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeProperties(raw sql.NullString) (graph.Properties, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var props graph.Properties
	if err := json.Unmarshal([]byte(raw.String), &props); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return props, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func batches(ids []graph.NodeID) [][]graph.NodeID {
	var out [][]graph.NodeID
	for len(ids) > maxBatchParams {
		out = append(out, ids[:maxBatchParams])
		ids = ids[maxBatchParams:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func inList(ids []graph.NodeID) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

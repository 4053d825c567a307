// Package storage provides SQLite-based persistence for the code graph.
//
// The storage layer manages:
//   - Graph nodes, including one root node per repository
//   - Directed relations between nodes
//   - Content hashes of indexed files, for incremental runs
//   - The history of indexing runs
//
// # Database Schema
//
// Tables:
//   - nodes: CodeNodes with their repository root, file path, span and JSON properties
//   - relations: CONTAINS and reserved relation kinds between nodes
//   - file_hashes: SHA-256 of every successfully indexed file, per repository
//   - index_runs: outcome of each run (status, counters, error list)
//
// A partial unique index on nodes(file_path) WHERE is_root = 1 makes root
// creation idempotent per repository path.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.codegraph/graph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	rootID, err := db.GetOrCreateRoot(ctx, "/src/app", "app")
//	moduleID, err := db.CreateNode(ctx, &graph.CodeNode{
//	    RootID:   rootID,
//	    Name:     "main.py",
//	    Type:     graph.NodeModule,
//	    FilePath: "main.py",
//	    Position: graph.Lines(1, 40),
//	})
//	err = db.CreateRelation(ctx, rootID, moduleID, graph.RelationContains, nil)
//
// # Deletion
//
// DeleteNodesByFile and ClearRepository remove relations before nodes inside
// one transaction, so no edge survives its endpoints. Foreign keys are also
// enabled, which rejects relations to nodes that do not exist.
//
// # Incremental Updates
//
// SQLiteStorage implements changes.HashStore:
//
//	hashes, _ := db.LoadHashes(ctx, "/src/app")
//	if hashes["main.py"] != current {
//	    // re-project main.py, then
//	    _ = db.PutHash(ctx, "/src/app", "main.py", current)
//	}
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// CGO Build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed for storage
//
//     go build -tags "purego"
//
// The tree-sitter grammars used by the parser package need cgo regardless.
package storage

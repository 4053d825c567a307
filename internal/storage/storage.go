package storage

import (
	"context"
	"time"

	"github.com/dshills/codegraph-mcp/internal/changes"
	"github.com/dshills/codegraph-mcp/internal/graph"
)

// Storage persists the code graph, the per-file content hashes used for
// change detection, and the history of indexing runs
type Storage interface {
	graph.Store
	changes.HashStore

	// FindRoot returns the root node of an already indexed repository
	// without creating one
	FindRoot(ctx context.Context, repoPath string) (graph.NodeID, error)

	// Run history
	SaveRun(ctx context.Context, run *RunRecord) error
	LastRun(ctx context.Context, repository string) (*RunRecord, error)

	Close() error
}

// RunRecord is the persisted summary of one indexing run
type RunRecord struct {
	ID           string
	Repository   string
	RootID       *graph.NodeID // Nil when the run was skipped before the root existed
	Status       string
	Incremental  bool
	IndexedFiles int
	SkippedFiles int
	Errors       []string
	StartedAt    time.Time
	Duration     time.Duration
}

var (
	_ Storage           = (*SQLiteStorage)(nil)
	_ graph.Store       = (*SQLiteStorage)(nil)
	_ changes.HashStore = (*SQLiteStorage)(nil)
)

package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/codegraph-mcp/internal/changes"
	"github.com/dshills/codegraph-mcp/internal/config"
	"github.com/dshills/codegraph-mcp/internal/graph"
	"github.com/dshills/codegraph-mcp/internal/parser"
	"github.com/dshills/codegraph-mcp/internal/projector"
	"github.com/dshills/codegraph-mcp/internal/selector"
	"github.com/dshills/codegraph-mcp/internal/storage"
)

var (
	// ErrRepositoryNotFound is returned when the repository path is not a directory
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrRepositoryTooLarge is returned when the eligible files exceed the repository ceiling
	ErrRepositoryTooLarge = errors.New("repository too large")
	// ErrIndexingInProgress is returned when another run holds the repository
	ErrIndexingInProgress = errors.New("indexing already in progress for this repository")
)

// Status is the terminal state of a run
type Status string

const (
	StatusDone    Status = "DONE"
	StatusSkipped Status = "SKIPPED"
	StatusFailed  Status = "FAILED"
)

// RunSummary describes the outcome of one indexing run
type RunSummary struct {
	RunID        string        `json:"run_id"`
	Repository   string        `json:"repository"`
	Status       Status        `json:"status"`
	Incremental  bool          `json:"incremental"`
	IndexedFiles int           `json:"indexed_files"`
	SkippedFiles int           `json:"skipped_files"`
	Errors       []string      `json:"errors"`
	RootNodeID   *graph.NodeID `json:"root_node_id"`

	Added     []string `json:"added"`
	Modified  []string `json:"modified"`
	Deleted   []string `json:"deleted"`
	Unchanged []string `json:"unchanged"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// RunRecorder persists run summaries
type RunRecorder interface {
	SaveRun(ctx context.Context, run *storage.RunRecord) error
}

// Indexer keeps the code graph of repositories in sync with their files.
// A run on one repository is sequential; different repositories may be
// indexed concurrently.
type Indexer struct {
	cfg       *config.Config
	store     graph.Store
	detector  *changes.Detector
	registry  *parser.Registry
	projector *projector.Projector
	recorder  RunRecorder
	logger    *slog.Logger
	locks     repoLocks

	// Worker pool size for IndexRepositories
	workers int
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) { idx.logger = logger }
}

// WithRegistry replaces the default parser registry
func WithRegistry(r *parser.Registry) Option {
	return func(idx *Indexer) { idx.registry = r }
}

// WithHashStore replaces the hash state used for change detection
func WithHashStore(hs changes.HashStore) Option {
	return func(idx *Indexer) { idx.detector = changes.NewDetector(hs) }
}

// WithRunRecorder stores a record of every finished run
func WithRunRecorder(rec RunRecorder) Option {
	return func(idx *Indexer) { idx.recorder = rec }
}

// WithWorkers sets how many repositories IndexRepositories runs at once
func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// New creates an Indexer writing to store. Content hashes and run records
// are kept in store as well unless overridden by options.
func New(cfg *config.Config, store storage.Storage, opts ...Option) *Indexer {
	return NewWithStore(cfg, store, store, append([]Option{WithRunRecorder(store)}, opts...)...)
}

// NewWithStore creates an Indexer from separate graph and hash stores.
// No run records are written unless WithRunRecorder is given.
func NewWithStore(cfg *config.Config, store graph.Store, hashes changes.HashStore, opts ...Option) *Indexer {
	if cfg == nil {
		cfg = config.Default()
	}
	idx := &Indexer{
		cfg:       cfg,
		store:     store,
		detector:  changes.NewDetector(hashes),
		registry:  parser.DefaultRegistry(),
		projector: projector.New(store),
		logger:    slog.Default(),
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexRepository indexes the repository at path. With incremental set only
// added, modified and deleted files are processed; otherwise the repository's
// graph and hash state are cleared and every eligible file is projected.
//
// ErrRepositoryNotFound, ErrRepositoryTooLarge and ErrIndexingInProgress are
// returned before any graph mutation. File-scoped failures never abort the
// run; they are counted in SkippedFiles and listed in Errors.
func (idx *Indexer) IndexRepository(ctx context.Context, path string, incremental bool) (*RunSummary, error) {
	abs, err := filepath.Abs(config.ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}
	if !selector.Exists(abs) {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, abs)
	}

	release, ok := idx.locks.tryAcquire(abs)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexingInProgress, abs)
	}
	defer release()

	run := &runState{
		Indexer: idx,
		summary: &RunSummary{
			RunID:       uuid.NewString(),
			Repository:  abs,
			Incremental: incremental,
			Errors:      []string{},
			StartedAt:   time.Now(),
		},
	}
	run.log = idx.logger.With("run_id", run.summary.RunID, "repository", abs)
	run.log.Info("index.start", "incremental", incremental)

	err = run.execute(ctx)
	run.finish(ctx, err)
	return run.summary, err
}

// IndexRepositories indexes several repositories concurrently. Summaries are
// returned in the order of paths; a repository that failed before producing a
// summary has a nil entry. The returned error joins every per-repository error.
func (idx *Indexer) IndexRepositories(ctx context.Context, paths []string, incremental bool) ([]*RunSummary, error) {
	summaries := make([]*RunSummary, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(idx.workers)
	for i, p := range paths {
		g.Go(func() error {
			summary, err := idx.IndexRepository(ctx, p, incremental)
			summaries[i] = summary
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", p, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return summaries, errors.Join(errs...)
}

// runState carries one run through its phases
type runState struct {
	*Indexer
	summary *RunSummary
	log     *slog.Logger
	rootID  graph.NodeID
}

func (r *runState) execute(ctx context.Context) error {
	repo := r.summary.Repository

	sel, err := selector.New(r.cfg, repo)
	if err != nil {
		return fmt.Errorf("failed to build file selector: %w", err)
	}
	eligible, oversized, err := sel.Eligible()
	if err != nil {
		return fmt.Errorf("failed to walk repository: %w", err)
	}

	if limit := r.cfg.Index.MaxRepositorySize; limit > 0 {
		var total int64
		for _, c := range eligible {
			total += c.Size
		}
		if total > limit {
			r.summary.Status = StatusSkipped
			return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrRepositoryTooLarge, total, limit)
		}
	}

	r.rootID, err = r.store.GetOrCreateRoot(ctx, repo, filepath.Base(repo))
	if err != nil {
		return fmt.Errorf("failed to get or create root: %w", err)
	}
	rootID := r.rootID
	r.summary.RootNodeID = &rootID

	for _, c := range oversized {
		r.summary.SkippedFiles++
		r.log.Debug("index.file_oversized", "path", c.RelPath, "size", c.Size, "limit", sel.MaxFileSize())
	}

	if r.summary.Incremental {
		return r.incremental(ctx, eligible)
	}
	return r.full(ctx, eligible)
}

func (r *runState) incremental(ctx context.Context, eligible []selector.Candidate) error {
	repo := r.summary.Repository

	cs, err := r.detector.Detect(ctx, repo, eligible)
	if err != nil {
		return fmt.Errorf("failed to detect changes: %w", err)
	}

	for _, rel := range sortedKeys(cs.Failed) {
		r.fileFailed(rel, cs.Failed[rel])
	}

	for _, rel := range cs.Deleted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.store.DeleteNodesByFile(ctx, r.rootID, rel); err != nil {
			r.fileFailed(rel, err)
			continue
		}
		if err := r.detector.Forget(ctx, repo, rel); err != nil {
			return fmt.Errorf("failed to forget %s: %w", rel, err)
		}
		r.summary.Deleted = append(r.summary.Deleted, rel)
	}

	for _, fc := range cs.Modified {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.store.DeleteNodesByFile(ctx, r.rootID, fc.RelPath); err != nil {
			r.fileFailed(fc.RelPath, err)
			continue
		}
		// The old nodes are gone, so the stored hash no longer describes the graph
		if err := r.detector.Forget(ctx, repo, fc.RelPath); err != nil {
			return fmt.Errorf("failed to forget %s: %w", fc.RelPath, err)
		}
		if r.indexFile(ctx, fc) {
			r.summary.Modified = append(r.summary.Modified, fc.RelPath)
		}
	}

	for _, fc := range cs.Added {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.indexFile(ctx, fc) {
			r.summary.Added = append(r.summary.Added, fc.RelPath)
		}
	}

	r.summary.Unchanged = cs.Unchanged
	return nil
}

func (r *runState) full(ctx context.Context, eligible []selector.Candidate) error {
	repo := r.summary.Repository

	if err := r.store.ClearRepository(ctx, r.rootID); err != nil {
		return fmt.Errorf("failed to clear repository: %w", err)
	}
	if err := r.detector.Reset(ctx, repo); err != nil {
		return fmt.Errorf("failed to reset file hashes: %w", err)
	}

	for _, c := range eligible {
		if err := ctx.Err(); err != nil {
			return err
		}
		hash, err := changes.HashFile(c.AbsPath)
		if err != nil {
			r.fileFailed(c.RelPath, err)
			continue
		}
		if r.indexFile(ctx, changes.FileChange{Candidate: c, Hash: hash}) {
			r.summary.Added = append(r.summary.Added, c.RelPath)
		}
	}
	return nil
}

// indexFile parses and projects one file and records its hash once the
// projection has succeeded. It reports whether the file was indexed.
func (r *runState) indexFile(ctx context.Context, fc changes.FileChange) bool {
	content, err := os.ReadFile(fc.AbsPath)
	if err != nil {
		r.fileFailed(fc.RelPath, err)
		return false
	}

	tree, err := r.registry.Parse(content, fc.RelPath)
	if err != nil {
		r.fileFailed(fc.RelPath, err)
		return false
	}

	res, err := r.projector.Project(ctx, r.rootID, fc.RelPath, tree)
	if err != nil {
		r.fileFailed(fc.RelPath, err)
		return false
	}

	if err := r.detector.Commit(ctx, r.summary.Repository, fc.RelPath, fc.Hash); err != nil {
		// Nodes without a stored hash would be projected a second time next run
		_ = r.store.DeleteNodesByFile(context.WithoutCancel(ctx), r.rootID, fc.RelPath)
		r.fileFailed(fc.RelPath, fmt.Errorf("failed to record hash: %w", err))
		return false
	}

	r.summary.IndexedFiles++
	r.log.Debug("index.file", "path", fc.RelPath, "nodes", res.Nodes, "relations", res.Relations)
	return true
}

func (r *runState) fileFailed(rel string, err error) {
	r.summary.SkippedFiles++
	r.summary.Errors = append(r.summary.Errors, fmt.Sprintf("%s: %v", rel, err))
	r.log.Warn("index.file_failed", "path", rel, "error", err)
}

func (r *runState) finish(ctx context.Context, err error) {
	s := r.summary
	s.Duration = time.Since(s.StartedAt)

	switch {
	case s.Status == StatusSkipped:
		r.log.Warn("index.skipped", "error", err)
	case err != nil:
		s.Status = StatusFailed
		r.log.Error("index.failed", "error", err,
			"indexed_files", s.IndexedFiles, "skipped_files", s.SkippedFiles)
	default:
		s.Status = StatusDone
		r.log.Info("index.done",
			"indexed_files", s.IndexedFiles,
			"skipped_files", s.SkippedFiles,
			"added", len(s.Added),
			"modified", len(s.Modified),
			"deleted", len(s.Deleted),
			"unchanged", len(s.Unchanged),
			"duration", s.Duration)
	}

	if r.recorder == nil {
		return
	}
	rec := &storage.RunRecord{
		ID:           s.RunID,
		Repository:   s.Repository,
		RootID:       s.RootNodeID,
		Status:       string(s.Status),
		Incremental:  s.Incremental,
		IndexedFiles: s.IndexedFiles,
		SkippedFiles: s.SkippedFiles,
		Errors:       s.Errors,
		StartedAt:    s.StartedAt,
		Duration:     s.Duration,
	}
	if err := r.recorder.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Warn("index.record_failed", "error", err)
	}
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

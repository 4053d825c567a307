// Package indexer keeps the code graph of a repository in sync with its files.
//
// The indexer orchestrates file selection, change detection, parsing and
// graph projection. A run moves through SCANNING and a per-file PROJECTING
// phase to DONE, or ends SKIPPED when the repository exceeds its size ceiling,
// or FAILED on an error outside file-scoped handling.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.codegraph/graph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	idx := indexer.New(config.Default(), db, indexer.WithLogger(logger))
//
//	summary, err := idx.IndexRepository(ctx, "/src/app", true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("indexed %d, skipped %d\n", summary.IndexedFiles, summary.SkippedFiles)
//
// # Incremental Runs
//
// With incremental set, files are classified by content hash:
//
//   - added: projected
//   - modified: nodes of the file deleted, then projected
//   - deleted: nodes of the file deleted
//   - unchanged: left alone
//
// A file's hash is stored only after its projection succeeded, so a file that
// failed to parse or project is retried on the next run.
//
// # Full Runs
//
// Without incremental, every non-root node of the repository and every stored
// hash is removed before all eligible files are projected again.
//
// # Errors
//
// ErrRepositoryNotFound, ErrRepositoryTooLarge and ErrIndexingInProgress are
// returned before the graph is touched. Parse and graph write failures are
// file-scoped: they are counted in RunSummary.SkippedFiles and listed in
// RunSummary.Errors as "<relative path>: <reason>".
//
// # Concurrency
//
// A run on one repository is sequential. IndexRepositories indexes several
// repositories concurrently; a second run on a repository that is already
// being indexed fails with ErrIndexingInProgress.
package indexer

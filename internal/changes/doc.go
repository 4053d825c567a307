// Package changes detects which files of a repository changed since the
// last successful run.
//
// Detect hashes every candidate with SHA-256 and compares the result with
// the hashes kept in a HashStore, sorting paths into added, modified,
// deleted and unchanged. Files that cannot be read are reported in Failed
// and are neither added nor deleted.
//
// Detect never writes hash state. The caller records a file with Commit
// once its nodes are in the graph, and drops it with Forget once its nodes
// are gone, so a file whose projection failed is retried on the next run.
// Reset clears a repository before a full run.
//
//	det := changes.NewDetector(changes.NewMemoryStore())
//	cs, err := det.Detect(ctx, repo, candidates)
//	for _, fc := range cs.Added {
//		// parse and project fc, then
//		err = det.Commit(ctx, repo, fc.RelPath, fc.Hash)
//	}
package changes

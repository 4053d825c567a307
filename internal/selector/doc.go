// Package selector decides which files of a repository are indexed.
//
// A file is eligible when its extension has a registered parser, no
// directory on its path is in the skip-set, it matches neither the root
// .gitignore nor the configured ignore globs, and it is within the file
// size ceiling. Per-repository include and exclude directories from the
// configuration narrow the walk further.
//
//	sel, err := selector.New(cfg, "/src/app")
//	eligible, oversized, err := sel.Eligible()
//
// Relative paths use forward slashes on every platform.
package selector

// Package projector writes a parsed file into the graph.
//
// Projection runs in two phases over an explicit work queue: every node of
// the tree is created first, then one CONTAINS relation per parent/child
// pair (and one from the repository root to the module). If any write
// fails, the nodes already written for the file are deleted and
// ErrGraphWrite is returned, so a file is either fully present or absent.
package projector

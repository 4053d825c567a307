// Package graph defines the structural code graph shared by the parsers,
// the projector and the storage layer.
//
// # Model
//
// Parsers emit an ASTNode tree per file. The projector turns each ASTNode into
// a persisted CodeNode and links parents to children with CONTAINS relations:
//
//	repository root
//	  └── CONTAINS → MODULE (a.py)
//	        ├── CONTAINS → CLASS A
//	        │     └── CONTAINS → METHOD m
//	        └── CONTAINS → FUNCTION f
//
// Every non-root node has exactly one incoming CONTAINS edge. CALLS, INHERITS,
// IMPORTS and USES are part of the schema but are not computed by the indexer.
//
// # Identity
//
// Node identities are assigned by the Store and are opaque to callers. A
// repository root is keyed by its absolute path; every other node carries the
// identity of its repository root and a forward-slash path relative to it.
package graph

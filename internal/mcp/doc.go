// Package mcp implements the Model Context Protocol (MCP) server for the code graph.
//
// The MCP server exposes four tools:
//   - index_repository: Index a repository, incrementally or from scratch
//   - get_subgraph: Fetch the nodes and relations around a repository root
//   - get_node: Fetch one node with its incoming and outgoing relations
//   - index_status: Report the last run and graph statistics of a repository
//
// The server communicates over stdio; stdout is reserved for the protocol and
// logs go to stderr.
//
//	codegraph serve
//
// # Tool: index_repository
//
//	Request:
//	{
//	  "name": "index_repository",
//	  "arguments": {
//	    "path": "/src/app",
//	    "incremental": true
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "5f0c...",
//	  "repository": "/src/app",
//	  "status": "DONE",
//	  "indexed_files": 12,
//	  "skipped_files": 1,
//	  "errors": ["bad.py: parse error at line 3, column 4: invalid syntax"],
//	  "root_node_id": 1,
//	  "added": ["a.py"],
//	  ...
//	}
//
// # Tool: get_subgraph
//
// Takes either the repository path or the root node id, and an optional depth
// (default 3, at most 10):
//
//	{"name": "get_subgraph", "arguments": {"path": "/src/app", "depth": 2}}
//
// Subgraphs are cached until the next index_repository call.
//
// # Tool: get_node
//
//	{"name": "get_node", "arguments": {"node_id": 2}}
//
// # Tool: index_status
//
//	{"name": "index_status", "arguments": {"path": "/src/app"}}
//
// # Error Codes
//
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Repository not found
//   - -32002: Indexing in progress
//   - -32003: Repository not indexed
//   - -32004: Repository too large
//   - -32005: Node not found
//   - -32006: Neither path nor root_id given
package mcp

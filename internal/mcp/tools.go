package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codegraph-mcp/internal/graph"
	"github.com/dshills/codegraph-mcp/internal/indexer"
	"github.com/dshills/codegraph-mcp/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams         = -32602 // Invalid method parameters
	ErrorCodeInternalError         = -32603 // Internal JSON-RPC error
	ErrorCodeRepositoryNotFound    = -32001 // Specified path is not a directory
	ErrorCodeIndexingInProgress    = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed            = -32003 // Repository not indexed
	ErrorCodeRepositoryTooLarge    = -32004 // Eligible files exceed the repository ceiling
	ErrorCodeNodeNotFound          = -32005 // root_id or node_id does not name a node
	ErrorCodeInvalidSubgraphTarget = -32006 // Neither path nor root_id given
)

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	incremental := getBoolDefault(args, "incremental", true)

	summary, err := s.indexer.IndexRepository(ctx, path, incremental)
	if summary != nil {
		s.explorer.Invalidate()
	}
	switch {
	case errors.Is(err, indexer.ErrRepositoryNotFound):
		return nil, newMCPError(ErrorCodeRepositoryNotFound, "repository not found", map[string]interface{}{
			"path": path,
		})
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"path": path,
		})
	case errors.Is(err, indexer.ErrRepositoryTooLarge):
		return nil, newMCPError(ErrorCodeRepositoryTooLarge, "repository too large", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	case err != nil:
		data := map[string]interface{}{"error": err.Error()}
		if summary != nil {
			data["summary"] = summary
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", data)
	}

	return mcp.NewToolResultText(formatJSON(summary)), nil
}

// handleGetSubgraph handles the get_subgraph tool invocation
func (s *Server) handleGetSubgraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	depth := getIntDefault(args, "depth", DefaultSubgraphDepth)
	if depth < 0 || depth > MaxSubgraphDepth {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("depth must be between 0 and %d", MaxSubgraphDepth), map[string]interface{}{
			"param": "depth",
			"value": depth,
		})
	}

	var rootID graph.NodeID
	if id := getIntDefault(args, "root_id", 0); id > 0 {
		rootID = graph.NodeID(id)
	} else if _, hasPath := args["path"]; hasPath {
		path, err := requirePath(args)
		if err != nil {
			return nil, err
		}
		rootID, err = s.indexedRoot(ctx, path)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, newMCPError(ErrorCodeInvalidSubgraphTarget, "path or root_id is required", nil)
	}

	sub, cached, err := s.explorer.Subgraph(ctx, rootID, depth)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNodeNotFound, "node not found", map[string]interface{}{
			"root_id": rootID,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to fetch subgraph", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"root_id":   rootID,
		"depth":     depth,
		"cached":    cached,
		"nodes":     sub.Nodes,
		"relations": sub.Relations,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetNode handles the get_node tool invocation
func (s *Server) handleGetNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id := getIntDefault(args, "node_id", 0)
	if id <= 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "node_id parameter is required", map[string]interface{}{
			"param":  "node_id",
			"reason": "missing or not positive",
		})
	}

	detail, err := s.explorer.Node(ctx, graph.NodeID(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNodeNotFound, "node not found", map[string]interface{}{
			"node_id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to fetch node", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(detail)), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	run, err := s.storage.LastRun(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "Repository not indexed. Use index_repository tool to index this repository.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get repository status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	rootID, err := s.rootOf(ctx, path, run)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get repository status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	indexed := err == nil

	response := map[string]interface{}{
		"indexed": indexed,
		"path":    path,
		"last_run": map[string]interface{}{
			"run_id":        run.ID,
			"status":        run.Status,
			"incremental":   run.Incremental,
			"indexed_files": run.IndexedFiles,
			"skipped_files": run.SkippedFiles,
			"errors":        run.Errors,
			"started_at":    run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
			"duration_ms":   run.Duration.Milliseconds(),
		},
	}

	if indexed {
		stats, err := s.storage.Stats(ctx, rootID)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to get statistics", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["root_id"] = rootID
		response["statistics"] = stats
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// indexedRoot returns the root node of the repository at path. A run that
// was skipped before reaching the graph leaves an earlier graph in place.
func (s *Server) indexedRoot(ctx context.Context, path string) (graph.NodeID, error) {
	run, err := s.storage.LastRun(ctx, path)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, newMCPError(ErrorCodeInternalError, "failed to get repository status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	id, err := s.rootOf(ctx, path, run)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, newMCPError(ErrorCodeNotIndexed, "repository not indexed", map[string]interface{}{
			"path": path,
		})
	}
	if err != nil {
		return 0, newMCPError(ErrorCodeInternalError, "failed to look up repository root", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return id, nil
}

// rootOf prefers the root recorded by run and otherwise looks the root up
// without creating it
func (s *Server) rootOf(ctx context.Context, path string, run *storage.RunRecord) (graph.NodeID, error) {
	if run != nil && run.RootID != nil {
		return *run.RootID, nil
	}
	return s.storage.FindRoot(ctx, path)
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requirePath extracts and validates the path argument, returning it cleaned
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// validatePath checks if a path exists and is a readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)

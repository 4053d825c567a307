package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codegraph-mcp/internal/config"
	"github.com/dshills/codegraph-mcp/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	s := NewServerWithStorage(config.Default(), store, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createRepository(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()
	src := "class A:\n    def m(self): pass\n\ndef f(): pass\n"
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.py"), []byte(src), 0o644))
	return repo
}

func callTool(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "graph.db")

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.NotNil(t, s.indexer)
	assert.NotNil(t, s.storage)
	assert.FileExists(t, cfg.DBPath)
}

func TestIndexRepositoryTool(t *testing.T) {
	s := newTestServer(t)
	repo := createRepository(t)

	res, err := s.handleIndexRepository(context.Background(), callTool(map[string]interface{}{
		"path": repo,
	}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	assert.Equal(t, "DONE", out["status"])
	assert.Equal(t, repo, out["repository"])
	assert.Equal(t, float64(1), out["indexed_files"])
	assert.Equal(t, float64(0), out["skipped_files"])
	assert.Equal(t, []interface{}{}, out["errors"])
	assert.NotNil(t, out["root_node_id"])
	assert.Equal(t, true, out["incremental"])
}

func TestIndexRepositoryTool_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing path", map[string]interface{}{}},
		{"relative path", map[string]interface{}{"path": "relative/dir"}},
		{"missing directory", map[string]interface{}{"path": filepath.Join(t.TempDir(), "nope")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleIndexRepository(ctx, callTool(tt.args))
			requireMCPError(t, err, ErrorCodeInvalidParams)
		})
	}

	var req mcp.CallToolRequest
	req.Params.Arguments = "not a map"
	_, err := s.handleIndexRepository(ctx, req)
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestIndexRepositoryTool_TooLarge(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Index.MaxRepositorySize = 4
	s := NewServerWithStorage(cfg, store, nil)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.handleIndexRepository(context.Background(), callTool(map[string]interface{}{
		"path": createRepository(t),
	}))
	requireMCPError(t, err, ErrorCodeRepositoryTooLarge)
}

func TestGetSubgraphTool(t *testing.T) {
	s := newTestServer(t)
	repo := createRepository(t)
	ctx := context.Background()

	res, err := s.handleIndexRepository(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)
	rootID := resultJSON(t, res)["root_node_id"]

	res, err = s.handleGetSubgraph(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)
	byPath := resultJSON(t, res)
	assert.Equal(t, rootID, byPath["root_id"])
	assert.Equal(t, float64(DefaultSubgraphDepth), byPath["depth"])
	assert.Len(t, byPath["nodes"], 5)
	assert.Len(t, byPath["relations"], 4)

	res, err = s.handleGetSubgraph(ctx, callTool(map[string]interface{}{"root_id": rootID, "depth": float64(1)}))
	require.NoError(t, err)
	shallow := resultJSON(t, res)
	assert.Len(t, shallow["nodes"], 2)
	assert.Len(t, shallow["relations"], 1)
}

func TestGetSubgraphTool_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleGetSubgraph(ctx, callTool(map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidSubgraphTarget)

	_, err = s.handleGetSubgraph(ctx, callTool(map[string]interface{}{"root_id": float64(1), "depth": float64(MaxSubgraphDepth + 1)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleGetSubgraph(ctx, callTool(map[string]interface{}{"root_id": float64(9999)}))
	requireMCPError(t, err, ErrorCodeNodeNotFound)

	_, err = s.handleGetSubgraph(ctx, callTool(map[string]interface{}{"path": createRepository(t)}))
	requireMCPError(t, err, ErrorCodeNotIndexed)
}

func TestIndexStatusTool(t *testing.T) {
	s := newTestServer(t)
	repo := createRepository(t)
	ctx := context.Background()

	res, err := s.handleIndexStatus(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)
	before := resultJSON(t, res)
	assert.Equal(t, false, before["indexed"])

	_, err = s.handleIndexRepository(ctx, callTool(map[string]interface{}{"path": repo, "incremental": false}))
	require.NoError(t, err)

	res, err = s.handleIndexStatus(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)
	after := resultJSON(t, res)
	assert.Equal(t, true, after["indexed"])

	lastRun, ok := after["last_run"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "DONE", lastRun["status"])
	assert.Equal(t, false, lastRun["incremental"])
	assert.Equal(t, float64(1), lastRun["indexed_files"])

	stats, ok := after["statistics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(4), stats["nodes"])
	assert.Equal(t, float64(4), stats["relations"])
	assert.Equal(t, float64(1), stats["files"])
	assert.Equal(t, float64(0), stats["dangling_relations"])
}

func TestGetSubgraphTool_CacheInvalidatedByIndexing(t *testing.T) {
	s := newTestServer(t)
	repo := createRepository(t)
	ctx := context.Background()
	args := map[string]interface{}{"path": repo, "depth": float64(2)}

	_, err := s.handleIndexRepository(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)

	res, err := s.handleGetSubgraph(ctx, callTool(args))
	require.NoError(t, err)
	assert.Equal(t, false, resultJSON(t, res)["cached"])

	res, err = s.handleGetSubgraph(ctx, callTool(args))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, res)["cached"])

	// A new file changes the graph, so the cached subgraph must not be served
	require.NoError(t, os.WriteFile(filepath.Join(repo, "b.py"), []byte("def g(): pass\n"), 0o644))
	_, err = s.handleIndexRepository(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)

	res, err = s.handleGetSubgraph(ctx, callTool(args))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, false, out["cached"])
	// root, two modules, A and f, g
	assert.Len(t, out["nodes"], 6)
}

func TestGetNodeTool(t *testing.T) {
	s := newTestServer(t)
	repo := createRepository(t)
	ctx := context.Background()

	res, err := s.handleIndexRepository(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)
	rootID := resultJSON(t, res)["root_node_id"]

	res, err = s.handleGetNode(ctx, callTool(map[string]interface{}{"node_id": rootID}))
	require.NoError(t, err)
	out := resultJSON(t, res)

	node, ok := out["node"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, node["is_root"])

	neighbors, ok := out["neighbors"].([]interface{})
	require.True(t, ok)
	require.Len(t, neighbors, 1)
	first := neighbors[0].(map[string]interface{})
	assert.Equal(t, "outgoing", first["direction"])
	assert.Equal(t, "a.py", first["node"].(map[string]interface{})["name"])

	_, err = s.handleGetNode(ctx, callTool(map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleGetNode(ctx, callTool(map[string]interface{}{"node_id": float64(424242)}))
	requireMCPError(t, err, ErrorCodeNodeNotFound)
}

func TestSkippedRunKeepsEarlierGraph(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	repo := createRepository(t)
	ctx := context.Background()

	first := NewServerWithStorage(config.Default(), store, nil)
	res, err := first.handleIndexRepository(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)
	rootID := resultJSON(t, res)["root_node_id"]

	cfg := config.Default()
	cfg.Index.MaxRepositorySize = 4
	s := NewServerWithStorage(cfg, store, nil)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.handleIndexRepository(ctx, callTool(map[string]interface{}{"path": repo}))
	requireMCPError(t, err, ErrorCodeRepositoryTooLarge)

	res, err = s.handleIndexStatus(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)
	status := resultJSON(t, res)
	assert.Equal(t, true, status["indexed"])
	assert.Equal(t, rootID, status["root_id"])
	assert.Equal(t, "SKIPPED", status["last_run"].(map[string]interface{})["status"])
	assert.Equal(t, float64(4), status["statistics"].(map[string]interface{})["nodes"])

	res, err = s.handleGetSubgraph(ctx, callTool(map[string]interface{}{"path": repo}))
	require.NoError(t, err)
	sub := resultJSON(t, res)
	assert.Equal(t, rootID, sub["root_id"])
	assert.Len(t, sub["nodes"], 5)
}

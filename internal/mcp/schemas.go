package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// DefaultSubgraphDepth is used when get_subgraph is called without a depth
	DefaultSubgraphDepth = 3
	// MaxSubgraphDepth bounds the traversal of get_subgraph
	MaxSubgraphDepth = 10
)

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Index a Python/JavaScript/TypeScript repository into the code graph",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the repository root",
				},
				"incremental": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, only added, modified and deleted files are processed; if false the repository graph is rebuilt",
					"default":     true,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getSubgraphTool returns the tool definition for get_subgraph
func getSubgraphTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_subgraph",
		Description: "Fetch the nodes and relations reachable from a repository root",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to an indexed repository (alternative to root_id)",
				},
				"root_id": map[string]interface{}{
					"type":        "integer",
					"description": "Identity of the repository root node (alternative to path)",
				},
				"depth": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of hops from the root",
					"default":     DefaultSubgraphDepth,
					"minimum":     0,
					"maximum":     MaxSubgraphDepth,
				},
			},
		},
	}
}

// getNodeTool returns the tool definition for get_node
func getNodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_node",
		Description: "Fetch one graph node with all of its incoming and outgoing relations",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"node_id": map[string]interface{}{
					"type":        "integer",
					"description": "Identity of the node",
					"minimum":     1,
				},
			},
			Required: []string{"node_id"},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "Query the last indexing run and graph statistics of a repository",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the repository root",
				},
			},
			Required: []string{"path"},
		},
	}
}

package graph

import "context"

// Store persists the code graph. Implementations must make DeleteNodesByFile
// and ClearRepository remove every relation incident to the deleted nodes.
type Store interface {
	// CreateNode persists node and returns its identity. node.RootID scopes it to a repository.
	CreateNode(ctx context.Context, node *CodeNode) (NodeID, error)
	CreateRelation(ctx context.Context, source, target NodeID, typ RelationType, props Properties) error

	// GetOrCreateRoot returns the root node of the repository at repoPath, creating it on first use.
	GetOrCreateRoot(ctx context.Context, repoPath, name string) (NodeID, error)

	DeleteNodesByFile(ctx context.Context, rootID NodeID, filePath string) error
	// ClearRepository removes every non-root node of the repository.
	ClearRepository(ctx context.Context, rootID NodeID) error

	// FetchSubgraph returns nodes reachable from rootID within depth hops and the edges between them.
	FetchSubgraph(ctx context.Context, rootID NodeID, depth int) (*Subgraph, error)
	GetNode(ctx context.Context, id NodeID) (*CodeNode, error)
	ListNodesByFile(ctx context.Context, rootID NodeID, filePath string) ([]*CodeNode, error)
	Stats(ctx context.Context, rootID NodeID) (*Stats, error)
}

package projector

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/codegraph-mcp/internal/graph"
)

// ErrGraphWrite wraps a store failure that aborted the projection of a file.
// The partial state of the file has been removed when it is returned.
var ErrGraphWrite = errors.New("graph write failed")

// Result reports what a projection created
type Result struct {
	ModuleID  graph.NodeID
	Nodes     int
	Relations int
}

// Projector writes ASTNode trees into a graph.Store
type Projector struct {
	store graph.Store
}

// New creates a projector writing to store
func New(store graph.Store) *Projector {
	return &Projector{store: store}
}

type queued struct {
	parent graph.NodeID // zero for the module node
	node   *graph.ASTNode
}

type edge struct {
	parent, child graph.NodeID
}

// Project persists the tree of one file below rootID. Every node is created
// before any CONTAINS edge, nodes are created in pre-order with siblings in
// source order, and the file's nodes are deleted again if any write fails.
func (p *Projector) Project(ctx context.Context, rootID graph.NodeID, filePath string, module *graph.ASTNode) (*Result, error) {
	if module == nil {
		return nil, fmt.Errorf("%w: empty tree", ErrGraphWrite)
	}

	result := &Result{}
	var edges []edge

	// Phase 1: nodes. Children are pushed in reverse so they pop in source order.
	stack := []queued{{node: module}}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := ctx.Err(); err != nil {
			return nil, p.rollback(ctx, rootID, filePath, err)
		}

		id, err := p.store.CreateNode(ctx, &graph.CodeNode{
			RootID:     rootID,
			Name:       item.node.Name,
			Type:       item.node.Type,
			FilePath:   filePath,
			Position:   item.node.Position,
			Properties: item.node.Properties,
		})
		if err != nil {
			return nil, p.rollback(ctx, rootID, filePath, fmt.Errorf("create %s %q: %w", item.node.Type, item.node.Name, err))
		}
		result.Nodes++

		if item.parent == 0 {
			result.ModuleID = id
		} else {
			edges = append(edges, edge{parent: item.parent, child: id})
		}

		for i := len(item.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, queued{parent: id, node: item.node.Children[i]})
		}
	}

	// Phase 2: containment, then the link from the repository root
	edges = append(edges, edge{parent: rootID, child: result.ModuleID})
	for _, e := range edges {
		if err := p.store.CreateRelation(ctx, e.parent, e.child, graph.RelationContains, nil); err != nil {
			return nil, p.rollback(ctx, rootID, filePath, fmt.Errorf("create CONTAINS %d->%d: %w", e.parent, e.child, err))
		}
		result.Relations++
	}

	return result, nil
}

// rollback deletes every node already written for filePath. Cleanup runs
// even when ctx is cancelled.
func (p *Projector) rollback(ctx context.Context, rootID graph.NodeID, filePath string, cause error) error {
	cleanupCtx := context.WithoutCancel(ctx)
	if err := p.store.DeleteNodesByFile(cleanupCtx, rootID, filePath); err != nil {
		return fmt.Errorf("%w: %w (rollback failed: %v)", ErrGraphWrite, cause, err)
	}
	return fmt.Errorf("%w: %w", ErrGraphWrite, cause)
}
